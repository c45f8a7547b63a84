package domain

import "errors"

// ErrMissingIdentity is returned when a request carries no caller identity.
var ErrMissingIdentity = errors.New("missing caller identity")

// ErrEmptyMessage is returned when the new user message is blank.
var ErrEmptyMessage = errors.New("empty user message")

// ErrInvalidBudget is returned when a step budget is not a positive integer.
var ErrInvalidBudget = errors.New("step budget must be positive")

// ErrTranscriptNotFound is returned when a conversation ID cannot be found in the store.
var ErrTranscriptNotFound = errors.New("transcript not found")

// ErrRecordNotFound is returned when a record ID cannot be found in the store.
var ErrRecordNotFound = errors.New("record not found")

// ErrPlannerUnavailable marks a planner failure that exhausted its retries.
var ErrPlannerUnavailable = errors.New("planner unavailable")

var (
	// ErrPendingResults is returned when a message is appended while action results are still owed.
	ErrPendingResults = errors.New("action results pending")
	// ErrUnexpectedResult is returned when an action result does not match the next outstanding call.
	ErrUnexpectedResult = errors.New("unexpected action result")
	// ErrEmptyActionRequest is returned when an action request carries no calls.
	ErrEmptyActionRequest = errors.New("action request without calls")
)
