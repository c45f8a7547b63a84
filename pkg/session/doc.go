/*
Package session serialises access to persisted conversations.

A Manager guards each conversation ID with a reference-counted local mutex and,
when configured, a distributed lock, so that two requests for the same
conversation never interleave their load, turn and save.
*/
package session
