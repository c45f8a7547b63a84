// Package stream provides the emitters that deliver a turn's answer to callers.
//
// Every emitter honours the same protocol: zero or more Progress and Delta
// calls, closed by exactly one Complete or Abort. Calls after the stream is
// closed return ErrClosed.
package stream
