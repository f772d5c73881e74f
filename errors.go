package main

import (
	"errors"
	"fmt"
)

var (
	errNoWork            = errors.New("no work available")
	errNoActiveSession   = errors.New("no active session")
	errSubmitQueueFull   = errors.New("submit queue full")
	errSessionClosed     = errors.New("session closed")
	errFrameTooLarge     = errors.New("frame exceeds size limit")
	errIdleTimeout       = errors.New("no frames within idle timeout")
	errDuplicateShare    = errors.New("duplicate share")
	errDuplicateNotify   = errors.New("duplicate job notification")
	errReplayedAck       = errors.New("replayed submission acknowledgement")
	errExtranonceSpent   = errors.New("extranonce2 space exhausted")
	errServerReconnect   = errors.New("server requested reconnect")
	errMalformedRate     = errors.New("malformed frame rate exceeded")
	errAllEndpointsAuth  = errors.New("all endpoints rejected credentials")
	errExtranonceMissing = errors.New("extranonce not negotiated")
)

// ConnectError is a transport or TLS failure reaching an endpoint.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ProtocolError covers malformed or unexpected replies during a call and
// sessions torn down for protocol misbehavior.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthError means the pool refused the worker credentials. It is terminal
// for the endpoint until credentials change.
type AuthError struct {
	Worker string
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("authorize %s rejected", e.Worker)
	}
	return fmt.Sprintf("authorize %s rejected: %s", e.Worker, e.Reason)
}

// ValidationError is an inbound frame or outbound candidate that failed
// structural or bounds checks. Malformed reports whether it counts toward
// the session's malformed-frame rate.
type ValidationError struct {
	Method    string
	Reason    string
	Malformed bool
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Method == "" {
		return "invalid frame: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Method, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func malformed(method, format string, args ...any) *ValidationError {
	return &ValidationError{Method: method, Reason: fmt.Sprintf(format, args...), Malformed: true}
}

// StaleWorkError is returned by Submit when the job is no longer current.
// The share is discarded locally and never sent.
type StaleWorkError struct {
	JobID string
}

func (e *StaleWorkError) Error() string {
	return fmt.Sprintf("stale work: job %s is no longer current", e.JobID)
}

func isAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
