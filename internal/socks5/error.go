package socks5

import (
	"errors"
	"fmt"
)

// Error is the single failure type of the package. Reply is the code a server
// answers with when it turns the failure into a response header; Message is
// what the caller sees.
type Error struct {
	Reply   Reply
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrRequireAuth is returned by the client when the server chose
	// username/password and no credentials were supplied.
	ErrRequireAuth = errors.New("server requires username/password authentication")

	// ErrNotAcceptable is returned by the client when the server accepted
	// none of the offered methods.
	ErrNotAcceptable = errors.New("server accepted no offered authentication method")

	// ErrAuthFailure is returned by the client when the server rejected the
	// supplied credentials.
	ErrAuthFailure = errors.New("username/password authentication failed")

	// ErrUnsupportedGSSAPI is returned by the client when the server chose
	// GSSAPI, which is not implemented.
	ErrUnsupportedGSSAPI = errors.New("gssapi authentication is not supported")

	// ErrNoAcceptableMethods is returned by the server after it answered a
	// method selection it cannot serve.
	ErrNoAcceptableMethods = errors.New("client offered no acceptable authentication method")
)

func newError(reply Reply, format string, args ...any) *Error {
	return &Error{Reply: reply, Message: fmt.Sprintf(format, args...)}
}

// replyError converts a non-success reply received from a server.
func replyError(reply Reply) *Error {
	return &Error{Reply: reply, Message: reply.String()}
}

func authError(sentinel error) *Error {
	return &Error{Reply: GeneralFailure, Message: sentinel.Error(), Err: sentinel}
}

// wrapIO normalizes a transport failure to GeneralFailure. An *Error passes
// through unchanged so decode failures keep their reply code.
func wrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Reply: GeneralFailure, Message: fmt.Sprintf("%s: %v", op, err), Err: err}
}

// ReplyOf returns the reply code carried by err, or GeneralFailure when err is
// not an *Error.
func ReplyOf(err error) Reply {
	var e *Error
	if errors.As(err, &e) {
		return e.Reply
	}
	return GeneralFailure
}

// ReplyFromError picks the reply a server sends for a failed outbound dial:
// refused connections map to ConnectionRefused, aborted connections and
// unreachable hosts to HostUnreachable, everything else to
// NetworkUnreachable. An *Error keeps its own reply.
func ReplyFromError(err error) Reply {
	var e *Error
	if errors.As(err, &e) {
		return e.Reply
	}
	switch {
	case isConnRefused(err):
		return ConnectionRefused
	case isHostUnreachable(err):
		return HostUnreachable
	default:
		return NetworkUnreachable
	}
}
