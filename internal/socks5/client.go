package socks5

import (
	"context"
	"io"
	"time"
)

// Auth configures optional username/password authentication.
type Auth struct {
	Username string
	Password string
}

func (a Auth) enabled() bool {
	return a.Username != "" || a.Password != ""
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// ClientDial runs the whole client handshake on conn: method negotiation,
// optional sub-negotiation and CONNECT to dst. On success conn carries the
// proxied stream and the server's bound address is returned.
//
// If conn supports SetDeadline, canceling ctx aborts a handshake in flight.
func ClientDial(ctx context.Context, conn io.ReadWriter, auth Auth, dst Address) (Address, error) {
	if d, ok := conn.(deadliner); ok {
		expired := make(chan struct{})
		stop := context.AfterFunc(ctx, func() {
			defer close(expired)
			_ = d.SetDeadline(time.Unix(1, 0))
		})
		defer func() {
			if !stop() {
				// The expiry must land before the reset.
				<-expired
				_ = d.SetDeadline(time.Time{})
			}
		}()
	}

	bound, err := clientDial(conn, auth, dst)
	if err != nil && ctx.Err() != nil {
		return Address{}, wrapIO("handshake", ctx.Err())
	}
	return bound, err
}

func clientDial(conn io.ReadWriter, auth Auth, dst Address) (Address, error) {
	if err := ClientNegotiate(conn, auth); err != nil {
		return Address{}, err
	}
	return ClientConnect(conn, dst)
}

// ClientNegotiate offers a single method, PASSWORD when auth carries
// credentials and NONE otherwise, and completes whatever the server picks.
func ClientNegotiate(conn io.ReadWriter, auth Auth) error {
	method := MethodNone
	if auth.enabled() {
		method = MethodPassword
	}
	if err := WriteFrame(conn, AuthRequest{Methods: []Method{method}}); err != nil {
		return err
	}

	resp, err := ReadAuthResponse(conn)
	if err != nil {
		return err
	}

	switch resp.Method {
	case MethodNone:
		return nil
	case MethodPassword:
		if !auth.enabled() {
			return authError(ErrRequireAuth)
		}
		req := UserPassRequest{Username: []byte(auth.Username), Password: []byte(auth.Password)}
		if err := req.Write(conn); err != nil {
			return err
		}
		rep, err := ReadUserPassResponse(conn)
		if err != nil {
			return err
		}
		if !rep.OK() {
			return authError(ErrAuthFailure)
		}
		return nil
	case MethodGSSAPI:
		return authError(ErrUnsupportedGSSAPI)
	default:
		return authError(ErrNotAcceptable)
	}
}

// ClientConnect sends a CONNECT request for dst and reads the reply. A reply
// other than Succeeded is returned as an *Error carrying that reply.
func ClientConnect(conn io.ReadWriter, dst Address) (Address, error) {
	if err := WriteFrame(conn, Request{Command: CommandConnect, Address: dst}); err != nil {
		return Address{}, err
	}

	resp, err := ReadResponse(conn)
	if err != nil {
		return Address{}, err
	}
	if resp.Reply != Succeeded {
		return Address{}, replyError(resp.Reply)
	}
	return resp.Address, nil
}
