package socks5

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net"
	"net/netip"

	"go.uber.org/zap"
)

// Resolver resolves the domain name of a CONNECT request.
type Resolver interface {
	Resolve(ctx context.Context, name string, port uint16) (netip.AddrPort, error)
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(ctx context.Context, name string, port uint16) (netip.AddrPort, error)

func (f ResolverFunc) Resolve(ctx context.Context, name string, port uint16) (netip.AddrPort, error) {
	return f(ctx, name, port)
}

// Dialer opens the outbound connection of a CONNECT request.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Server runs the server side of the protocol on connections the caller
// accepted. A Server holds no per-connection state and may serve any number
// of connections concurrently.
type Server struct {
	// Resolver resolves domain name destinations.
	Resolver Resolver

	// Dialer reaches destinations. If nil, a zero net.Dialer is used.
	Dialer Dialer

	// Auth, when it carries credentials, makes the server require
	// username/password authentication. Otherwise only NONE is accepted.
	Auth Auth

	// ReplyOnDialError makes the server answer a failed outbound dial with a
	// reply derived from the dial error. By default the connection is
	// dropped without a reply.
	ReplyOnDialError bool

	// Logger receives per-step debug logs. If nil, nothing is logged.
	Logger *zap.Logger
}

// ServeConn runs Handshake and, once CONNECT succeeded, relays conn to the
// destination until either direction ends. conn is closed on return only if
// the relay started.
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser, peer Address) error {
	dst, err := s.Handshake(ctx, conn, peer)
	if err != nil {
		return err
	}
	return Relay(ctx, conn, dst)
}

// Handshake negotiates authentication, reads the request and, for CONNECT,
// resolves and dials the destination. It returns the destination connection
// after the success reply was written.
//
// peer is the address answered with when the request cannot be decoded.
// Every failure is returned as an *Error, after a best-effort reply when the
// protocol allows one.
func (s *Server) Handshake(ctx context.Context, conn io.ReadWriter, peer Address) (net.Conn, error) {
	log := s.logger()

	if err := s.negotiate(conn); err != nil {
		return nil, err
	}

	req, err := ReadRequest(conn)
	if err != nil {
		log.Debug("request decode failed", zap.Error(err), zap.Stringer("peer", peer))
		return nil, s.reject(conn, err, peer)
	}
	log.Debug("request", zap.Stringer("command", req.Command), zap.Stringer("address", req.Address))

	switch req.Command {
	case CommandConnect:
		return s.connect(ctx, conn, req.Address)
	default:
		return nil, s.reject(conn, newError(CommandNotSupported, "%s command not supported", req.Command), req.Address)
	}
}

func (s *Server) negotiate(conn io.ReadWriter) error {
	req, err := ReadAuthRequest(conn)
	if err != nil {
		return err
	}

	want := MethodNone
	if s.Auth.enabled() {
		want = MethodPassword
	}

	if !req.Offers(want) {
		if err := WriteFrame(conn, AuthResponse{Method: MethodNotAcceptable}); err != nil {
			return err
		}
		return authError(ErrNoAcceptableMethods)
	}

	if err := WriteFrame(conn, AuthResponse{Method: want}); err != nil {
		return err
	}
	if want == MethodPassword {
		return s.authenticate(conn)
	}
	return nil
}

func (s *Server) authenticate(conn io.ReadWriter) error {
	req, err := ReadUserPassRequest(conn)
	if err != nil {
		return err
	}

	ok1 := subtle.ConstantTimeCompare([]byte(s.Auth.Username), req.Username) == 1
	ok2 := subtle.ConstantTimeCompare([]byte(s.Auth.Password), req.Password) == 1

	status := UserPassStatusSuccess
	if !ok1 || !ok2 {
		status = UserPassStatusFailure
	}
	if err := (UserPassResponse{Status: status}).Write(conn); err != nil {
		return err
	}
	if status != UserPassStatusSuccess {
		return authError(ErrAuthFailure)
	}
	return nil
}

func (s *Server) connect(ctx context.Context, conn io.ReadWriter, addr Address) (net.Conn, error) {
	resolved, err := addr.Resolve(ctx, s.Resolver)
	if err != nil {
		return nil, s.reject(conn, err, addr)
	}

	dst, err := s.dialer().DialContext(ctx, "tcp", resolved.String())
	if err != nil {
		derr := &Error{
			Reply:   ReplyFromError(err),
			Message: fmt.Sprintf("dial %s: %v", resolved, err),
			Err:     err,
		}
		if s.ReplyOnDialError {
			return nil, s.reject(conn, derr, SocketAddress(resolved))
		}
		return nil, derr
	}

	if err := WriteFrame(conn, Response{Reply: Succeeded, Address: SocketAddress(resolved)}); err != nil {
		_ = dst.Close()
		return nil, err
	}
	return dst, nil
}

// reject answers with the reply carried by cause against addr and returns
// cause. A failed reply write supersedes cause.
func (s *Server) reject(conn io.Writer, cause error, addr Address) error {
	if err := WriteFrame(conn, Response{Reply: ReplyOf(cause), Address: addr}); err != nil {
		return err
	}
	return cause
}

func (s *Server) dialer() Dialer {
	if s.Dialer != nil {
		return s.Dialer
	}
	return &net.Dialer{}
}

func (s *Server) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
