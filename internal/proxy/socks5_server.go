package proxy

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/die-net/socks5d/internal/resolver"
	"github.com/die-net/socks5d/internal/socks5"
)

type SOCKS5Server struct {
	ctx context.Context
	cfg Config
	log *zap.Logger
}

func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = resolver.System{}
	}
	return &SOCKS5Server{ctx: ctx, cfg: cfg, log: log}
}

// Serve accepts connections on ln until it is closed. It returns nil when
// the server's context ended first.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(c)
	}
}

func (s *SOCKS5Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.cfg.Metrics.AddConnection()()

	log := s.log.With(zap.String("conn", uuid.NewString()), zap.Stringer("peer", conn.RemoteAddr()))

	dst, err := s.handshake(conn, log)
	if err != nil {
		log.Debug("handshake failed", zap.Error(err))
		return
	}

	log.Debug("connected", zap.Stringer("dst", dst.RemoteAddr()))
	err = socks5.Relay(s.ctx, s.cfg.Metrics.CountConn(conn), dst)
	log.Debug("relay finished", zap.Error(err))
}

// handshake runs negotiation under NegotiationTimeout, covering both the
// client's messages and the outbound dial. The deadline is cleared on
// success.
func (s *SOCKS5Server) handshake(conn net.Conn, log *zap.Logger) (net.Conn, error) {
	start := time.Now()

	ctx := s.ctx
	if s.cfg.NegotiationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NegotiationTimeout)
		defer cancel()
		_ = conn.SetDeadline(start.Add(s.cfg.NegotiationTimeout))
	}

	srv := socks5.Server{
		Resolver:         s.cfg.Resolver,
		Dialer:           s.cfg.Dialer,
		Auth:             s.cfg.Auth,
		ReplyOnDialError: s.cfg.ReplyOnDialError,
		Logger:           log,
	}
	dst, err := srv.Handshake(ctx, conn, socks5.AddressFromNetAddr(conn.RemoteAddr()))

	reply := socks5.Succeeded
	if err != nil {
		reply = socks5.ReplyOf(err)
	}
	s.cfg.Metrics.AddHandshake(reply.String(), time.Since(start))

	if err != nil {
		return nil, err
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = dst.Close()
		return nil, err
	}
	return dst, nil
}
