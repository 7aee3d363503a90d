package proxy

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/socks5d/internal/dialer"
	"github.com/die-net/socks5d/internal/metrics"
	"github.com/die-net/socks5d/internal/socks5"
)

type Config struct {
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	Dialer   dialer.Dialer
	Resolver socks5.Resolver

	Auth             socks5.Auth
	ReplyOnDialError bool

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}
