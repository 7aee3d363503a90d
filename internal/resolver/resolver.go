package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/die-net/socks5d/internal/socks5"
)

var errNoAddress = errors.New("no address found")

// New returns the system resolver when server is empty and a DNS resolver
// querying server otherwise. A server without a port uses 53.
func New(server string, timeout time.Duration) (socks5.Resolver, error) {
	if server == "" {
		return System{}, nil
	}

	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(strings.Trim(server, "[]"), "53")
	}
	if _, err := netip.ParseAddrPort(server); err != nil {
		return nil, fmt.Errorf("invalid dns server %q: %w", server, err)
	}

	return &DNS{Server: server, Timeout: timeout}, nil
}

// System resolves names with net.DefaultResolver, preferring IPv4.
type System struct{}

func (System) Resolve(ctx context.Context, name string, port uint16) (netip.AddrPort, error) {
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", name)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("lookup %s: %w", name, err)
	}

	addr, ok := pick(addrs)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("lookup %s: %w", name, errNoAddress)
	}
	return netip.AddrPortFrom(addr, port), nil
}

// pick returns the first IPv4 address, or the first address of any family.
func pick(addrs []netip.Addr) (netip.Addr, bool) {
	if i := slices.IndexFunc(addrs, func(a netip.Addr) bool { return a.Unmap().Is4() }); i >= 0 {
		return addrs[i].Unmap(), true
	}
	if len(addrs) > 0 {
		return addrs[0], true
	}
	return netip.Addr{}, false
}

// DNS queries Server over UDP: an A query first, AAAA when no A record
// exists. IP literals are answered without a query.
type DNS struct {
	Server  string
	Timeout time.Duration
}

func (d *DNS) Resolve(ctx context.Context, name string, port uint16) (netip.AddrPort, error) {
	if ip, err := netip.ParseAddr(name); err == nil {
		return netip.AddrPortFrom(ip.Unmap(), port), nil
	}

	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		addrs, err := d.lookup(ctx, name, qtype)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(addrs) > 0 {
			return netip.AddrPortFrom(addrs[0], port), nil
		}
	}

	if lastErr == nil {
		lastErr = errNoAddress
	}
	return netip.AddrPort{}, fmt.Errorf("lookup %s: %w", name, lastErr)
}

func (d *DNS) lookup(ctx context.Context, name string, qtype uint16) ([]netip.Addr, error) {
	var m dns.Msg
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	c := dns.Client{Net: "udp", Timeout: d.Timeout}
	r, _, err := c.ExchangeContext(ctx, &m, d.Server)
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", dns.TypeToString[qtype], err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s query: %s", dns.TypeToString[qtype], dns.RcodeToString[r.Rcode])
	}

	var addrs []netip.Addr
	for _, rr := range r.Answer {
		var ip net.IP
		switch v := rr.(type) {
		case *dns.A:
			ip = v.A
		case *dns.AAAA:
			ip = v.AAAA
		default:
			continue
		}
		if a, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, a.Unmap())
		}
	}
	return addrs, nil
}
