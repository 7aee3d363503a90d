package socks5

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
)

// Address type tags (ATYP).
const (
	atypIPv4   byte = 0x01
	atypDomain byte = 0x03
	atypIPv6   byte = 0x04
)

// maxDomainLen is the largest name the one-byte length field can carry.
const maxDomainLen = 255

// Address is a SOCKS5 address: either a socket address or a domain name with
// a port. The zero value is the unspecified IPv4 address with port 0.
type Address struct {
	addr netip.AddrPort
	name string
	port uint16
	fqdn bool
}

// SocketAddress returns the Address for a literal IP and port. IPv4-mapped
// IPv6 addresses are encoded as IPv4.
func SocketAddress(ap netip.AddrPort) Address {
	return Address{addr: netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())}
}

// DomainAddress returns the Address for a domain name and port. The name must
// fit the one-byte length field.
func DomainAddress(name string, port uint16) (Address, error) {
	if len(name) > maxDomainLen {
		return Address{}, newError(GeneralFailure, "domain name too long: %d bytes", len(name))
	}
	return Address{name: name, port: port, fqdn: true}, nil
}

// ParseAddress parses a "host:port" string. Hosts that are IP literals give
// a socket address, anything else a domain name.
func ParseAddress(hostport string) (Address, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Address{}, &Error{Reply: GeneralFailure, Message: err.Error(), Err: err}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, newError(GeneralFailure, "invalid port %q", portStr)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return SocketAddress(netip.AddrPortFrom(ip.WithZone(""), uint16(port))), nil
	}
	return DomainAddress(host, uint16(port))
}

// AddressFromNetAddr converts a net.Addr such as a connection's local or
// remote address. Addresses that are not IP based map to the zero Address.
func AddressFromNetAddr(a net.Addr) Address {
	switch v := a.(type) {
	case *net.TCPAddr:
		return SocketAddress(v.AddrPort())
	case *net.UDPAddr:
		return SocketAddress(v.AddrPort())
	case nil:
		return Address{}
	}
	if ap, err := netip.ParseAddrPort(a.String()); err == nil {
		return SocketAddress(ap)
	}
	return Address{}
}

// IsDomain reports whether a is a domain name address.
func (a Address) IsDomain() bool { return a.fqdn }

// AddrPort returns the socket address. It is invalid for domain addresses.
func (a Address) AddrPort() netip.AddrPort { return a.addr }

// Name returns the domain name, or "" for socket addresses.
func (a Address) Name() string { return a.name }

// Port returns the port of either variant.
func (a Address) Port() uint16 {
	if a.fqdn {
		return a.port
	}
	return a.addr.Port()
}

func (a Address) String() string {
	if a.fqdn {
		return net.JoinHostPort(a.name, strconv.Itoa(int(a.port)))
	}
	if !a.addr.IsValid() {
		return netip.AddrPortFrom(netip.IPv4Unspecified(), 0).String()
	}
	return a.addr.String()
}

func (a Address) ip() netip.Addr {
	if !a.addr.IsValid() {
		return netip.IPv4Unspecified()
	}
	return a.addr.Addr()
}

// Resolve returns the socket address a refers to. Socket addresses resolve
// to themselves; domain names are handed to r. A resolver failure is
// reported as HostUnreachable.
func (a Address) Resolve(ctx context.Context, r Resolver) (netip.AddrPort, error) {
	if !a.fqdn {
		return netip.AddrPortFrom(a.ip(), a.addr.Port()), nil
	}
	if r == nil {
		return netip.AddrPort{}, newError(HostUnreachable, "domain %q resolving failed: no resolver", a.name)
	}
	ap, err := r.Resolve(ctx, a.name, a.port)
	if err != nil {
		return netip.AddrPort{}, &Error{
			Reply:   HostUnreachable,
			Message: fmt.Sprintf("domain %q resolving failed: %v", a.name, err),
			Err:     err,
		}
	}
	return ap, nil
}

// AppendPayload appends ATYP, the address and the big-endian port.
func (a Address) AppendPayload(b []byte) []byte {
	switch {
	case a.fqdn:
		b = append(b, atypDomain, byte(len(a.name)))
		b = append(b, a.name...)
		return binary.BigEndian.AppendUint16(b, a.port)
	case a.ip().Is4():
		ip := a.ip().As4()
		b = append(b, atypIPv4)
		b = append(b, ip[:]...)
	default:
		ip := a.ip().As16()
		b = append(b, atypIPv6)
		b = append(b, ip[:]...)
	}
	return binary.BigEndian.AppendUint16(b, a.addr.Port())
}

// ReadAddress decodes an address starting at its ATYP byte.
func ReadAddress(r io.Reader) (Address, error) {
	atyp, err := readByte(r)
	if err != nil {
		return Address{}, err
	}

	switch atyp {
	case atypIPv4:
		var buf [4 + 2]byte
		if err := readFull(r, buf[:]); err != nil {
			return Address{}, err
		}
		ip := netip.AddrFrom4([4]byte(buf[:4]))
		return Address{addr: netip.AddrPortFrom(ip, binary.BigEndian.Uint16(buf[4:]))}, nil
	case atypIPv6:
		var buf [16 + 2]byte
		if err := readFull(r, buf[:]); err != nil {
			return Address{}, err
		}
		ip := netip.AddrFrom16([16]byte(buf[:16]))
		return Address{addr: netip.AddrPortFrom(ip, binary.BigEndian.Uint16(buf[16:]))}, nil
	case atypDomain:
		n, err := readByte(r)
		if err != nil {
			return Address{}, err
		}
		buf := make([]byte, int(n)+2)
		if err := readFull(r, buf); err != nil {
			return Address{}, err
		}
		return Address{name: string(buf[:n]), port: binary.BigEndian.Uint16(buf[n:]), fqdn: true}, nil
	default:
		return Address{}, newError(AddressTypeNotSupported, "unsupported address type %#x", atyp)
	}
}
