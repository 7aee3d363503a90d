package socks5

import "fmt"

// Version is the SOCKS protocol version byte that frames every top-level
// message.
const Version byte = 0x05

// userPassVersion is the RFC 1929 sub-negotiation version.
const userPassVersion byte = 0x01

// Method is an authentication method offered by a client or chosen by a
// server.
type Method byte

const (
	MethodNone          Method = 0x00
	MethodGSSAPI        Method = 0x01
	MethodPassword      Method = 0x02
	MethodNotAcceptable Method = 0xff
)

func parseMethod(b byte) (Method, error) {
	switch m := Method(b); m {
	case MethodNone, MethodGSSAPI, MethodPassword, MethodNotAcceptable:
		return m, nil
	default:
		return 0, newError(GeneralFailure, "unsupported method %#x", b)
	}
}

func (m Method) String() string {
	switch m {
	case MethodNone:
		return "none"
	case MethodGSSAPI:
		return "gssapi"
	case MethodPassword:
		return "username/password"
	case MethodNotAcceptable:
		return "no acceptable methods"
	default:
		return fmt.Sprintf("method(%#x)", byte(m))
	}
}

// Command is the CMD field of a request header.
type Command byte

const (
	CommandConnect      Command = 0x01
	CommandBind         Command = 0x02
	CommandUDPAssociate Command = 0x03
)

func parseCommand(b byte) (Command, error) {
	switch c := Command(b); c {
	case CommandConnect, CommandBind, CommandUDPAssociate:
		return c, nil
	default:
		return 0, newError(CommandNotSupported, "unsupported command %#x", b)
	}
}

func (c Command) String() string {
	switch c {
	case CommandConnect:
		return "connect"
	case CommandBind:
		return "bind"
	case CommandUDPAssociate:
		return "udp associate"
	default:
		return fmt.Sprintf("command(%#x)", byte(c))
	}
}

// Reply is the REP field of a response header. It is also the reply code
// carried by every Error.
type Reply byte

const (
	Succeeded               Reply = 0x00
	GeneralFailure          Reply = 0x01
	ConnectionNotAllowed    Reply = 0x02
	NetworkUnreachable      Reply = 0x03
	HostUnreachable         Reply = 0x04
	ConnectionRefused       Reply = 0x05
	TTLExpired              Reply = 0x06
	CommandNotSupported     Reply = 0x07
	AddressTypeNotSupported Reply = 0x08
)

func parseReply(b byte) (Reply, error) {
	if r := Reply(b); r <= AddressTypeNotSupported {
		return r, nil
	}
	return 0, newError(GeneralFailure, "unsupported reply %#x", b)
}

func (r Reply) String() string {
	switch r {
	case Succeeded:
		return "succeeded"
	case GeneralFailure:
		return "general failure"
	case ConnectionNotAllowed:
		return "connection not allowed"
	case NetworkUnreachable:
		return "network unreachable"
	case HostUnreachable:
		return "host unreachable"
	case ConnectionRefused:
		return "connection refused"
	case TTLExpired:
		return "TTL expired"
	case CommandNotSupported:
		return "command not supported"
	case AddressTypeNotSupported:
		return "address type not supported"
	default:
		return fmt.Sprintf("reply(%#x)", byte(r))
	}
}
