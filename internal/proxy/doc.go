// Package proxy implements the socks5d listener.
//
// It accepts client connections, runs the SOCKS5 handshake under a
// negotiation deadline and relays CONNECT streams to their destination.
package proxy
