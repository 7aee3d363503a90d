// Package socks5 implements the SOCKS5 protocol (RFC 1928) with the
// username/password sub-negotiation of RFC 1929.
//
// It contains the wire codec for the handshake and addressing messages, the
// client-side CONNECT handshake, the server-side accept/authenticate/dispatch
// handshake and the relay that splices a client stream to its destination.
//
// The package does not listen, resolve or dial on its own: the server takes a
// Resolver and a Dialer, and every handshake runs over an io.Reader/io.Writer
// the caller already owns. BIND and UDP ASSOCIATE are answered with
// CommandNotSupported and GSSAPI is never negotiated.
package socks5
