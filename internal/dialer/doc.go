// Package dialer provides the outbound dialers used by socks5d.
//
// Dialers implement a small interface (DialContext) and are used by the
// SOCKS5 listener to reach a CONNECT destination either directly or through
// an upstream SOCKS5 proxy.
package dialer
