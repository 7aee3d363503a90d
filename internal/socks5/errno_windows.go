//go:build windows

package socks5

import (
	"errors"

	"golang.org/x/sys/windows"
)

func isConnRefused(err error) bool {
	return errors.Is(err, windows.WSAECONNREFUSED)
}

func isHostUnreachable(err error) bool {
	return errors.Is(err, windows.WSAECONNABORTED) || errors.Is(err, windows.WSAEHOSTUNREACH)
}
