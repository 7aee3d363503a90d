//go:build !unix && !windows

package socks5

func isConnRefused(error) bool { return false }

func isHostUnreachable(error) bool { return false }
