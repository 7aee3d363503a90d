package socks5

import (
	"io"
)

// Payload is implemented by every message the codec writes.
type Payload interface {
	// AppendPayload appends the variant-specific bytes of the message,
	// without any version byte.
	AppendPayload(b []byte) []byte
}

// Frame returns the version byte followed by the message payload, the form
// every top-level message takes on the wire.
func Frame(p Payload) []byte {
	return p.AppendPayload([]byte{Version})
}

type flusher interface {
	Flush() error
}

// writeAll writes b in one call and flushes w if it buffers.
func writeAll(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return err
	}
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// WriteFrame frames p, writes it to w and flushes.
func WriteFrame(w io.Writer, p Payload) error {
	return wrapIO("write", writeAll(w, Frame(p)))
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readFull(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	return wrapIO("read", err)
}

// readVersion consumes the version byte that precedes every top-level
// message.
func readVersion(r io.Reader) error {
	ver, err := readByte(r)
	if err != nil {
		return err
	}
	if ver != Version {
		return newError(ConnectionRefused, "unsupported socks version %#x", ver)
	}
	return nil
}

// readFramed validates the version byte, then decodes the payload.
func readFramed[T any](r io.Reader, decode func(io.Reader) (T, error)) (T, error) {
	if err := readVersion(r); err != nil {
		var zero T
		return zero, err
	}
	return decode(r)
}

// readVariable reads a one-byte length followed by that many bytes.
func readVariable(r io.Reader) ([]byte, error) {
	n, err := readByte(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
