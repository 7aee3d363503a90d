package socks5

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestClientNegotiate(t *testing.T) {
	creds := Auth{Username: "user", Password: "pass"}
	subReq := []byte{0x01, 4, 'u', 's', 'e', 'r', 4, 'p', 'a', 's', 's'}

	tests := []struct {
		name         string
		auth         Auth
		serverMethod Method
		status       byte
		wantOffered  Method
		wantSub      bool
		wantErr      error
	}{
		{name: "no_auth", serverMethod: MethodNone, wantOffered: MethodNone},
		{name: "user_pass_accepted", auth: creds, serverMethod: MethodPassword, wantOffered: MethodPassword, wantSub: true},
		{name: "user_pass_rejected", auth: creds, serverMethod: MethodPassword, status: 0x01, wantOffered: MethodPassword, wantSub: true, wantErr: ErrAuthFailure},
		{name: "user_pass_required", serverMethod: MethodPassword, wantOffered: MethodNone, wantErr: ErrRequireAuth},
		{name: "not_acceptable", serverMethod: MethodNotAcceptable, wantOffered: MethodNone, wantErr: ErrNotAcceptable},
		{name: "gssapi", serverMethod: MethodGSSAPI, wantOffered: MethodNone, wantErr: ErrUnsupportedGSSAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				offer := make([]byte, 3)
				if _, err := io.ReadFull(serverConn, offer); err != nil {
					return err
				}
				if want := []byte{0x05, 0x01, byte(tt.wantOffered)}; !bytes.Equal(offer, want) {
					return fmt.Errorf("offer: got % x want % x", offer, want)
				}
				if _, err := serverConn.Write([]byte{0x05, byte(tt.serverMethod)}); err != nil {
					return err
				}

				if tt.wantSub {
					got := make([]byte, len(subReq))
					if _, err := io.ReadFull(serverConn, got); err != nil {
						return err
					}
					if !bytes.Equal(got, subReq) {
						return fmt.Errorf("sub-negotiation: got % x want % x", got, subReq)
					}
					if _, err := serverConn.Write([]byte{0x01, tt.status}); err != nil {
						return err
					}
				}

				rest, err := io.ReadAll(serverConn)
				if err != nil {
					return err
				}
				if len(rest) != 0 {
					return fmt.Errorf("unexpected trailing bytes % x", rest)
				}
				return nil
			})

			err := ClientNegotiate(clientConn, tt.auth)
			_ = clientConn.Close()

			if tt.wantErr == nil && err != nil {
				t.Fatal(err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v want %v", err, tt.wantErr)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestClientConnect(t *testing.T) {
	dst := mustDomain(t, "example.com", 80)
	bound := SocketAddress(netip.MustParseAddrPort("[2001:db8::2]:40000"))

	tests := []struct {
		name      string
		reply     Reply
		wantReply Reply
	}{
		{name: "succeeded", reply: Succeeded},
		{name: "refused", reply: ConnectionRefused, wantReply: ConnectionRefused},
		{name: "ttl_expired", reply: TTLExpired, wantReply: TTLExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				want := Frame(Request{Command: CommandConnect, Address: dst})
				got := make([]byte, len(want))
				if _, err := io.ReadFull(serverConn, got); err != nil {
					return err
				}
				if !bytes.Equal(got, want) {
					return fmt.Errorf("request: got % x want % x", got, want)
				}
				_, err := serverConn.Write(Frame(Response{Reply: tt.reply, Address: bound}))
				return err
			})

			gotBound, err := ClientConnect(clientConn, dst)
			if gerr := g.Wait(); gerr != nil {
				t.Fatal(gerr)
			}

			if tt.reply == Succeeded {
				if err != nil {
					t.Fatal(err)
				}
				if gotBound != bound {
					t.Fatalf("bound: got %v want %v", gotBound, bound)
				}
				return
			}
			if got := ReplyOf(err); got != tt.wantReply {
				t.Fatalf("got reply %v (%v)", got, err)
			}
		})
	}
}

func TestClientConnectBadVersion(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		_, _ = io.ReadFull(serverConn, make([]byte, 10))
		_, _ = serverConn.Write([]byte{0x04, 0x5a, 0, 0, 0, 0, 0, 0})
	}()

	_, err := ClientConnect(clientConn, SocketAddress(netip.MustParseAddrPort("127.0.0.1:80")))
	if got := ReplyOf(err); got != ConnectionRefused {
		t.Fatalf("got reply %v (%v)", got, err)
	}
}

func TestClientDialContextCancel(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	// The server reads the offer and never answers.
	go func() {
		_, _ = io.ReadFull(serverConn, make([]byte, 3))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ClientDial(ctx, clientConn, Auth{}, SocketAddress(netip.MustParseAddrPort("127.0.0.1:80")))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
}

// lateDeadlineConn cancels its context once the last expected byte has been
// read, and applies non-zero deadlines slowly so the context callback is
// still running when ClientDial returns.
type lateDeadlineConn struct {
	net.Conn
	cancel    context.CancelFunc
	remaining int

	mu   sync.Mutex
	last time.Time
	set  int
}

func (c *lateDeadlineConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.remaining -= n
	if n > 0 && c.remaining == 0 {
		c.cancel()
		time.Sleep(20 * time.Millisecond)
	}
	return n, err
}

func (c *lateDeadlineConn) SetDeadline(t time.Time) error {
	if !t.IsZero() {
		time.Sleep(50 * time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = t
	c.set++
	return nil
}

func TestClientDialCancelAfterSuccessClearsDeadline(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := errgroup.Group{}
	g.Go(func() error {
		if _, err := io.ReadFull(serverConn, make([]byte, 3)); err != nil {
			return err
		}
		if _, err := serverConn.Write([]byte{0x05, 0x00}); err != nil {
			return err
		}
		if _, err := io.ReadFull(serverConn, make([]byte, 10)); err != nil {
			return err
		}
		_, err := serverConn.Write([]byte{0x05, 0x00, 0x00, 0x01, 10, 0, 0, 1, 0x1f, 0x90})
		return err
	})

	// Method selection (2 bytes) plus an IPv4 reply (10 bytes).
	conn := &lateDeadlineConn{Conn: clientConn, cancel: cancel, remaining: 12}
	if _, err := ClientDial(ctx, conn, Auth{}, SocketAddress(netip.MustParseAddrPort("127.0.0.1:80"))); err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	// Give a stray expiry time to land.
	time.Sleep(100 * time.Millisecond)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.set != 2 || !conn.last.IsZero() {
		t.Fatalf("deadline calls=%d last=%v, want 2 calls ending with the zero time", conn.set, conn.last)
	}
}
