package socks5

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// errCopyDone ends the group when a direction reaches EOF.
var errCopyDone = errors.New("copy done")

// Relay copies client to dst and dst to client until either direction ends,
// then closes both. The first direction to finish decides the outcome: EOF is
// a normal end and returns nil, an I/O error is returned. The other direction
// is cut short, so bytes still in flight toward it are dropped.
//
// Canceling ctx closes both streams.
func Relay(ctx context.Context, client, dst io.ReadWriteCloser) error {
	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = client.Close()
			_ = dst.Close()
		})
	}
	defer closeBoth()

	g.Go(func() error {
		return copyHalf(dst, client)
	})

	g.Go(func() error {
		return copyHalf(client, dst)
	})

	// The first copy to return cancels gctx; closing both unblocks the other.
	g.Go(func() error {
		<-gctx.Done()
		closeBoth()
		return nil
	})

	err := g.Wait()
	switch {
	case ctx.Err() != nil:
		return wrapIO("relay", ctx.Err())
	case errors.Is(err, errCopyDone):
		return nil
	default:
		return wrapIO("relay", err)
	}
}

func copyHalf(dst io.Writer, src io.Reader) error {
	buf := copyBuffers.Get()
	defer copyBuffers.Put(buf)

	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		return err
	}
	return errCopyDone
}
