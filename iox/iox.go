// Package iox provides helpers for releasing resources.
package iox

import (
	"context"
	"errors"
	"io"
)

// ContextCloser is a resource released with a remote call, such as a
// connection or statement handle.
type ContextCloser interface {
	Close(ctx context.Context) error
}

// DiscardClose closes c and discards the error.
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
//
//	defer iox.DiscardErr(env.Close)
func DiscardErr(fn func() error) { _ = fn() }

// CloseJoin closes c and joins the close error to err.
// The close keeps ctx's values but not its cancellation.
func CloseJoin(ctx context.Context, err error, c ContextCloser) error {
	return errors.Join(err, c.Close(context.WithoutCancel(ctx)))
}
