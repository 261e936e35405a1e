// internal/message/message.go
//
// Flash messages.
//
// Context
//   A flash message is a short notice queued for the next rendered page:
//   validation problems land in the "pageErrors" bucket, confirmations in
//   "pageMessages".  Messages live in the visitor's session, so they survive
//   a redirect and disappear once a page has shown them.
//
//   Code that runs without a session (background jobs, some tests) still
//   calls Add safely; the message is logged at debug level and dropped.
//
//   A muted context (see Mute) neither queues nor consumes messages.  The
//   form dispatcher hands one to checks whose response is discarded.
//
//------------------------------------------------------------------------------

package message

import (
	"context"

	"github.com/yanizio/reviews/internal/logger"
	"github.com/yanizio/reviews/internal/session"
)

// Bucket names shared by handlers and templates.
const (
	Errors   = "pageErrors"
	Messages = "pageMessages"
)

type muteKey struct{}

// Mute returns a context in which Add and Pull leave the session untouched.
func Mute(ctx context.Context) context.Context {
	return context.WithValue(ctx, muteKey{}, true)
}

func muted(ctx context.Context) bool {
	m, _ := ctx.Value(muteKey{}).(bool)
	return m
}

// Add queues text in bucket on the request session.
func Add(ctx context.Context, bucket, text string) {
	if muted(ctx) {
		return
	}
	s := session.FromContext(ctx)
	if s == nil {
		logger.FromContext(ctx).Debugw("flash dropped, no session", "bucket", bucket, "text", text)
		return
	}
	s.AddFlash(bucket, text)
}

// Pull returns and clears every message in bucket.
func Pull(ctx context.Context, bucket string) []string {
	if muted(ctx) {
		return nil
	}
	s := session.FromContext(ctx)
	if s == nil {
		return nil
	}
	return s.PullFlash(bucket)
}

// Peek returns the messages in bucket without consuming them.
func Peek(ctx context.Context, bucket string) []string {
	s := session.FromContext(ctx)
	if s == nil {
		return nil
	}
	return append([]string(nil), s.Flash[bucket]...)
}
