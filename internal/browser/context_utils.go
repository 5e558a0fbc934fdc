package browser

import (
	"context"
)

// CombineContext derives a context from primary that is also canceled when
// secondary is done. Values (including the chromedp target) come from
// primary; the deadline usually comes from secondary. context.Cause on the
// result reports why secondary ended.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(secondary, func() {
		cancel(context.Cause(secondary))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

// Detach returns a context carrying ctx's values that outlives ctx. Cleanup
// that must reach the browser after the caller gave up runs on it.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
