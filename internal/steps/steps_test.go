package steps

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReport_Run(t *testing.T) {
	ctx := context.Background()
	r := NewReport("send_message")

	require.NoError(t, r.Run(ctx, "open_profile", func(context.Context) error { return nil }))

	boom := errors.New("composer missing")
	err := r.Run(ctx, "locate_composer", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = r.Run(ctx, "click_send", func(context.Context) error {
		return fmt.Errorf("no send affordance: %w", ErrSkip)
	})
	assert.NoError(t, err, "skips are not errors")

	r.Skipf("confirm", "not reached")

	require.Len(t, r.Steps, 4)
	assert.Equal(t, Success, r.Steps[0].Outcome)
	assert.Equal(t, Failure, r.Steps[1].Outcome)
	assert.Equal(t, "composer missing", r.Steps[1].Message)
	assert.Equal(t, Skip, r.Steps[2].Outcome)
	assert.Equal(t, "no send affordance", r.Steps[2].Message)
	assert.Equal(t, Skip, r.Steps[3].Outcome)

	assert.True(t, r.Failed())
	assert.Equal(t, 2, r.Count(Skip))
	assert.Equal(t, "send_message[open_profile=success locate_composer=failure click_send=skip confirm=skip]", r.String())

	o, ok := r.Outcome("locate_composer")
	assert.True(t, ok)
	assert.Equal(t, Failure, o)
	_, ok = r.Outcome("never")
	assert.False(t, ok)
}

func TestReport_Log(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	ok := NewReport("scrape")
	_ = ok.Run(context.Background(), "navigate", func(context.Context) error { return nil })
	ok.Log(logger)

	bad := NewReport("scrape")
	bad.Fail("extract", errors.New("script error"))
	bad.Log(logger, zap.String("account_id", "a1"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "a1", entries[1].ContextMap()["account_id"])
	assert.Equal(t, int64(1), entries[1].ContextMap()["failed"])
}
