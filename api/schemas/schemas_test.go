package schemas_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// -- Test Helpers --

func getTestTime(t *testing.T) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, "2025-10-26T10:00:00.123456789Z")
	require.NoError(t, err, "Test setup failed: unable to parse fixed timestamp")
	return ts
}

// -- Test Cases --

func TestConstants(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		constant string
		expected string
	}{
		{"KindLike", string(schemas.KindLike), "like"},
		{"KindDirectMessage", string(schemas.KindDirectMessage), "directMessage"},
		{"QRScanning", string(schemas.QRScanning), "scanning"},
		{"SameSiteLax", string(schemas.CookieSameSiteLax), "Lax"},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.constant)
		})
	}
}

func TestQRState_IsTerminal(t *testing.T) {
	assert.False(t, schemas.QRWaiting.IsTerminal())
	assert.False(t, schemas.QRScanning.IsTerminal())
	assert.True(t, schemas.QRConnected.IsTerminal())
	assert.True(t, schemas.QRExpired.IsTerminal())
	assert.True(t, schemas.QRError.IsTerminal())
}

func TestCredential_SessionAndKey(t *testing.T) {
	c := schemas.Credential{Name: "sid_tt", Value: "x", Domain: ".tiktok.com", Path: "/", Expires: schemas.SessionExpiry}
	assert.True(t, c.IsSession())
	assert.Equal(t, "sid_tt|.tiktok.com|/", c.Key())

	c.Expires = 1893456000
	assert.False(t, c.IsSession())
}

func TestInteractionEvent_OptionalFieldsOmitted(t *testing.T) {
	ev := schemas.InteractionEvent{
		ActorHandle: "alice",
		Kind:        schemas.KindFollow,
		ObservedAt:  getTestTime(t),
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "alice", raw["actorHandle"])
	assert.NotContains(t, raw, "textBody")
	assert.NotContains(t, raw, "relatedContentId")
}

func TestDriverError(t *testing.T) {
	base := errors.New("websocket closed")

	t.Run("wraps and unwraps", func(t *testing.T) {
		err := schemas.NewDriverError("navigate", base)
		require.Error(t, err)
		assert.True(t, schemas.IsDriverError(err))
		assert.ErrorIs(t, err, base)
		assert.Contains(t, err.Error(), "navigate")
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, schemas.NewDriverError("navigate", nil))
	})

	t.Run("does not double wrap", func(t *testing.T) {
		inner := schemas.NewDriverError("click", base)
		outer := schemas.NewDriverError("navigate", inner)
		assert.Same(t, inner, outer)
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("scrape failed: %w", schemas.NewDriverError("evaluate", base))
		assert.True(t, schemas.IsDriverError(err))
		assert.False(t, schemas.IsAccountFailure(err))
	})
}

func TestIsAccountFailure(t *testing.T) {
	assert.True(t, schemas.IsAccountFailure(fmt.Errorf("x: %w", schemas.ErrSessionExpired)))
	assert.True(t, schemas.IsAccountFailure(schemas.ErrSessionRejected))
	assert.False(t, schemas.IsAccountFailure(schemas.ErrAffordanceNotFound))
}
