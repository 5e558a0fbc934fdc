package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want schemas.InteractionKind
		ok   bool
	}{
		{"alice liked your video. 2h", schemas.KindLike, true},
		{"alice liked your comment: nice", schemas.KindLike, true},
		{"A alice le gustó tu video", schemas.KindLike, true},
		{"bob commented: great stuff", schemas.KindComment, true},
		{"bob comentó: qué bueno", schemas.KindComment, true},
		{"carol mentioned you in a comment", schemas.KindMention, true},
		{"carol te mencionó en un comentario", schemas.KindMention, true},
		{"dave started following you", schemas.KindFollow, true},
		{"dave comenzó a seguirte", schemas.KindFollow, true},
		{"erin shared your video", schemas.KindShare, true},
		{"erin compartió tu video", schemas.KindShare, true},
		{"frank sent you a message", schemas.KindDirectMessage, true},
		{"frank te envió un mensaje", schemas.KindDirectMessage, true},
		{"Suggested accounts for you", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := Classify(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseObservedAt(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		label string
		want  time.Time
		ok    bool
	}{
		{"3h", now.Add(-3 * time.Hour), true},
		{"3h ago", now.Add(-3 * time.Hour), true},
		{"15m", now.Add(-15 * time.Minute), true},
		{"2d", now.Add(-48 * time.Hour), true},
		{"1w", now.Add(-7 * 24 * time.Hour), true},
		{"30s", now.Add(-30 * time.Second), true},
		{"5 minutes ago", now.Add(-5 * time.Minute), true},
		{"hace 2 horas", now.Add(-2 * time.Hour), true},
		{"hace 3 días", now.Add(-72 * time.Hour), true},
		{"hace 1 semana", now.Add(-7 * 24 * time.Hour), true},
		{"Just now", now, true},
		{"ayer", now.Add(-24 * time.Hour), true},
		{"6-1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"12-24", time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC), true},
		{"2023-4-9", time.Date(2023, 4, 9, 0, 0, 0, 0, time.UTC), true},
		{"13-40", time.Time{}, false},
		{"", time.Time{}, false},
		{"sometime", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := ParseObservedAt(tt.label, now)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}
