package platform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/config"
)

func newTestPlatform(t *testing.T) *Platform {
	t.Helper()
	p, err := New(config.NewDefaultConfig().Platform())
	require.NoError(t, err)
	return p
}

func TestNew(t *testing.T) {
	t.Run("relative base url", func(t *testing.T) {
		_, err := New(config.PlatformConfig{BaseURL: "tiktok.com"})
		assert.Error(t, err)
	})

	t.Run("derives cookie domain", func(t *testing.T) {
		p, err := New(config.PlatformConfig{BaseURL: "https://www.example.com/"})
		require.NoError(t, err)
		assert.Equal(t, ".example.com", p.CookieDomain())
		assert.Equal(t, "https://www.example.com/setting", p.ProbeURL())
		assert.Equal(t, "https://www.example.com/login/qrcode", p.QRLoginURL())
	})

	t.Run("cookie domain spans subdomains", func(t *testing.T) {
		for base, want := range map[string]string{
			"https://m.shop.example.co.uk": ".example.co.uk",
			"https://us.tiktok.com":        ".tiktok.com",
			"http://localhost:9222":        ".localhost",
			"http://127.0.0.1:8080":        "127.0.0.1",
		} {
			p, err := New(config.PlatformConfig{BaseURL: base})
			require.NoError(t, err, base)
			assert.Equal(t, want, p.CookieDomain(), base)
		}
	})
}

func TestURLs(t *testing.T) {
	p := newTestPlatform(t)
	assert.Equal(t, ".tiktok.com", p.CookieDomain())
	assert.Equal(t, "https://www.tiktok.com/setting", p.ProbeURL())
	assert.Equal(t, "https://www.tiktok.com/notifications", p.ActivityURL())
	assert.Equal(t, "https://www.tiktok.com/login", p.LoginURL())
	assert.Equal(t, "https://www.tiktok.com/@alice", p.ProfileURL("@alice"))
	assert.Equal(t, "https://www.tiktok.com/@bob.smith", p.ProfileURL(" bob.smith "))
}

func TestClassify(t *testing.T) {
	p := newTestPlatform(t)
	tests := []struct {
		url  string
		want Surface
	}{
		{"https://www.tiktok.com/setting", SurfaceAuthenticated},
		{"https://www.tiktok.com/foryou?lang=en", SurfaceAuthenticated},
		{"https://www.tiktok.com/login?redirect_url=%2Fsetting", SurfaceLogin},
		{"https://www.tiktok.com/login/qrcode", SurfaceLogin},
		{"https://www.tiktok.com/signup", SurfaceLogin},
		{"https://www.tiktok.com/loginsuccess", SurfaceAuthenticated},
		{"https://passport.tiktok.com/web/", SurfaceLogin},
		{"https://www.tiktok.com/404?fromUrl=/setting", SurfaceNotFound},
		{"about:blank", SurfaceNotFound},
		{"chrome-error://chromewebdata/", SurfaceNotFound},
		{"", SurfaceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Classify(tt.url), "got %s", p.Classify(tt.url))
		})
	}
	assert.True(t, p.IsLoginSurface("https://www.tiktok.com/login"))
	assert.True(t, p.IsAuthenticated("https://www.tiktok.com/@alice"))
}

func TestUsernameAndContentID(t *testing.T) {
	assert.Equal(t, "alice_01", UsernameFromURL("https://www.tiktok.com/@alice_01?lang=en"))
	assert.Equal(t, "bob.s", UsernameFromURL("/@bob.s/video/123"))
	assert.Equal(t, "", UsernameFromURL("https://www.tiktok.com/foryou"))
	assert.Equal(t, "7301234567890", ContentIDFromURL("https://www.tiktok.com/@bob/video/7301234567890"))
	assert.Equal(t, "42", ContentIDFromURL("/@bob/photo/42"))
	assert.Equal(t, "", ContentIDFromURL("/@bob"))
}

func TestDefaultCatalogue(t *testing.T) {
	cat, err := DefaultCatalogue()
	require.NoError(t, err)
	for _, a := range []Affordance{MessageButton, Composer, SendButton, UseQROption, QRCode, QRRegion, UsernameLink, NotificationItem} {
		assert.NotEmpty(t, cat.Strategies(a), "affordance %s has no strategies", a)
	}
	assert.Equal(t, StrategyCSS, cat.Strategies(MessageButton)[0].Kind)
}

func TestLoadCatalogue(t *testing.T) {
	t.Run("override replaces by name", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "selectors.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
send_button:
  - kind: text
    value: "Senden"
    tag: button
`), 0o600))
		cat, err := LoadCatalogue(path)
		require.NoError(t, err)
		require.Len(t, cat.Strategies(SendButton), 1)
		assert.Equal(t, "Senden", cat.Strategies(SendButton)[0].Value)
		assert.NotEmpty(t, cat.Strategies(Composer), "untouched entries keep defaults")
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "selectors.yaml")
		require.NoError(t, os.WriteFile(path, []byte("composer:\n  - kind: regex\n    value: x\n"), 0o600))
		_, err := LoadCatalogue(path)
		assert.ErrorContains(t, err, "unknown kind")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCatalogue(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("empty path yields defaults", func(t *testing.T) {
		cat, err := LoadCatalogue("")
		require.NoError(t, err)
		assert.NotEmpty(t, cat)
	})
}

// scriptedEvaluator answers locate calls by matching the strategy value in the expression.
type scriptedEvaluator struct {
	found map[string]bool
	err   error
	calls []string
}

func (s *scriptedEvaluator) Evaluate(_ context.Context, expr string, out interface{}) error {
	s.calls = append(s.calls, expr)
	if s.err != nil {
		return s.err
	}
	res := locateResult{}
	for value, ok := range s.found {
		if strings.Contains(expr, value) {
			res.Found = ok
		}
	}
	data, _ := json.Marshal(res)
	return json.Unmarshal(data, out)
}

func TestLocate(t *testing.T) {
	strategies := []Strategy{
		{Kind: StrategyCSS, Value: "#first"},
		{Kind: StrategyXPath, Value: "//second"},
		{Kind: StrategyText, Value: "Send|Enviar", Tag: "button"},
	}

	t.Run("first match wins", func(t *testing.T) {
		ev := &scriptedEvaluator{found: map[string]bool{"//second": true, "Send|Enviar": true}}
		sel, err := Locate(context.Background(), ev, strategies)
		require.NoError(t, err)
		assert.Len(t, ev.calls, 2)
		assert.True(t, strings.HasPrefix(sel, `[data-sl-target="`))
		assert.Contains(t, ev.calls[1], sel[len(`[data-sl-target="`):len(sel)-2])
	})

	t.Run("none match", func(t *testing.T) {
		ev := &scriptedEvaluator{}
		_, err := Locate(context.Background(), ev, strategies)
		assert.ErrorIs(t, err, schemas.ErrAffordanceNotFound)
		assert.Len(t, ev.calls, 3)
	})

	t.Run("driver failure propagates", func(t *testing.T) {
		boom := schemas.NewDriverError("evaluate", errors.New("target closed"))
		ev := &scriptedEvaluator{err: boom}
		_, err := Locate(context.Background(), ev, strategies)
		assert.True(t, schemas.IsDriverError(err))
		assert.Len(t, ev.calls, 1)
	})

	t.Run("affordance name in error", func(t *testing.T) {
		cat := Catalogue{SendButton: strategies}
		_, err := cat.LocateAffordance(context.Background(), &scriptedEvaluator{}, SendButton)
		assert.ErrorIs(t, err, schemas.ErrAffordanceNotFound)
		assert.Contains(t, err.Error(), "send_button")
	})
}
