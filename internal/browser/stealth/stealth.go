// Package stealth aligns the fingerprint a page exposes with a persona.
package stealth

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

//go:embed evasions.js
var evasionsScript string

// personaView is the subset of the persona the evasions read.
type personaView struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Width     int64    `json:"width"`
	Height    int64    `json:"height"`
}

// BuildScript prefixes the evasions with the persona they should report.
func BuildScript(p schemas.Persona) (string, error) {
	data, err := json.Marshal(personaView{
		UserAgent: p.UserAgent,
		Platform:  p.Platform,
		Languages: p.Languages,
		Width:     p.Width,
		Height:    p.Height,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(function(persona) {\n%s\n})(%s);", evasionsScript, data), nil
}

// AcceptLanguage renders an Accept-Language value with descending q weights.
func AcceptLanguage(languages []string) string {
	if len(languages) == 0 {
		return "en-US,en;q=0.9"
	}
	parts := make([]string, 0, len(languages))
	for i, l := range languages {
		if i == 0 {
			parts = append(parts, l)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", l, q))
	}
	return strings.Join(parts, ",")
}

// Apply builds the CDP actions that install the persona on a page target.
func Apply(p schemas.Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
	)

	headers := network.Headers{"Accept-Language": AcceptLanguage(p.Languages)}
	for k, v := range p.Headers {
		headers[k] = v
	}

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(AcceptLanguage(p.Languages)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := BuildScript(p)
			if err != nil {
				return fmt.Errorf("failed to build evasions script: %w", err)
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	return tasks
}
