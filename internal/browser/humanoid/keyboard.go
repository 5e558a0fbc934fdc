package humanoid

import (
	"context"
	"fmt"
	"time"
	"unicode"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// keyboardNeighbors maps characters to their adjacent keys on a QWERTY layout.
var keyboardNeighbors = map[rune]string{
	'1': "2q", '2': "13wq", '3': "24we", '4': "35er", '5': "46rt", '6': "57ty",
	'7': "68yu", '8': "79ui", '9': "80io", '0': "9op",
	'q': "wa1", 'w': "qase2", 'e': "wsdr3", 'r': "edft4", 't': "rfgy5",
	'y': "tghu6", 'u': "yhji7", 'i': "ujko8", 'o': "iklp9", 'p': "ol0",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiolm", 'l': "kop",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk",
}

// Type focuses the element with a click, then types text into it.
func (h *Humanoid) Type(ctx context.Context, selector string, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.click(ctx, selector); err != nil {
		return fmt.Errorf("humanoid: failed to click/focus selector '%s': %w", selector, err)
	}
	if err := h.pause(ctx, 250, 80); err != nil {
		return err
	}
	return h.typeText(ctx, text)
}

// TypeText types into whatever element currently has focus.
func (h *Humanoid) TypeText(ctx context.Context, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.typeText(ctx, text)
}

// PressKey presses and releases a named key such as "Enter".
func (h *Humanoid) PressKey(ctx context.Context, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.executor.DispatchStructuredKey(ctx, schemas.KeyEventData{Key: key, Modifiers: schemas.ModNone}); err != nil {
		return fmt.Errorf("humanoid: failed to press '%s': %w", key, err)
	}
	return nil
}

func (h *Humanoid) typeText(ctx context.Context, text string) error {
	for _, r := range text {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if h.cfg.TypoRate > 0 && h.rng.Float64() < h.cfg.TypoRate {
			if err := h.neighborTypo(ctx, r); err != nil {
				return err
			}
		}
		if err := h.executor.SendKeys(ctx, string(r)); err != nil {
			return fmt.Errorf("humanoid: failed to send key: %w", err)
		}
		if err := h.executor.Sleep(ctx, h.keyDelay(r)); err != nil {
			return err
		}
	}
	return nil
}

// keyDelay is the inter-key interval, a little longer after word boundaries.
func (h *Humanoid) keyDelay(r rune) time.Duration {
	d := uniformDuration(h.rng, h.cfg.KeyDelayMin, h.cfg.KeyDelayMax)
	if unicode.IsSpace(r) || unicode.IsPunct(r) {
		d += d / 2
	}
	return d
}

// neighborTypo strikes an adjacent key, notices, and erases it.
func (h *Humanoid) neighborTypo(ctx context.Context, intended rune) error {
	neighbors, ok := keyboardNeighbors[unicode.ToLower(intended)]
	if !ok || neighbors == "" {
		return nil
	}
	wrong := rune(neighbors[h.rng.Intn(len(neighbors))])
	if unicode.IsUpper(intended) {
		wrong = unicode.ToUpper(wrong)
	}
	if err := h.executor.SendKeys(ctx, string(wrong)); err != nil {
		return err
	}
	if err := h.executor.Sleep(ctx, uniformDuration(h.rng, 2*h.cfg.KeyDelayMin, 2*h.cfg.KeyDelayMax)); err != nil {
		return err
	}
	return h.executor.SendKeys(ctx, string(KeyBackspace))
}
