package platform

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

//go:embed selectors.yaml
var defaultSelectors []byte

// StrategyKind selects how a Strategy value is interpreted.
type StrategyKind string

const (
	StrategyCSS   StrategyKind = "css"
	StrategyXPath StrategyKind = "xpath"
	StrategyText  StrategyKind = "text"
)

// Strategy is one way of finding an element.
type Strategy struct {
	Kind  StrategyKind `yaml:"kind" json:"kind"`
	Value string       `yaml:"value" json:"value"`
	Tag   string       `yaml:"tag,omitempty" json:"tag,omitempty"`
}

// Affordance names a UI element some procedure needs.
type Affordance string

const (
	MessageButton    Affordance = "message_button"
	Composer         Affordance = "composer"
	SendButton       Affordance = "send_button"
	UseQROption      Affordance = "use_qr_option"
	QRCode           Affordance = "qr_code"
	QRRegion         Affordance = "qr_region"
	UsernameLink     Affordance = "username"
	NotificationItem Affordance = "notification_item"
)

// Catalogue maps affordances to their ordered strategies.
type Catalogue map[Affordance][]Strategy

// DefaultCatalogue parses the embedded selectors.
func DefaultCatalogue() (Catalogue, error) {
	return parseCatalogue(defaultSelectors)
}

// LoadCatalogue returns the embedded catalogue with entries from overridePath
// replacing those of the same name. An empty path yields the defaults.
func LoadCatalogue(overridePath string) (Catalogue, error) {
	cat, err := DefaultCatalogue()
	if err != nil {
		return nil, err
	}
	if overridePath == "" {
		return cat, nil
	}
	path, err := homedir.Expand(overridePath)
	if err != nil {
		return nil, fmt.Errorf("platform: could not expand selectors file path: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("platform: could not read selectors file: %w", err)
	}
	override, err := parseCatalogue(data)
	if err != nil {
		return nil, fmt.Errorf("platform: %s: %w", path, err)
	}
	for name, strategies := range override {
		cat[name] = strategies
	}
	return cat, nil
}

func parseCatalogue(data []byte) (Catalogue, error) {
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("invalid selector catalogue: %w", err)
	}
	for name, strategies := range cat {
		for i, s := range strategies {
			switch s.Kind {
			case StrategyCSS, StrategyXPath, StrategyText:
			default:
				return nil, fmt.Errorf("affordance %q strategy %d: unknown kind %q", name, i, s.Kind)
			}
			if strings.TrimSpace(s.Value) == "" {
				return nil, fmt.Errorf("affordance %q strategy %d: empty value", name, i)
			}
		}
	}
	if cat == nil {
		cat = Catalogue{}
	}
	return cat, nil
}

// Strategies returns the ordered strategies for a.
func (c Catalogue) Strategies(a Affordance) []Strategy {
	return c[a]
}

// Evaluator runs a JavaScript expression in a page and decodes the result.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, out interface{}) error
}

const targetAttr = "data-sl-target"

// locateScript finds the first visible element for one strategy and tags it.
const locateScript = `(function(s, attr, token) {
  const visible = (el) => {
    if (!el || !el.getClientRects || el.getClientRects().length === 0) return false;
    const style = window.getComputedStyle(el);
    return style.visibility !== 'hidden' && style.display !== 'none';
  };
  let candidates = [];
  try {
    if (s.kind === 'css') {
      candidates = Array.from(document.querySelectorAll(s.value));
    } else if (s.kind === 'xpath') {
      const snap = document.evaluate(s.value, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
      for (let i = 0; i < snap.snapshotLength; i++) candidates.push(snap.snapshotItem(i));
    } else if (s.kind === 'text') {
      const phrases = s.value.split('|').map(p => p.trim().toLowerCase()).filter(Boolean);
      const pool = Array.from(document.querySelectorAll(s.tag || 'button, a, div, span'));
      candidates = pool.filter(el => {
        const text = (el.innerText || el.textContent || '').trim().toLowerCase();
        return text.length > 0 && text.length <= 80 && phrases.some(p => text === p || text.includes(p));
      });
      candidates.sort((a, b) => (a.innerText || '').length - (b.innerText || '').length);
    }
  } catch (e) {
    return {found: false, invalid: true};
  }
  const el = candidates.find(visible);
  if (!el) return {found: false, invalid: false};
  el.setAttribute(attr, token);
  return {found: true, invalid: false};
})`

type locateResult struct {
	Found   bool `json:"found"`
	Invalid bool `json:"invalid"`
}

// Locate tries strategies in order and returns a CSS selector addressing the
// first match. ErrAffordanceNotFound is returned when nothing matched;
// evaluation failures propagate as they are.
func Locate(ctx context.Context, ev Evaluator, strategies []Strategy) (string, error) {
	for _, s := range strategies {
		token := uuid.NewString()
		expr, err := buildLocate(s, token)
		if err != nil {
			return "", err
		}
		var res locateResult
		if err := ev.Evaluate(ctx, expr, &res); err != nil {
			return "", err
		}
		if res.Found {
			return TargetSelector(token), nil
		}
	}
	return "", schemas.ErrAffordanceNotFound
}

// LocateAffordance is Locate over the catalogue entry for a, wrapping a miss
// with the affordance name.
func (c Catalogue) LocateAffordance(ctx context.Context, ev Evaluator, a Affordance) (string, error) {
	sel, err := Locate(ctx, ev, c.Strategies(a))
	if errors.Is(err, schemas.ErrAffordanceNotFound) {
		return "", fmt.Errorf("%s: %w", a, err)
	}
	return sel, err
}

// TargetSelector addresses an element tagged by Locate.
func TargetSelector(token string) string {
	return fmt.Sprintf(`[%s="%s"]`, targetAttr, token)
}

func buildLocate(s Strategy, token string) (string, error) {
	arg, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("platform: could not encode strategy: %w", err)
	}
	return fmt.Sprintf("%s(%s, %q, %q)", locateScript, arg, targetAttr, token), nil
}

// ReadAttribute returns attr of the element matched by selector, or "" when
// either is absent.
func ReadAttribute(ctx context.Context, ev Evaluator, selector, attr string) (string, error) {
	expr := fmt.Sprintf(`(function(sel, attr) {
  const el = document.querySelector(sel);
  return el ? (el.getAttribute(attr) || '') : '';
})(%q, %q)`, selector, attr)
	var out string
	if err := ev.Evaluate(ctx, expr, &out); err != nil {
		return "", err
	}
	return out, nil
}
