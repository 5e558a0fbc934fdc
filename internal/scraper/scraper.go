// Package scraper reads the activity surface of an authenticated session and
// turns rendered notification items into interaction events.
package scraper

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/browser"
	"github.com/xkilldash9x/sociallink/internal/browser/humanoid"
	"github.com/xkilldash9x/sociallink/internal/config"
	"github.com/xkilldash9x/sociallink/internal/metrics"
	"github.com/xkilldash9x/sociallink/internal/observability"
	"github.com/xkilldash9x/sociallink/internal/platform"
	"github.com/xkilldash9x/sociallink/internal/steps"
)

//go:embed extract.js
var extractScript string

// scrollDistance is one scroll cycle, roughly a screen of notifications.
const scrollDistance = 720

// Target is the session a scrape runs against.
type Target interface {
	AccountID() string
	Page() browser.Page
}

// rawItem is what extract.js recovers per rendered item. Any field may be empty.
type rawItem struct {
	Href        string `json:"href"`
	Text        string `json:"text"`
	ContentHref string `json:"contentHref"`
	Time        string `json:"time"`
	Body        string `json:"body"`
}

// Scraper collects interactions. It holds no per-account state and is safe
// for concurrent use across sessions.
type Scraper struct {
	platform  *platform.Platform
	catalogue platform.Catalogue
	cfg       config.ScraperConfig
	humanoid  humanoid.Config
	metrics   metrics.Recorder
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithClock replaces the time source used to resolve relative timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

// WithMetrics reports scraped counts to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Scraper) { s.metrics = r }
}

// WithHumanoid sets the scroll model.
func WithHumanoid(cfg humanoid.Config) Option {
	return func(s *Scraper) { s.humanoid = cfg }
}

// New creates a Scraper.
func New(plat *platform.Platform, catalogue platform.Catalogue, cfg config.ScraperConfig, logger *zap.Logger, opts ...Option) *Scraper {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.ScrollWaitMax < cfg.ScrollWaitMin {
		cfg.ScrollWaitMax = cfg.ScrollWaitMin
	}
	s := &Scraper{
		platform:  plat,
		catalogue: catalogue,
		cfg:       cfg,
		humanoid:  humanoid.DefaultConfig(),
		metrics:   metrics.Nop{},
		now:       time.Now,
		logger:    logger.Named("scraper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape loads the activity surface, scrolls it in human-paced cycles and
// extracts the visible items. Landing on a login or not-found surface yields
// ErrSessionExpired so that callers can tell a dead session from an empty
// inbox.
func (s *Scraper) Scrape(ctx context.Context, t Target) ([]schemas.InteractionEvent, *steps.Report, error) {
	logger := s.logger.With(observability.Account(t.AccountID()))
	report := steps.NewReport("scrape_interactions")
	defer report.Log(logger)

	page := t.Page()
	err := report.Run(ctx, "navigate_activity", func(ctx context.Context) error {
		return s.navigate(ctx, page)
	})
	if err != nil {
		return nil, report, err
	}

	h := humanoid.New(s.humanoid, logger, page.Executor())
	err = report.Run(ctx, "scroll", func(ctx context.Context) error {
		for i := 0; i < s.cfg.ScrollCycles; i++ {
			if err := h.Scroll(ctx, scrollDistance); err != nil {
				return schemas.NewDriverError("scroll", err)
			}
			if err := h.RandomDelay(ctx, s.cfg.ScrollWaitMin, s.cfg.ScrollWaitMax); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, report, err
	}

	var raw []rawItem
	err = report.Run(ctx, "extract", func(ctx context.Context) error {
		expr, err := s.buildExtract()
		if err != nil {
			return err
		}
		return page.Evaluate(ctx, expr, &raw)
	})
	if err != nil {
		return nil, report, err
	}

	var events []schemas.InteractionEvent
	_ = report.Run(ctx, "normalize", func(context.Context) error {
		var dropped int
		events, dropped = s.normalize(raw)
		if dropped > 0 {
			logger.Debug("Dropped unrecognized items.", zap.Int("dropped", dropped), zap.Int("seen", len(raw)))
		}
		return nil
	})

	byKind := make(map[schemas.InteractionKind]int)
	for _, ev := range events {
		byKind[ev.Kind]++
	}
	for kind, n := range byKind {
		s.metrics.InteractionsScraped(string(kind), n)
	}
	logger.Info("Interactions scraped.", zap.Int("items", len(raw)), zap.Int("events", len(events)))
	return events, report, nil
}

func (s *Scraper) navigate(ctx context.Context, page browser.Page) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	if err := page.Navigate(navCtx, s.platform.ActivityURL(), s.cfg.NavigationTimeout); err != nil {
		return schemas.NewDriverError("navigate", err)
	}
	landed, err := page.URL(navCtx)
	if err != nil {
		return schemas.NewDriverError("url", err)
	}
	if surface := s.platform.Classify(landed); surface != platform.SurfaceAuthenticated {
		return fmt.Errorf("activity surface redirected to %s: %w", surface, schemas.ErrSessionExpired)
	}
	return nil
}

// buildExtract passes the CSS strategies for notification items to extract.js.
func (s *Scraper) buildExtract() (string, error) {
	var selectors []string
	for _, st := range s.catalogue.Strategies(platform.NotificationItem) {
		if st.Kind == platform.StrategyCSS {
			selectors = append(selectors, st.Value)
		}
	}
	if len(selectors) == 0 {
		return "", fmt.Errorf("%s has no css strategy: %w", platform.NotificationItem, schemas.ErrAffordanceNotFound)
	}
	arg, err := json.Marshal(selectors)
	if err != nil {
		return "", fmt.Errorf("scraper: could not encode selectors: %w", err)
	}
	return fmt.Sprintf("%s(%s)", strings.TrimSpace(extractScript), arg), nil
}

// normalize converts raw items. Items without an actor or a recognizable kind
// are dropped; every other missing field is left nil.
func (s *Scraper) normalize(raw []rawItem) ([]schemas.InteractionEvent, int) {
	now := s.now()
	events := make([]schemas.InteractionEvent, 0, len(raw))
	for _, item := range raw {
		actor := platform.UsernameFromURL(s.platform.Absolute(item.Href))
		if actor == "" {
			continue
		}
		kind, ok := Classify(item.Text)
		if !ok {
			continue
		}
		ev := schemas.InteractionEvent{
			ActorHandle:     actor,
			Kind:            kind,
			ObservedAt:      now,
			IsNewlyObserved: true,
		}
		if at, ok := ParseObservedAt(item.Time, now); ok {
			ev.ObservedAt = at
		}
		if item.ContentHref != "" {
			if u := s.platform.Absolute(item.ContentHref); u != "" {
				ev.RelatedContentURL = &u
				if id := platform.ContentIDFromURL(u); id != "" {
					ev.RelatedContentID = &id
				}
			}
		}
		if body := textBody(kind, item); body != "" {
			ev.TextBody = &body
		}
		events = append(events, ev)
	}
	return events, len(raw) - len(events)
}

// textBody prefers the dedicated body element and otherwise takes what
// follows the first colon for kinds that carry free text.
func textBody(kind schemas.InteractionKind, item rawItem) string {
	if b := strings.TrimSpace(item.Body); b != "" {
		return b
	}
	switch kind {
	case schemas.KindComment, schemas.KindMention, schemas.KindDirectMessage:
	default:
		return ""
	}
	if i := strings.Index(item.Text, ":"); i >= 0 {
		body := strings.TrimSpace(item.Text[i+1:])
		if item.Time != "" {
			body = strings.TrimSpace(strings.TrimSuffix(body, item.Time))
		}
		return body
	}
	return ""
}
