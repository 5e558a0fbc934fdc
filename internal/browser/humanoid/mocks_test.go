package humanoid

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// mockExecutor records every low-level call. Overrides must not touch the
// Humanoid's lock, since they run while it is held.
type mockExecutor struct {
	mu               sync.Mutex
	dispatchedEvents []schemas.MouseEventData
	sentKeys         []string
	structuredKeys   []schemas.KeyEventData
	sleepDurations   []time.Duration
	scripts          int

	geometry  map[string]*schemas.ElementGeometry
	returnErr error

	MockSleep              func(ctx context.Context, d time.Duration) error
	MockDispatchMouseEvent func(ctx context.Context, data schemas.MouseEventData) error
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{geometry: make(map[string]*schemas.ElementGeometry)}
}

// box registers a rectangle for selector.
func (m *mockExecutor) box(selector string, x, y, w, h float64) {
	m.geometry[selector] = &schemas.ElementGeometry{
		Vertices: []float64{x, y, x + w, y, x + w, y + h, x, y + h},
		Width:    int64(w),
		Height:   int64(h),
		TagName:  "DIV",
	}
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if m.MockSleep != nil {
		return m.MockSleep(ctx, d)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleepDurations = append(m.sleepDurations, d)
	return nil
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	m.mu.Lock()
	m.dispatchedEvents = append(m.dispatchedEvents, data)
	m.mu.Unlock()
	if m.MockDispatchMouseEvent != nil {
		return m.MockDispatchMouseEvent(ctx, data)
	}
	return m.returnErr
}

func (m *mockExecutor) SendKeys(ctx context.Context, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentKeys = append(m.sentKeys, keys)
	return m.returnErr
}

func (m *mockExecutor) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structuredKeys = append(m.structuredKeys, data)
	return m.returnErr
}

func (m *mockExecutor) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	geo, ok := m.geometry[selector]
	if !ok {
		return nil, errNoSuchElement
	}
	return geo, nil
}

func (m *mockExecutor) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts++
	return json.RawMessage("true"), nil
}

func (m *mockExecutor) eventsOfType(t schemas.MouseEventType) []schemas.MouseEventData {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schemas.MouseEventData
	for _, e := range m.dispatchedEvents {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
