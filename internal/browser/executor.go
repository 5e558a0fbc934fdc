package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/browser/humanoid"
)

const (
	mouseEventTimeout = 10 * time.Second
	keyEventTimeout   = 5 * time.Second
	geometryTimeout   = 10 * time.Second
	scriptTimeout     = 20 * time.Second
)

// cdpExecutor implements humanoid.Executor on top of a page's chromedp context.
type cdpExecutor struct {
	logger *zap.Logger
	run    func(ctx context.Context, actions ...chromedp.Action) error
}

var _ humanoid.Executor = (*cdpExecutor)(nil)

func (e *cdpExecutor) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// runWithTimeout bounds a batch of actions and names timeouts in the error.
func (e *cdpExecutor) runWithTimeout(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := e.run(opCtx, actions...)
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		e.logger.Debug("CDP operation timed out.", zap.String("op", op), zap.Duration("timeout", timeout))
		return fmt.Errorf("%s timed out after %v: %w", op, timeout, opCtx.Err())
	}
	return err
}

func (e *cdpExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount))
	if data.Type == schemas.MouseWheel {
		p = p.WithDeltaX(data.DeltaX).WithDeltaY(data.DeltaY)
	}
	return e.runWithTimeout(ctx, "dispatch mouse event", mouseEventTimeout, p)
}

func (e *cdpExecutor) SendKeys(ctx context.Context, keys string) error {
	return e.runWithTimeout(ctx, "send keys", mouseEventTimeout, chromedp.KeyEvent(keys))
}

func (e *cdpExecutor) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	var mods input.Modifier
	if data.Modifiers&schemas.ModAlt != 0 {
		mods |= input.ModifierAlt
	}
	if data.Modifiers&schemas.ModCtrl != 0 {
		mods |= input.ModifierCtrl
	}
	if data.Modifiers&schemas.ModMeta != 0 {
		mods |= input.ModifierMeta
	}
	if data.Modifiers&schemas.ModShift != 0 {
		mods |= input.ModifierShift
	}

	keyDown := input.DispatchKeyEvent(input.KeyDown).WithModifiers(mods).WithKey(data.Key)
	if code, ok := namedKeyCodes[data.Key]; ok {
		keyDown = keyDown.WithCode(data.Key).WithWindowsVirtualKeyCode(code).WithNativeVirtualKeyCode(code)
		if data.Key == "Enter" {
			keyDown = keyDown.WithText("\r")
		}
	}
	keyUp := input.DispatchKeyEvent(input.KeyUp).WithModifiers(mods).WithKey(data.Key)
	return e.runWithTimeout(ctx, "dispatch key", keyEventTimeout, keyDown, keyUp)
}

var namedKeyCodes = map[string]int64{
	"Enter":     13,
	"Tab":       9,
	"Escape":    27,
	"Backspace": 8,
}

const geometryScript = `(function(sel) {
	const node = document.querySelector(sel);
	if (!node) return null;
	const rect = node.getBoundingClientRect();
	const style = window.getComputedStyle(node);
	if (rect.width <= 0 || rect.height <= 0 || style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') {
		return null;
	}
	return {
		vertices: [rect.left, rect.top, rect.right, rect.top, rect.right, rect.bottom, rect.left, rect.bottom],
		width: Math.round(rect.width),
		height: Math.round(rect.height),
		tagName: node.tagName || '',
		type: node.type || ''
	};
})`

func (e *cdpExecutor) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	res, err := e.evaluate(ctx, "get geometry", geometryTimeout, buildCall(geometryScript, []interface{}{selector}))
	if err != nil {
		return nil, fmt.Errorf("geometry for '%s': %w", selector, err)
	}
	if string(res) == "null" || len(res) == 0 {
		return nil, fmt.Errorf("element '%s' not found or not visible", selector)
	}
	var geom schemas.ElementGeometry
	if err := json.Unmarshal(res, &geom); err != nil {
		return nil, fmt.Errorf("failed to unmarshal geometry for '%s': %w", selector, err)
	}
	return &geom, nil
}

// ExecuteScript evaluates script. When args are given, script must be a
// function expression; it is invoked with the JSON-encoded arguments.
func (e *cdpExecutor) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	return e.evaluate(ctx, "execute script", scriptTimeout, buildCall(script, args))
}

func (e *cdpExecutor) evaluate(ctx context.Context, op string, timeout time.Duration, expression string) (json.RawMessage, error) {
	var res json.RawMessage
	err := e.runWithTimeout(ctx, op, timeout,
		chromedp.Evaluate(expression, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// buildCall turns a function expression and arguments into a call expression.
func buildCall(fn string, args []interface{}) string {
	if len(args) == 0 {
		return fn
	}
	encoded := make([]string, 0, len(args))
	for _, a := range args {
		encoded = append(encoded, jsonEncode(a))
	}
	return fn + "(" + strings.Join(encoded, ", ") + ")"
}

func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
