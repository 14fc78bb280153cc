// Package engine defines the web view and native window capabilities the
// topology manager consumes, and the drivers that implement them.
package engine

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/flow_shell/internal/types"
)

// WebView is the per-tab rendering surface. Hide and Show change visibility
// only; Destroy releases the underlying resources.
type WebView interface {
	LoadURL(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	ToggleDevTools(ctx context.Context) error
	CapturePage(ctx context.Context) ([]byte, error)
	ExecuteScript(ctx context.Context, script string) (string, error)
	Hide() error
	Show() error
	Destroy() error
}

// ViewOptions addresses a new web view.
type ViewOptions struct {
	WindowID  types.WindowID
	ProfileID types.ProfileID
}

// ViewFactory creates web views.
type ViewFactory interface {
	NewView(ctx context.Context, opts ViewOptions) (WebView, error)
}

// NativeWindow exposes OS-level window operations.
type NativeWindow interface {
	Focus() error
	Bounds() types.Bounds
	SetBounds(b types.Bounds) error
	Close() error
}

// WindowSpec describes a window to open.
type WindowSpec struct {
	ID     types.WindowID
	Kind   string
	Bounds types.Bounds
}

// WindowHost opens native windows.
type WindowHost interface {
	OpenWindow(ctx context.Context, spec WindowSpec) (NativeWindow, error)
}

// Engine is a complete driver.
type Engine interface {
	ViewFactory
	WindowHost
	Name() string
	Close() error
}

// Engine names accepted by Open.
const (
	NameHeadless   = "headless"
	NameChromedp   = "chromedp"
	NamePlaywright = "playwright"
)

// Options configures Open.
type Options struct {
	Name     string
	CDPURL   string
	Headless bool
}

// Open starts the named engine.
func Open(ctx context.Context, opts Options) (Engine, error) {
	switch opts.Name {
	case "", NameHeadless:
		return NewHeadless(), nil
	case NameChromedp:
		return NewChrome(ctx, opts.CDPURL)
	case NamePlaywright:
		return NewPlaywright(opts.Headless)
	default:
		return nil, types.NewError(types.CodeValidation, fmt.Sprintf("unknown engine %q", opts.Name), nil)
	}
}

func unavailable(msg string, cause error) error {
	return types.NewError(types.CodeEngineUnavailable, msg, cause)
}
