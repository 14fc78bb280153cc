package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/flow_shell/internal/config"
	"github.com/dgnsrekt/flow_shell/internal/controller"
	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/metrics"
	"github.com/dgnsrekt/flow_shell/internal/session"
	"github.com/dgnsrekt/flow_shell/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Service interface {
	ListWindows() []types.WindowInfo
	GetWindow(id types.WindowID) (types.WindowInfo, error)
	CreateWindow(ctx context.Context, req controller.CreateWindowRequest) (types.WindowInfo, error)
	DestroyWindow(id types.WindowID) error
	FocusWindow(id types.WindowID) (types.WindowInfo, error)
	SetWindowBounds(id types.WindowID, bounds types.Bounds) (types.WindowInfo, error)
	ApplyLayout(ctx context.Context, layout *config.Layout) ([]types.WindowInfo, error)

	ListSpaces(windowID types.WindowID) ([]types.SpaceInfo, error)
	CreateSpace(windowID types.WindowID, profileID types.ProfileID, name string) (types.SpaceInfo, error)
	SwitchSpace(spaceID types.SpaceID) (types.WindowInfo, error)
	RenameSpace(spaceID types.SpaceID, name string) (types.SpaceInfo, error)
	RemoveSpace(spaceID types.SpaceID) error

	ListTabs(spaceID types.SpaceID) ([]types.TabInfo, error)
	CreateTab(ctx context.Context, req controller.CreateTabRequest) (types.TabInfo, error)
	GetTab(id types.TabID) (types.TabInfo, error)
	DestroyTab(id types.TabID) error
	SetTabPinned(id types.TabID, pinned bool) (types.TabInfo, error)
	SetTabMuted(id types.TabID, muted bool) (types.TabInfo, error)
	SetTabVisible(id types.TabID, visible bool) (types.TabInfo, error)
	SetTabAsleep(id types.TabID, asleep bool) (types.TabInfo, error)
	NavigateTab(ctx context.Context, id types.TabID, url string) (types.TabInfo, error)
	ReloadTab(ctx context.Context, id types.TabID) (types.TabInfo, error)
	CaptureTab(ctx context.Context, id types.TabID) ([]byte, error)
	ActivateTab(id types.TabID) (types.TabInfo, error)
	MoveTab(id types.TabID, req controller.MoveTabRequest) (types.TabInfo, error)

	ListGroups(spaceID types.SpaceID) ([]types.GroupInfo, error)
	CreateGroup(req controller.CreateGroupRequest) (types.GroupInfo, error)
	GetGroup(id types.GroupID) (types.GroupInfo, error)
	AddTabToGroup(id types.GroupID, tabID types.TabID) (types.GroupInfo, error)
	RemoveTabFromGroup(id types.GroupID, tabID types.TabID) (types.GroupInfo, error)
	MoveTabInGroup(id types.GroupID, from, to int) (types.GroupInfo, error)
	SetGroupCollapsed(id types.GroupID, collapsed bool) (types.GroupInfo, error)
	SetGroupName(id types.GroupID, name string) (types.GroupInfo, error)
	SetGroupColor(id types.GroupID, color string) (types.GroupInfo, error)
	SetGroupOrientation(id types.GroupID, orientation string) (types.GroupInfo, error)
	SetGroupPinned(id types.GroupID, pinned bool) (types.GroupInfo, error)
	SetGroupMuted(id types.GroupID, muted bool) (types.GroupInfo, error)
	ActivateGroup(id types.GroupID) (types.GroupInfo, error)
	DuplicateGroup(ctx context.Context, id types.GroupID) (types.GroupInfo, error)
	CloseGroupTabs(id types.GroupID) error
	DestroyGroup(id types.GroupID) error

	ListProfiles() []types.ProfileInfo
	LoadProfile(id types.ProfileID, name string) (types.ProfileInfo, error)
	UnloadProfile(id types.ProfileID) error

	ListSessions(ctx context.Context) ([]session.Summary, error)
	SaveSession(ctx context.Context, name string) (session.Summary, error)
	GetSession(ctx context.Context, id string) (session.Record, error)
	RenameSession(ctx context.Context, id, name string) (session.Summary, error)
	DeleteSession(ctx context.Context, id string) error
	RestoreSession(ctx context.Context, id string, closeExisting bool) (session.RestoreResult, error)
	SessionStatus() controller.SessionStatus
	Counts() metrics.Counts
}

// Options wires the optional parts of the server. A nil Broker disables
// the event feeds and a nil Gatherer the /metrics endpoint. RateLimitRPS
// <= 0 disables rate limiting.
type Options struct {
	Broker         *events.Broker
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(opts.Metrics))
	router.Use(middleware.Recoverer)
	if opts.RateLimitRPS > 0 {
		router.Use(globalRateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
	}

	cfg := huma.DefaultConfig("Flow Shell Topology API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if opts.Broker != nil {
		router.Get("/api/v1/events", events.SSEHandler(opts.Broker))
		router.Get("/api/v1/events/ws", events.WSHandler(opts.Broker))
	}
	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	registerWindowHandlers(api, svc)
	registerTabHandlers(api, svc)
	registerGroupHandlers(api, svc)
	registerSessionHandlers(api, svc)
	registerMiscHandlers(api, svc, opts.Broker)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeValidation, types.CodeInvalidIndex, types.CodeOwnershipMismatch:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case types.CodeEntityDestroyed:
			return huma.Error409Conflict(coded.Message)
		case types.CodePersistence, types.CodeEngineUnavailable:
			return huma.Error503ServiceUnavailable(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}

type statusBody struct {
	Status string `json:"status"`
}

type statusOutput struct {
	Body statusBody
}

func okStatus(status string) *statusOutput {
	return &statusOutput{Body: statusBody{Status: status}}
}
