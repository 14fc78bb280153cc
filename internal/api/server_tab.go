package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/flow_shell/internal/controller"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

type tabIDInput struct {
	TabID int `path:"tab_id" doc:"Tab ID"`
}

type tabOutput struct {
	Body types.TabInfo
}

type tabFlagInput struct {
	TabID int `path:"tab_id"`
	Body  struct {
		Value bool `json:"value"`
	}
}

type createTabBody struct {
	WindowID int    `json:"window_id,omitempty" doc:"Target window (focused window if omitted)"`
	SpaceID  string `json:"space_id,omitempty" doc:"Target space (current space of the window if omitted)"`
	GroupID  int    `json:"group_id,omitempty" doc:"Attach to this group"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Position *int   `json:"position,omitempty" doc:"Insert index within the space (appends if omitted)"`
	Activate bool   `json:"activate,omitempty" doc:"Make the new tab active and focused"`
}

type moveTabBody struct {
	SpaceID  string `json:"space_id,omitempty" doc:"Destination space (current space of the tab if omitted)"`
	GroupID  int    `json:"group_id,omitempty" doc:"Destination group; 0 leaves the tab ungrouped"`
	Position *int   `json:"position,omitempty" doc:"Index in the destination space (appends if omitted)"`
}

func registerTabHandlers(api huma.API, svc Service) {
	type listTabsOutput struct {
		Body struct {
			Tabs []types.TabInfo `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/spaces/{space_id}/tabs", Summary: "List the tabs of a space in order", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *spaceIDInput) (*listTabsOutput, error) {
			list, err := svc.ListTabs(types.SpaceID(input.SpaceID))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listTabsOutput{}
			out.Body.Tabs = list
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "create-tab", Method: http.MethodPost, Path: "/api/v1/tabs", Summary: "Open a tab", Tags: []string{"Tabs"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct{ Body createTabBody }) (*tabOutput, error) {
			info, err := svc.CreateTab(ctx, controller.CreateTabRequest{
				WindowID: types.WindowID(input.Body.WindowID),
				SpaceID:  types.SpaceID(input.Body.SpaceID),
				GroupID:  types.GroupID(input.Body.GroupID),
				URL:      input.Body.URL,
				Title:    input.Body.Title,
				Position: input.Body.Position,
				Activate: input.Body.Activate,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-tab", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}", Summary: "Get a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			info, err := svc.GetTab(types.TabID(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "destroy-tab", Method: http.MethodDelete, Path: "/api/v1/tabs/{tab_id}", Summary: "Close a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
			if err := svc.DestroyTab(types.TabID(input.TabID)); err != nil {
				return nil, mapErr(err)
			}
			return okStatus("closed"), nil
		})

	flag := func(id, path, summary string, fn func(types.TabID, bool) (types.TabInfo, error)) {
		huma.Register(api, huma.Operation{OperationID: id, Method: http.MethodPut, Path: path, Summary: summary, Tags: []string{"Tabs"}},
			func(ctx context.Context, input *tabFlagInput) (*tabOutput, error) {
				info, err := fn(types.TabID(input.TabID), input.Body.Value)
				if err != nil {
					return nil, mapErr(err)
				}
				return &tabOutput{Body: info}, nil
			})
	}
	flag("pin-tab", "/api/v1/tabs/{tab_id}/pinned", "Pin or unpin a tab", svc.SetTabPinned)
	flag("mute-tab", "/api/v1/tabs/{tab_id}/muted", "Mute or unmute a tab", svc.SetTabMuted)
	flag("show-tab", "/api/v1/tabs/{tab_id}/visible", "Show or hide a tab", svc.SetTabVisible)
	flag("sleep-tab", "/api/v1/tabs/{tab_id}/asleep", "Put a tab to sleep or wake it", svc.SetTabAsleep)

	huma.Register(api, huma.Operation{OperationID: "navigate-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/navigate", Summary: "Load a URL in a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct {
			TabID int `path:"tab_id"`
			Body  struct {
				URL string `json:"url" required:"true"`
			}
		}) (*tabOutput, error) {
			info, err := svc.NavigateTab(ctx, types.TabID(input.TabID), input.Body.URL)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "reload-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/reload", Summary: "Reload a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			info, err := svc.ReloadTab(ctx, types.TabID(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "capture-tab", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}/capture", Summary: "Capture a PNG of the tab's page", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*struct {
			ContentType string `header:"Content-Type"`
			Body        []byte
		}, error) {
			img, err := svc.CaptureTab(ctx, types.TabID(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &struct {
				ContentType string `header:"Content-Type"`
				Body        []byte
			}{ContentType: "image/png", Body: img}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "activate-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/activate", Summary: "Make a tab active and focused", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			info, err := svc.ActivateTab(types.TabID(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "move-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/move", Summary: "Move a tab to another position, space or group", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct {
			TabID int `path:"tab_id"`
			Body  moveTabBody
		}) (*tabOutput, error) {
			pos := -1
			if input.Body.Position != nil {
				pos = *input.Body.Position
			}
			info, err := svc.MoveTab(types.TabID(input.TabID), controller.MoveTabRequest{
				SpaceID:  types.SpaceID(input.Body.SpaceID),
				GroupID:  types.GroupID(input.Body.GroupID),
				Position: pos,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})
}
