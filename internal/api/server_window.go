package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/flow_shell/internal/config"
	"github.com/dgnsrekt/flow_shell/internal/controller"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

type windowIDInput struct {
	WindowID int `path:"window_id" doc:"Window ID"`
}

type spaceIDInput struct {
	SpaceID string `path:"space_id" doc:"Space ID"`
}

type windowOutput struct {
	Body types.WindowInfo
}

type spaceOutput struct {
	Body types.SpaceInfo
}

type createWindowBody struct {
	Kind      string        `json:"kind,omitempty" enum:"normal,popup" doc:"Window kind (default normal)"`
	Bounds    *types.Bounds `json:"bounds,omitempty" doc:"Initial bounds; omitted uses the default frame"`
	ProfileID string        `json:"profile_id,omitempty" doc:"Profile of the first space (default profile if omitted)"`
	SpaceName string        `json:"space_name,omitempty"`
	URL       string        `json:"url,omitempty" doc:"Open one active tab loading this URL"`
}

type layoutWindowsBody struct {
	Windows []types.WindowInfo `json:"windows"`
}

func registerWindowHandlers(api huma.API, svc Service) {
	// --- Window endpoints ---

	type listWindowsOutput struct {
		Body struct {
			Windows []types.WindowInfo `json:"windows"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-windows", Method: http.MethodGet, Path: "/api/v1/windows", Summary: "List open windows", Tags: []string{"Windows"}},
		func(ctx context.Context, input *struct{}) (*listWindowsOutput, error) {
			out := &listWindowsOutput{}
			out.Body.Windows = svc.ListWindows()
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "create-window", Method: http.MethodPost, Path: "/api/v1/windows", Summary: "Open a window", Tags: []string{"Windows"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct{ Body createWindowBody }) (*windowOutput, error) {
			req := controller.CreateWindowRequest{
				Kind:      input.Body.Kind,
				ProfileID: types.ProfileID(input.Body.ProfileID),
				SpaceName: input.Body.SpaceName,
				URL:       input.Body.URL,
			}
			if input.Body.Bounds != nil {
				req.Bounds = *input.Body.Bounds
			}
			info, err := svc.CreateWindow(ctx, req)
			if err != nil {
				return nil, mapErr(err)
			}
			return &windowOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-window", Method: http.MethodGet, Path: "/api/v1/windows/{window_id}", Summary: "Get a window", Tags: []string{"Windows"}},
		func(ctx context.Context, input *windowIDInput) (*windowOutput, error) {
			info, err := svc.GetWindow(types.WindowID(input.WindowID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &windowOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "destroy-window", Method: http.MethodDelete, Path: "/api/v1/windows/{window_id}", Summary: "Close a window and everything in it", Tags: []string{"Windows"}},
		func(ctx context.Context, input *windowIDInput) (*statusOutput, error) {
			if err := svc.DestroyWindow(types.WindowID(input.WindowID)); err != nil {
				return nil, mapErr(err)
			}
			return okStatus("closed"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "focus-window", Method: http.MethodPost, Path: "/api/v1/windows/{window_id}/focus", Summary: "Focus a window", Tags: []string{"Windows"}},
		func(ctx context.Context, input *windowIDInput) (*windowOutput, error) {
			info, err := svc.FocusWindow(types.WindowID(input.WindowID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &windowOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-window-bounds", Method: http.MethodPut, Path: "/api/v1/windows/{window_id}/bounds", Summary: "Move or resize a window", Tags: []string{"Windows"}},
		func(ctx context.Context, input *struct {
			WindowID int `path:"window_id"`
			Body     types.Bounds
		}) (*windowOutput, error) {
			info, err := svc.SetWindowBounds(types.WindowID(input.WindowID), input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &windowOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "apply-layout", Method: http.MethodPost, Path: "/api/v1/layout", Summary: "Open windows from a layout document", Tags: []string{"Windows"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct{ Body config.Layout }) (*struct{ Body layoutWindowsBody }, error) {
			layout := input.Body
			if err := layout.Validate(); err != nil {
				return nil, huma.Error400BadRequest(err.Error())
			}
			opened, err := svc.ApplyLayout(ctx, &layout)
			if err != nil {
				return nil, mapErr(err)
			}
			return &struct{ Body layoutWindowsBody }{Body: layoutWindowsBody{Windows: opened}}, nil
		})

	// --- Space endpoints ---

	type listSpacesOutput struct {
		Body struct {
			Spaces []types.SpaceInfo `json:"spaces"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-spaces", Method: http.MethodGet, Path: "/api/v1/windows/{window_id}/spaces", Summary: "List the spaces of a window", Tags: []string{"Spaces"}},
		func(ctx context.Context, input *windowIDInput) (*listSpacesOutput, error) {
			spaces, err := svc.ListSpaces(types.WindowID(input.WindowID))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listSpacesOutput{}
			out.Body.Spaces = spaces
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "create-space", Method: http.MethodPost, Path: "/api/v1/windows/{window_id}/spaces", Summary: "Add a space to a window", Tags: []string{"Spaces"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct {
			WindowID int `path:"window_id"`
			Body     struct {
				Name      string `json:"name,omitempty"`
				ProfileID string `json:"profile_id,omitempty" doc:"Loaded profile (default profile if omitted)"`
			}
		}) (*spaceOutput, error) {
			info, err := svc.CreateSpace(types.WindowID(input.WindowID), types.ProfileID(input.Body.ProfileID), input.Body.Name)
			if err != nil {
				return nil, mapErr(err)
			}
			return &spaceOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "switch-space", Method: http.MethodPost, Path: "/api/v1/spaces/{space_id}/switch", Summary: "Make a space current in its window", Tags: []string{"Spaces"}},
		func(ctx context.Context, input *spaceIDInput) (*windowOutput, error) {
			info, err := svc.SwitchSpace(types.SpaceID(input.SpaceID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &windowOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "rename-space", Method: http.MethodPut, Path: "/api/v1/spaces/{space_id}/name", Summary: "Rename a space", Tags: []string{"Spaces"}},
		func(ctx context.Context, input *struct {
			SpaceID string `path:"space_id"`
			Body    struct {
				Name string `json:"name" required:"true"`
			}
		}) (*spaceOutput, error) {
			info, err := svc.RenameSpace(types.SpaceID(input.SpaceID), input.Body.Name)
			if err != nil {
				return nil, mapErr(err)
			}
			return &spaceOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "remove-space", Method: http.MethodDelete, Path: "/api/v1/spaces/{space_id}", Summary: "Remove a space and its tabs", Tags: []string{"Spaces"}},
		func(ctx context.Context, input *spaceIDInput) (*statusOutput, error) {
			if err := svc.RemoveSpace(types.SpaceID(input.SpaceID)); err != nil {
				return nil, mapErr(err)
			}
			return okStatus("removed"), nil
		})

	// --- Profile endpoints ---

	type listProfilesOutput struct {
		Body struct {
			Profiles []types.ProfileInfo `json:"profiles"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-profiles", Method: http.MethodGet, Path: "/api/v1/profiles", Summary: "List loaded profiles", Tags: []string{"Profiles"}},
		func(ctx context.Context, input *struct{}) (*listProfilesOutput, error) {
			out := &listProfilesOutput{}
			out.Body.Profiles = svc.ListProfiles()
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "load-profile", Method: http.MethodPost, Path: "/api/v1/profiles", Summary: "Load a profile", Tags: []string{"Profiles"}},
		func(ctx context.Context, input *struct {
			Body struct {
				ID   string `json:"id" required:"true"`
				Name string `json:"name,omitempty"`
			}
		}) (*struct{ Body types.ProfileInfo }, error) {
			p, err := svc.LoadProfile(types.ProfileID(input.Body.ID), input.Body.Name)
			if err != nil {
				return nil, mapErr(err)
			}
			return &struct{ Body types.ProfileInfo }{Body: p}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "unload-profile", Method: http.MethodDelete, Path: "/api/v1/profiles/{profile_id}", Summary: "Unload a profile and remove its spaces", Tags: []string{"Profiles"}},
		func(ctx context.Context, input *struct {
			ProfileID string `path:"profile_id"`
		}) (*statusOutput, error) {
			if err := svc.UnloadProfile(types.ProfileID(input.ProfileID)); err != nil {
				return nil, mapErr(err)
			}
			return okStatus("unloaded"), nil
		})
}
