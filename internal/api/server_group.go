package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/flow_shell/internal/controller"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

type groupIDInput struct {
	GroupID int `path:"group_id" doc:"Tab group ID"`
}

type groupOutput struct {
	Body types.GroupInfo
}

type groupFlagInput struct {
	GroupID int `path:"group_id"`
	Body    struct {
		Value bool `json:"value"`
	}
}

type groupTextInput struct {
	GroupID int `path:"group_id"`
	Body    struct {
		Value string `json:"value"`
	}
}

type groupTabInput struct {
	GroupID int `path:"group_id"`
	TabID   int `path:"tab_id"`
}

type createGroupBody struct {
	Kind        string `json:"kind,omitempty" enum:"user,split" doc:"Group kind (default user)"`
	TabIDs      []int  `json:"tab_ids" minItems:"1" doc:"Members in group order; all must share a space"`
	Name        string `json:"name,omitempty"`
	Color       string `json:"color,omitempty"`
	Collapsed   bool   `json:"collapsed,omitempty"`
	Orientation string `json:"orientation,omitempty" enum:"horizontal,vertical"`
}

func registerGroupHandlers(api huma.API, svc Service) {
	type listGroupsOutput struct {
		Body struct {
			Groups []types.GroupInfo `json:"groups"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-groups", Method: http.MethodGet, Path: "/api/v1/spaces/{space_id}/groups", Summary: "List the tab groups of a space", Tags: []string{"Groups"}},
		func(ctx context.Context, input *spaceIDInput) (*listGroupsOutput, error) {
			list, err := svc.ListGroups(types.SpaceID(input.SpaceID))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listGroupsOutput{}
			out.Body.Groups = list
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "create-group", Method: http.MethodPost, Path: "/api/v1/groups", Summary: "Group tabs", Tags: []string{"Groups"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct{ Body createGroupBody }) (*groupOutput, error) {
			ids := make([]types.TabID, 0, len(input.Body.TabIDs))
			for _, id := range input.Body.TabIDs {
				ids = append(ids, types.TabID(id))
			}
			info, err := svc.CreateGroup(controller.CreateGroupRequest{
				Kind:        types.GroupKind(input.Body.Kind),
				TabIDs:      ids,
				Name:        input.Body.Name,
				Color:       input.Body.Color,
				Collapsed:   input.Body.Collapsed,
				Orientation: input.Body.Orientation,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			return &groupOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-group", Method: http.MethodGet, Path: "/api/v1/groups/{group_id}", Summary: "Get a tab group", Tags: []string{"Groups"}},
		func(ctx context.Context, input *groupIDInput) (*groupOutput, error) {
			info, err := svc.GetGroup(types.GroupID(input.GroupID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &groupOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "destroy-group", Method: http.MethodDelete, Path: "/api/v1/groups/{group_id}", Summary: "Ungroup; the tabs stay open", Tags: []string{"Groups"}},
		func(ctx context.Context, input *groupIDInput) (*statusOutput, error) {
			if err := svc.DestroyGroup(types.GroupID(input.GroupID)); err != nil {
				return nil, mapErr(err)
			}
			return okStatus("ungrouped"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "add-group-tab", Method: http.MethodPut, Path: "/api/v1/groups/{group_id}/tabs/{tab_id}", Summary: "Add a tab to a group", Tags: []string{"Groups"}},
		func(ctx context.Context, input *groupTabInput) (*groupOutput, error) {
			info, err := svc.AddTabToGroup(types.GroupID(input.GroupID), types.TabID(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &groupOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "remove-group-tab", Method: http.MethodDelete, Path: "/api/v1/groups/{group_id}/tabs/{tab_id}", Summary: "Remove a tab from a group", Tags: []string{"Groups"}},
		func(ctx context.Context, input *groupTabInput) (*groupOutput, error) {
			info, err := svc.RemoveTabFromGroup(types.GroupID(input.GroupID), types.TabID(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &groupOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "move-group-tab", Method: http.MethodPost, Path: "/api/v1/groups/{group_id}/move", Summary: "Reorder a group member", Tags: []string{"Groups"}},
		func(ctx context.Context, input *struct {
			GroupID int `path:"group_id"`
			Body    struct {
				From int `json:"from" minimum:"0"`
				To   int `json:"to" minimum:"0"`
			}
		}) (*groupOutput, error) {
			info, err := svc.MoveTabInGroup(types.GroupID(input.GroupID), input.Body.From, input.Body.To)
			if err != nil {
				return nil, mapErr(err)
			}
			return &groupOutput{Body: info}, nil
		})

	flag := func(id, path, summary string, fn func(types.GroupID, bool) (types.GroupInfo, error)) {
		huma.Register(api, huma.Operation{OperationID: id, Method: http.MethodPut, Path: path, Summary: summary, Tags: []string{"Groups"}},
			func(ctx context.Context, input *groupFlagInput) (*groupOutput, error) {
				info, err := fn(types.GroupID(input.GroupID), input.Body.Value)
				if err != nil {
					return nil, mapErr(err)
				}
				return &groupOutput{Body: info}, nil
			})
	}
	flag("collapse-group", "/api/v1/groups/{group_id}/collapsed", "Collapse or expand a user group", svc.SetGroupCollapsed)
	flag("pin-group", "/api/v1/groups/{group_id}/pinned", "Pin or unpin every member", svc.SetGroupPinned)
	flag("mute-group", "/api/v1/groups/{group_id}/muted", "Mute audible members or unmute all", svc.SetGroupMuted)

	text := func(id, path, summary string, fn func(types.GroupID, string) (types.GroupInfo, error)) {
		huma.Register(api, huma.Operation{OperationID: id, Method: http.MethodPut, Path: path, Summary: summary, Tags: []string{"Groups"}},
			func(ctx context.Context, input *groupTextInput) (*groupOutput, error) {
				info, err := fn(types.GroupID(input.GroupID), input.Body.Value)
				if err != nil {
					return nil, mapErr(err)
				}
				return &groupOutput{Body: info}, nil
			})
	}
	text("name-group", "/api/v1/groups/{group_id}/name", "Rename a user group", svc.SetGroupName)
	text("color-group", "/api/v1/groups/{group_id}/color", "Recolor a user group", svc.SetGroupColor)
	text("orient-group", "/api/v1/groups/{group_id}/orientation", "Change a split group's orientation", svc.SetGroupOrientation)

	huma.Register(api, huma.Operation{OperationID: "activate-group", Method: http.MethodPost, Path: "/api/v1/groups/{group_id}/activate", Summary: "Expand a group and activate its first visible tab", Tags: []string{"Groups"}},
		func(ctx context.Context, input *groupIDInput) (*groupOutput, error) {
			info, err := svc.ActivateGroup(types.GroupID(input.GroupID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &groupOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "duplicate-group", Method: http.MethodPost, Path: "/api/v1/groups/{group_id}/duplicate", Summary: "Copy a group and its tabs", Tags: []string{"Groups"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *groupIDInput) (*groupOutput, error) {
			info, err := svc.DuplicateGroup(ctx, types.GroupID(input.GroupID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &groupOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "close-group-tabs", Method: http.MethodPost, Path: "/api/v1/groups/{group_id}/close", Summary: "Close every tab in a group", Tags: []string{"Groups"}},
		func(ctx context.Context, input *groupIDInput) (*statusOutput, error) {
			if err := svc.CloseGroupTabs(types.GroupID(input.GroupID)); err != nil {
				return nil, mapErr(err)
			}
			return okStatus("closed"), nil
		})
}
