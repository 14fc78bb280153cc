package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/flow_shell/internal/controller"
	"github.com/dgnsrekt/flow_shell/internal/session"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

type sessionIDInput struct {
	SessionID string `path:"session_id" doc:"Session UUID"`
}

type sessionSummaryOutput struct {
	Body session.Summary
}

// restoreOutput carries a 207 status when some windows failed.
type restoreOutput struct {
	Status int
	Body   session.RestoreResult
}

func registerSessionHandlers(api huma.API, svc Service) {
	type listSessionsOutput struct {
		Body struct {
			Sessions []session.Summary `json:"sessions"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-sessions", Method: http.MethodGet, Path: "/api/v1/sessions", Summary: "List saved sessions, newest first", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct{}) (*listSessionsOutput, error) {
			list, err := svc.ListSessions(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listSessionsOutput{}
			out.Body.Sessions = list
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "save-session", Method: http.MethodPost, Path: "/api/v1/sessions", Summary: "Save the current topology", Tags: []string{"Sessions"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct {
			Body struct {
				Name string `json:"name" required:"true"`
			}
		}) (*sessionSummaryOutput, error) {
			sum, err := svc.SaveSession(ctx, input.Body.Name)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionSummaryOutput{Body: sum}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-session", Method: http.MethodGet, Path: "/api/v1/sessions/{session_id}", Summary: "Get a saved session record", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionIDInput) (*struct{ Body session.Record }, error) {
			rec, err := svc.GetSession(ctx, input.SessionID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &struct{ Body session.Record }{Body: rec}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "rename-session", Method: http.MethodPut, Path: "/api/v1/sessions/{session_id}/name", Summary: "Rename a saved session", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct {
			SessionID string `path:"session_id"`
			Body      struct {
				Name string `json:"name" required:"true"`
			}
		}) (*sessionSummaryOutput, error) {
			sum, err := svc.RenameSession(ctx, input.SessionID, input.Body.Name)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionSummaryOutput{Body: sum}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-session", Method: http.MethodDelete, Path: "/api/v1/sessions/{session_id}", Summary: "Delete a saved session", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionIDInput) (*statusOutput, error) {
			if err := svc.DeleteSession(ctx, input.SessionID); err != nil {
				return nil, mapErr(err)
			}
			return okStatus("deleted"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "restore-session", Method: http.MethodPost, Path: "/api/v1/sessions/{session_id}/restore", Summary: "Replay a saved session", Description: "Returns 207 with the per-window breakdown when some windows could not be restored.", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct {
			SessionID     string `path:"session_id"`
			CloseExisting bool   `query:"close_existing" doc:"Close every open window first"`
		}) (*restoreOutput, error) {
			res, err := svc.RestoreSession(ctx, input.SessionID, input.CloseExisting)
			if err != nil {
				if types.HasCode(err, types.CodePartialRestore) {
					return &restoreOutput{Status: http.StatusMultiStatus, Body: res}, nil
				}
				return nil, mapErr(err)
			}
			return &restoreOutput{Status: http.StatusOK, Body: res}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "session-status", Method: http.MethodGet, Path: "/api/v1/sessions-status", Summary: "Session manager state and counters", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct{}) (*struct{ Body controller.SessionStatus }, error) {
			return &struct{ Body controller.SessionStatus }{Body: svc.SessionStatus()}, nil
		})
}
