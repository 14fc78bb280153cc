package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/flow_shell/internal/events"
)

type statsBody struct {
	Windows       int   `json:"windows"`
	Spaces        int   `json:"spaces"`
	Tabs          int   `json:"tabs"`
	Groups        int   `json:"groups"`
	EventClients  int   `json:"event_clients"`
	EventsDropped int64 `json:"events_dropped"`
}

func registerMiscHandlers(api huma.API, svc Service, broker *events.Broker) {
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			return okStatus("ok"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "topology-stats", Method: http.MethodGet, Path: "/api/v1/stats", Summary: "Live entity counts and event feed health", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*struct{ Body statsBody }, error) {
			c := svc.Counts()
			out := &struct{ Body statsBody }{}
			out.Body = statsBody{Windows: c.Windows, Spaces: c.Spaces, Tabs: c.Tabs, Groups: c.Groups}
			if broker != nil {
				out.Body.EventClients = broker.ClientCount()
				out.Body.EventsDropped = broker.Dropped()
			}
			return out, nil
		})
}
