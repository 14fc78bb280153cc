package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WSHandler streams topology events as websocket text frames, one JSON
// event per frame. The same ?feeds= filter as SSEHandler applies.
func WSHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feedFilter := parseFeedFilter(r)

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
			return
		}
		defer func() {
			if err := conn.Close(); err != nil {
				slog.Debug("websocket close failed", "error", err)
			}
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Reader drains control frames and notices the client going away.
		go func() {
			defer cancel()
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if feedFilter != nil && !feedFilter[evt.Feed] {
					continue
				}
				payload, err := json.Marshal(evt)
				if err != nil {
					slog.Debug("websocket event marshal failed", "error", err)
					continue
				}
				if err := wsutil.WriteServerText(conn, payload); err != nil {
					slog.Debug("websocket write failed", "error", err, "remote", r.RemoteAddr)
					return
				}
			}
		}
	}
}
