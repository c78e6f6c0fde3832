package server

import (
	"context"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/odvcencio/pocketdev/pkg/events"
	"github.com/odvcencio/pocketdev/pkg/logging"
)

const maxWSReadBytes = 32 << 10

// handleRealtime upgrades the connection and streams hub events until the
// client disconnects. The read side only watches for close; clients do not
// send application messages.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn(logging.CategoryEvents, "ws_accept_failed", err.Error(), nil)
		return
	}
	conn.SetReadLimit(maxWSReadBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := s.hub.Register(conn)
	metricRealtimeClients.Set(float64(s.hub.ClientCount()))
	events.StartPing(ctx, conn)

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	if err := client.Serve(ctx); err != nil && ctx.Err() == nil {
		s.logger.Debug(logging.CategoryEvents, "ws_write_failed", err.Error(), nil)
	}

	metricRealtimeClients.Set(float64(s.hub.ClientCount()))
	_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
}
