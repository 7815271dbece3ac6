package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angelmondragon/tableside-sync/internal/connectivity"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = (eventsPongWait * 9) / 10
	eventsBuffer     = 8
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser origin checks are handled by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ConnectivityEvent is pushed to UI clients on every state change.
type ConnectivityEvent struct {
	Type   string    `json:"type"`
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// ConnectivityEvents streams online/offline transitions over a websocket. The
// current state is sent first so a client never has to poll for it.
func ConnectivityEvents(conn Connectivity, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := eventsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "events.upgrade_failed")
			return
		}

		transitions, cancel := conn.Subscribe(eventsBuffer)
		defer cancel()

		ctx, stop := context.WithCancel(context.Background())
		defer stop()
		go readPump(ws, stop)

		initial := connectivity.Transition{Online: conn.Online(), At: time.Now().UTC()}
		writePump(ctx, ws, initial, transitions)
	}
}

// readPump discards client frames and keeps the read deadline alive via pongs.
func readPump(ws *websocket.Conn, stop context.CancelFunc) {
	defer stop()
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(eventsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(eventsPongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, ws *websocket.Conn, initial connectivity.Transition, transitions <-chan connectivity.Transition) {
	ticker := time.NewTicker(eventsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	if err := writeEvent(ws, initial); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-transitions:
			if !ok {
				_ = ws.SetWriteDeadline(time.Now().Add(eventsWriteWait))
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := writeEvent(ws, t); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(ws *websocket.Conn, t connectivity.Transition) error {
	_ = ws.SetWriteDeadline(time.Now().Add(eventsWriteWait))
	return ws.WriteJSON(ConnectivityEvent{Type: "connectivity", Online: t.Online, At: t.At})
}
