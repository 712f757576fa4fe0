package display

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/pitchtrace/internal/observe"
	"github.com/MrWong99/pitchtrace/internal/tracker"
)

// writeTimeout bounds a single websocket push.
const writeTimeout = 5 * time.Second

// Update is one websocket push. Reset tells the client to discard what it
// has because a new session started.
type Update struct {
	Reset   bool            `json:"reset,omitempty"`
	Session tracker.Session `json:"session"`
	Points  []tracker.Point `json:"points"`
	Label   string          `json:"label"`
}

// streamer tracks what one client has already received.
type streamer struct {
	src       Source
	sessionID string
	last      float64
	label     string
	started   bool
}

// next returns the update to send, or false when nothing changed.
func (st *streamer) next() (Update, bool) {
	sess := st.src.Session()
	reset := !st.started || sess.ID != st.sessionID
	if reset {
		st.sessionID = sess.ID
		st.last = math.Inf(-1)
		st.started = true
	}

	pts := st.src.Since(st.last)
	if len(pts) > 0 {
		st.last = pts[len(pts)-1].Elapsed
	}
	hz, ok := st.src.LastGood()
	label := Label(hz, ok, sess.Active)

	if !reset && len(pts) == 0 && label == st.label {
		return Update{}, false
	}
	st.label = label
	if pts == nil {
		pts = []tracker.Point{}
	}
	return Update{Reset: reset, Session: sess, Points: pts, Label: label}, true
}

func (s *Server) handleTraceStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	log := observe.Logger(r.Context())
	// Clients never send; CloseRead answers pings and ends ctx on close.
	ctx := conn.CloseRead(r.Context())

	err = s.push(ctx, conn)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "")
	case websocket.CloseStatus(err) != -1:
	default:
		log.Debug("display: trace stream ended", "err", err)
		conn.Close(websocket.StatusInternalError, "push failed")
	}
}

// push sends updates at the refresh cadence until ctx ends or a write fails.
func (s *Server) push(ctx context.Context, conn *websocket.Conn) error {
	st := &streamer{src: s.deps.Source}
	ticker := time.NewTicker(s.deps.Refresh)
	defer ticker.Stop()

	for {
		if u, ok := st.next(); ok {
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, u)
			cancel()
			if err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
