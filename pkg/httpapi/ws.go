package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/icecake0141/nwrunner/pkg/eventbus"
	"github.com/icecake0141/nwrunner/pkg/models"
)

// writeWait bounds a single WS frame write, mirroring the teacher's
// pkg/core/api/stream.go ping/pong deadlines.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // CORS already enforced upstream
}

// serveEventStream upgrades the connection and streams a job's events,
// closing the socket once job_complete has been delivered (spec.md §6: "the
// stream terminates after delivering the single job_complete event").
// Re-architected per spec.md §9 DESIGN NOTES: the bus owns append-and-
// broadcast, a dedicated writer goroutine owns the socket, and a bounded
// channel decouples the two so a slow reader never blocks the publisher.
func (s *Server) serveEventStream(w http.ResponseWriter, r *http.Request, jobID string, startIndex int) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	defer conn.Close()

	events := make(chan models.ExecutionEvent, 64)
	closed := make(chan struct{})

	// Subscribe's backfill replay calls Handle synchronously for every
	// already-logged event (eventbus/bus.go), which blocks once events fills
	// past its buffer. Run it in its own goroutine so the draining select
	// loop below is already pulling from events before a long backfill can
	// fill the channel (spec.md §4.4: a subscriber must never be starved by
	// its own backfill, any more than the publisher may be blocked by it).
	var unsubscribe func()
	subDone := make(chan func(), 1)

	go func() {
		subDone <- s.Bus.Subscribe(jobID, startIndex, eventbus.SubscriberFunc(func(e models.ExecutionEvent) {
			select {
			case events <- e:
			case <-closed:
			}
		}))
	}()

	defer func() {
		if unsubscribe != nil {
			unsubscribe()
		}
	}()

	done := make(chan struct{})
	go s.readLoop(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case unsub := <-subDone:
			unsubscribe = unsub
			subDone = nil
		case e := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				close(closed)
				return
			}

			if e.Type == models.EventJobComplete {
				close(closed)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				close(closed)
				return
			}
		case <-done:
			close(closed)
			return
		}
	}
}

// readLoop discards client frames (this stream is server-to-client only)
// and exists solely to notice a client-initiated close or a dead
// connection, signalling the writer loop via done.
func (s *Server) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
