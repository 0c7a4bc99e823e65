// Package observer serves the push channel over websockets plus the
// request-response snapshot endpoint for late-joining observers.
package observer

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"aicity.ai/internal/observerproto"
	"aicity.ai/internal/sim/city"
)

type Server struct {
	city *city.City
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(c *city.City, logger *log.Logger) *Server {
	return &Server{
		city: c,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// BootstrapHandler is the snapshot endpoint: the current full state,
// consistent with a single day boundary.
func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := "bootstrap-" + uuid.NewString()
		sess := s.city.AttachObserver(id)
		s.city.DetachObserver(id)

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			CityID:          s.city.Config().ID,
			Day:             s.city.Day(),
			State:           sess.State,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// WSHandler upgrades an observer connection. The client must send a
// SUBSCRIBE first; it then receives the `state` message and the live feed.
// A dropped feed (slow consumer) closes the socket; the client re-syncs
// through the bootstrap endpoint.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"),
				time.Now().Add(time.Second))
			return
		}
		_ = conn.SetReadDeadline(time.Time{})

		id := uuid.NewString()
		sess := s.city.AttachObserver(id)
		defer s.city.DetachObserver(id)

		if err := conn.WriteMessage(websocket.TextMessage, sess.State); err != nil {
			return
		}

		// Reader goroutine only to notice the peer going away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case b, ok := <-sess.Feed:
				if !ok {
					// Dropped from the live feed (overflow); the client
					// must bootstrap again.
					s.log.Printf("observer %s dropped (slow consumer)", id)
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}
