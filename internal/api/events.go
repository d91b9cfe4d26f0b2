package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bbernstein/wifi-connect/internal/services/pubsub"
)

const (
	eventBuffer  = 16
	pingInterval = 10 * time.Second
	pongWait     = 3 * pingInterval
	writeWait    = 5 * time.Second
)

// EventMessage is one frame of the /events stream.
type EventMessage struct {
	Topic     pubsub.Topic `json:"topic"`
	Payload   interface{}  `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

// handleEvents streams portal state changes and connect results. The ssid
// query parameter narrows connect results to one network.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to upgrade to WebSocket")
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	states := s.events.Subscribe(pubsub.TopicPortalState, "", eventBuffer)
	defer s.events.Unsubscribe(states)
	results := s.events.Subscribe(pubsub.TopicConnectResult, r.URL.Query().Get("ssid"), eventBuffer)
	defer s.events.Unsubscribe(results)

	s.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("Event stream opened")
	go s.readClient(conn, cancel)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			s.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("Event stream closed")
			return
		case msg, ok := <-states.Channel:
			if !ok {
				return
			}
			err = writeEvent(conn, pubsub.TopicPortalState, msg)
		case msg, ok := <-results.Channel:
			if !ok {
				return
			}
			err = writeEvent(conn, pubsub.TopicConnectResult, msg)
		case <-ping.C:
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}
		if err != nil {
			s.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Event stream write failed")
			return
		}
	}
}

// readClient drains client frames so control frames are processed, and
// cancels the stream once the client goes away.
func (s *Server) readClient(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("Event stream client error")
			}
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, topic pubsub.Topic, payload interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(EventMessage{Topic: topic, Payload: payload, Timestamp: time.Now().UTC()})
}
