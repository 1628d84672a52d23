package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsPongTimeout   = 60 * time.Second
	wsPingInterval  = 30 * time.Second
	wsMaxMessageLen = 64 * 1024
)

// handleWebSocket upgrades the connection and hands off to the
// read/write pumps; the client's only verbs are ping, subscribe, and
// unsubscribe — this surface never accepts a command that mutates
// surveillance state.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
		subs: make(map[string]bool),
	}

	s.mu.Lock()
	s.clients[client.ID] = client
	count := len(s.clients)
	s.mu.Unlock()
	s.metrics.setWSClients(count)
	s.logger.Info("ws client connected", zap.String("client_id", client.ID))

	go s.writePump(client)
	go s.readPump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		count := len(s.clients)
		s.mu.Unlock()
		s.metrics.setWSClients(count)
		close(client.send)
		client.conn.Close()
		s.logger.Info("ws client disconnected", zap.String("client_id", client.ID))
	}()

	client.conn.SetReadLimit(wsMaxMessageLen)
	client.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("ws read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Debug("ignoring malformed ws message", zap.Error(err))
			continue
		}
		s.handleClientMessage(client, &msg)
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage answers the handful of client-initiated verbs
// this read-only surface supports: ping, and per-channel subscribe/
// unsubscribe filtering of the broadcast stream (a client that never
// subscribes still receives every event — subs is opt-out narrowing,
// not opt-in gating).
func (s *Server) handleClientMessage(client *Client, msg *Message) {
	reply := &Message{ID: msg.ID, Type: "response", Method: msg.Method, Timestamp: time.Now().UnixMilli()}

	switch msg.Method {
	case "ping":
		reply.Payload = map[string]string{"pong": "ok"}
	case "subscribe":
		channel, _ := msg.Payload.(string)
		s.mu.Lock()
		client.subs[channel] = true
		s.mu.Unlock()
		reply.Payload = map[string]string{"subscribed": channel}
	case "unsubscribe":
		channel, _ := msg.Payload.(string)
		s.mu.Lock()
		delete(client.subs, channel)
		s.mu.Unlock()
		reply.Payload = map[string]string{"unsubscribed": channel}
	default:
		reply.Error = "unknown method"
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}
