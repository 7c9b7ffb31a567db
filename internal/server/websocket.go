package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/pyrun/internal/harness"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	runRequest
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type    string           `json:"type"`
	ID      string           `json:"id,omitempty"`
	Outcome *harness.Outcome `json:"outcome,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// handleWebSocket runs requests sent over the connection one after another,
// answering each with its outcome.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.logger.Warn("websocket read error", "err", err)
			return
		}

		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.Type != "run" {
			s.wsWriteJSON(conn, wsOutgoing{Type: "error", ID: msg.ID, Error: "unsupported message type " + msg.Type})
			continue
		}

		req, err := msg.toRequest()
		if err != nil {
			s.wsWriteJSON(conn, wsOutgoing{Type: "error", ID: msg.ID, Error: err.Error()})
			continue
		}

		out, err := s.runner.Run(ctx, req)
		if err != nil {
			s.wsWriteJSON(conn, wsOutgoing{Type: "error", ID: msg.ID, Error: err.Error()})
			continue
		}
		s.wsWriteJSON(conn, wsOutgoing{Type: "outcome", ID: msg.ID, Outcome: out})
	}
}

func (s *Server) wsWriteJSON(conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("websocket marshal error", "err", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn("websocket write error", "err", err)
	}
}
