// WebSocket transport is a stated-interface external collaborator
// (spec.md §1 lists it as explicitly out of scope for the gateway core).
// This file is a thin framing adapter only: it upgrades the connection,
// decodes each inbound frame as a chatRequest, and runs it through the
// exact same router -> quota -> dispatcher -> session pipeline handleChat
// uses over HTTP. No new behavior lives here.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Miles0sage/agentgate/core"
	"github.com/Miles0sage/agentgate/dispatcher"
	"github.com/Miles0sage/agentgate/router"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

type wsErrorFrame struct {
	Error string `json:"error"`
}

// handleWebSocket upgrades the connection and serves chat turns over it
// until the client disconnects or sends a malformed frame.
func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Content == "" || len(req.Content) > maxContentBytes {
			s.wsWriteError(conn, "content must be non-empty and at most 64 KiB")
			continue
		}
		if req.ProjectID == "" {
			req.ProjectID = "default"
		}

		resp, err := s.runChatTurn(ctx, req)
		if err != nil {
			s.wsWriteError(conn, err.Error())
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (s *server) wsWriteError(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteJSON(wsErrorFrame{Error: message})
}

// runChatTurn holds the request/response cycle handleChat and
// handleWebSocket both drive, so the HTTP and socket transports never
// diverge on routing, quota, or session semantics.
func (s *server) runChatTurn(ctx context.Context, req chatRequest) (chatResponse, error) {
	ctx = core.WithRequestID(ctx, uuid.New().String())

	var sessionCtx *router.SessionContext
	if req.SessionKey != "" {
		window, err := s.sessionStore.ContextWindow(req.SessionKey)
		if err == nil && len(window) > 0 {
			sessionCtx = &router.SessionContext{LastMessages: window}
		}
	}

	decision := s.router.Select(ctx, req.Content, sessionCtx, req.AgentID)

	if _, err := s.cost.CheckBudget(ctx, req.ProjectID, decision.AgentID, "", len(req.Content)/4, 512); err != nil {
		return chatResponse{}, err
	}

	var history []core.Message
	if sessionCtx != nil {
		history = sessionCtx.LastMessages
	}

	result, err := s.dispatcher.Dispatch(ctx, decision.AgentID, req.Content, history, dispatcher.Options{Project: req.ProjectID})
	if err != nil {
		return chatResponse{}, err
	}

	if req.SessionKey != "" {
		_, _ = s.sessionStore.Append(req.SessionKey, core.Message{Role: "user", Content: req.Content})
		_, _ = s.sessionStore.Append(req.SessionKey, core.Message{Role: "assistant", Content: result.ResponseText})
	}

	return chatResponse{
		Response: result.ResponseText,
		Agent:    decision.AgentID,
		Tokens:   result.TokensUsed,
		CostUSD:  result.CostUSD,
		Routing:  decision,
	}, nil
}
