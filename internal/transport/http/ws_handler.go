package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, hub *Hub, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		hub:     hub,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type optionPayload struct {
	Display int `json:"display"`
}

type slotPayload struct {
	Slot int `json:"slot"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets, joins the player and runs the board protocol.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	contextID := r.URL.Query().Get("contextId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	avatarURL := r.URL.Query().Get("avatar")
	if contextID == "" || userID == "" || displayName == "" {
		http.Error(w, "missing contextId, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	joined, err := h.service.Join(ctx, contextID, userID, displayName, avatarURL)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: newErrorPayload(err)})
		return
	}

	c := newClient()
	h.hub.register(contextID, userID, c)
	defer h.hub.unregister(contextID, userID, c)

	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	// Single writer: every outbound frame, replies and hub pushes alike, goes through c.send.
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-c.send:
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Debug("ws write error", "context_id", contextID, "user_id", userID, "err", err)
					return
				}
			case <-c.replaced:
				_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "expired", Payload: newErrorPayload(domain.ErrBoardExpired)})
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced"))
				// unblocks the read loop
				_ = conn.Close()
				return
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(typ string, payload any) {
		select {
		case c.send <- outboundMessage[any]{Type: typ, Payload: payload}:
		case <-writerDone:
		}
	}
	fail := func(err error) {
		if errors.Is(err, domain.ErrBoardExpired) {
			reply("expired", newErrorPayload(err))
			return
		}
		reply("error", newErrorPayload(err))
	}

	reply("joined", joined)

	board := ""
	open := func() {
		view, err := h.service.OpenBoard(ctx, contextID, userID)
		if err != nil {
			fail(err)
			return
		}
		board = view.Board
		reply("board", view)
	}
	// Before Start the board cannot open yet; the client sends "open" once the session runs.
	if view, err := h.service.OpenBoard(ctx, contextID, userID); err == nil {
		board = view.Board
		reply("board", view)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, contextID, userID, board, inbound, open, reply, fail)
	}

	close(closeSignals)
	<-writerDone
}

func (h *WSHandler) dispatch(
	ctx context.Context,
	contextID, userID, board string,
	inbound inboundMessage,
	open func(),
	reply func(string, any),
	fail func(error),
) {
	switch inbound.Type {
	case "open":
		open()
	case "select", "toggle", "append":
		var payload optionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			reply("error", errorPayload{Code: "bad_request", Message: "invalid option payload"})
			return
		}
		switch inbound.Type {
		case "select":
			out, err := h.service.Select(ctx, contextID, userID, board, payload.Display)
			if err != nil {
				fail(err)
				return
			}
			if out.Resolution != nil {
				reply("resolution", out.Resolution)
			}
			if out.View != nil {
				reply("board", out.View)
			}
		case "toggle":
			view, err := h.service.ToggleOption(ctx, contextID, userID, board, payload.Display)
			if err != nil {
				fail(err)
				return
			}
			reply("board", view)
		default:
			view, err := h.service.AppendReorderStep(ctx, contextID, userID, board, payload.Display)
			if err != nil {
				fail(err)
				return
			}
			reply("board", view)
		}
	case "reset":
		view, err := h.service.ResetReorder(ctx, contextID, userID, board)
		if err != nil {
			fail(err)
			return
		}
		reply("board", view)
	case "submit":
		res, err := h.service.Submit(ctx, contextID, userID, board)
		if err != nil {
			fail(err)
			return
		}
		reply("resolution", res)
	case "activate":
		var payload slotPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			reply("error", errorPayload{Code: "bad_request", Message: "invalid activate payload"})
			return
		}
		act, err := h.service.ActivatePowerUp(ctx, contextID, userID, board, payload.Slot)
		if err != nil {
			fail(err)
			return
		}
		reply("activated", act)
	case "next":
		view, err := h.service.NextQuestion(ctx, contextID, userID, board)
		if err != nil {
			fail(err)
			return
		}
		reply("board", view)
	case "leaderboard":
		lb, err := h.service.Leaderboard(ctx, contextID)
		if err != nil {
			fail(err)
			return
		}
		reply("leaderboard", lb)
	default:
		reply("error", errorPayload{Code: "bad_request", Message: "unsupported message type"})
	}
}
