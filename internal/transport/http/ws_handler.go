package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"quizduel-service/internal/app"
	"quizduel-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
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

type answerPayload struct {
	Text string `json:"text"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the game
// lifecycle: a connected player submits answers and polls game state until
// the completion engine finalizes the game.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	playerID := r.URL.Query().Get("playerId")
	if gameID == "" || playerID == "" {
		http.Error(w, "missing gameId or playerId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	game, err := h.service.GetGame(r.Context(), gameID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	if _, ok := game.ProgressOf(playerID); !ok {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: domain.ErrProgressNotFound.Error()}})
		return
	}

	_ = conn.WriteJSON(outboundMessage[*domain.Game]{Type: "state", Payload: game})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			result, err := h.service.SubmitAnswer(r.Context(), gameID, playerID, payload.Text)
			if err != nil {
				_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			_ = conn.WriteJSON(outboundMessage[app.AnswerResult]{Type: "answerResult", Payload: result})
		case "state":
			game, err := h.service.GetGame(r.Context(), gameID)
			if err != nil {
				_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			_ = conn.WriteJSON(outboundMessage[*domain.Game]{Type: "state", Payload: game})
		default:
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}
}
