package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"quizduel-service/internal/app"
	"quizduel-service/internal/domain"
)

// GameHandler exposes the pairing endpoint that creates games.
type GameHandler struct {
	service *app.GameService
}

func NewGameHandler(service *app.GameService) *GameHandler {
	return &GameHandler{service: service}
}

type createGameRequest struct {
	BankID         string `json:"bankId"`
	FirstPlayerID  string `json:"firstPlayerId"`
	SecondPlayerID string `json:"secondPlayerId"`
}

// CreateGame pairs two players into a new game and arms its completion job.
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BankID == "" || req.FirstPlayerID == "" || req.SecondPlayerID == "" {
		http.Error(w, "missing bankId, firstPlayerId, or secondPlayerId", http.StatusBadRequest)
		return
	}

	game, err := h.service.CreateGame(r.Context(), req.BankID, req.FirstPlayerID, req.SecondPlayerID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrQuestionBankNotFound):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrBankTooSmall):
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(game)
}
