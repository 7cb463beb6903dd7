package handlers

import (
	"net/http"
	"strconv"

	"github.com/saparbekov/pingpong-system/models"
	"github.com/saparbekov/pingpong-system/repositories"
	"github.com/saparbekov/pingpong-system/services"
)

type MatchHandler struct {
	matchService services.MatchService
}

func NewMatchHandler(ms services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: ms}
}

// CreateCasual создаёт товарищеский матч вне турнира.
func (h *MatchHandler) CreateCasual(w http.ResponseWriter, r *http.Request) {
	var input services.CreateMatchInput

	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.CreateCasual(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.GetByID(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// List фильтрует матчи по query-параметрам tournament_id, stage, round, status.
// tournament_id=0 выбирает товарищеские матчи.
func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter repositories.MatchFilter

	q := r.URL.Query()
	if raw := q.Get("tournament_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id < 0 {
			badRequestResponse(w, r, errInvalidQueryParam("tournament_id", raw))
			return
		}
		filter.TournamentID = &id
	}
	if raw := q.Get("stage"); raw != "" {
		stage := models.MatchStage(raw)
		filter.Stage = &stage
	}
	if raw := q.Get("round"); raw != "" {
		round, err := strconv.Atoi(raw)
		if err != nil || round < 1 {
			badRequestResponse(w, r, errInvalidQueryParam("round", raw))
			return
		}
		filter.Round = &round
	}
	if raw := q.Get("status"); raw != "" {
		status := models.MatchStatus(raw)
		filter.Status = &status
	}

	matches, err := h.matchService.List(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SubmitScore записывает счёт матча (или одной партии best-of-three).
func (h *MatchHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.ScoreInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.SubmitScore(r.Context(), id, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.matchService.Delete(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
