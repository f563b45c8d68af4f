package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/souqline/backend/internal/auth"
	"github.com/souqline/backend/internal/contest"
	"github.com/souqline/backend/internal/models"
)

type ContestService interface {
	Create(ctx context.Context, creatorID uuid.UUID, title, prize string, totalSlots int, slotPrice int64) (*models.Contest, error)
	Get(ctx context.Context, id uuid.UUID) (*contest.View, error)
	List(ctx context.Context, status *models.ContestStatus) ([]*models.Contest, error)
	Enter(ctx context.Context, contestID, participantID uuid.UUID) (*contest.EnterResult, error)
	Close(ctx context.Context, id uuid.UUID) (*models.Contest, error)
	Resolve(ctx context.Context, id uuid.UUID) (*models.ContestEntry, error)
	Update(ctx context.Context, id uuid.UUID, patch contest.Patch) (*models.Contest, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ContestHandler serves /api/v1/contests. Mutations other than Enter are
// limited to the contest's creator and admins.
type ContestHandler struct {
	Contests ContestService
	Logger   *slog.Logger
}

// GET /api/v1/contests?status=
func (h *ContestHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *models.ContestStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.ContestStatus(raw)
		switch s {
		case models.ContestOpen, models.ContestClosed, models.ContestResolved:
			status = &s
		default:
			badRequest(w, "unknown status")
			return
		}
	}
	list, err := h.Contests.List(r.Context(), status)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	if list == nil {
		list = []*models.Contest{}
	}
	writeJSON(w, http.StatusOK, list)
}

type createContestRequest struct {
	Title            string `json:"title"`
	PrizeDescription string `json:"prize_description"`
	TotalSlots       int    `json:"total_slots"`
	SlotPrice        int64  `json:"slot_price"`
}

// POST /api/v1/contests
func (h *ContestHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createContestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	c, err := h.Contests.Create(r.Context(), p.AccountID, req.Title, req.PrizeDescription, req.TotalSlots, req.SlotPrice)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GET /api/v1/contests/{id}
func (h *ContestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	v, err := h.Contests.Get(r.Context(), id)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type updateContestRequest struct {
	Title            *string `json:"title"`
	PrizeDescription *string `json:"prize_description"`
	TotalSlots       *int    `json:"total_slots"`
	SlotPrice        *int64  `json:"slot_price"`
}

// PATCH /api/v1/contests/{id}
func (h *ContestHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req updateContestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if req.TotalSlots != nil || req.SlotPrice != nil {
		badRequest(w, "slot count and price cannot be changed")
		return
	}
	c, err := h.Contests.Update(r.Context(), id, contest.Patch{Title: req.Title, PrizeDescription: req.PrizeDescription})
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DELETE /api/v1/contests/{id}
func (h *ContestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if err := h.Contests.Delete(r.Context(), id); err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/contests/{id}/enter
//
// Free contests return the entry directly; paid ones return the checkout
// redirect and the hold that backs it.
func (h *ContestHandler) Enter(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	res, err := h.Contests.Enter(r.Context(), id, p.AccountID)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	status := http.StatusAccepted
	if res.Entry != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// POST /api/v1/contests/{id}/close
func (h *ContestHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	c, err := h.Contests.Close(r.Context(), id)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// POST /api/v1/contests/{id}/resolve
func (h *ContestHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	winner, err := h.Contests.Resolve(r.Context(), id)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contest_id": id, "winner": winner})
}

// authorize parses {id} and checks the caller may manage that contest.
func (h *ContestHandler) authorize(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	p, ok := principal(w, r)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := idParam(w, r)
	if !ok {
		return uuid.Nil, false
	}
	v, err := h.Contests.Get(r.Context(), id)
	if err != nil {
		respondError(w, logOrDefault(h.Logger), err)
		return uuid.Nil, false
	}
	if !canManage(p, v.Contest) {
		respondError(w, logOrDefault(h.Logger), errForbidden)
		return uuid.Nil, false
	}
	return id, true
}

func canManage(p *auth.Principal, c *models.Contest) bool {
	return p.IsAdmin || p.AccountID == c.CreatorID
}
