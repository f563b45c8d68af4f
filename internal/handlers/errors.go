package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/souqline/backend/internal/auth"
	"github.com/souqline/backend/internal/contest"
	"github.com/souqline/backend/internal/ledger"
	"github.com/souqline/backend/internal/metrics"
	"github.com/souqline/backend/internal/middleware"
	"github.com/souqline/backend/internal/payments"
	"github.com/souqline/backend/internal/payout"
	"github.com/souqline/backend/internal/subscription"
)

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("forbidden")
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorTable maps domain sentinels to responses. The sentinel's own text is
// the public message; wrapped context stays in the logs.
var errorTable = []errorMapping{
	{payments.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{payments.ErrMalformedEvent, http.StatusBadRequest, "malformed_event"},

	{ledger.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{ledger.ErrNotFound, http.StatusNotFound, "not_found"},

	{subscription.ErrNotFound, http.StatusNotFound, "not_found"},
	{subscription.ErrAccountNotFound, http.StatusNotFound, "not_found"},
	{subscription.ErrInvalidPeriod, http.StatusBadRequest, "invalid_period"},

	{payout.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
	{payout.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{payout.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{payout.ErrInvalidMethod, http.StatusBadRequest, "invalid_method"},
	{payout.ErrReasonRequired, http.StatusBadRequest, "reason_required"},
	{payout.ErrTransferIDRequired, http.StatusBadRequest, "transfer_id_required"},
	{payout.ErrNotFound, http.StatusNotFound, "not_found"},
	{payout.ErrAccountNotFound, http.StatusNotFound, "not_found"},

	{contest.ErrInvalidContest, http.StatusBadRequest, "invalid_contest"},
	{contest.ErrNotFound, http.StatusNotFound, "not_found"},
	{contest.ErrReservationNotFound, http.StatusNotFound, "not_found"},
	{contest.ErrOwnContest, http.StatusForbidden, "own_contest"},
	{contest.ErrContestNotOpen, http.StatusConflict, "contest_not_open"},
	{contest.ErrSoldOut, http.StatusConflict, "sold_out"},
	{contest.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{contest.ErrAlreadyResolved, http.StatusConflict, "already_resolved"},
	{contest.ErrNotSoldOut, http.StatusConflict, "not_sold_out"},
	{contest.ErrReservationsPending, http.StatusConflict, "reservations_pending"},
	{contest.ErrNoEntries, http.StatusConflict, "no_entries"},
	{contest.ErrHasEntries, http.StatusConflict, "has_entries"},
	{contest.ErrCheckoutFailed, http.StatusBadGateway, "checkout_unavailable"},

	{metrics.ErrForbidden, http.StatusForbidden, "forbidden"},
	{errForbidden, http.StatusForbidden, "forbidden"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// respondError writes the mapped response for err. Unmapped errors are
// logged and answered with a generic 500.
func respondError(w http.ResponseWriter, log *slog.Logger, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, m.target.Error())
			return
		}
	}
	log.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, "bad_request", msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// principal returns the caller set by middleware.Authenticate. Routes using
// it are always mounted behind that middleware.
func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return nil, false
	}
	return p, true
}

func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func logOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
