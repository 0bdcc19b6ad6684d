package api

import (
	"errors"
	"net/http"

	"github.com/acbmarket/feedctl/internal/derive"
	"github.com/acbmarket/feedctl/internal/verify"
)

type verifyStatus struct {
	Action      string       `json:"action"`
	State       verify.State `json:"state"`
	CanProceed  bool         `json:"can_proceed"`
	RemainingMS int64        `json:"remaining_ms"`
}

type confirmRequest struct {
	Secret string `json:"secret"`
}

type deriveRequest struct {
	Values    []derive.Tally `json:"values"`
	Precision *int           `json:"precision"`
}

func (b *Bridge) handleVerifyStatus(w http.ResponseWriter, r *http.Request) {
	if !b.requireGate(w) {
		return
	}
	writeJSON(w, b.verifyStatus())
}

func (b *Bridge) handleVerifyConfirm(w http.ResponseWriter, r *http.Request) {
	if !b.requireGate(w) {
		return
	}
	var req confirmRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := b.deps.Gate.Confirm(r.Context(), req.Secret)
	switch {
	case err == nil:
		writeJSON(w, b.verifyStatus())
	case errors.Is(err, verify.ErrEmptySecret):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, verify.ErrNotAuthenticated):
		httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
	case errors.Is(err, verify.ErrWrongSecret):
		httpError(w, http.StatusForbidden, "verification_error", "%v", verify.ErrWrongSecret)
	default:
		httpError(w, http.StatusBadGateway, "api_error", "verification failed: %v", err)
	}
}

// handleVerifyCheck is called before performing the protected action. An
// expired grant is pruned here and the call answers 403.
func (b *Bridge) handleVerifyCheck(w http.ResponseWriter, r *http.Request) {
	if !b.requireGate(w) {
		return
	}
	g := b.deps.Gate
	if !g.CanProceed() {
		httpError(w, http.StatusForbidden, "verification_required", "verification required for %s", g.Action())
		return
	}
	writeJSON(w, b.verifyStatus())
}

func (b *Bridge) handleVerifyClear(w http.ResponseWriter, r *http.Request) {
	if !b.requireGate(w) {
		return
	}
	if err := b.deps.Gate.Clear(); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
		return
	}
	writeJSON(w, b.verifyStatus())
}

func (b *Bridge) handleDerive(w http.ResponseWriter, r *http.Request) {
	var req deriveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	precision := b.deps.Precision
	if req.Precision != nil {
		precision = *req.Precision
	}
	if precision < 0 || precision > derive.MaxPrecision {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "precision must be between 0 and %d", derive.MaxPrecision)
		return
	}
	shares := derive.Percentages(req.Values, precision)
	if shares == nil {
		shares = []derive.Share{}
	}
	writeJSON(w, map[string]any{"shares": shares})
}

func (b *Bridge) verifyStatus() verifyStatus {
	g := b.deps.Gate
	state := g.Status()
	return verifyStatus{
		Action:      g.Action(),
		State:       state,
		CanProceed:  state == verify.Verified,
		RemainingMS: g.Remaining().Milliseconds(),
	}
}

func (b *Bridge) requireGate(w http.ResponseWriter) bool {
	if b.deps.Gate == nil {
		httpError(w, http.StatusNotFound, "not_found", "verification is not enabled")
		return false
	}
	return true
}
