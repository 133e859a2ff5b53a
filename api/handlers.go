package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"raffler/domain/entities"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

type verifyRequest struct {
	Signature  string `json:"signature"`
	RaffleSlug string `json:"raffle_slug,omitempty"`
	EntryID    int64  `json:"entry_id,omitempty"`
}

type drawRequest struct {
	Force bool `json:"force"`
}

type restoreRequest struct {
	Hours int `json:"hours"`
}

type errorResponse struct {
	Kind       string                `json:"kind"`
	Message    string                `json:"message"`
	Suggestion string                `json:"suggestion,omitempty"`
	Candidates []entities.Candidate  `json:"candidates,omitempty"`
	Gates      []string              `json:"failed_gates,omitempty"`
	Payment    *entities.PaymentFact `json:"payment,omitempty"`
}

type raffleResponse struct {
	*entities.Raffle
	ConfirmedTickets int `json:"confirmed_tickets"`
}

// handleVerify settles a payment signature. With entry_id it verifies a known
// entry; otherwise it reconciles the signature, optionally scoped by slug.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "BAD_REQUEST", Message: "invalid JSON body"})
		return
	}
	if req.Signature == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "BAD_REQUEST", Message: "signature is required"})
		return
	}

	adminWallet := r.Header.Get("X-Admin-Wallet")

	var (
		result *entities.VerificationResult
		err    error
	)
	if req.EntryID != 0 {
		result, err = s.settlement.VerifyEntry(r.Context(), req.EntryID, req.Signature, adminWallet)
	} else {
		result, err = s.settlement.VerifyBySignature(r.Context(), req.Signature, req.RaffleSlug, adminWallet)
	}
	if err != nil {
		writeVerificationError(w, err)
		return
	}

	status := http.StatusOK
	if result.Status == entities.VerificationPendingRetry {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

// handleDraw runs the weighted winner selection for a raffle
func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	raffle, ok := s.loadRaffle(w, r)
	if !ok {
		return
	}

	// An empty body means a plain, unforced draw
	var req drawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "BAD_REQUEST", Message: "invalid JSON body"})
		return
	}

	result, err := s.winner.SelectWinner(r.Context(), raffle.ID, req.Force)
	if err != nil {
		var eligErr *entities.EligibilityError
		if errors.As(err, &eligErr) {
			gates := make([]string, len(eligErr.FailedGates))
			for i, g := range eligErr.FailedGates {
				gates[i] = string(g)
			}
			writeJSON(w, http.StatusConflict, errorResponse{
				Kind:    "NOT_ELIGIBLE",
				Message: eligErr.Error(),
				Gates:   gates,
			})
			return
		}
		log.WithError(err).WithField("raffle", raffle.Slug).Error("draw failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "INTERNAL", Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleRestore extends an ended raffle after an outage
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	raffle, ok := s.loadRaffle(w, r)
	if !ok {
		return
	}

	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "BAD_REQUEST", Message: "invalid JSON body"})
		return
	}

	updated, err := s.lifecycle.Restore(r.Context(), raffle.ID, req.Hours)
	if err != nil {
		writeJSON(w, http.StatusConflict, errorResponse{Kind: "RESTORE_FAILED", Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleGetRaffle returns a raffle with its confirmed ticket total
func (s *Server) handleGetRaffle(w http.ResponseWriter, r *http.Request) {
	raffle, ok := s.loadRaffle(w, r)
	if !ok {
		return
	}

	confirmed, err := s.entryRepo.SumConfirmedTickets(r.Context(), raffle.ID, 0)
	if err != nil {
		log.WithError(err).WithField("raffle", raffle.Slug).Error("failed to sum tickets")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "INTERNAL", Message: "failed to load ticket total"})
		return
	}

	writeJSON(w, http.StatusOK, raffleResponse{Raffle: raffle, ConfirmedTickets: confirmed})
}

func (s *Server) loadRaffle(w http.ResponseWriter, r *http.Request) (*entities.Raffle, bool) {
	slug := chi.URLParam(r, "slug")
	raffle, err := s.raffleRepo.GetBySlug(r.Context(), slug)
	if err != nil {
		log.WithError(err).WithField("slug", slug).Error("failed to load raffle")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "INTERNAL", Message: "failed to load raffle"})
		return nil, false
	}
	if raffle == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Kind: "NOT_FOUND", Message: fmt.Sprintf("raffle %q not found", slug)})
		return nil, false
	}
	return raffle, true
}

// writeVerificationError maps the settlement error taxonomy onto HTTP codes.
// Retryable kinds get 404/503 so callers know a later retry may succeed;
// permanent kinds get 4xx.
func writeVerificationError(w http.ResponseWriter, err error) {
	var verr *entities.VerificationError
	if !errors.As(err, &verr) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "INTERNAL", Message: err.Error()})
		return
	}

	status := http.StatusUnprocessableEntity
	switch verr.Kind {
	case entities.ErrorKindConfig:
		status = http.StatusInternalServerError
	case entities.ErrorKindNotFound:
		status = http.StatusNotFound
	case entities.ErrorKindAmbiguous, entities.ErrorKindCapacity:
		status = http.StatusConflict
	case entities.ErrorKindTemporary:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, errorResponse{
		Kind:       string(verr.Kind),
		Message:    verr.Message,
		Suggestion: verr.Suggestion,
		Candidates: verr.Candidates,
		Payment:    verr.Payment,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}
