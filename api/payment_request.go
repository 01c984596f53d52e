package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/DomeLiquid/paycore/outcome"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type createPaymentRequest struct {
	Owner              string `json:"owner" validate:"required,max=64"`
	PlanId             string `json:"plan_id" validate:"required,max=64"`
	Amount             string `json:"amount" validate:"required,numeric"`
	DestinationAddress string `json:"destination_address" validate:"omitempty,max=128"`
	TTLSeconds         int64  `json:"ttl_seconds" validate:"gte=0"`
}

type submitTransaction struct {
	TxHash string `json:"tx_hash" validate:"required,max=256"`
}

type submissionResponse struct {
	Outcome string `json:"outcome"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) CreatePaymentRequest(w http.ResponseWriter, r *http.Request) {
	var body createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	destination := strings.TrimSpace(body.DestinationAddress)
	if destination == "" {
		destination = s.wallet
	}
	ttl := time.Duration(body.TTLSeconds) * time.Second
	if ttl == 0 {
		ttl = s.settings.Settings().PaymentTimeout
	}

	request, err := core.NewPaymentRequest(s.clk, body.Owner, body.PlanId, amount, destination, ttl)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.requests.CreatePaymentRequest(r.Context(), request); err != nil {
		s.log.Error().Err(err).Str("owner", body.Owner).Msg("create payment request failed")
		writeError(w, http.StatusInternalServerError, "failed to create payment request")
		return
	}
	s.log.Info().Str("request_id", request.Id).Str("owner", request.Owner).Str("amount", request.RequestedAmount.String()).Msg("payment request created")
	writeJSON(w, http.StatusCreated, request)
}

func (s *Server) GetPaymentRequest(w http.ResponseWriter, r *http.Request) {
	request, ok := s.loadRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (s *Server) ListAttempts(w http.ResponseWriter, r *http.Request) {
	request, ok := s.loadRequest(w, r)
	if !ok {
		return
	}
	attempts, err := s.attempts.ListVerificationAttempts(r.Context(), request.Id)
	if err != nil {
		s.log.Error().Err(err).Str("request_id", request.Id).Msg("list attempts failed")
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []*core.VerificationAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

// SubmitTransaction runs hash-directed verification for a user supplied hash and applies
// the outcome before answering.
func (s *Server) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	request, ok := s.loadRequest(w, r)
	if !ok {
		return
	}
	var body submitTransaction
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	body.TxHash = strings.TrimSpace(body.TxHash)
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "tx_hash is required")
		return
	}

	if !request.IsPending() {
		s.writeResolved(w, request.Status)
		return
	}

	verdict, err := s.verifier.VerifyHash(r.Context(), request, body.TxHash, core.AttemptSourceUser)
	if errors.Is(err, core.ErrAlreadyResolved) {
		s.writeResolved(w, request.Status)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("request_id", request.Id).Msg("verification failed")
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	result, err := s.applier.Apply(r.Context(), request, verdict)
	if err != nil {
		s.log.Error().Err(err).Str("request_id", request.Id).Str("outcome", verdict.Outcome.String()).Msg("apply outcome failed")
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	status := http.StatusOK
	if verdict.Outcome == core.OutcomeRateLimited {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, submissionResponse{
		Outcome: verdict.Outcome.String(),
		Status:  result.Status.String(),
		Message: result.Message,
	})
}

func (s *Server) writeResolved(w http.ResponseWriter, status core.PaymentRequestStatus) {
	writeJSON(w, http.StatusConflict, submissionResponse{
		Status:  status.String(),
		Message: outcome.StatusMessage(status),
	})
}

func (s *Server) loadRequest(w http.ResponseWriter, r *http.Request) (*core.PaymentRequest, bool) {
	id := chi.URLParam(r, "id")
	request, err := s.requests.GetPaymentRequest(r.Context(), id)
	if errors.Is(err, core.ErrRequestNotFound) {
		writeError(w, http.StatusNotFound, "payment request not found")
		return nil, false
	}
	if err != nil {
		s.log.Error().Err(err).Str("request_id", id).Msg("load payment request failed")
		writeError(w, http.StatusInternalServerError, "failed to load payment request")
		return nil, false
	}
	return request, true
}
