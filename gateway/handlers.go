package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"synapse/core/types"
	"synapse/native/dispute"
	"synapse/native/intent"
	"synapse/native/safety"
)

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Error: code, Detail: detail})
}

// writeComponentError maps component errors onto HTTP statuses: validation
// rejections are 422, missing resources 404, duplicates 409.
func writeComponentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intent.ErrIntentNotFound),
		errors.Is(err, dispute.ErrDisputeNotFound),
		errors.Is(err, dispute.ErrMissingEscrow):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, dispute.ErrDuplicateDispute):
		writeError(w, http.StatusConflict, "duplicate", err.Error())
	case errors.Is(err, dispute.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		if reason, ok := intent.Rejection(err); ok {
			writeError(w, http.StatusUnprocessableEntity, string(reason), err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_body", err.Error())
		return false
	}
	return true
}

func parseAddressField(w http.ResponseWriter, field, raw string) (types.Address, bool) {
	addr, err := types.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", field+": "+err.Error())
		return types.Address{}, false
	}
	return addr, true
}

type requirementsBody struct {
	MinReputation float64  `json:"minReputation,omitempty"`
	RequireTEE    bool     `json:"requireTee,omitempty"`
	Preferred     []string `json:"preferred,omitempty"`
	Excluded      []string `json:"excluded,omitempty"`
	MaxLatencyMs  int64    `json:"maxLatencyMs,omitempty"`
}

func (b requirementsBody) toRequirements(w http.ResponseWriter) (intent.Requirements, bool) {
	req := intent.Requirements{
		MinReputation: b.MinReputation,
		RequireTEE:    b.RequireTEE,
		MaxLatencyMs:  b.MaxLatencyMs,
	}
	for _, raw := range b.Preferred {
		addr, ok := parseAddressField(w, "requirements.preferred", raw)
		if !ok {
			return intent.Requirements{}, false
		}
		req.Preferred = append(req.Preferred, addr)
	}
	for _, raw := range b.Excluded {
		addr, ok := parseAddressField(w, "requirements.excluded", raw)
		if !ok {
			return intent.Requirements{}, false
		}
		req.Excluded = append(req.Excluded, addr)
	}
	return req, true
}

type createIntentBody struct {
	Client             string           `json:"client"`
	IntentType         string           `json:"intentType"`
	Category           string           `json:"category,omitempty"`
	Params             map[string]any   `json:"params,omitempty"`
	MaxBudget          string           `json:"maxBudget"`
	Currency           string           `json:"currency,omitempty"`
	Requirements       requirementsBody `json:"requirements,omitempty"`
	BiddingWindowMs    int64            `json:"biddingWindowMs,omitempty"`
	ExecutionTimeoutMs int64            `json:"executionTimeoutMs,omitempty"`
}

type intentView struct {
	ID                string         `json:"id"`
	Client            string         `json:"client"`
	IntentType        string         `json:"intentType"`
	Category          string         `json:"category,omitempty"`
	Params            map[string]any `json:"params,omitempty"`
	MaxBudget         string         `json:"maxBudget"`
	Currency          string         `json:"currency,omitempty"`
	Status            string         `json:"status"`
	CreatedAt         int64          `json:"createdAt"`
	BiddingDeadline   int64          `json:"biddingDeadline"`
	ExecutionDeadline int64          `json:"executionDeadline"`
	AssignedProvider  string         `json:"assignedProvider,omitempty"`
	FailoverQueue     []string       `json:"failoverQueue,omitempty"`
	FailureReason     string         `json:"failureReason,omitempty"`
	Result            *resultView    `json:"result,omitempty"`
}

type resultView struct {
	ProviderID      string         `json:"providerId,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
	SettledAmount   string         `json:"settledAmount,omitempty"`
	SettlementTx    string         `json:"settlementTx,omitempty"`
	CompletedAt     int64          `json:"completedAt"`
}

func viewIntent(it *intent.Intent) intentView {
	view := intentView{
		ID:                it.ID,
		Client:            it.Client.String(),
		IntentType:        it.IntentType,
		Category:          it.Category,
		Params:            it.Params,
		MaxBudget:         types.FormatAmount(it.MaxBudget),
		Currency:          it.Currency,
		Status:            it.Status.String(),
		CreatedAt:         it.CreatedAt,
		BiddingDeadline:   it.BiddingDeadline,
		ExecutionDeadline: it.ExecutionDeadline,
		FailureReason:     it.FailureReason,
	}
	if it.AssignedProvider != nil {
		view.AssignedProvider = it.AssignedProvider.String()
	}
	for _, addr := range it.FailoverQueue {
		view.FailoverQueue = append(view.FailoverQueue, addr.String())
	}
	if it.Result != nil {
		view.Result = &resultView{
			ProviderID:      it.Result.ProviderID,
			Payload:         it.Result.Payload,
			ExecutionTimeMs: it.Result.ExecutionTimeMs,
			SettlementTx:    it.Result.SettlementTx,
			CompletedAt:     it.Result.CompletedAt,
		}
		if it.Result.SettledAmount != nil {
			view.Result.SettledAmount = types.FormatAmount(it.Result.SettledAmount)
		}
	}
	return view
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "intent engine not configured")
		return
	}
	var body createIntentBody
	if !decodeBody(w, r, &body) {
		return
	}
	client, ok := parseAddressField(w, "client", body.Client)
	if !ok {
		return
	}
	budget, err := types.ParseAmount(body.MaxBudget)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "maxBudget: "+err.Error())
		return
	}
	requirements, ok := body.Requirements.toRequirements(w)
	if !ok {
		return
	}
	it, err := s.engine.CreateIntent(intent.CreateRequest{
		IntentType:       body.IntentType,
		Category:         body.Category,
		Params:           body.Params,
		MaxBudget:        budget,
		Currency:         body.Currency,
		Requirements:     requirements,
		BiddingDuration:  body.BiddingWindowMs,
		ExecutionTimeout: body.ExecutionTimeoutMs,
	}, client)
	if err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewIntent(it))
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "intent engine not configured")
		return
	}
	it, ok := s.engine.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "intent not found")
		return
	}
	writeJSON(w, http.StatusOK, viewIntent(it))
}

type submitBidBody struct {
	Provider        string   `json:"provider"`
	ProviderID      string   `json:"providerId,omitempty"`
	Amount          string   `json:"amount"`
	EstimatedTimeMs int64    `json:"estimatedTimeMs,omitempty"`
	Confidence      float64  `json:"confidence,omitempty"`
	Reputation      float64  `json:"reputation,omitempty"`
	TEEAttested     bool     `json:"teeAttested,omitempty"`
	Capabilities    []string `json:"capabilities,omitempty"`
}

type bidView struct {
	ID              string   `json:"id"`
	IntentID        string   `json:"intentId"`
	Provider        string   `json:"provider"`
	ProviderID      string   `json:"providerId,omitempty"`
	Amount          string   `json:"amount"`
	EstimatedTimeMs int64    `json:"estimatedTimeMs"`
	Confidence      float64  `json:"confidence"`
	Reputation      float64  `json:"reputation"`
	TEEAttested     bool     `json:"teeAttested"`
	Capabilities    []string `json:"capabilities,omitempty"`
	Score           int64    `json:"score"`
	Rank            int      `json:"rank"`
	Status          string   `json:"status"`
	SubmittedAt     int64    `json:"submittedAt"`
}

func viewBid(b *intent.Bid) bidView {
	return bidView{
		ID:              b.ID,
		IntentID:        b.IntentID,
		Provider:        b.Provider.String(),
		ProviderID:      b.ProviderID,
		Amount:          types.FormatAmount(b.Amount),
		EstimatedTimeMs: b.EstimatedTimeMs,
		Confidence:      b.Confidence,
		Reputation:      b.Reputation,
		TEEAttested:     b.TEEAttested,
		Capabilities:    b.Capabilities,
		Score:           int64(b.Score),
		Rank:            b.Rank,
		Status:          b.Status.String(),
		SubmittedAt:     b.SubmittedAt,
	}
}

func (s *Server) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "intent engine not configured")
		return
	}
	var body submitBidBody
	if !decodeBody(w, r, &body) {
		return
	}
	provider, ok := parseAddressField(w, "provider", body.Provider)
	if !ok {
		return
	}
	amount, err := types.ParseAmount(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "amount: "+err.Error())
		return
	}
	bid, err := s.engine.SubmitBid(intent.BidSubmission{
		IntentID:        chi.URLParam(r, "id"),
		Provider:        provider,
		ProviderID:      body.ProviderID,
		Amount:          amount,
		EstimatedTimeMs: body.EstimatedTimeMs,
		Confidence:      body.Confidence,
		Reputation:      body.Reputation,
		TEEAttested:     body.TEEAttested,
		Capabilities:    body.Capabilities,
	})
	if err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewBid(bid))
}

func (s *Server) handleListBids(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "intent engine not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := s.engine.Get(id); !ok {
		writeError(w, http.StatusNotFound, "not_found", "intent not found")
		return
	}
	bids := s.engine.BidsForIntent(id)
	views := make([]bidView, 0, len(bids))
	for _, b := range bids {
		views = append(views, viewBid(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": views})
}

type startExecutionBody struct {
	Provider string `json:"provider"`
}

func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "intent engine not configured")
		return
	}
	var body startExecutionBody
	if !decodeBody(w, r, &body) {
		return
	}
	provider, ok := parseAddressField(w, "provider", body.Provider)
	if !ok {
		return
	}
	if err := s.engine.MarkExecutionStarted(chi.URLParam(r, "id"), provider); err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "executing"})
}

type submitResultBody struct {
	Provider        string         `json:"provider"`
	ProviderID      string         `json:"providerId,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	ExecutionTimeMs int64          `json:"executionTimeMs,omitempty"`
}

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "intent engine not configured")
		return
	}
	var body submitResultBody
	if !decodeBody(w, r, &body) {
		return
	}
	provider, ok := parseAddressField(w, "provider", body.Provider)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.engine.SubmitResult(id, intent.ResultSubmission{
		Provider:        provider,
		ProviderID:      body.ProviderID,
		Payload:         body.Payload,
		ExecutionTimeMs: body.ExecutionTimeMs,
	}); err != nil {
		writeComponentError(w, err)
		return
	}
	it, ok := s.engine.Get(id)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
		return
	}
	writeJSON(w, http.StatusOK, viewIntent(it))
}

type recordPaymentBody struct {
	Amount string `json:"amount"`
	TxID   string `json:"txId"`
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "intent engine not configured")
		return
	}
	var body recordPaymentBody
	if !decodeBody(w, r, &body) {
		return
	}
	amount, err := types.ParseAmount(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "amount: "+err.Error())
		return
	}
	if err := s.engine.RecordPayment(chi.URLParam(r, "id"), amount, body.TxID); err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

type cancelIntentBody struct {
	Client string `json:"client"`
}

func (s *Server) handleCancelIntent(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "intent engine not configured")
		return
	}
	var body cancelIntentBody
	if !decodeBody(w, r, &body) {
		return
	}
	client, ok := parseAddressField(w, "client", body.Client)
	if !ok {
		return
	}
	if err := s.engine.CancelIntent(chi.URLParam(r, "id"), client); err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type openDisputeBody struct {
	IntentID      string         `json:"intentId"`
	EscrowID      string         `json:"escrowId"`
	Client        string         `json:"client"`
	Provider      string         `json:"provider"`
	Reason        string         `json:"reason"`
	Description   string         `json:"description,omitempty"`
	IntentType    string         `json:"intentType,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	ProvidedValue any            `json:"providedValue,omitempty"`
	ExpectedValue any            `json:"expectedValue,omitempty"`
}

type resolutionView struct {
	Verdict              string `json:"verdict"`
	ClientRefundBps      uint32 `json:"clientRefundBps"`
	ProviderPaymentBps   uint32 `json:"providerPaymentBps"`
	SlashBps             uint32 `json:"slashBps"`
	ReputationPenaltyBps uint32 `json:"reputationPenaltyBps"`
	Explanation          string `json:"explanation,omitempty"`
}

type evidenceView struct {
	ID        string `json:"id"`
	Submitter string `json:"submitter"`
	Kind      string `json:"kind"`
	Digest    string `json:"digest"`
	Timestamp int64  `json:"timestamp"`
}

type disputeView struct {
	ID         string          `json:"id"`
	IntentID   string          `json:"intentId"`
	EscrowID   string          `json:"escrowId"`
	Client     string          `json:"client"`
	Provider   string          `json:"provider"`
	Reason     string          `json:"reason"`
	Status     string          `json:"status"`
	Deviation  float64         `json:"deviation"`
	Evidence   []evidenceView  `json:"evidence,omitempty"`
	Resolution *resolutionView `json:"resolution,omitempty"`
	SlashTxID  string          `json:"slashTxId,omitempty"`
	CreatedAt  int64           `json:"createdAt"`
	ResolvedAt int64           `json:"resolvedAt,omitempty"`
}

func viewDispute(d *dispute.Dispute) disputeView {
	view := disputeView{
		ID:         d.ID,
		IntentID:   d.IntentID,
		EscrowID:   d.EscrowID,
		Client:     d.Client.String(),
		Provider:   d.Provider.String(),
		Reason:     string(d.Reason),
		Status:     d.Status.String(),
		Deviation:  d.Deviation,
		CreatedAt:  d.CreatedAt,
		ResolvedAt: d.ResolvedAt,
	}
	for _, ev := range d.Evidence {
		view.Evidence = append(view.Evidence, evidenceView{
			ID:        ev.ID,
			Submitter: string(ev.Submitter),
			Kind:      ev.Kind,
			Digest:    ev.Digest,
			Timestamp: ev.Timestamp,
		})
	}
	if d.Resolution != nil {
		view.Resolution = &resolutionView{
			Verdict:              string(d.Resolution.Verdict),
			ClientRefundBps:      d.Resolution.ClientRefundBps,
			ProviderPaymentBps:   d.Resolution.ProviderPaymentBps,
			SlashBps:             d.Resolution.SlashBps,
			ReputationPenaltyBps: d.Resolution.ReputationPenaltyBps,
			Explanation:          d.Resolution.Explanation,
		}
	}
	if d.Slashing != nil {
		view.SlashTxID = d.Slashing.TxID
	}
	return view
}

func (s *Server) handleOpenDispute(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "dispute resolver not configured")
		return
	}
	var body openDisputeBody
	if !decodeBody(w, r, &body) {
		return
	}
	client, ok := parseAddressField(w, "client", body.Client)
	if !ok {
		return
	}
	provider, ok := parseAddressField(w, "provider", body.Provider)
	if !ok {
		return
	}
	d, err := s.resolver.Open(r.Context(), dispute.OpenRequest{
		IntentID:      body.IntentID,
		EscrowID:      body.EscrowID,
		Client:        client,
		Provider:      provider,
		Reason:        dispute.Reason(body.Reason),
		Description:   body.Description,
		IntentType:    body.IntentType,
		Params:        body.Params,
		ProvidedValue: body.ProvidedValue,
		ExpectedValue: body.ExpectedValue,
	})
	if err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewDispute(d))
}

func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "dispute resolver not configured")
		return
	}
	d, ok := s.resolver.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "dispute not found")
		return
	}
	writeJSON(w, http.StatusOK, viewDispute(d))
}

type safetyCheckBody struct {
	ID        string `json:"id,omitempty"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Resource  string `json:"resource,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type safetyCheckView struct {
	Allowed              bool     `json:"allowed"`
	Reason               string   `json:"reason,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
	RiskScore            float64  `json:"riskScore"`
	Recommendations      []string `json:"recommendations,omitempty"`
	RequiresConfirmation bool     `json:"requiresConfirmation"`
	DelayMs              int64    `json:"delayMs"`
}

func (s *Server) handleSafetyCheck(w http.ResponseWriter, r *http.Request) {
	if s.safety == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "safety protocol not configured")
		return
	}
	var body safetyCheckBody
	if !decodeBody(w, r, &body) {
		return
	}
	sender, ok := parseAddressField(w, "sender", body.Sender)
	if !ok {
		return
	}
	recipient, ok := parseAddressField(w, "recipient", body.Recipient)
	if !ok {
		return
	}
	amount, err := types.ParseAmount(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "amount: "+err.Error())
		return
	}
	result := s.safety.CheckPayment(safety.Transaction{
		ID:        body.ID,
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Resource:  body.Resource,
		SessionID: body.SessionID,
	})
	writeJSON(w, http.StatusOK, safetyCheckView{
		Allowed:              result.Allowed,
		Reason:               result.Reason,
		Warnings:             result.Warnings,
		RiskScore:            result.RiskScore,
		Recommendations:      result.Recommendations,
		RequiresConfirmation: result.RequiresConfirmation,
		DelayMs:              result.DelayMs,
	})
}

type safetyOutcomeBody struct {
	Success bool `json:"success"`
}

func (s *Server) handleSafetyOutcome(w http.ResponseWriter, r *http.Request) {
	if s.safety == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "safety protocol not configured")
		return
	}
	var body safetyOutcomeBody
	if !decodeBody(w, r, &body) {
		return
	}
	s.safety.RecordOutcome(body.Success)
	writeJSON(w, http.StatusOK, map[string]string{"circuitState": s.safety.BreakerState().String()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{}
	if s.engine != nil {
		stats["intents"] = s.engine.Stats()
	}
	if s.resolver != nil {
		stats["disputes"] = s.resolver.Stats()
	}
	if s.safety != nil {
		stats["circuitState"] = s.safety.BreakerState().String()
	}
	writeJSON(w, http.StatusOK, stats)
}
