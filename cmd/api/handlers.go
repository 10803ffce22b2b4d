package main

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/domain/alert"
	"github.com/hostmaster-io/hostmaster/internal/domain/recommendation"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
	"github.com/hostmaster-io/hostmaster/internal/queue"
	"github.com/hostmaster-io/hostmaster/internal/services"
	"github.com/hostmaster-io/hostmaster/internal/vault"
)

const defaultScanIntervalMinutes = 1440

type handlers struct {
	accounts        account.Repository
	recommendations recommendation.Repository
	alerts          alert.Repository
	scans           *services.ScanService
	costs           *services.CostService
	vault           *vault.Vault
	scanQueue       *queue.Queue
	alertQueue      *queue.Queue
	validate        *validator.Validate
	log             *logger.Logger
}

func newHandlers(
	accounts account.Repository,
	recommendations recommendation.Repository,
	alerts alert.Repository,
	scans *services.ScanService,
	costs *services.CostService,
	v *vault.Vault,
	scanQueue, alertQueue *queue.Queue,
	log *logger.Logger,
) *handlers {
	return &handlers{
		accounts:        accounts,
		recommendations: recommendations,
		alerts:          alerts,
		scans:           scans,
		costs:           costs,
		vault:           v,
		scanQueue:       scanQueue,
		alertQueue:      alertQueue,
		validate:        validator.New(),
		log:             log,
	}
}

func (h *handlers) routes(r chi.Router) {
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts/{id}", h.getAccount)
	r.Patch("/accounts/{id}/preferences", h.updatePreferences)
	r.Delete("/accounts/{id}", h.deactivateAccount)
	r.Post("/accounts/{id}/scans", h.requestScan)
	r.Get("/scans/{jobID}", h.scanStatus)
	r.Get("/costs", h.getCosts)
	r.Get("/recommendations", h.listRecommendations)
	r.Patch("/recommendations/{id}", h.updateRecommendation)
	r.Get("/alerts", h.listAlerts)
	r.Post("/alerts/{id}/read", h.markAlertRead)
	r.Get("/queues", h.queueCounts)
}

type createAccountRequest struct {
	UserID              int64   `json:"user_id" validate:"required,gt=0"`
	Region              string  `json:"region" validate:"required"`
	AccessKeyID         string  `json:"access_key_id" validate:"required"`
	SecretAccessKey     string  `json:"secret_access_key" validate:"required"`
	Budget              float64 `json:"budget" validate:"gte=0"`
	Tier                string  `json:"tier" validate:"omitempty,oneof=free professional enterprise"`
	Email               string  `json:"email" validate:"omitempty,email"`
	SlackWebhookURL     string  `json:"slack_webhook_url" validate:"omitempty,url"`
	PhoneNumber         string  `json:"phone_number"`
	AlertEmail          bool    `json:"alert_email"`
	AlertSlack          bool    `json:"alert_slack"`
	AlertSMS            bool    `json:"alert_sms"`
	ScanIntervalMinutes int     `json:"scan_interval_minutes" validate:"gte=0"`
}

func (h *handlers) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	accessSealed, err := h.vault.Seal(req.AccessKeyID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	secretSealed, err := h.vault.Seal(req.SecretAccessKey)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if req.Tier == "" {
		req.Tier = account.TierFree
	}
	if req.ScanIntervalMinutes == 0 {
		req.ScanIntervalMinutes = defaultScanIntervalMinutes
	}

	acct := &account.Account{
		UserID:              req.UserID,
		Region:              req.Region,
		AccessKeySealed:     accessSealed,
		SecretKeySealed:     secretSealed,
		Budget:              req.Budget,
		Tier:                req.Tier,
		AlertEmail:          req.AlertEmail,
		AlertSlack:          req.AlertSlack,
		AlertSMS:            req.AlertSMS,
		Email:               req.Email,
		SlackWebhookURL:     req.SlackWebhookURL,
		PhoneNumber:         req.PhoneNumber,
		ScanIntervalMinutes: req.ScanIntervalMinutes,
		IsActive:            true,
	}
	id, err := h.accounts.Create(r.Context(), acct)
	if err != nil {
		h.writeError(w, err)
		return
	}
	acct.ID = id

	h.writeJSON(w, http.StatusCreated, acct)
}

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, acct)
}

type preferencesRequest struct {
	Budget              *float64 `json:"budget" validate:"omitempty,gte=0"`
	Tier                *string  `json:"tier" validate:"omitempty,oneof=free professional enterprise"`
	Email               *string  `json:"email" validate:"omitempty,email"`
	SlackWebhookURL     *string  `json:"slack_webhook_url" validate:"omitempty,url"`
	PhoneNumber         *string  `json:"phone_number"`
	AlertEmail          *bool    `json:"alert_email"`
	AlertSlack          *bool    `json:"alert_slack"`
	AlertSMS            *bool    `json:"alert_sms"`
	ScanIntervalMinutes *int     `json:"scan_interval_minutes" validate:"omitempty,gte=0"`
}

func (h *handlers) updatePreferences(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}

	var req preferencesRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if req.Budget != nil {
		acct.Budget = *req.Budget
	}
	if req.Tier != nil {
		acct.Tier = *req.Tier
	}
	if req.Email != nil {
		acct.Email = *req.Email
	}
	if req.SlackWebhookURL != nil {
		acct.SlackWebhookURL = *req.SlackWebhookURL
	}
	if req.PhoneNumber != nil {
		acct.PhoneNumber = *req.PhoneNumber
	}
	if req.AlertEmail != nil {
		acct.AlertEmail = *req.AlertEmail
	}
	if req.AlertSlack != nil {
		acct.AlertSlack = *req.AlertSlack
	}
	if req.AlertSMS != nil {
		acct.AlertSMS = *req.AlertSMS
	}
	if req.ScanIntervalMinutes != nil {
		acct.ScanIntervalMinutes = *req.ScanIntervalMinutes
	}

	if err := h.accounts.UpdatePreferences(r.Context(), acct); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, acct)
}

func (h *handlers) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Deactivate(r.Context(), acct.ID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *handlers) requestScan(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.scans.RequestScan(r.Context(), userID, accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, job)
}

func (h *handlers) scanStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	job, err := h.scans.JobStatus(r.Context(), userID, chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *handlers) getCosts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.costs.GetMonthlyCost(r.Context(), userID, r.URL.Query().Get("month"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot": snapshot,
		"forecast": h.costs.Forecast(snapshot.TotalCost),
	})
}

func (h *handlers) listRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	pending, err := h.recommendations.ListPending(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	savings, err := h.recommendations.TotalSavings(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": pending,
		"total_savings":   savings,
	})
}

type recommendationStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=dismissed applied"`
}

func (h *handlers) updateRecommendation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req recommendationStatusRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.recommendations.UpdateStatus(r.Context(), userID, id, req.Status); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *handlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	unread, err := h.alerts.ListUnread(r.Context(), userID, 50)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, unread)
}

func (h *handlers) markAlertRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.alerts.MarkRead(r.Context(), userID, id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *handlers) queueCounts(w http.ResponseWriter, r *http.Request) {
	scanCounts, err := h.scanQueue.Counts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	alertCounts, err := h.alertQueue.Counts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		services.ScanQueueName:  scanCounts,
		services.AlertQueueName: alertCounts,
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ownedAccount loads the {id} account and enforces ownership by the
// calling user. Foreign accounts read as not found.
func (h *handlers) ownedAccount(w http.ResponseWriter, r *http.Request) (*account.Account, bool) {
	userID, ok := h.userID(w, r)
	if !ok {
		return nil, false
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return nil, false
	}

	acct, err := h.accounts.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	if acct.UserID != userID {
		h.writeError(w, errors.NotFound("account"))
		return nil, false
	}
	return acct, true
}

func (h *handlers) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, errors.ValidationError("missing or invalid X-User-ID header", nil))
		return 0, false
	}
	return id, true
}

func (h *handlers) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, errors.ValidationError("invalid id in path", nil))
		return 0, false
	}
	return id, true
}

func (h *handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		h.writeError(w, errors.ValidationError("invalid request body", err.Error()))
		return false
	}
	if err := h.validate.Struct(out); err != nil {
		h.writeError(w, errors.ValidationError("request validation failed", err.Error()))
		return false
	}
	return true
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.ErrorWithErr(err, "failed to encode response")
	}
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.Code(err) {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeValidation:
		status = http.StatusBadRequest
	}

	var ae *errors.AppError
	if !stderrors.As(err, &ae) {
		ae = errors.Internal("internal error", err)
	}
	if status == http.StatusInternalServerError {
		h.log.ErrorWithErr(err, "request failed")
	}
	h.writeJSON(w, status, map[string]interface{}{"error": ae})
}
