// Package api exposes HTTP handlers for calendar sync.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SierraArcega/territory-plan-sub002/internal/auth"
	"github.com/SierraArcega/territory-plan-sub002/internal/confirmation"
	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
	"github.com/SierraArcega/territory-plan-sub002/internal/inbox"
	"github.com/SierraArcega/territory-plan-sub002/internal/persistence"
	"github.com/SierraArcega/territory-plan-sub002/internal/syncer"
)

// Handler coordinates HTTP requests with the calendar sync services.
type Handler struct {
	conns   domain.ConnectionStore
	syncer  *syncer.Orchestrator
	confirm *confirmation.Service
	inbox   *inbox.Service
	logger  *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(conns domain.ConnectionStore, orchestrator *syncer.Orchestrator, confirm *confirmation.Service, inboxService *inbox.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		conns:   conns,
		syncer:  orchestrator,
		confirm: confirm,
		inbox:   inboxService,
		logger:  logger,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/calendar/status", h.status)
	mux.HandleFunc("/v1/calendar/connection", h.connection)
	mux.HandleFunc("/v1/calendar/connections/", h.connectionByID)
	mux.HandleFunc("/v1/calendar/events", h.listEvents)
	mux.HandleFunc("/v1/calendar/events/", h.eventByID)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeCalendarRead)
	if !ok {
		return
	}

	status, err := h.inbox.Status(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := StatusResponse{Connected: status.Connected, PendingCount: status.PendingCount}
	if status.Connection != nil {
		view := toConnectionView(*status.Connection)
		resp.Connection = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) connection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.connect(w, r)
	case http.MethodPatch:
		h.updateSettings(w, r)
	case http.MethodDelete:
		h.disconnect(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeCalendarWrite)
	if !ok {
		return
	}

	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	conn := domain.CalendarConnection{
		ID:          uuid.NewString(),
		UserID:      claims.Subject,
		Provider:    req.Provider,
		AccountRef:  strings.TrimSpace(req.AccountRef),
		OrgDomain:   strings.TrimSpace(req.OrgDomain),
		SyncEnabled: req.SyncEnabled == nil || *req.SyncEnabled,
		Status:      domain.ConnectionStatusConnected,
	}
	existing, err := h.conns.GetConnectionByUser(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	// A user keeps one connection id; staged events are keyed by it.
	moved := false
	if existing != nil {
		conn.ID = existing.ID
		conn.CreatedAt = existing.CreatedAt
		if existing.Provider == conn.Provider && existing.AccountRef == conn.AccountRef {
			conn.LastSyncAt = existing.LastSyncAt
		} else {
			moved = true
		}
	}

	if err := h.conns.SaveConnection(r.Context(), conn); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if moved {
		retired, err := h.syncer.RetirePending(r.Context(), conn.ID)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.logger.Info("calendar account changed, pending events retired",
			zap.String("connection_id", conn.ID),
			zap.Int("retired", retired),
		)
	}
	saved, err := h.conns.GetConnectionByUser(r.Context(), claims.Subject)
	if err != nil || saved == nil {
		h.writeDomainError(w, errors.Join(domain.ErrConnectionNotFound, err))
		return
	}

	h.logger.Info("calendar connected", zap.String("user_id", claims.Subject), zap.String("connection_id", saved.ID), zap.String("provider", saved.Provider))
	writeJSON(w, http.StatusOK, toConnectionView(*saved))
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeCalendarWrite)
	if !ok {
		return
	}

	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.SyncEnabled == nil && req.OrgDomain == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "sync_enabled or org_domain is required")
		return
	}

	conn, err := h.conns.UpdateConnectionSettings(r.Context(), claims.Subject, domain.ConnectionSettings{
		SyncEnabled: req.SyncEnabled,
		OrgDomain:   req.OrgDomain,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConnectionView(*conn))
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeCalendarWrite)
	if !ok {
		return
	}
	if err := h.conns.DeleteConnection(r.Context(), claims.Subject); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.logger.Info("calendar disconnected", zap.String("user_id", claims.Subject))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) connectionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/calendar/connections/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || action != "sync" {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeCalendarWrite)
	if !ok {
		return
	}

	conn, err := h.conns.GetConnection(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if conn == nil || conn.UserID != claims.Subject {
		writeError(w, http.StatusNotFound, "not_found", "calendar connection not found")
		return
	}

	result, err := h.syncer.Sync(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeCalendarRead)
	if !ok {
		return
	}

	query := r.URL.Query()
	var q inbox.Query
	if raw := query.Get("status"); raw != "" {
		status, err := domain.ParseEventStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		q.Status = &status
	}
	if raw := query.Get("confidence"); raw != "" {
		confidence := domain.Confidence(strings.ToLower(raw))
		switch confidence {
		case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow, domain.ConfidenceNone:
			q.Confidence = &confidence
		default:
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid confidence")
			return
		}
	}
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			q.Limit = parsed
		}
	}
	cursor, err := persistence.DecodeCursor(query.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}
	q.Cursor = cursor

	page, err := h.inbox.Events(r.Context(), claims.Subject, q)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]EventView, 0, len(page.Events))
	for _, event := range page.Events {
		items = append(items, toEventView(event))
	}
	writeJSON(w, http.StatusOK, ListEventsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(page.Next),
	})
}

func (h *Handler) eventByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/calendar/events/")
	if rest == "batch-confirm" {
		h.batchConfirm(w, r)
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing event id")
		return
	}
	switch action {
	case "confirm":
		h.confirmEvent(w, r, id)
	case "dismiss":
		h.dismissEvent(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (h *Handler) confirmEvent(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeCalendarWrite)
	if !ok {
		return
	}

	var overrides *confirmation.Overrides
	if r.ContentLength != 0 {
		var req confirmation.Overrides
		switch err := json.NewDecoder(r.Body).Decode(&req); {
		case err == nil:
			overrides = &req
		case errors.Is(err, io.EOF):
		default:
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	activityID, err := h.confirm.Confirm(r.Context(), claims.Subject, id, overrides)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ConfirmResponse{ActivityID: activityID})
}

func (h *Handler) dismissEvent(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeCalendarWrite)
	if !ok {
		return
	}

	if err := h.confirm.Dismiss(r.Context(), claims.Subject, id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) batchConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeCalendarWrite)
	if !ok {
		return
	}

	result, err := h.confirm.BatchConfirmHighConfidence(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// authorize loads the caller's claims and checks the scope.
func authorize(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.Allows(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrConnectionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync_in_progress", err.Error())
	case errors.Is(err, domain.ErrNotConnected):
		writeError(w, http.StatusPreconditionFailed, "not_connected", err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
