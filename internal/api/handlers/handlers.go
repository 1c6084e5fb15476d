// Package handlers implements the HTTP handlers for the Skylink control
// plane. Every handler resolves its agent through the registry; the command
// pipeline runs interpret → validate → execute and persists the resulting
// report whatever its outcome.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/skylink-io/skylink/internal/agent"
	"github.com/skylink-io/skylink/internal/history"
	"github.com/skylink-io/skylink/internal/interpret"
	"github.com/skylink-io/skylink/internal/metrics"
	"github.com/skylink-io/skylink/internal/plan"
	"github.com/skylink-io/skylink/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Registry    *agent.Registry
	Validator   *plan.Validator
	Interpreter *interpret.Interpreter
	History     history.Store
	Metrics     *metrics.Metrics
}

// New creates a Handlers instance with all dependencies.
func New(reg *agent.Registry, val *plan.Validator, in *interpret.Interpreter, hist history.Store, m *metrics.Metrics) *Handlers {
	return &Handlers{
		Registry:    reg,
		Validator:   val,
		Interpreter: in,
		History:     hist,
		Metrics:     m,
	}
}

type initializeRequest struct {
	DroneID models.DroneID      `json:"drone_id"`
	Profile models.DroneProfile `json:"profile"`
}

// InitializeAgent creates the agent for a drone. Idempotent in effect only:
// a second initialize for the same drone is a 409 and leaves the original
// agent untouched.
func (h *Handlers) InitializeAgent(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DroneID == "" {
		respondError(w, http.StatusBadRequest, "drone_id is required")
		return
	}

	a, err := h.Registry.Initialize(r.Context(), req.DroneID, req.Profile)
	if err != nil {
		var exists *agent.AlreadyExistsError
		if errors.As(err, &exists) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, a.Record())
}

// ListAgents returns every registered agent, ordered by drone id.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Registry.List())
}

// GetAgent returns one agent's record together with live telemetry.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}

	resp := struct {
		models.AgentRecord
		Telemetry *models.Telemetry `json:"telemetry,omitempty"`
	}{AgentRecord: a.Record()}

	if tel, err := a.Telemetry(r.Context()); err == nil {
		resp.Telemetry = &tel
	} else {
		log.Warn().Err(err).Str("drone", string(a.ID())).Msg("telemetry read failed")
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetTelemetry returns a fresh telemetry snapshot.
func (h *Handlers) GetTelemetry(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}
	tel, err := a.Telemetry(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, tel)
}

type commandRequest struct {
	Command string `json:"command"`
}

// ExecuteCommand runs the full pipeline for one natural-language command.
// Interpretation and validation failures reject the command before any
// drone interaction; the rejection is still recorded as a report.
func (h *Handlers) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Command == "" {
		respondError(w, http.StatusBadRequest, "command is required")
		return
	}

	ctx := r.Context()

	tel, err := a.Telemetry(ctx)
	if err != nil {
		respondError(w, http.StatusBadGateway, "telemetry read failed: "+err.Error())
		return
	}

	intents, err := h.Interpreter.Interpret(ctx, req.Command, tel)
	if err != nil {
		h.rejectCommand(ctx, w, a, req.Command, err)
		return
	}

	pl, err := h.Validator.Validate(a.ID(), a.State(), a.Profile(), intents)
	if err != nil {
		h.rejectCommand(ctx, w, a, req.Command, err)
		return
	}

	report, err := a.Execute(ctx, req.Command, pl)
	if err != nil {
		if errors.Is(err, agent.ErrAgentBusy) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	h.saveReport(ctx, report)
	respondJSON(w, http.StatusOK, report)
}

// rejectCommand records and returns a rejected report: no drone
// interaction has happened, so there are no step outcomes.
func (h *Handlers) rejectCommand(ctx context.Context, w http.ResponseWriter, a *agent.Agent, command string, cause error) {
	report := &models.ExecutionReport{
		ID:         uuid.New().String(),
		DroneID:    a.ID(),
		Command:    command,
		Status:     models.ReportRejected,
		Error:      cause.Error(),
		FinalState: a.State(),
		StartedAt:  time.Now().UTC(),
	}
	h.Metrics.ObserveCommand(string(models.ReportRejected))
	h.saveReport(ctx, report)
	respondJSON(w, http.StatusUnprocessableEntity, report)
}

func (h *Handlers) saveReport(ctx context.Context, report *models.ExecutionReport) {
	if err := h.History.Save(ctx, report); err != nil {
		log.Error().Err(err).Str("report", report.ID).Msg("report save failed")
	}
}

// CancelCommand aborts the agent's in-flight command.
func (h *Handlers) CancelCommand(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}
	if err := a.Cancel(); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"drone_id": string(a.ID()),
		"status":   "cancelling",
	})
}

// ListReports returns execution reports newest-first, optionally filtered
// by drone_id, capped by limit.
func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	droneID := models.DroneID(r.URL.Query().Get("drone_id"))
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	reports, err := h.History.List(r.Context(), droneID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reports == nil {
		reports = []models.ExecutionReport{}
	}
	respondJSON(w, http.StatusOK, reports)
}

// GetReport returns a single execution report by id.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.History.Get(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		if errors.Is(err, history.ErrReportNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// agent resolves the droneID path parameter, writing a 404 on miss.
func (h *Handlers) agent(w http.ResponseWriter, r *http.Request) (*agent.Agent, bool) {
	id := models.DroneID(chi.URLParam(r, "droneID"))
	a, err := h.Registry.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return a, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
