package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/seenimoa/fidcsim/internal/inputs"
	"github.com/seenimoa/fidcsim/internal/scenario"
	"github.com/seenimoa/fidcsim/pkg/models"
	"github.com/seenimoa/fidcsim/pkg/utils"
)

// ============================================================
// Request / Response types
// ============================================================

// ValidationResult is the body of a successful POST /api/v1/validate.
type ValidationResult struct {
	Valid       bool                `json:"valid"`
	Name        string              `json:"name"`
	Fingerprint string              `json:"fingerprint"`
	Periods     int                 `json:"periods"`
	Start       string              `json:"start"`
	Maturity    string              `json:"maturity"`
	Classes     []models.QuotaClass `json:"classes"`
	Diagnostics []models.Diagnostic `json:"diagnostics,omitempty"`
}

// RunResponse is returned by POST /api/v1/runs and GET /api/v1/runs/{id}.
type RunResponse struct {
	ID     string         `json:"id"`
	Cached bool           `json:"cached"`
	Report *models.Report `json:"report"`
}

// ClassResponse is returned by GET /api/v1/runs/{id}/classes/{class}.
type ClassResponse struct {
	RunID string                `json:"run_id"`
	Class string                `json:"class"`
	KPI   models.ClassKPI       `json:"kpi"`
	Rows  []models.PeriodResult `json:"rows"`
}

// ScenarioRequest is the body of POST /api/v1/scenarios.
type ScenarioRequest struct {
	Bundle    json.RawMessage   `json:"bundle"`
	Scenarios []ScenarioVariant `json:"scenarios"`
}

// ScenarioVariant edits the bundle's assumptions for one scenario.
type ScenarioVariant struct {
	Name        string                `json:"name"`
	Assumptions inputs.AssumptionsDoc `json:"assumptions"`
}

// ScenarioResponse compares the scenarios of one bundle.
type ScenarioResponse struct {
	Bundle    string            `json:"bundle"`
	Scenarios []ScenarioSummary `json:"scenarios"`
	Rows      []scenario.Row    `json:"rows"`
}

// ScenarioSummary points at the stored run of one scenario.
type ScenarioSummary struct {
	Name  string          `json:"name"`
	RunID string          `json:"run_id,omitempty"`
	Error string          `json:"error,omitempty"`
	Fund  *models.FundKPI `json:"fund,omitempty"`
}

// RunCompleteEvent is broadcast over WebSocket for every new run.
type RunCompleteEvent struct {
	RunID       string `json:"run_id"`
	Bundle      string `json:"bundle"`
	Scenario    string `json:"scenario"`
	Periods     int    `json:"periods"`
	Breach      bool   `json:"breach"`
	Diagnostics int    `json:"diagnostics"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":     "ok",
			"version":    s.version,
			"store":      s.cfg.Store.Backend,
			"ws_clients": s.wsHub.ClientCount(),
			"date":       utils.FormatDate(utils.Today()),
		},
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	b, ok := s.readBundle(w, r)
	if !ok {
		return
	}
	plan, err := s.sim.Prepare(b)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ValidationResult{
			Valid:       true,
			Name:        b.Name,
			Fingerprint: plan.Key,
			Periods:     plan.Timeline.Len(),
			Start:       utils.FormatDate(plan.Timeline.Start()),
			Maturity:    utils.FormatDate(plan.Timeline.Maturity()),
			Classes:     b.Structure.Ordered(),
			Diagnostics: plan.Projection.Diagnostics,
		},
	})
}

// handleCreateRun simulates a bundle. Runs are deterministic, so a stored
// run with the same key is returned unless ?fresh=true.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	b, ok := s.readBundle(w, r)
	if !ok {
		return
	}
	fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh"))
	if !fresh {
		if rep, err := s.store.Lookup(r.Context(), s.sim.Key(b)); err == nil {
			writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: RunResponse{ID: rep.Run.ID, Cached: true, Report: rep}})
			return
		}
	}

	rep, err := s.sim.Run(r.Context(), b)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.saveAndAnnounce(r, b.Name, rep)
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: RunResponse{ID: rep.Run.ID, Report: rep}})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: RunResponse{ID: rep.Run.ID, Cached: true, Report: rep}})
}

func (s *Server) handleGetRunClass(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	class := chi.URLParam(r, "class")
	k, ok := rep.KPIs.Class(class)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("class %q not in run %s", class, rep.Run.ID))
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ClassResponse{RunID: rep.Run.ID, Class: class, KPI: k, Rows: rep.Run.ClassResults(class)},
	})
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	var req ScenarioRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Bundle) == 0 {
		writeError(w, http.StatusBadRequest, "bundle is required")
		return
	}
	b, err := inputs.Parse(req.Bundle)
	if err != nil {
		writeFailure(w, err)
		return
	}

	names := make([]string, len(req.Scenarios))
	docs := make([]*inputs.AssumptionsDoc, len(req.Scenarios))
	for i := range req.Scenarios {
		names[i] = req.Scenarios[i].Name
		docs[i] = &req.Scenarios[i].Assumptions
	}
	variants, err := scenario.FromOverrides(b.Assumptions, names, docs)
	if err != nil {
		writeFailure(w, err)
		return
	}
	outcomes, err := s.runner.Run(r.Context(), b, variants)
	if err != nil {
		writeFailure(w, err)
		return
	}

	resp := ScenarioResponse{Bundle: b.Name, Rows: scenario.Compare(outcomes)}
	for _, o := range outcomes {
		sum := ScenarioSummary{Name: o.Name, Error: o.Error}
		if o.Report != nil {
			s.saveAndAnnounce(r, b.Name, o.Report)
			fund := o.Report.KPIs.Fund
			sum.RunID, sum.Fund = o.Report.Run.ID, &fund
		}
		resp.Scenarios = append(resp.Scenarios, sum)
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

// ============================================================
// Helpers
// ============================================================

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := io.Reader(r.Body)
	if s.cfg.API.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.API.MaxBodyBytes)
	}
	return json.NewDecoder(body).Decode(v)
}

func (s *Server) readBundle(w http.ResponseWriter, r *http.Request) (*inputs.Bundle, bool) {
	var doc inputs.Document
	if err := s.decode(w, r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	b, err := inputs.Build(&doc)
	if err != nil {
		writeFailure(w, err)
		return nil, false
	}
	return b, true
}

// saveAndAnnounce stores a report and tells WebSocket clients about it. A
// store failure is logged; the caller still gets the report.
func (s *Server) saveAndAnnounce(r *http.Request, bundle string, rep *models.Report) {
	if err := s.store.Save(r.Context(), rep); err != nil {
		s.logger.Error("failed to store run", zap.String("run_id", rep.Run.ID), zap.Error(err))
	}
	s.wsHub.Broadcast(WSMessage{
		Type: "run_complete",
		Data: RunCompleteEvent{
			RunID:       rep.Run.ID,
			Bundle:      bundle,
			Scenario:    rep.Run.Scenario,
			Periods:     rep.Run.PeriodsSimulated(),
			Breach:      rep.KPIs.Fund.Breach,
			Diagnostics: len(rep.Run.Diagnostics),
		},
	})
}
