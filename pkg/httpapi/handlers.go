package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/icecake0141/nwrunner/pkg/importer"
	"github.com/icecake0141/nwrunner/pkg/models"
	"github.com/icecake0141/nwrunner/pkg/worker"
)

// writeJSON writes v as the JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a collaborator error to the status codes named in
// spec.md §6/§7 and writes an errorResponse body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrDisruptiveCommand):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrActiveJobConflict),
		errors.Is(err, models.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, models.ErrJobNotFound),
		errors.Is(err, models.ErrDeviceNotInInventory):
		status = http.StatusNotFound
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return errors.Join(models.ErrValidation, err)
	}

	return nil
}

// handleImportDevices parses an uploaded CSV body, validates connectivity
// with the configured validator, and replaces the live inventory with the
// reachable subset (spec.md §6).
func (s *Server) handleImportDevices(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errors.Join(models.ErrValidation, err))
		return
	}

	parsed, err := importer.Import(string(body))
	if err != nil {
		writeError(w, errors.Join(models.ErrValidation, err))
		return
	}

	valid := importer.Validate(r.Context(), parsed.Devices, s.Validator)
	s.Inventory.Replace(valid)

	writeJSON(w, http.StatusOK, map[string]any{
		"imported":    valid,
		"failed_rows": parsed.FailedRows,
	})
}

// handleRevalidateDevices re-checks connectivity for the current inventory
// without mutating it, per the SUPPLEMENTED FEATURES re-validation
// endpoint.
func (s *Server) handleRevalidateDevices(w http.ResponseWriter, r *http.Request) {
	current := s.Inventory.List()
	refreshed := importer.Revalidate(r.Context(), current, s.Validator)

	writeJSON(w, http.StatusOK, refreshed)
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Inventory.List())
}

// handleStatusCommand runs a read-only exec command against a device
// outside of any job, rejecting disruptive patterns (spec.md §6).
func (s *Server) handleStatusCommand(w http.ResponseWriter, r *http.Request) {
	var req statusCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if offending, pattern, bad := importer.CheckDisruptive(req.Commands); bad {
		writeError(w, errors.Join(models.ErrDisruptiveCommand,
			errors.New("command \""+offending+"\" matches disruptive pattern \""+pattern+"\"")))

		return
	}

	target := req.Device.toModel()

	profile, ok := s.Inventory.Get(target.DeviceKey())
	if !ok {
		writeError(w, errors.Join(models.ErrDeviceNotInInventory, errors.New(target.DeviceKey())))
		return
	}

	ctx := r.Context()

	timeout := s.StatusCommandTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := models.SnapshotDeviceParams(profile, nil)

	result := s.Worker.Run(ctx, worker.Request{
		Device:                 target,
		Params:                 params,
		Commands:               req.Commands,
		IsCanary:               true,
		RetryOnConnectionError: false,
		Control:                s.newControl(),
	})

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if len(req.Commands) == 0 {
		writeError(w, errors.Join(models.ErrValidation, errors.New("commands must be non-empty")))
		return
	}

	mode := models.VerifyMode(req.VerifyMode)
	if mode == "" {
		mode = models.VerifyNone
	}

	if mode != models.VerifyNone && mode != models.VerifyCanary && mode != models.VerifyAll {
		writeError(w, errors.Join(models.ErrValidation, errors.New("unknown verify_mode: "+req.VerifyMode)))
		return
	}

	create := req.toJobCreate()
	create.VerifyMode = mode

	if create.ConcurrencyLimit <= 0 {
		create.ConcurrencyLimit = 1
	}

	rec, err := s.Registry.Create(create)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.NATSMirror != nil {
		s.Bus.Subscribe(rec.JobID, 0, s.NATSMirror)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"job_id": rec.JobID,
		"status": rec.Status,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.List())
}

func (s *Server) handleActiveJob(w http.ResponseWriter, _ *http.Request) {
	rec := s.Registry.Active()
	if rec == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleRunJob launches (or synchronously runs) the engine against an
// already-created job, per spec.md §6's run_job/run_job_async split.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	var req runJobRequest

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errors.Join(models.ErrValidation, err))
		return
	}

	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, errors.Join(models.ErrValidation, err))
			return
		}
	}

	runSpec := req.toRunSpec()
	if runSpec.ConcurrencyLimit <= 0 {
		runSpec.ConcurrencyLimit = 1
	}

	if req.Async {
		started := s.Coordinator.RunAsync(jobID, runSpec)
		if !started {
			writeError(w, errors.Join(models.ErrActiveJobConflict, errors.New("job already has an active runner")))
			return
		}

		rec, err := s.Registry.Get(jobID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, rec)

		return
	}

	if err := s.Coordinator.RunSync(r.Context(), jobID, runSpec); err != nil {
		writeError(w, err)
		return
	}

	rec, err := s.Registry.Get(jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Coordinator.Pause(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Coordinator.Resume(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Coordinator.Cancel(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleEvents serves a cursor read of buffered events (GET .../events) and,
// when the request is a WebSocket upgrade, a live event stream that
// terminates after delivering the job's job_complete event (spec.md §6).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	start := 0
	if raw := r.URL.Query().Get("start_index"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			start = v
		}
	}

	if isWebSocketUpgrade(r) {
		s.serveEventStream(w, r, jobID, start)
		return
	}

	writeJSON(w, http.StatusOK, s.Bus.List(jobID, start))
}

func isWebSocketUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") == "websocket"
}
