// Package httpapi is the HTTP/WS surface of nwrunner (spec.md §6): job
// CRUD/control endpoints, device import, status_command, and a WebSocket
// event stream, adapted from the teacher's pkg/core/api (WS writer/reader
// split) and pkg/http (CORS/API-key middleware).
package httpapi

import (
	"net/http"
	"time"

	"github.com/icecake0141/nwrunner/pkg/control"
	"github.com/icecake0141/nwrunner/pkg/engine"
	"github.com/icecake0141/nwrunner/pkg/eventbus"
	"github.com/icecake0141/nwrunner/pkg/importer"
	"github.com/icecake0141/nwrunner/pkg/logger"
	"github.com/icecake0141/nwrunner/pkg/registry"
	"github.com/icecake0141/nwrunner/pkg/worker"
)

// CORSConfig controls which Origins the server accepts cross-origin and
// WebSocket requests from, mirroring the teacher's models.CORSConfig.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

// Server holds every dependency the HTTP handlers need. Nothing here is a
// package-level singleton; main wires one Server per process.
type Server struct {
	Registry    *registry.JobRegistry
	Inventory   *registry.DeviceInventory
	Bus         *eventbus.Bus
	Coordinator *engine.RunCoordinator
	Worker      worker.DeviceWorker
	Validator   importer.ConnectionValidator
	Log         logger.Logger
	APIKey      string
	CORS        CORSConfig

	// NATSMirror, when non-nil, is subscribed to every newly created job's
	// event stream so collaborators outside the WS surface can follow it
	// over NATS (SPEC_FULL DOMAIN STACK). Left nil disables mirroring.
	NATSMirror *eventbus.NATSMirror

	// StatusCommandTimeout bounds a single status_command exec call.
	StatusCommandTimeout time.Duration
}

// NewHandler builds the full routed, middleware-wrapped http.Handler.
func (s *Server) NewHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /devices/import", s.handleImportDevices)
	mux.HandleFunc("POST /devices/revalidate", s.handleRevalidateDevices)
	mux.HandleFunc("GET /devices", s.handleListDevices)
	mux.HandleFunc("POST /devices/status_command", s.handleStatusCommand)

	mux.HandleFunc("POST /jobs", s.handleCreateJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/active", s.handleActiveJob)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /jobs/{id}/run", s.handleRunJob)
	mux.HandleFunc("POST /jobs/{id}/pause", s.handlePauseJob)
	mux.HandleFunc("POST /jobs/{id}/resume", s.handleResumeJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("GET /jobs/{id}/events", s.handleEvents)

	var handler http.Handler = mux
	handler = s.apiKeyMiddleware(handler)
	handler = s.corsMiddleware(handler)

	return handler
}

func (s *Server) logger() logger.Logger {
	if s.Log != nil {
		return s.Log
	}

	return logger.Nop()
}

// newControl is a small seam so tests can observe the exact Control a
// one-off status_command run uses; production always wants a fresh one.
func (*Server) newControl() *control.Control {
	return control.New()
}
