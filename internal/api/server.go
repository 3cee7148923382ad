// Package api serves the agent's HTTP surface. Handlers are readers
// only: every response is assembled from a store snapshot, never from
// registry or store mutation.
package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/mtcagent/internal/metrics"
	"github.com/snarg/mtcagent/internal/mtcxml"
	"github.com/snarg/mtcagent/internal/schema"
	"github.com/snarg/mtcagent/internal/store"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions wires the server to the registry and store.
type ServerOptions struct {
	Addr         string
	Registry     *schema.Registry
	Store        *store.Store
	Version      string
	InstanceID   int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Log          zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	sender, _ := os.Hostname()
	h := &agentHandler{
		reg:        opts.Registry,
		st:         opts.Store,
		sender:     sender,
		instanceID: opts.InstanceID,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(metrics.InstrumentHandler)

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeMTCError(w, h.header(), http.StatusBadRequest,
			"UNSUPPORTED", "only GET is supported")
	})

	r.Get("/probe", h.Probe)
	r.Get("/probe/{device}", h.Probe)
	r.Get("/current", h.Current)
	r.Get("/sample", h.Sample)
	r.Get("/assets", h.Assets)
	r.Get("/assets/{id}", h.AssetByID)
	r.Get("/healthz", NewHealthHandler(opts.Store, opts.Version, time.Now()).ServeHTTP)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return &Server{
		http: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
		log: opts.Log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}

// agentHandler holds the read-side dependencies of the MTConnect
// endpoints.
type agentHandler struct {
	reg        *schema.Registry
	st         *store.Store
	sender     string
	instanceID int64
}

// header snapshots the sequence window for a response header.
func (h *agentHandler) header() mtcxml.Header {
	first, last, next := h.st.Sequence()
	assetCount, assetCap := h.st.AssetStats()
	return mtcxml.Header{
		Sender:          h.sender,
		InstanceID:      h.instanceID,
		BufferSize:      h.st.BufferSize(),
		FirstSequence:   first,
		LastSequence:    last,
		NextSequence:    next,
		AssetBufferSize: assetCap,
		AssetCount:      assetCount,
	}
}
