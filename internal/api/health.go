package api

import (
	"net/http"
	"time"

	"github.com/snarg/mtcagent/internal/store"
)

type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	FirstSequence int64  `json:"first_sequence"`
	LastSequence  int64  `json:"last_sequence"`
	NextSequence  int64  `json:"next_sequence"`
	AssetCount    int    `json:"asset_count"`
}

type HealthHandler struct {
	st        *store.Store
	version   string
	startTime time.Time
}

func NewHealthHandler(st *store.Store, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{st: st, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	first, last, next := h.st.Sequence()
	assetCount, _ := h.st.AssetStats()
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		FirstSequence: first,
		LastSequence:  last,
		NextSequence:  next,
		AssetCount:    assetCount,
	})
}
