package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/snarg/mtcagent/internal/mtcxml"
	"github.com/snarg/mtcagent/internal/schema"
	"github.com/snarg/mtcagent/internal/store"
)

const defaultSampleCount = 100

// Probe returns the device descriptions, optionally restricted to one
// device by name or uuid.
func (h *agentHandler) Probe(w http.ResponseWriter, r *http.Request) {
	uuids, ok := h.deviceScope(w, r)
	if !ok {
		return
	}

	devices := make([]*schema.Device, 0, len(uuids))
	for _, uuid := range uuids {
		if dev, ok := h.reg.Device(uuid); ok {
			devices = append(devices, dev)
		}
	}
	writeXML(w, http.StatusOK, mtcxml.Devices(h.header(), devices))
}

// Current returns the latest observation per dataitem. With at= the
// snapshot is taken at a historical sequence number.
func (h *agentHandler) Current(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.resolveIDs(w, r)
	if !ok {
		return
	}
	hdr := h.header()

	var observations []store.Observation
	if atParam := r.URL.Query().Get("at"); atParam != "" {
		at, err := strconv.ParseInt(atParam, 10, 64)
		if err != nil {
			writeMTCError(w, hdr, http.StatusBadRequest,
				"INVALID_REQUEST", fmt.Sprintf("at must be an integer, got %q", atParam))
			return
		}
		observations, err = h.st.CurrentAt(ids, at)
		if err != nil {
			writeMTCError(w, hdr, http.StatusBadRequest, "OUT_OF_RANGE", err.Error())
			return
		}
	} else {
		observations = h.currentObservations(ids)
	}
	writeXML(w, http.StatusOK, mtcxml.Streams(hdr, h.reg, observations))
}

// currentObservations expands condition dataitems into their active
// sets; everything else takes the plain current value.
func (h *agentHandler) currentObservations(ids []string) []store.Observation {
	out := make([]store.Observation, 0, len(ids))
	for _, id := range ids {
		if item, ok := h.reg.DataItem(id); ok && item.Category == schema.CategoryCondition {
			if active := h.st.ActiveConditions(id); len(active) > 0 {
				out = append(out, active...)
				continue
			}
		}
		out = append(out, h.st.Current([]string{id})...)
	}
	return out
}

// Sample returns observations from the history window.
func (h *agentHandler) Sample(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.resolveIDs(w, r)
	if !ok {
		return
	}
	hdr := h.header()

	if r.URL.Query().Get("interval") != "" {
		writeMTCError(w, hdr, http.StatusBadRequest,
			"UNSUPPORTED", "interval streaming is not supported")
		return
	}

	from := hdr.FirstSequence
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeMTCError(w, hdr, http.StatusBadRequest,
				"INVALID_REQUEST", fmt.Sprintf("from must be an integer, got %q", v))
			return
		}
		from = n
	}

	count := defaultSampleCount
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeMTCError(w, hdr, http.StatusBadRequest,
				"INVALID_REQUEST", fmt.Sprintf("count must be a positive integer, got %q", v))
			return
		}
		count = n
	}

	observations, err := h.st.Sample(ids, from, count)
	if err != nil {
		writeMTCError(w, hdr, http.StatusBadRequest, "OUT_OF_RANGE", err.Error())
		return
	}
	writeXML(w, http.StatusOK, mtcxml.Streams(hdr, h.reg, observations))
}

// Assets lists live assets, newest change first.
func (h *agentHandler) Assets(w http.ResponseWriter, r *http.Request) {
	hdr := h.header()

	count := 0
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeMTCError(w, hdr, http.StatusBadRequest,
				"INVALID_REQUEST", fmt.Sprintf("count must be a positive integer, got %q", v))
			return
		}
		count = n
	}

	assets := h.st.Assets(r.URL.Query().Get("type"), count)
	writeRawXML(w, http.StatusOK, mtcxml.Assets(hdr, assets))
}

// AssetByID returns one asset, including removed tombstones.
func (h *agentHandler) AssetByID(w http.ResponseWriter, r *http.Request) {
	hdr := h.header()
	id := chi.URLParam(r, "id")

	asset, ok := h.st.Asset(id)
	if !ok {
		writeMTCError(w, hdr, http.StatusNotFound,
			"ASSET_NOT_FOUND", fmt.Sprintf("asset %q is not known", id))
		return
	}
	writeRawXML(w, http.StatusOK, mtcxml.Assets(hdr, []*store.Asset{asset}))
}

// deviceScope narrows to one device when the request names one, either
// as a path segment or a query param. Writes the error response itself.
func (h *agentHandler) deviceScope(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	name := chi.URLParam(r, "device")
	if name == "" {
		name = r.URL.Query().Get("device")
	}
	if name == "" {
		return h.reg.DeviceUUIDs(), true
	}
	if uuid, ok := h.reg.DeviceUUID(name); ok {
		return []string{uuid}, true
	}
	if _, ok := h.reg.Device(name); ok {
		return []string{name}, true
	}
	writeMTCError(w, h.header(), http.StatusNotFound,
		"NO_DEVICE", fmt.Sprintf("device %q is not known", name))
	return nil, false
}

// resolveIDs applies the device scope and path filter to produce the
// dataitem id set for a streams request.
func (h *agentHandler) resolveIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	uuids, ok := h.deviceScope(w, r)
	if !ok {
		return nil, false
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		return h.reg.DataItemIDs(uuids), true
	}
	ids, err := h.reg.ResolvePath(path, uuids)
	if err != nil {
		if errors.Is(err, schema.ErrInvalidPath) {
			writeMTCError(w, h.header(), http.StatusBadRequest, "INVALID_XPATH", err.Error())
			return nil, false
		}
		writeMTCError(w, h.header(), http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return nil, false
	}
	return ids, true
}
