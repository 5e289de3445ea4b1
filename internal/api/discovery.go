package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/device"
)

// maxDiscoveryTimeout caps the listening window a client may request.
const maxDiscoveryTimeout = 60 * time.Second

// DiscoveryRequest is the optional body of POST /discovery.
type DiscoveryRequest struct {
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

// DiscoveredDevice is one entry of the discovery response.
type DiscoveredDevice struct {
	Topic string       `json:"topic"`
	State device.State `json:"state"`

	// ManagedID is set when the topic belongs to a configured device.
	ManagedID string `json:"managed_id,omitempty"`
}

// handleDiscovery listens for device announcements for the requested
// window and reports what answered. The short-lived handles discovery
// returns are closed before responding.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	if s.discovery == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "discovery is not enabled")
		return
	}

	var req DiscoveryRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	timeout := s.discoveryTimeout
	if req.TimeoutMS < 0 {
		writeBadRequest(w, "timeout_ms must be positive")
		return
	}
	if req.TimeoutMS > 0 {
		timeout = min(time.Duration(req.TimeoutMS)*time.Millisecond, maxDiscoveryTimeout)
	}

	results, err := s.discovery.Discover(r.Context(), timeout)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]DiscoveredDevice, 0, len(results))
	for _, res := range results {
		d := DiscoveredDevice{Topic: res.Topic, State: res.State}
		if id, ok := s.devices.ManagesTopic(res.Topic); ok {
			d.ManagedID = id
		}
		out = append(out, d)
		if res.Device != nil {
			if err := res.Device.Close(); err != nil {
				s.logger.Debug("closing discovered device", "topic", res.Topic, "error", err)
			}
		}
	}

	s.logger.Info("discovery complete", "found", len(out), "timeout", timeout)
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": out,
		"count":   len(out),
	})
}

// decodeOptionalBody decodes a JSON body when one is present.
func decodeOptionalBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := newDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
