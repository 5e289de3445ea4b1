package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/device"
)

// PowerRequest is the body of POST /devices/{id}/power.
type PowerRequest struct {
	// Channel defaults to 1.
	Channel int    `json:"channel"`
	State   string `json:"state"` // on, off or toggle
}

// ValueRequest carries a single integer setting.
type ValueRequest struct {
	Value *int `json:"value"`
}

// HSBColorRequest is the body of POST /devices/{id}/hsb_color. Either
// Color ("hue,sat,bri") or the three components may be given.
type HSBColorRequest struct {
	Color      string `json:"color,omitempty"`
	Hue        int    `json:"hue"`
	Saturation int    `json:"saturation"`
	Brightness int    `json:"brightness"`
}

// FadeRequest is the body of POST /devices/{id}/fade.
type FadeRequest struct {
	Enabled   *bool `json:"enabled,omitempty"`
	Speed     *int  `json:"speed,omitempty"`
	AtStartup *bool `json:"at_startup,omitempty"`
}

// ResetEnergyRequest is the body of POST /devices/{id}/energy/reset.
type ResetEnergyRequest struct {
	Counter string `json:"counter"` // total or today
}

// CreateDeviceRequest is the body of POST /devices. Capabilities wins over
// Preset; with neither the device is probed when it starts.
type CreateDeviceRequest struct {
	ID           string               `json:"id,omitempty"`
	Name         string               `json:"name,omitempty"`
	Transport    string               `json:"transport,omitempty"` // mqtt (default) or http
	Topic        string               `json:"topic,omitempty"`
	Host         string               `json:"host,omitempty"`
	Port         int                  `json:"port,omitempty"`
	HTTPS        bool                 `json:"https,omitempty"`
	Username     string               `json:"username,omitempty"`
	Password     string               `json:"password,omitempty"`
	Preset       string               `json:"preset,omitempty"`
	Capabilities *device.Capabilities `json:"capabilities,omitempty"`
}

func (req CreateDeviceRequest) definition() device.Definition {
	def := device.Definition{
		ID:           req.ID,
		Name:         req.Name,
		Transport:    device.TransportKind(req.Transport),
		Topic:        req.Topic,
		Host:         req.Host,
		Port:         req.Port,
		HTTPS:        req.HTTPS,
		Username:     req.Username,
		Password:     req.Password,
		Preset:       req.Preset,
		Capabilities: req.Capabilities,
	}
	if def.Transport == "" {
		def.Transport = device.TransportMQTT
	}
	if def.Name == "" {
		def.Name = def.Identity()
	}
	return def
}

// handleCreateDevice persists a definition and starts the device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req CreateDeviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	summary, err := s.devices.Add(r.Context(), req.definition())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// handleDeleteDevice stops the device and deletes its definition.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.Summaries()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	summary, err := s.devices.Summary(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleGetDeviceState returns the synchronized state. With ?refresh=true
// the device is queried first.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")) //nolint:errcheck // absent or malformed means false
	if !refresh {
		writeJSON(w, http.StatusOK, dev.State())
		return
	}

	state, err := dev.QueryState(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetEnergy(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	energy, err := dev.Energy(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, energy)
}

func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	var req PowerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Channel == 0 {
		req.Channel = 1
	}
	idx, err := command.NewPowerIndex(req.Channel)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	state, err := parsePowerRequest(req.State)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	start := time.Now()
	got, err := dev.SetPower(r.Context(), idx, state)
	s.logCommand(r, "power", map[string]any{"channel": req.Channel, "state": state.String()}, start, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": req.Channel,
		"state":   got,
	})
}

// parsePowerRequest accepts the reported states plus "toggle".
func parsePowerRequest(s string) (command.PowerState, error) {
	if strings.EqualFold(strings.TrimSpace(s), "toggle") {
		return command.PowerToggle, nil
	}
	return command.ParsePowerState(s)
}

func (s *Server) handleSetDimmer(w http.ResponseWriter, r *http.Request) {
	dev, v, ok := s.valueRequest(w, r)
	if !ok {
		return
	}
	start := time.Now()
	d, err := command.NewDimmer(v)
	if err == nil {
		err = dev.SetDimmer(r.Context(), d)
	}
	s.logCommand(r, "dimmer", map[string]any{"value": v}, start, err)
	s.writeStateOrError(w, dev, err)
}

func (s *Server) handleSetColorTemp(w http.ResponseWriter, r *http.Request) {
	dev, v, ok := s.valueRequest(w, r)
	if !ok {
		return
	}
	start := time.Now()
	ct, err := command.NewColorTemp(v)
	if err == nil {
		err = dev.SetColorTemp(r.Context(), ct)
	}
	s.logCommand(r, "color_temp", map[string]any{"value": v}, start, err)
	s.writeStateOrError(w, dev, err)
}

func (s *Server) handleSetScheme(w http.ResponseWriter, r *http.Request) {
	dev, v, ok := s.valueRequest(w, r)
	if !ok {
		return
	}
	start := time.Now()
	scheme, err := command.NewScheme(v)
	if err == nil {
		err = dev.SetScheme(r.Context(), scheme)
	}
	s.logCommand(r, "scheme", map[string]any{"value": v}, start, err)
	s.writeStateOrError(w, dev, err)
}

func (s *Server) handleSetHSBColor(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	var req HSBColorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		color command.HSBColor
		err   error
		start = time.Now()
	)
	if req.Color != "" {
		color, err = command.ParseHSBColor(req.Color)
	} else {
		color, err = command.NewHSBColor(req.Hue, req.Saturation, req.Brightness)
	}
	if err == nil {
		err = dev.SetHSBColor(r.Context(), color)
	}
	requested := req.Color
	if requested == "" {
		requested = fmt.Sprintf("%d,%d,%d", req.Hue, req.Saturation, req.Brightness)
	}
	s.logCommand(r, "hsb_color", map[string]any{"color": requested}, start, err)
	s.writeStateOrError(w, dev, err)
}

// handleSetFade applies whichever of the fade settings are present, in
// the order enabled, speed, at_startup.
func (s *Server) handleSetFade(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	var req FadeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil && req.Speed == nil && req.AtStartup == nil {
		writeBadRequest(w, "one of enabled, speed or at_startup is required")
		return
	}

	start := time.Now()
	err := applyFade(r.Context(), dev, req)
	s.logCommand(r, "fade", fadeDetails(req), start, err)
	s.writeStateOrError(w, dev, err)
}

func applyFade(ctx context.Context, dev *device.Device, req FadeRequest) error {
	if req.Enabled != nil {
		if err := dev.SetFade(ctx, *req.Enabled); err != nil {
			return err
		}
	}
	if req.Speed != nil {
		speed, err := command.NewFadeSpeed(*req.Speed)
		if err != nil {
			return err
		}
		if err := dev.SetFadeSpeed(ctx, speed); err != nil {
			return err
		}
	}
	if req.AtStartup != nil {
		return dev.SetFadeAtStartup(ctx, *req.AtStartup)
	}
	return nil
}

func fadeDetails(req FadeRequest) map[string]any {
	details := make(map[string]any, 3)
	if req.Enabled != nil {
		details["enabled"] = *req.Enabled
	}
	if req.Speed != nil {
		details["speed"] = *req.Speed
	}
	if req.AtStartup != nil {
		details["at_startup"] = *req.AtStartup
	}
	return details
}

func (s *Server) handleResetEnergy(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	var req ResetEnergyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var err error
	start := time.Now()
	switch req.Counter {
	case "total":
		err = dev.ResetEnergyTotal(r.Context())
	case "today":
		err = dev.ResetEnergyToday(r.Context())
	default:
		writeBadRequest(w, "counter must be total or today")
		return
	}
	s.logCommand(r, "energy_reset", map[string]any{"counter": req.Counter}, start, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lookupDevice resolves {id} or writes a 404.
func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	dev, err := s.devices.Device(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return nil, false
	}
	return dev, true
}

// valueRequest resolves the device and decodes a ValueRequest.
func (s *Server) valueRequest(w http.ResponseWriter, r *http.Request) (*device.Device, int, bool) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return nil, 0, false
	}
	var req ValueRequest
	if !decodeBody(w, r, &req) {
		return nil, 0, false
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return nil, 0, false
	}
	return dev, *req.Value, true
}

func (s *Server) writeStateOrError(w http.ResponseWriter, dev *device.Device, err error) {
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev.State())
}

// decodeBody decodes a JSON body, rejecting unknown fields. It writes the
// 400 itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := newDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func newDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec
}
