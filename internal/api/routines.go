package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tasmota/internal/automation"
	"github.com/nerrad567/gray-logic-tasmota/internal/command"
)

// defaultExecutionLimit caps GET /devices/{id}/routines without ?limit=.
const defaultExecutionLimit = 50

// RoutineRequest is the body of POST /devices/{id}/routine.
type RoutineRequest struct {
	// Mode is sequential (default) or backlog.
	Mode   automation.Mode `json:"mode,omitempty"`
	Source string          `json:"source,omitempty"`
	Steps  []StepRequest   `json:"steps"`
}

// StepRequest is one routine step. Action selects which of the value
// fields is read.
type StepRequest struct {
	Action string `json:"action"`

	Channel int    `json:"channel,omitempty"` // power
	State   string `json:"state,omitempty"`   // power: on, off, toggle
	Value   *int   `json:"value,omitempty"`   // dimmer, color_temp, scheme, fade_speed, wakeup_duration
	Enabled *bool  `json:"enabled,omitempty"` // fade
	Color   string `json:"color,omitempty"`   // hsb_color
	Command string `json:"command,omitempty"` // raw
	Payload string `json:"payload,omitempty"` // raw

	DelayMS   int `json:"delay_ms,omitempty"`
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

// buildRoutine translates the request steps through automation.Builder.
func buildRoutine(steps []StepRequest) (automation.Routine, error) {
	b := automation.NewBuilder()
	for i, st := range steps {
		if err := addStep(b, st); err != nil {
			return automation.Routine{}, fmt.Errorf("%w: step %d: %w", automation.ErrInvalidRoutine, i+1, err)
		}
		if st.TimeoutMS > 0 {
			b.Timeout(time.Duration(st.TimeoutMS) * time.Millisecond)
		}
		if st.DelayMS > 0 {
			b.Delay(time.Duration(st.DelayMS) * time.Millisecond)
		}
	}
	return b.Build()
}

//nolint:gocyclo // one case per action
func addStep(b *automation.Builder, st StepRequest) error {
	value := func() (int, error) {
		if st.Value == nil {
			return 0, fmt.Errorf("%s needs a value", st.Action)
		}
		return *st.Value, nil
	}

	switch st.Action {
	case "power":
		ch := st.Channel
		if ch == 0 {
			ch = 1
		}
		idx, err := command.NewPowerIndex(ch)
		if err != nil {
			return err
		}
		state, err := parsePowerRequest(st.State)
		if err != nil {
			return err
		}
		b.SetPower(idx, state)
	case "dimmer":
		v, err := value()
		if err != nil {
			return err
		}
		d, err := command.NewDimmer(v)
		if err != nil {
			return err
		}
		b.SetDimmer(d)
	case "color_temp":
		v, err := value()
		if err != nil {
			return err
		}
		ct, err := command.NewColorTemp(v)
		if err != nil {
			return err
		}
		b.SetColorTemp(ct)
	case "hsb_color":
		c, err := command.ParseHSBColor(st.Color)
		if err != nil {
			return err
		}
		b.SetHSBColor(c)
	case "scheme":
		v, err := value()
		if err != nil {
			return err
		}
		sc, err := command.NewScheme(v)
		if err != nil {
			return err
		}
		b.SetScheme(sc)
	case "fade":
		if st.Enabled == nil {
			return fmt.Errorf("fade needs enabled")
		}
		b.SetFade(*st.Enabled)
	case "fade_speed":
		v, err := value()
		if err != nil {
			return err
		}
		sp, err := command.NewFadeSpeed(v)
		if err != nil {
			return err
		}
		b.SetFadeSpeed(sp)
	case "wakeup_duration":
		v, err := value()
		if err != nil {
			return err
		}
		wd, err := command.NewWakeupDuration(v)
		if err != nil {
			return err
		}
		b.SetWakeupDuration(wd)
	case "raw":
		if st.Command == "" {
			return fmt.Errorf("raw needs a command")
		}
		b.Command(command.Raw(st.Command, st.Payload))
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	return nil
}

// handleRunRoutine runs a routine to completion and returns its execution
// record. A failed step yields the record plus an error naming the step.
func (s *Server) handleRunRoutine(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	var req RoutineRequest
	if !decodeBody(w, r, &req) {
		return
	}

	routine, err := buildRoutine(req.Steps)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	source := req.Source
	if source == "" {
		source = subjectFrom(r.Context())
	}

	var exec *automation.Execution
	switch req.Mode {
	case "", automation.ModeSequential:
		exec, err = s.routines.Run(r.Context(), dev, routine, source)
	case automation.ModeBacklog:
		exec, err = s.routines.RunBacklog(r.Context(), dev, routine, source)
	default:
		writeBadRequest(w, "mode must be sequential or backlog")
		return
	}

	if err != nil {
		resp := classify(err)
		if resp.Status == http.StatusInternalServerError {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, resp.Status, map[string]any{
			"error":     resp,
			"execution": exec,
		})
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if s.routineRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "execution history is not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.devices.Summary(id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	limit := defaultExecutionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	execs, err := s.routineRepo.ListExecutions(r.Context(), id, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if execs == nil {
		execs = []automation.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": execs,
		"count":      len(execs),
	})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	if s.routineRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "execution history is not enabled")
		return
	}
	exec, err := s.routineRepo.GetExecution(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
