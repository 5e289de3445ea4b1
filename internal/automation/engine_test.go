package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/correlator"
)

// fakeTarget records every command it is sent and fails the failAt-th one.
type fakeTarget struct {
	mu       sync.Mutex
	sent     []command.Command
	at       []time.Time
	inFlight int
	overlap  bool
	failAt   int
	failErr  error
	latency  time.Duration
}

func (f *fakeTarget) ID() string { return "kitchen" }

func (f *fakeTarget) Send(ctx context.Context, cmd command.Command) (correlator.Reply, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > 1 {
		f.overlap = true
	}
	f.sent = append(f.sent, cmd)
	f.at = append(f.at, time.Now())
	n := len(f.sent)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	if n == f.failAt {
		return correlator.Reply{}, f.failErr
	}
	return correlator.NewReply("kitchen", command.SuffixResult, nil), nil
}

func (f *fakeTarget) sentNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, c := range f.sent {
		out[i] = c.String()
	}
	return out
}

// authTarget rejects one command name before any I/O.
type authTarget struct {
	fakeTarget
	reject string
}

func (a *authTarget) Authorize(cmd command.Command) error {
	if cmd.Name == a.reject {
		return errors.New("unsupported")
	}
	return nil
}

// fakeRepo keeps executions in memory.
type fakeRepo struct {
	mu      sync.Mutex
	created []Execution
	updated []Execution
}

func (r *fakeRepo) CreateExecution(_ context.Context, e *Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, *e)
	return nil
}

func (r *fakeRepo) UpdateExecution(_ context.Context, e *Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, *e)
	return nil
}

func (r *fakeRepo) GetExecution(context.Context, string) (*Execution, error) {
	return nil, ErrExecutionNotFound
}

func (r *fakeRepo) ListExecutions(context.Context, string, int) ([]Execution, error) {
	return nil, nil
}

type fakeHub struct {
	mu       sync.Mutex
	channels []string
	payloads []map[string]any
}

func (h *fakeHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels = append(h.channels, channel)
	if m, ok := payload.(map[string]any); ok {
		h.payloads = append(h.payloads, m)
	}
}

func fiveStepRoutine(t *testing.T) Routine {
	t.Helper()
	d, _ := command.NewDimmer(50)
	ct, _ := command.NewColorTemp(300)
	r, err := NewBuilder().
		PowerOn(1).
		SetDimmer(d).
		SetColorTemp(ct).
		SetFade(true).
		PowerOff(1).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return r
}

func TestEngineRunCompletes(t *testing.T) {
	target := &fakeTarget{latency: 5 * time.Millisecond}
	e := NewEngine(nil, nil, nil)

	exec, err := e.Run(context.Background(), target, fiveStepRoutine(t), "test")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"Power1 ON", "Dimmer 50", "CT 300", "Fade ON", "Power1 OFF"}
	got := target.sentNames()
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d sent %q, want %q", i+1, got[i], want[i])
		}
	}
	if target.overlap {
		t.Error("steps overlapped; each step must resolve before the next is sent")
	}
	if exec.Status != StatusCompleted || exec.StepsCompleted != 5 || exec.StepsTotal != 5 {
		t.Errorf("execution = %+v", exec)
	}
	if exec.ID == "" || exec.DeviceID != "kitchen" || exec.Mode != ModeSequential {
		t.Errorf("execution identity = %+v", exec)
	}
}

func TestEngineRunStopsAtFailingStep(t *testing.T) {
	cause := correlator.ErrTimeout
	target := &fakeTarget{failAt: 3, failErr: cause}
	e := NewEngine(nil, nil, nil)

	exec, err := e.Run(context.Background(), target, fiveStepRoutine(t), "test")

	var rerr *RoutineError
	if !errors.As(err, &rerr) {
		t.Fatalf("Run() error = %v, want *RoutineError", err)
	}
	if rerr.Step != 3 || rerr.Total != 5 {
		t.Errorf("RoutineError step = %d of %d, want 3 of 5", rerr.Step, rerr.Total)
	}
	if rerr.Command.Name != "CT" {
		t.Errorf("RoutineError command = %q, want CT", rerr.Command.Name)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Run() error = %v, want it to wrap %v", err, cause)
	}
	if n := len(target.sentNames()); n != 3 {
		t.Errorf("sent %d commands, want 3 (steps 4 and 5 never dispatched)", n)
	}
	if exec.Status != StatusFailed || exec.FailedStep != 3 || exec.StepsCompleted != 2 {
		t.Errorf("execution = %+v", exec)
	}
}

func TestEngineRunHonoursDelays(t *testing.T) {
	const delay = 150 * time.Millisecond
	r, err := NewBuilder().PowerOn(1).Delay(delay).PowerOff(1).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	target := &fakeTarget{}

	if _, err := NewEngine(nil, nil, nil).Run(context.Background(), target, r, "test"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	if len(target.at) != 2 {
		t.Fatalf("sent %d commands, want 2", len(target.at))
	}
	if gap := target.at[1].Sub(target.at[0]); gap < delay {
		t.Errorf("gap between steps = %v, want >= %v", gap, delay)
	}
}

func TestEngineRunSkipsTrailingDelay(t *testing.T) {
	r, err := NewBuilder().PowerOn(1).Delay(5 * time.Second).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	start := time.Now()
	if _, err := NewEngine(nil, nil, nil).Run(context.Background(), &fakeTarget{}, r, "test"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run() took %v; a delay after the last step should not be waited", elapsed)
	}
}

func TestEngineRunCancelledDuringDelay(t *testing.T) {
	r, err := NewBuilder().PowerOn(1).Delay(5 * time.Second).PowerOff(1).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	target := &fakeTarget{}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	exec, err := NewEngine(nil, nil, nil).Run(ctx, target, r, "test")

	var rerr *RoutineError
	if !errors.As(err, &rerr) || rerr.Step != 2 {
		t.Fatalf("Run() error = %v, want RoutineError at step 2", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if exec.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", exec.Status)
	}
	if n := len(target.sentNames()); n != 1 {
		t.Errorf("sent %d commands, want 1", n)
	}
}

func TestEngineRunAppliesStepTimeout(t *testing.T) {
	r, err := NewBuilder().PowerOn(1).Timeout(750 * time.Millisecond).PowerOff(1).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	target := &fakeTarget{}

	if _, err := NewEngine(nil, nil, nil).Run(context.Background(), target, r, "test"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	if got := target.sent[0].Response.Timeout; got != 750*time.Millisecond {
		t.Errorf("step 1 timeout = %v, want 750ms", got)
	}
	if got := target.sent[1].Response.Timeout; got != 0 {
		t.Errorf("step 2 timeout = %v, want transport default", got)
	}
}

func TestEngineRunZeroRoutine(t *testing.T) {
	exec, err := NewEngine(nil, nil, nil).Run(context.Background(), &fakeTarget{}, Routine{}, "test")
	if !errors.Is(err, ErrNoSteps) || exec != nil {
		t.Errorf("Run() = %v, %v; want nil, ErrNoSteps", exec, err)
	}
}

func TestEngineRunBacklog(t *testing.T) {
	target := &authTarget{}
	exec, err := NewEngine(nil, nil, nil).RunBacklog(context.Background(), target, fiveStepRoutine(t), "test")
	if err != nil {
		t.Fatalf("RunBacklog() error = %v", err)
	}

	got := target.sentNames()
	want := "Backlog0 Power1 ON; Dimmer 50; CT 300; Fade ON; Power1 OFF"
	if len(got) != 1 || got[0] != want {
		t.Errorf("sent %v, want [%q]", got, want)
	}
	if exec.Mode != ModeBacklog || exec.StepsCompleted != 5 {
		t.Errorf("execution = %+v", exec)
	}
}

func TestEngineRunBacklogAuthorizesEveryStep(t *testing.T) {
	target := &authTarget{reject: "CT"}
	exec, err := NewEngine(nil, nil, nil).RunBacklog(context.Background(), target, fiveStepRoutine(t), "test")

	var rerr *RoutineError
	if !errors.As(err, &rerr) || rerr.Step != 3 {
		t.Fatalf("RunBacklog() error = %v, want RoutineError at step 3", err)
	}
	if exec != nil {
		t.Errorf("execution = %+v, want nil when rejected before dispatch", exec)
	}
	if n := len(target.sentNames()); n != 0 {
		t.Errorf("sent %d commands, want 0", n)
	}
}

func TestEngineRecordsAndBroadcasts(t *testing.T) {
	repo := &fakeRepo{}
	hub := &fakeHub{}
	target := &fakeTarget{failAt: 2, failErr: errors.New("boom")}

	exec, _ := NewEngine(repo, hub, nil).Run(context.Background(), target, fiveStepRoutine(t), "api")

	if len(repo.created) != 1 || repo.created[0].Status != StatusRunning {
		t.Errorf("created = %+v", repo.created)
	}
	if len(repo.updated) != 1 || repo.updated[0].ID != exec.ID || repo.updated[0].Status != StatusFailed {
		t.Errorf("updated = %+v", repo.updated)
	}
	if repo.updated[0].Error != "boom" || repo.updated[0].Source != "api" {
		t.Errorf("updated record = %+v", repo.updated[0])
	}

	if len(hub.channels) != 1 || hub.channels[0] != "routine.completed" {
		t.Fatalf("broadcasts = %v", hub.channels)
	}
	if hub.payloads[0]["failed_step"] != 2 || hub.payloads[0]["status"] != "failed" {
		t.Errorf("payload = %v", hub.payloads[0])
	}
}
