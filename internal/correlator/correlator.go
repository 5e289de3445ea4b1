package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
)

// DefaultTimeout is used when a command does not set its own.
const DefaultTimeout = 5 * time.Second

// Publisher sends a command message to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Logger is the logging surface used by the correlator.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// pending is one in-flight command awaiting its reply.
type pending struct {
	seq     uint64
	device  string
	cmd     command.Command
	spec    command.ResponseSpec
	created time.Time

	// Collect mode bookkeeping, guarded by Correlator.mu.
	remaining map[string]bool
	parts     []string
	body      map[string]json.RawMessage

	done chan Reply
}

// exactMatch ranks a reply that is not matched by RESULT keys above any
// keyed match.
const exactMatch = 1 << 8

// match reports whether msg answers p and how specific the match is.
func (p *pending) match(msg Message, keys map[string]bool) (int, bool) {
	if p.spec.Collect {
		if !p.remaining[msg.Suffix] && !slices.Contains(p.spec.Optional, msg.Suffix) {
			return 0, false
		}
		return exactMatch, !slices.Contains(p.parts, msg.Suffix)
	}
	if !slices.Contains(p.spec.Topics, msg.Suffix) {
		return 0, false
	}
	if msg.Suffix != command.SuffixResult || len(p.spec.Keys) == 0 {
		return exactMatch, true
	}
	return p.spec.MatchResult(keys)
}

// merge folds one collected part into the pending reply and reports
// whether every required part has arrived.
func (p *pending) merge(msg Message) bool {
	p.parts = append(p.parts, msg.Suffix)
	for k, v := range msg.Object {
		p.body[k] = v
	}
	delete(p.remaining, msg.Suffix)
	return len(p.remaining) == 0
}

func (p *pending) reply() Reply {
	return Reply{Device: p.device, Topics: slices.Clone(p.parts), Body: p.body}
}

// Correlator pairs outbound commands with inbound replies for one broker
// session.
type Correlator struct {
	pub     Publisher
	timeout time.Duration
	logger  Logger

	mu      sync.Mutex
	seq     uint64
	pending map[string][]*pending
}

// New creates a correlator publishing through pub. A zero timeout selects
// DefaultTimeout.
func New(pub Publisher, timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Correlator{
		pub:     pub,
		timeout: timeout,
		logger:  noopLogger{},
		pending: make(map[string][]*pending),
	}
}

// SetLogger sets the logger.
func (c *Correlator) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Send publishes cmd to cmnd/<device>/<Name> and waits for its reply.
//
// The pending entry is registered before publishing so a fast reply cannot
// be missed. Send returns ErrTimeout when no matching reply arrives within
// the command's timeout, or the default one. A collected command that times
// out with some parts received returns the partial reply.
func (c *Correlator) Send(ctx context.Context, device string, cmd command.Command) (Reply, error) {
	timeout := cmd.Response.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := c.register(device, cmd)
	topic := PrefixCommand + "/" + device + "/" + cmd.Name

	if err := c.pub.Publish(waitCtx, topic, []byte(cmd.Payload)); err != nil {
		c.remove(p)
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return Reply{}, fmt.Errorf("%w: publishing %s to %s: %w", ErrTimeout, cmd, device, err)
		}
		return Reply{}, fmt.Errorf("publishing %s to %s: %w", cmd, device, err)
	}

	select {
	case r := <-p.done:
		c.logger.Debug("reply correlated",
			"device", device, "command", cmd.String(), "latency", time.Since(p.created))
		return r, nil
	case <-waitCtx.Done():
		if r, ok := c.expire(p); ok {
			return r, nil
		}
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Reply{}, fmt.Errorf("waiting for %s reply from %s: %w", cmd, device, ctx.Err())
		}
		c.logger.Warn("reply timed out", "device", device, "command", cmd.String(), "timeout", timeout)
		return Reply{}, fmt.Errorf("%w: %s to %s after %v", ErrTimeout, cmd, device, timeout)
	}
}

// Dispatch offers an inbound message to the pending requests. It returns
// true when the message was consumed as (part of) a reply. Messages that
// are not ClassReply are never consumed.
//
// When several pending requests accept a RESULT, the one matched by the
// most specific key wins, so {"POWER":"ON","Dimmer":40} answers a pending
// Dimmer rather than an earlier Power. Ties go to the oldest request.
func (c *Correlator) Dispatch(msg Message) bool {
	if msg.Class != ClassReply {
		return false
	}

	keys := make(map[string]bool, len(msg.Object))
	for k := range msg.Object {
		keys[k] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		best     *pending
		bestRank int
	)
	for _, p := range c.pending[msg.Device] {
		rank, ok := p.match(msg, keys)
		if ok && (best == nil || rank > bestRank) {
			best, bestRank = p, rank
		}
	}
	if best == nil {
		return false
	}
	if !best.spec.Collect {
		c.resolveLocked(best, NewReply(msg.Device, msg.Suffix, msg.Object))
		return true
	}
	if best.merge(msg) {
		c.resolveLocked(best, best.reply())
	}
	return true
}

// Pending returns the number of in-flight requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, q := range c.pending {
		n += len(q)
	}
	return n
}

func (c *Correlator) register(device string, cmd command.Command) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	p := &pending{
		seq:     c.seq,
		device:  device,
		cmd:     cmd,
		spec:    cmd.Response,
		created: time.Now(),
		done:    make(chan Reply, 1),
	}
	if p.spec.Collect {
		p.remaining = make(map[string]bool, len(p.spec.Topics))
		for _, t := range p.spec.Topics {
			p.remaining[t] = true
		}
		p.body = make(map[string]json.RawMessage)
	}
	c.pending[device] = append(c.pending[device], p)
	return p
}

// resolveLocked removes p and delivers r. The done channel is buffered so
// this never blocks.
func (c *Correlator) resolveLocked(p *pending, r Reply) {
	c.removeLocked(p)
	p.done <- r
}

func (c *Correlator) remove(p *pending) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(p)
}

func (c *Correlator) removeLocked(p *pending) bool {
	queue := c.pending[p.device]
	i := slices.Index(queue, p)
	if i < 0 {
		return false
	}
	queue = slices.Delete(queue, i, i+1)
	if len(queue) == 0 {
		delete(c.pending, p.device)
	} else {
		c.pending[p.device] = queue
	}
	return true
}

// expire drops p after its deadline. A reply resolved concurrently, or a
// partially collected reply, is still returned.
func (c *Correlator) expire(p *pending) (Reply, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.removeLocked(p) {
		return <-p.done, true
	}
	if p.spec.Collect && len(p.parts) > 0 {
		return p.reply(), true
	}
	return Reply{}, false
}
