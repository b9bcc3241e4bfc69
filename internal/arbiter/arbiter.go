// Package arbiter implements the green-token arbitration protocol.
//
// Every lane runs a symmetric Coordinator: to turn green it broadcasts
// a request, and any peer that currently believes the token is free
// answers with a grant. The first grant wins; duplicates are ignored.
// Who holds the token is never stored centrally — each node keeps a
// local belief overwritten by status broadcasts in receipt order.
//
// Exclusion is soft: belief propagation is asynchronous and unordered,
// so a grant and a near-simultaneous request can cross on the wire and
// leave two lanes briefly holding. The deployment accepts that bounded
// risk; the next status broadcast self-heals every node's belief. What
// the protocol does guarantee is bounded wait (a request either gets a
// grant or times out back to Idle) and single-holder agreement once no
// messages are in flight.
package arbiter

import (
	"context"
	"log/slog"
	"time"

	"github.com/prakoso/greenlock/internal/bus"
	"github.com/prakoso/greenlock/internal/idgen"
)

// State is the coordinator's position in the request/grant/release
// exchange.
type State int

const (
	// Idle: no active interest in green.
	Idle State = iota
	// Requesting: request broadcast, waiting for a grant or timeout.
	Requesting
	// Holding: this lane believes it holds the token.
	Holding
	// Releasing: the lane is driving back to red before returning Idle.
	Releasing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Holding:
		return "holding"
	case Releasing:
		return "releasing"
	default:
		return "unknown"
	}
}

// NoHolder is the belief value when no section is thought to be green.
// Section IDs are positive, so zero is free.
const NoHolder = 0

// Config configures a Coordinator.
type Config struct {
	Section        int
	Publisher      bus.Publisher
	Logger         *slog.Logger
	RequestTimeout time.Duration // default 5s
	Now            func() time.Time
}

// Coordinator runs one lane's side of the arbitration protocol. It is
// owned by the lane's control loop and must not be called from other
// goroutines; all cross-lane coordination happens through the bus.
type Coordinator struct {
	section int
	pub     bus.Publisher
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	state     State
	holder    int
	deadline  time.Time
	requestID string
}

// New creates an idle coordinator for the given section.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		section: cfg.Section,
		pub:     cfg.Publisher,
		logger:  cfg.Logger,
		timeout: cfg.RequestTimeout,
		now:     cfg.Now,
		state:   Idle,
		holder:  NoHolder,
	}
}

// State returns the coordinator's current protocol state.
func (c *Coordinator) State() State { return c.state }

// Holder returns the local belief of the current green holder.
func (c *Coordinator) Holder() (section int, held bool) {
	return c.holder, c.holder != NoHolder
}

// Request broadcasts a green request and enters Requesting. It is a
// no-op (returning false) unless the coordinator is Idle and believes
// the token is free; a lane yields to the believed holder. A publish
// failure is logged but still arms the timeout — the request proceeds
// as unacknowledged and the timeout is the safety net.
func (c *Coordinator) Request(ctx context.Context) bool {
	if c.state != Idle || c.holder != NoHolder {
		return false
	}
	id, err := idgen.GenerateWithPrefix("req-")
	if err != nil {
		// A request without an ID still works; grant matching treats
		// an empty ID as a wildcard.
		c.logger.Error("arbiter: generating request id", "err", err)
	}
	c.requestID = id
	c.publish(ctx, bus.TopicGreenRequest, bus.GreenRequest{
		Section:   c.section,
		RequestID: id,
		Timestamp: bus.Timestamp(c.now()),
	})
	c.state = Requesting
	c.deadline = c.now().Add(c.timeout)
	c.logger.Info("arbiter: green requested", "section", c.section, "timeout", c.timeout)
	return true
}

// TimedOut reports whether a pending request has exceeded its wait
// bound, and if so abandons it and returns to Idle. The caller decides
// whether to retry on the next need evaluation. Deadlines use the
// local monotonic clock; nothing is assumed synchronized across lanes.
func (c *Coordinator) TimedOut() bool {
	if c.state != Requesting || c.now().Before(c.deadline) {
		return false
	}
	c.state = Idle
	c.requestID = ""
	c.logger.Warn("arbiter: request timed out", "section", c.section)
	return true
}

// HandleMessage applies one decoded bus message to the protocol state.
// Messages that don't concern this lane are ignored.
func (c *Coordinator) HandleMessage(ctx context.Context, msg bus.Message) {
	switch m := msg.(type) {
	case bus.GreenRequest:
		c.handleRequest(ctx, m)
	case bus.GreenPermission:
		c.handlePermission(m)
	case bus.GreenStatus:
		c.handleStatus(m)
	}
}

// handleRequest grants a peer's request when the token looks free.
// Several peers may grant the same request independently; duplicates
// are harmless because the requester only accepts the first.
func (c *Coordinator) handleRequest(ctx context.Context, m bus.GreenRequest) {
	if m.Section == c.section {
		return
	}
	if c.holder != NoHolder {
		return
	}
	c.publish(ctx, bus.TopicGreenPermission, bus.GreenPermission{
		Section:     m.Section,
		Permission:  bus.PermissionGranted,
		FromSection: c.section,
		RequestID:   m.RequestID,
	})
	c.logger.Info("arbiter: granted green", "section", c.section, "to", m.Section)
}

// handlePermission accepts the first grant addressed to this lane
// while Requesting; everything else is a duplicate, a foreign grant,
// or a grant for an already-abandoned round.
func (c *Coordinator) handlePermission(m bus.GreenPermission) {
	if m.Section != c.section || m.Permission != bus.PermissionGranted {
		return
	}
	if c.state != Requesting {
		return
	}
	if m.RequestID != "" && c.requestID != "" && m.RequestID != c.requestID {
		c.logger.Warn("arbiter: dropping stale grant",
			"section", c.section, "from", m.FromSection, "request_id", m.RequestID)
		return
	}
	c.state = Holding
	c.holder = c.section
	c.requestID = ""
	c.logger.Info("arbiter: green granted", "section", c.section, "from", m.FromSection)
}

// handleStatus overwrites the holder belief. Overwrite order is
// receipt order, never timestamp order. A red status only clears the
// belief when it comes from the believed holder.
func (c *Coordinator) handleStatus(m bus.GreenStatus) {
	switch m.Status {
	case bus.StatusGreen:
		c.holder = m.Section
	case bus.StatusRed:
		if c.holder == m.Section {
			c.holder = NoHolder
		}
	}
}

// AnnounceGreen broadcasts this lane's green status. Called on entry
// to Holding; idempotent, safe to repeat while holding.
func (c *Coordinator) AnnounceGreen(ctx context.Context) {
	c.holder = c.section
	c.publish(ctx, bus.TopicGreenStatus, bus.GreenStatus{
		Section:   c.section,
		Status:    bus.StatusGreen,
		Timestamp: bus.Timestamp(c.now()),
	})
}

// BeginRelease marks the start of the drive back to red.
func (c *Coordinator) BeginRelease() {
	if c.state == Holding || c.state == Requesting {
		c.state = Releasing
	}
}

// Release broadcasts red, clears the self-holding belief, and returns
// to Idle. Safe to call from any state so an external override can
// always force a lane back to a known-safe position.
func (c *Coordinator) Release(ctx context.Context) {
	c.publish(ctx, bus.TopicGreenStatus, bus.GreenStatus{
		Section:   c.section,
		Status:    bus.StatusRed,
		Timestamp: bus.Timestamp(c.now()),
	})
	if c.holder == c.section {
		c.holder = NoHolder
	}
	c.state = Idle
	c.requestID = ""
	c.logger.Info("arbiter: green released", "section", c.section)
}

// publish sends one message, absorbing failures: a lost publish is
// indistinguishable from a lost message on this bus, and every
// exchange already tolerates loss.
func (c *Coordinator) publish(ctx context.Context, topic string, msg any) {
	if err := c.pub.Publish(ctx, topic, msg); err != nil {
		c.logger.Error("arbiter: publish failed", "topic", topic, "err", err)
	}
}
