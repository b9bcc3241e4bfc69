// Package lane runs one traffic lane's control loop: it consumes
// vehicle observations, asks the fuzzy engine for a green duration,
// obtains the green token through the arbiter, and drives the signal
// head through one full Red-Yellow-Green-Yellow-Red cycle.
//
// Everything happens on a single goroutine. Message receipt, phase
// transitions, and the countdown interleave via polling; the countdown
// is the only suspension point and it keeps servicing the message
// channel, so a grant or status update is never missed mid-hold.
package lane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prakoso/greenlock/internal/arbiter"
	"github.com/prakoso/greenlock/internal/bus"
	"github.com/prakoso/greenlock/internal/fuzzy"
)

var errSubscriptionClosed = errors.New("lane: subscription closed")

// Config configures a lane controller.
type Config struct {
	Section   int
	Profile   *fuzzy.Profile
	Driver    Driver
	Publisher bus.Publisher
	Clock     Clock
	Logger    *slog.Logger

	RequestTimeout time.Duration // arbitration wait bound (default 5s)
	RequestRetry   bool          // re-request on the next evaluation after a timeout
	PollInterval   time.Duration // idle loop cadence (default 1s)
	TickUnit       time.Duration // one countdown time unit (default 1s)
	BlankHold      time.Duration // dark gap between phases (default 500ms)
	YellowHold     time.Duration // yellow phase length (default 2s)
	WarnRemaining  int           // countdown point for the phase-change warning (default 5)

	// OnWarn observes the upcoming-phase-change event emitted near the
	// end of the green countdown (display, logging). Optional.
	OnWarn func(remaining int)
}

// Controller is one lane's state machine. Create with New, drive with
// Run; all methods are confined to Run's goroutine.
type Controller struct {
	cfg    Config
	logger *slog.Logger
	co     *arbiter.Coordinator

	pending *bus.VehicleCount
}

// New creates a controller and its arbitration coordinator.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Driver == nil {
		cfg.Driver = NewLogDriver(cfg.Logger)
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.TickUnit == 0 {
		cfg.TickUnit = time.Second
	}
	if cfg.BlankHold == 0 {
		cfg.BlankHold = 500 * time.Millisecond
	}
	if cfg.YellowHold == 0 {
		cfg.YellowHold = 2 * time.Second
	}
	if cfg.WarnRemaining == 0 {
		cfg.WarnRemaining = 5
	}
	return &Controller{
		cfg:    cfg,
		logger: cfg.Logger,
		co: arbiter.New(arbiter.Config{
			Section:        cfg.Section,
			Publisher:      cfg.Publisher,
			Logger:         cfg.Logger,
			RequestTimeout: cfg.RequestTimeout,
		}),
	}
}

// Run subscribes to the bus and drives the lane until ctx is
// cancelled. On every exit path the signal ends at red.
func (c *Controller) Run(ctx context.Context, sub bus.Subscriber) error {
	ch, cancel, err := sub.Subscribe(bus.WildcardTopic)
	if err != nil {
		return fmt.Errorf("lane: subscribe: %w", err)
	}
	defer cancel()

	c.logger.Info("lane: controller started",
		"section", c.cfg.Section,
		"profile", c.cfg.Profile.Name,
		"request_timeout", c.cfg.RequestTimeout)

	c.setPhase(Red)
	defer c.setPhase(Red)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("lane: controller stopping", "section", c.cfg.Section)
			return nil
		case d, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			c.dispatch(ctx, d)
		case <-ticker.C:
			if err := c.step(ctx, ch); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}
		}
	}
}

// dispatch decodes one delivery and applies it. Malformed payloads and
// foreign observations are dropped without any state change.
func (c *Controller) dispatch(ctx context.Context, d bus.Delivery) {
	msg, err := bus.Decode(d.Topic, d.Payload)
	if err != nil {
		c.logger.Warn("lane: dropping message", "topic", d.Topic, "err", err)
		return
	}
	switch m := msg.(type) {
	case bus.VehicleCount:
		if m.RoadSectionID != c.cfg.Section {
			return
		}
		c.pending = &m
		c.logger.Info("lane: observation updated",
			"section", c.cfg.Section, "count", m.Total())
	default:
		c.co.HandleMessage(ctx, msg)
	}
}

// step runs one poll iteration: expire a stale request, assert the
// idle default, start an arbitration round when there is need, or run
// the green cycle once the token is held.
func (c *Controller) step(ctx context.Context, ch <-chan bus.Delivery) error {
	if c.co.TimedOut() {
		if !c.cfg.RequestRetry {
			c.pending = nil
		}
		return nil
	}

	switch c.co.State() {
	case arbiter.Idle:
		c.setPhase(Red)
		if c.pending == nil {
			return nil
		}
		if c.pending.Total() <= 0 {
			c.pending = nil
			return nil
		}
		if !c.co.Request(ctx) {
			if holder, held := c.co.Holder(); held {
				c.logger.Info("lane: waiting for green holder",
					"section", c.cfg.Section, "holder", holder)
			}
		}
	case arbiter.Holding:
		return c.runCycle(ctx, ch)
	}
	return nil
}

// runCycle drives one full signal cycle for the held token and always
// tears down to red, releasing the token, before returning.
func (c *Controller) runCycle(ctx context.Context, ch <-chan bus.Delivery) error {
	obs := c.pending
	var count float64
	if obs != nil {
		count = obs.Total()
	}
	rush := c.rushHour()
	duration := c.cfg.Profile.Duration(count, rush)

	c.logger.Info("lane: starting green cycle",
		"section", c.cfg.Section,
		"count", count,
		"rush_hour", rush,
		"duration_secs", duration)

	c.co.AnnounceGreen(ctx)
	err := c.drive(ctx, ch, int(duration))

	// Teardown runs on every path, cancellation included: the head
	// ends at red and the token is released before anything else.
	c.co.BeginRelease()
	c.setPhase(Red)
	c.co.Release(context.WithoutCancel(ctx))
	c.pending = nil

	if err == nil && obs != nil {
		c.publishDuration(ctx, obs, duration)
		c.logger.Info("lane: green cycle completed", "section", c.cfg.Section)
	}
	return err
}

// drive walks the phase sequence Red, Yellow, Green, Yellow with the
// reference blanks in between. The green countdown ticks one time
// unit at a time and emits the phase-change warning near the end.
func (c *Controller) drive(ctx context.Context, ch <-chan bus.Delivery, secs int) error {
	c.setPhase(Red)
	if err := c.hold(ctx, ch, Off, c.cfg.BlankHold); err != nil {
		return err
	}
	if err := c.hold(ctx, ch, Yellow, c.cfg.YellowHold); err != nil {
		return err
	}
	if err := c.hold(ctx, ch, Off, c.cfg.BlankHold); err != nil {
		return err
	}

	c.setPhase(Green)
	warned := false
	for remaining := secs; remaining > 0; remaining-- {
		if !warned && remaining <= c.cfg.WarnRemaining {
			c.warnPhaseChange(remaining)
			warned = true
		}
		if err := c.wait(ctx, ch, c.cfg.TickUnit); err != nil {
			return err
		}
	}

	if err := c.hold(ctx, ch, Off, c.cfg.BlankHold); err != nil {
		return err
	}
	if err := c.hold(ctx, ch, Yellow, c.cfg.YellowHold); err != nil {
		return err
	}
	return c.hold(ctx, ch, Off, c.cfg.BlankHold)
}

// hold asserts a phase and waits for its duration.
func (c *Controller) hold(ctx context.Context, ch <-chan bus.Delivery, p Phase, d time.Duration) error {
	c.setPhase(p)
	return c.wait(ctx, ch, d)
}

// wait suspends for up to d or until cancellation, servicing the
// message channel the whole time so the queue never backs up during a
// hold.
func (c *Controller) wait(ctx context.Context, ch <-chan bus.Delivery, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			c.dispatch(ctx, delivery)
		case <-timer.C:
			return nil
		}
	}
}

func (c *Controller) warnPhaseChange(remaining int) {
	c.logger.Info("lane: phase change soon",
		"section", c.cfg.Section, "remaining", remaining)
	if c.cfg.OnWarn != nil {
		c.cfg.OnWarn(remaining)
	}
}

func (c *Controller) publishDuration(ctx context.Context, obs *bus.VehicleCount, duration float64) {
	ts := obs.Timestamp
	if ts == "" {
		if now, ok := c.cfg.Clock.Now(); ok {
			ts = bus.Timestamp(now)
		}
	}
	report := bus.DurationReport{
		RoadSectionID: c.cfg.Section,
		TotalVehicles: int(obs.Total()),
		Duration:      duration,
		Timestamp:     ts,
	}
	if err := c.cfg.Publisher.Publish(ctx, bus.TopicDuration, report); err != nil {
		c.logger.Error("lane: publishing duration report", "err", err)
	}
}

func (c *Controller) rushHour() bool {
	now, ok := c.cfg.Clock.Now()
	if !ok {
		c.logger.Warn("lane: clock not synchronized, assuming off-peak",
			"section", c.cfg.Section)
		return false
	}
	return RushHour(now.Hour())
}

func (c *Controller) setPhase(p Phase) {
	c.cfg.Driver.SetPhase(c.cfg.Section, p)
}
