package arbiter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prakoso/greenlock/internal/bus"
)

type published struct {
	topic string
	msg   any
}

// capturePub records published messages; optionally fails every publish.
type capturePub struct {
	msgs []published
	err  error
}

func (p *capturePub) Publish(ctx context.Context, topic string, msg any) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, msg: msg})
	return nil
}

func (p *capturePub) Close() error { return nil }

func (p *capturePub) byTopic(topic string) []published {
	var out []published
	for _, m := range p.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// fakeClock is a manually advanced clock for deterministic timeouts.
type fakeClock struct {
	cur time.Time
}

func (c *fakeClock) now() time.Time          { return c.cur }
func (c *fakeClock) advance(d time.Duration) { c.cur = c.cur.Add(d) }

func newTestCoordinator(section int) (*Coordinator, *capturePub, *fakeClock) {
	pub := &capturePub{}
	clock := &fakeClock{cur: time.Date(2025, 4, 22, 10, 58, 50, 0, time.UTC)}
	co := New(Config{
		Section:        section,
		Publisher:      pub,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		RequestTimeout: 5 * time.Second,
		Now:            clock.now,
	})
	return co, pub, clock
}

func TestRequest_FromIdleBroadcasts(t *testing.T) {
	co, pub, _ := newTestCoordinator(1)
	ctx := context.Background()

	if !co.Request(ctx) {
		t.Fatal("Request() = false, want true from idle with free belief")
	}
	if co.State() != Requesting {
		t.Fatalf("state = %v, want requesting", co.State())
	}

	reqs := pub.byTopic(bus.TopicGreenRequest)
	if len(reqs) != 1 {
		t.Fatalf("published %d requests, want 1", len(reqs))
	}
	if got := reqs[0].msg.(bus.GreenRequest).Section; got != 1 {
		t.Errorf("request section = %d, want 1", got)
	}
}

func TestRequest_CarriesRequestID(t *testing.T) {
	co, pub, _ := newTestCoordinator(1)
	co.Request(context.Background())

	req := pub.byTopic(bus.TopicGreenRequest)[0].msg.(bus.GreenRequest)
	if req.RequestID == "" {
		t.Error("request published without a request id")
	}
}

func TestRequest_YieldsToBelievedHolder(t *testing.T) {
	co, pub, _ := newTestCoordinator(1)
	ctx := context.Background()

	co.HandleMessage(ctx, bus.GreenStatus{Section: 2, Status: bus.StatusGreen})
	if co.Request(ctx) {
		t.Fatal("Request() = true while section 2 is believed green")
	}
	if co.State() != Idle {
		t.Errorf("state = %v, want idle", co.State())
	}
	if len(pub.msgs) != 0 {
		t.Errorf("published %d messages, want 0", len(pub.msgs))
	}
}

func TestRequest_OnlyOneRoundAtATime(t *testing.T) {
	co, pub, _ := newTestCoordinator(1)
	ctx := context.Background()

	co.Request(ctx)
	if co.Request(ctx) {
		t.Fatal("second Request() = true while already requesting")
	}
	if got := len(pub.byTopic(bus.TopicGreenRequest)); got != 1 {
		t.Errorf("published %d requests, want 1", got)
	}
}

func TestRequest_PublishFailureStillArmsTimeout(t *testing.T) {
	co, pub, clock := newTestCoordinator(1)
	pub.err = errors.New("broker unreachable")
	ctx := context.Background()

	if !co.Request(ctx) {
		t.Fatal("Request() = false on publish failure, want true (proceed unacknowledged)")
	}
	if co.State() != Requesting {
		t.Fatalf("state = %v, want requesting", co.State())
	}

	clock.advance(5 * time.Second)
	if !co.TimedOut() {
		t.Fatal("TimedOut() = false at the timeout bound")
	}
	if co.State() != Idle {
		t.Errorf("state = %v, want idle after timeout", co.State())
	}
}

func TestTimedOut_ExactBound(t *testing.T) {
	co, _, clock := newTestCoordinator(1)
	co.Request(context.Background())

	clock.advance(5*time.Second - time.Millisecond)
	if co.TimedOut() {
		t.Fatal("TimedOut() = true before the bound")
	}
	clock.advance(time.Millisecond)
	if !co.TimedOut() {
		t.Fatal("TimedOut() = false at exactly the bound")
	}
	// A later check on an idle coordinator stays false.
	if co.TimedOut() {
		t.Fatal("TimedOut() = true while idle")
	}
}

func TestHandleRequest_GrantsWhenFree(t *testing.T) {
	co, pub, _ := newTestCoordinator(1)
	ctx := context.Background()

	co.HandleMessage(ctx, bus.GreenRequest{Section: 3})

	grants := pub.byTopic(bus.TopicGreenPermission)
	if len(grants) != 1 {
		t.Fatalf("published %d grants, want 1", len(grants))
	}
	g := grants[0].msg.(bus.GreenPermission)
	if g.Section != 3 || g.FromSection != 1 || g.Permission != bus.PermissionGranted {
		t.Errorf("grant = %+v, want granted to 3 from 1", g)
	}
}

func TestHandleRequest_GrantEchoesRequestID(t *testing.T) {
	co, pub, _ := newTestCoordinator(1)
	co.HandleMessage(context.Background(), bus.GreenRequest{Section: 3, RequestID: "req-abc"})

	g := pub.byTopic(bus.TopicGreenPermission)[0].msg.(bus.GreenPermission)
	if g.RequestID != "req-abc" {
		t.Errorf("grant request id = %q, want the requester's id echoed", g.RequestID)
	}
}

func TestHandleRequest_SilentWhenHeld(t *testing.T) {
	co, pub, _ := newTestCoordinator(1)
	ctx := context.Background()

	co.HandleMessage(ctx, bus.GreenStatus{Section: 2, Status: bus.StatusGreen})
	co.HandleMessage(ctx, bus.GreenRequest{Section: 3})

	if got := len(pub.byTopic(bus.TopicGreenPermission)); got != 0 {
		t.Errorf("published %d grants while section 2 holds, want 0", got)
	}
}

func TestHandleRequest_IgnoresOwnRequest(t *testing.T) {
	co, pub, _ := newTestCoordinator(1)
	co.HandleMessage(context.Background(), bus.GreenRequest{Section: 1})

	if got := len(pub.byTopic(bus.TopicGreenPermission)); got != 0 {
		t.Errorf("granted own request: %d grants, want 0", got)
	}
}

func TestHandlePermission_FirstGrantWins(t *testing.T) {
	co, _, _ := newTestCoordinator(1)
	ctx := context.Background()

	co.Request(ctx)
	co.HandleMessage(ctx, bus.GreenPermission{Section: 1, Permission: bus.PermissionGranted, FromSection: 2})
	if co.State() != Holding {
		t.Fatalf("state = %v, want holding after first grant", co.State())
	}

	// Duplicate grants from other peers change nothing.
	co.HandleMessage(ctx, bus.GreenPermission{Section: 1, Permission: bus.PermissionGranted, FromSection: 3})
	if co.State() != Holding {
		t.Errorf("state = %v after duplicate grant, want holding", co.State())
	}
	if holder, _ := co.Holder(); holder != 1 {
		t.Errorf("holder belief = %d, want self (1)", holder)
	}
}

func TestHandlePermission_StaleRoundIgnored(t *testing.T) {
	co, pub, clock := newTestCoordinator(1)
	ctx := context.Background()

	// First round times out; its id is abandoned.
	co.Request(ctx)
	stale := pub.byTopic(bus.TopicGreenRequest)[0].msg.(bus.GreenRequest).RequestID
	clock.advance(5 * time.Second)
	co.TimedOut()

	// Second round starts, then a grant for the old round arrives.
	co.Request(ctx)
	co.HandleMessage(ctx, bus.GreenPermission{
		Section: 1, Permission: bus.PermissionGranted, FromSection: 2, RequestID: stale,
	})
	if co.State() != Requesting {
		t.Fatalf("state = %v after stale grant, want still requesting", co.State())
	}

	// A grant for the current round is accepted.
	current := pub.byTopic(bus.TopicGreenRequest)[1].msg.(bus.GreenRequest).RequestID
	co.HandleMessage(ctx, bus.GreenPermission{
		Section: 1, Permission: bus.PermissionGranted, FromSection: 2, RequestID: current,
	})
	if co.State() != Holding {
		t.Fatalf("state = %v, want holding after matching grant", co.State())
	}
}

func TestHandlePermission_IgnoredOutsideRequesting(t *testing.T) {
	co, _, _ := newTestCoordinator(1)
	ctx := context.Background()

	co.HandleMessage(ctx, bus.GreenPermission{Section: 1, Permission: bus.PermissionGranted, FromSection: 2})
	if co.State() != Idle {
		t.Errorf("state = %v, want idle (grant without request)", co.State())
	}
}

func TestHandlePermission_ForeignGrantIgnored(t *testing.T) {
	co, _, _ := newTestCoordinator(1)
	ctx := context.Background()

	co.Request(ctx)
	co.HandleMessage(ctx, bus.GreenPermission{Section: 2, Permission: bus.PermissionGranted, FromSection: 3})
	if co.State() != Requesting {
		t.Errorf("state = %v, want still requesting after foreign grant", co.State())
	}
}

func TestHandleStatus_OverwritesBeliefInReceiptOrder(t *testing.T) {
	co, _, _ := newTestCoordinator(1)
	ctx := context.Background()

	co.HandleMessage(ctx, bus.GreenStatus{Section: 2, Status: bus.StatusGreen})
	co.HandleMessage(ctx, bus.GreenStatus{Section: 3, Status: bus.StatusGreen})
	if holder, _ := co.Holder(); holder != 3 {
		t.Fatalf("holder = %d, want 3 (last received wins)", holder)
	}

	// Red from a lane that is not the believed holder changes nothing.
	co.HandleMessage(ctx, bus.GreenStatus{Section: 2, Status: bus.StatusRed})
	if holder, _ := co.Holder(); holder != 3 {
		t.Errorf("holder = %d after stale red, want 3", holder)
	}

	// Red from the believed holder clears the belief.
	co.HandleMessage(ctx, bus.GreenStatus{Section: 3, Status: bus.StatusRed})
	if holder, held := co.Holder(); held {
		t.Errorf("holder = %d, want free after holder's red", holder)
	}
}

func TestAnnounceGreen_Idempotent(t *testing.T) {
	co, pub, _ := newTestCoordinator(1)
	ctx := context.Background()

	co.Request(ctx)
	co.HandleMessage(ctx, bus.GreenPermission{Section: 1, Permission: bus.PermissionGranted, FromSection: 2})
	co.AnnounceGreen(ctx)
	co.AnnounceGreen(ctx)

	statuses := pub.byTopic(bus.TopicGreenStatus)
	if len(statuses) != 2 {
		t.Fatalf("published %d status messages, want 2", len(statuses))
	}
	for _, s := range statuses {
		m := s.msg.(bus.GreenStatus)
		if m.Section != 1 || m.Status != bus.StatusGreen {
			t.Errorf("status = %+v, want green from 1", m)
		}
	}
	if holder, _ := co.Holder(); holder != 1 {
		t.Errorf("holder = %d, want self", holder)
	}
}

func TestRelease_FullRound(t *testing.T) {
	co, pub, _ := newTestCoordinator(1)
	ctx := context.Background()

	co.Request(ctx)
	co.HandleMessage(ctx, bus.GreenPermission{Section: 1, Permission: bus.PermissionGranted, FromSection: 2})
	co.AnnounceGreen(ctx)
	co.BeginRelease()
	if co.State() != Releasing {
		t.Fatalf("state = %v, want releasing", co.State())
	}
	co.Release(ctx)

	if co.State() != Idle {
		t.Errorf("state = %v, want idle after release", co.State())
	}
	if _, held := co.Holder(); held {
		t.Error("holder belief not cleared after release")
	}

	statuses := pub.byTopic(bus.TopicGreenStatus)
	last := statuses[len(statuses)-1].msg.(bus.GreenStatus)
	if last.Section != 1 || last.Status != bus.StatusRed {
		t.Errorf("final status = %+v, want red from 1", last)
	}
}

func TestRelease_KeepsForeignBelief(t *testing.T) {
	co, _, _ := newTestCoordinator(1)
	ctx := context.Background()

	// An external override releases while another lane is believed green.
	co.HandleMessage(ctx, bus.GreenStatus{Section: 2, Status: bus.StatusGreen})
	co.Release(ctx)

	if holder, _ := co.Holder(); holder != 2 {
		t.Errorf("holder = %d, want 2 (release only clears self-belief)", holder)
	}
	if co.State() != Idle {
		t.Errorf("state = %v, want idle", co.State())
	}
}

func TestHandleMessage_IgnoresVehicleCounts(t *testing.T) {
	co, pub, _ := newTestCoordinator(1)
	total := 4
	co.HandleMessage(context.Background(), bus.VehicleCount{RoadSectionID: 1, TotalVehicles: &total})

	if co.State() != Idle || len(pub.msgs) != 0 {
		t.Error("vehicle counts must not affect the coordinator")
	}
}
