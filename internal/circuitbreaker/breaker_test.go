package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gw = "https://w3s.link/ipfs/"

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)}
	b := New(threshold, cooldown)
	b.now = clk.Now
	return b, clk
}

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	assert.True(t, b.Allow(gw))
	assert.Equal(t, StateClosed, b.State(gw))
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure(gw)
	b.RecordFailure(gw)
	assert.True(t, b.Allow(gw), "should still allow before threshold")

	b.RecordFailure(gw)
	assert.False(t, b.Allow(gw))
	assert.Equal(t, StateOpen, b.State(gw))
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, clk := newTestBreaker(2, time.Minute)
	b.Record(gw, errors.New("timeout"))
	b.Record(gw, errors.New("timeout"))
	require.False(t, b.Allow(gw))

	clk.Advance(time.Minute)
	assert.True(t, b.Allow(gw), "one probe after cooldown")
	assert.Equal(t, StateHalfOpen, b.State(gw))
	assert.False(t, b.Allow(gw), "second request while probing")
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b, clk := newTestBreaker(2, time.Minute)
	b.RecordFailure(gw)
	b.RecordFailure(gw)
	clk.Advance(time.Minute)
	b.Allow(gw)

	b.Record(gw, nil)
	assert.Equal(t, StateClosed, b.State(gw))
	assert.True(t, b.Allow(gw))
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(2, time.Minute)
	b.RecordFailure(gw)
	b.RecordFailure(gw)
	clk.Advance(time.Minute)
	b.Allow(gw)

	b.RecordFailure(gw)
	assert.Equal(t, StateOpen, b.State(gw))
	assert.False(t, b.Allow(gw))
}

func TestBreaker_SuccessResets(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	b.RecordFailure(gw)
	b.RecordFailure(gw)
	b.RecordSuccess(gw)
	b.RecordFailure(gw)
	assert.True(t, b.Allow(gw))
}

func TestBreaker_IndependentGateways(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	b.RecordFailure(gw)
	assert.False(t, b.Allow(gw))
	assert.True(t, b.Allow("https://ipfs.io/ipfs/"))
}

func TestBreaker_Defaults(t *testing.T) {
	b := New(0, 0)
	assert.Equal(t, DefaultThreshold, b.threshold)
	assert.Equal(t, DefaultCooldown, b.cooldown)
}

func TestBreaker_Snapshot(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	b.RecordFailure("https://b.example/ipfs/")
	b.RecordFailure("https://a.example/ipfs/")

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "https://a.example/ipfs/", snap[0].Gateway)
	assert.Equal(t, "open", snap[0].State)
	assert.Equal(t, 1, snap[1].Failures)
}

func TestBreaker_OnTransitionCallback(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)

	got := make(chan [2]State, 1)
	b.OnTransition(func(gateway string, from, to State) {
		got <- [2]State{from, to}
	})
	b.RecordFailure(gw)
	b.RecordFailure(gw)

	select {
	case tr := <-got:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, tr)
	case <-time.After(time.Second):
		t.Fatal("transition callback not invoked")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
