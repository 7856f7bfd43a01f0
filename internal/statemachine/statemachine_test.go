package statemachine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proxima-xr/scenematch/pkg/query"
)

type step struct {
	matched bool
	advance time.Duration
	state   query.State
	event   Event
}

func run(t *testing.T, cfg Config, steps []step) *Machine {
	t.Helper()

	now := time.Unix(0, 0)
	var m Machine
	m.Start(now, cfg)
	for i, s := range steps {
		now = now.Add(s.advance)
		event := m.Step(s.matched, now, cfg)
		require.Equal(t, s.event, event, "step %d event", i)
		require.Equal(t, s.state, m.State, "step %d state", i)
	}
	return &m
}

func TestMachine(t *testing.T) {
	tick := 100 * time.Millisecond

	for _, tc := range []struct {
		name  string
		cfg   Config
		steps []step
	}{
		{
			name: "acquire_within_two_ticks",
			steps: []step{
				{matched: true, advance: tick, state: query.Acquiring},
				{matched: true, advance: tick, state: query.Tracking, event: Acquire},
				{matched: true, advance: tick, state: query.Tracking, event: Update},
			},
		},
		{
			name: "first_unmatched_tick_enters_querying",
			steps: []step{
				{matched: false, advance: tick, state: query.Querying},
				{matched: false, advance: tick, state: query.Querying},
				{matched: true, advance: tick, state: query.Acquiring},
			},
		},
		{
			name: "acquiring_falls_back_without_event",
			steps: []step{
				{matched: true, advance: tick, state: query.Acquiring},
				{matched: false, advance: tick, state: query.Querying},
			},
		},
		{
			name: "confirm_ticks",
			cfg:  Config{ConfirmTicks: 3},
			steps: []step{
				{matched: true, advance: tick, state: query.Acquiring},
				{matched: true, advance: tick, state: query.Acquiring},
				{matched: true, advance: tick, state: query.Acquiring},
				{matched: true, advance: tick, state: query.Tracking, event: Acquire},
			},
		},
		{
			name: "loss_without_reacquire_is_terminal",
			steps: []step{
				{matched: true, advance: tick, state: query.Acquiring},
				{matched: true, advance: tick, state: query.Tracking, event: Acquire},
				{matched: false, advance: tick, state: query.Unavailable, event: Loss},
				{matched: true, advance: tick, state: query.Unavailable},
			},
		},
		{
			name: "loss_with_reacquire_resumes",
			cfg:  Config{ReacquireOnLoss: true},
			steps: []step{
				{matched: true, advance: tick, state: query.Acquiring},
				{matched: true, advance: tick, state: query.Tracking, event: Acquire},
				{matched: false, advance: tick, state: query.Resuming, event: Loss},
				{matched: false, advance: tick, state: query.Querying},
				{matched: true, advance: tick, state: query.Acquiring},
				{matched: true, advance: tick, state: query.Tracking, event: Acquire},
			},
		},
		{
			name: "timeout_while_searching",
			cfg:  Config{Timeout: time.Second},
			steps: []step{
				{matched: false, advance: 500 * time.Millisecond, state: query.Querying},
				{matched: false, advance: 500 * time.Millisecond, state: query.Unavailable, event: Timeout},
				{matched: true, advance: tick, state: query.Unavailable},
			},
		},
		{
			name: "timeout_while_acquiring",
			cfg:  Config{Timeout: time.Second, ConfirmTicks: 5},
			steps: []step{
				{matched: true, advance: 500 * time.Millisecond, state: query.Acquiring},
				{matched: true, advance: 600 * time.Millisecond, state: query.Unavailable, event: Timeout},
			},
		},
		{
			name: "tracking_resets_timeout",
			cfg:  Config{Timeout: time.Second},
			steps: []step{
				{matched: true, advance: 400 * time.Millisecond, state: query.Acquiring},
				{matched: true, advance: 400 * time.Millisecond, state: query.Tracking, event: Acquire},
				{matched: true, advance: 900 * time.Millisecond, state: query.Tracking, event: Update},
				{matched: true, advance: 900 * time.Millisecond, state: query.Tracking, event: Update},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			run(t, tc.cfg, tc.steps)
		})
	}
}

func TestTimeoutFiresOnceAndResume(t *testing.T) {
	cfg := Config{Timeout: time.Second}
	now := time.Unix(0, 0)

	var m Machine
	m.Start(now, cfg)
	require.True(t, m.Active())
	require.Equal(t, now.Add(time.Second), m.Deadline())

	now = now.Add(2 * time.Second)
	require.Equal(t, Timeout, m.Step(false, now, cfg))
	require.True(t, m.Halted)
	require.False(t, m.Active())

	for i := 0; i < 5; i++ {
		now = now.Add(time.Second)
		require.Equal(t, None, m.Step(false, now, cfg))
	}

	m.Resume(now, cfg)
	require.Equal(t, query.Resuming, m.State)
	require.True(t, m.Active())
	require.Equal(t, now.Add(time.Second), m.Deadline())

	require.Equal(t, None, m.Step(true, now.Add(100*time.Millisecond), cfg))
	require.Equal(t, query.Acquiring, m.State)
}

func TestExpire(t *testing.T) {
	cfg := Config{Timeout: time.Second, ConfirmTicks: 2}
	now := time.Unix(0, 0)

	var m Machine
	m.Start(now, cfg)
	require.Equal(t, None, m.Expire(now.Add(500*time.Millisecond)))
	require.Equal(t, query.Unknown, m.State, "expire does not count as a tick")

	require.Equal(t, Timeout, m.Expire(now.Add(time.Second)))
	require.Equal(t, query.Unavailable, m.State)
	require.True(t, m.Halted)
	require.Equal(t, None, m.Expire(now.Add(2*time.Second)), "a halted machine times out once")

	m.Resume(now, cfg)
	require.Equal(t, None, m.Step(true, now, cfg))
	require.Equal(t, query.Acquiring, m.State)
	require.Equal(t, None, m.Expire(now.Add(time.Hour)), "only searching machines expire")
	require.Equal(t, query.Acquiring, m.State)

	var disarmed Machine
	disarmed.Start(now, Config{})
	require.Equal(t, None, disarmed.Expire(time.Unix(1<<30, 0)))
}

func TestDisabledTimeout(t *testing.T) {
	var m Machine
	m.Start(time.Unix(0, 0), Config{})
	require.True(t, m.Deadline().IsZero())
	require.Equal(t, None, m.Step(false, time.Unix(1<<30, 0), Config{}))
	require.Equal(t, query.Querying, m.State)
}

func TestEventString(t *testing.T) {
	require.Equal(t, "acquire", Acquire.String())
	require.Equal(t, "timeout", Timeout.String())
	require.Equal(t, "invalid", Event(42).String())
}
