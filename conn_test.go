package sqlexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// flakyDialer fails the first failures calls and then returns sessions from
// the sessions slice in order.
type flakyDialer struct {
	failures int
	sessions []*fakeSession
	calls    int
}

func (d *flakyDialer) dial(context.Context) (Session, error) {
	d.calls++
	if d.calls <= d.failures {
		return nil, errors.New("connection refused")
	}
	i := d.calls - d.failures - 1
	if i >= len(d.sessions) {
		return nil, errors.New("no more sessions")
	}
	return d.sessions[i], nil
}

func recordSleeps(c *Connector) *[]time.Duration {
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return &slept
}

func TestConnectRetriesThenSucceeds(t *testing.T) {
	sess := newFakeSession()
	d := &flakyDialer{failures: 2, sessions: []*fakeSession{sess}}
	c := &Connector{Dial: d.dial}
	slept := recordSleeps(c)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 3, d.calls)
	assert.Equal(t, []time.Duration{DefaultConnectDelay, DefaultConnectDelay}, *slept)
	assert.Same(t, sess, c.Session())
}

func TestConnectExhausted(t *testing.T) {
	d := &flakyDialer{failures: 100}
	c := &Connector{Dial: d.dial, MaxAttempts: 3, Delay: 10 * time.Millisecond}
	slept := recordSleeps(c)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionExhausted)
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 3, d.calls)
	assert.Len(t, *slept, 2, "no pause after the last attempt")
	assert.Nil(t, c.Session())
}

func TestConnectInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &flakyDialer{failures: 100}
	c := &Connector{Dial: d.dial, MaxAttempts: 3, Delay: time.Hour}

	err := c.Connect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, d.calls)
}

func TestConnectNoDialer(t *testing.T) {
	assert.Error(t, (&Connector{}).Connect(context.Background()))
}

func TestEnsureReconnectsLostSession(t *testing.T) {
	first, second := newFakeSession(), newFakeSession()
	first.ping = func() error { return errors.New("server closed the connection") }
	d := &flakyDialer{sessions: []*fakeSession{first, second}}
	c := &Connector{Dial: d.dial, Delay: -1}

	require.NoError(t, c.Connect(context.Background()))
	s, err := c.Ensure(context.Background())
	require.NoError(t, err)
	assert.Same(t, second, s)
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 2, d.calls)

	// A healthy session is kept.
	s, err = c.Ensure(context.Background())
	require.NoError(t, err)
	assert.Same(t, second, s)
	assert.Equal(t, 2, d.calls)
}

func TestCheckDoesNotReconnect(t *testing.T) {
	sess := newFakeSession()
	sess.ping = func() error { return errors.New("gone") }
	d := &flakyDialer{sessions: []*fakeSession{sess}}
	c := &Connector{Dial: d.dial}

	assert.Error(t, c.Check(context.Background()), "no session yet")
	require.NoError(t, c.Connect(context.Background()))
	assert.EqualError(t, c.Check(context.Background()), "gone")
	assert.Equal(t, 1, d.calls)
}

func TestRollbackLogsReason(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sess := newFakeSession()
	d := &flakyDialer{sessions: []*fakeSession{sess}}
	c := &Connector{Dial: d.dial, Logger: zap.New(core)}

	require.NoError(t, c.Rollback("before connect"))
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Rollback("nothing open"))
	assert.Equal(t, 0, sess.rollbacks)

	require.NoError(t, sess.Exec(context.Background(), "SELECT 1"))
	require.NoError(t, c.Rollback("statement error in 2.sql"))
	assert.Equal(t, 1, sess.rollbacks)

	entries := logs.FilterField(zap.String("reason", "statement error in 2.sql")).All()
	require.NotEmpty(t, entries)
	assert.Equal(t, "attempting rollback", entries[0].Message)
	assert.Equal(t, 1, logs.FilterMessage("cannot roll back, no database session").Len())
}

func TestCloseOnce(t *testing.T) {
	sess := newFakeSession()
	d := &flakyDialer{sessions: []*fakeSession{sess}}
	c := &Connector{Dial: d.dial}

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, sess.Exec(context.Background(), "INSERT"))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, sess.closed)
	assert.Equal(t, 1, sess.rollbacks, "open transaction rolled back on close")
	assert.Nil(t, c.Session())
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
