package sqlexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Connection retry defaults.
const (
	DefaultConnectAttempts = 5
	DefaultConnectDelay    = 3 * time.Second
)

// Dialer opens a new Session.
type Dialer func(ctx context.Context) (Session, error)

// SQLDialer returns a Dialer that opens driverName with dsn.
func SQLDialer(driverName, dsn string) Dialer {
	return func(ctx context.Context) (Session, error) {
		return OpenSession(ctx, driverName, dsn)
	}
}

// Connector owns the run's single database session. It establishes the
// session with a bounded, fixed-delay retry loop and re-establishes it when
// it has been lost.
type Connector struct {
	Dial Dialer

	// MaxAttempts bounds connection attempts. Defaults to DefaultConnectAttempts.
	MaxAttempts int

	// Delay is the pause between attempts. Negative means no pause;
	// zero means DefaultConnectDelay.
	Delay time.Duration

	Logger *zap.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error

	session   Session
	closeOnce sync.Once
	closeErr  error
}

func (c *Connector) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Connector) attempts() int {
	if c.MaxAttempts <= 0 {
		return DefaultConnectAttempts
	}
	return c.MaxAttempts
}

func (c *Connector) delay() time.Duration {
	switch {
	case c.Delay < 0:
		return 0
	case c.Delay == 0:
		return DefaultConnectDelay
	default:
		return c.Delay
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Connect opens a new session, retrying up to MaxAttempts times. When every
// attempt fails the returned error wraps ErrConnectionExhausted.
func (c *Connector) Connect(ctx context.Context) error {
	if c.Dial == nil {
		return errors.New("sqlexec: connector has no dialer")
	}
	sleep := c.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	log := c.log()
	limit := c.attempts()

	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		log.Info("attempting database connection",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", limit))
		s, err := c.Dial(ctx)
		if err == nil {
			c.session = s
			log.Info("database connection established")
			return nil
		}
		lastErr = err
		log.Warn("connection attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < limit {
			log.Info("retrying connection", zap.Duration("delay", c.delay()))
			if err := sleep(ctx, c.delay()); err != nil {
				return fmt.Errorf("connection retry interrupted: %w", err)
			}
		}
	}
	log.Error("maximum connection attempts reached", zap.Int("max_attempts", limit))
	return fmt.Errorf("%w after %d attempts: %w", ErrConnectionExhausted, limit, lastErr)
}

// Session returns the current session, which may be nil.
func (c *Connector) Session() Session {
	return c.session
}

// Check pings the current session without reconnecting.
func (c *Connector) Check(ctx context.Context) error {
	if c.session == nil {
		return errors.New("no database session")
	}
	return c.session.Ping(ctx)
}

// Ensure returns a live session, reconnecting with the retry policy if the
// current one is missing or no longer answers.
func (c *Connector) Ensure(ctx context.Context) (Session, error) {
	if c.session != nil {
		err := c.session.Ping(ctx)
		if err == nil {
			return c.session, nil
		}
		c.log().Warn("database connection lost", zap.Error(err))
		_ = c.session.Close()
		c.session = nil
	}
	c.log().Warn("connection lost or not established, attempting to (re)connect")
	if err := c.Connect(ctx); err != nil {
		c.log().Error("unable to establish database connection", zap.Error(err))
		return nil, err
	}
	return c.session, nil
}

// Commit commits the open transaction.
func (c *Connector) Commit() error {
	if c.session == nil {
		return errors.New("no database session to commit")
	}
	return c.session.Commit()
}

// Rollback rolls back the open transaction, if any. reason is logged so the
// audit trail shows why the rollback happened.
func (c *Connector) Rollback(reason string) error {
	log := c.log().With(zap.String("reason", reason))
	if c.session == nil {
		log.Warn("cannot roll back, no database session")
		return nil
	}
	if !c.session.InTransaction() {
		log.Info("no active transaction to roll back")
		return nil
	}
	log.Warn("attempting rollback")
	if err := c.session.Rollback(); err != nil {
		log.Error("rollback failed", zap.Error(err))
		return err
	}
	log.Info("rollback successful")
	return nil
}

// Close rolls back any open transaction and closes the session. Only the
// first call does anything.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		if c.session == nil {
			return
		}
		if c.session.InTransaction() {
			_ = c.Rollback("closing connection with open transaction")
		}
		c.closeErr = c.session.Close()
		c.session = nil
		if c.closeErr != nil {
			c.log().Error("error closing database connection", zap.Error(c.closeErr))
			return
		}
		c.log().Info("database connection closed")
	})
	return c.closeErr
}
