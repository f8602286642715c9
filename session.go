package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
)

// Session is one open database session with autocommit disabled: the first
// statement after a commit or rollback implicitly begins a new transaction.
type Session interface {
	// Exec submits a script's raw text inside the open transaction.
	Exec(ctx context.Context, script string) error

	// InTransaction reports whether a transaction is open.
	InTransaction() bool

	Commit() error
	Rollback() error

	// Ping reports whether the session is still usable.
	Ping(ctx context.Context) error

	Close() error
}

// sqlSession implements Session on a single connection pinned from a
// database/sql pool.
type sqlSession struct {
	db   *sql.DB
	conn *sql.Conn
	tx   *sql.Tx
}

// OpenSession opens driverName with dsn and pins exactly one connection.
func OpenSession(ctx context.Context, driverName, dsn string) (Session, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName, err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s database: %w", driverName, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driverName, err)
	}
	return &sqlSession{db: db, conn: conn}, nil
}

func (s *sqlSession) Exec(ctx context.Context, script string) error {
	if s.tx == nil {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		s.tx = tx
	}
	_, err := s.tx.ExecContext(ctx, script)
	return err
}

func (s *sqlSession) InTransaction() bool {
	return s.tx != nil
}

func (s *sqlSession) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit()
}

func (s *sqlSession) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Rollback()
}

func (s *sqlSession) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *sqlSession) Close() error {
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	connErr := s.conn.Close()
	dbErr := s.db.Close()
	if connErr != nil {
		return connErr
	}
	return dbErr
}
