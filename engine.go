package sqlexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a stage of a run.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateScanFatal
	StateSorting
	StateRunning
	StateHalted
	StateCompleted
	StateReporting
	StateDone
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateScanning:  "scanning",
	StateScanFatal: "scan-fatal",
	StateSorting:   "sorting",
	StateRunning:   "running",
	StateHalted:    "halted",
	StateCompleted: "completed",
	StateReporting: "reporting",
	StateDone:      "done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// RunResult is produced once, when a run ends.
type RunResult struct {
	ID      string
	Mode    Mode
	Started time.Time

	// Success is false after any fatal condition.
	Success bool

	// Final is the state the run ended in before reporting: StateScanFatal,
	// StateHalted or StateCompleted.
	Final State

	// Err is the fatal error, if any.
	Err error

	Outcome RunOutcome
}

// CommittedLabel names the committed listing. In all-or-nothing mode a failed
// run persisted nothing, so its successfully executed scripts are only
// "executable".
func (r *RunResult) CommittedLabel() string {
	if r.Mode == AllOrNothing && !r.Success {
		return "executable_files"
	}
	return "committed_files"
}

// Reporter persists a finished run. Reporting failures are logged and do not
// change the run's outcome.
type Reporter interface {
	Report(ctx context.Context, result *RunResult) error
}

// ErrScanAnomalies is the fatal error of a run halted by scan anomalies.
var ErrScanAnomalies = errors.New("scan anomalies found")

// Runner applies the scripts under Root to the database behind Connector.
type Runner struct {
	Mode Mode
	Root string

	Connector *Connector

	// Scanner defaults to a Scanner for ScriptExt sharing Logger.
	Scanner *Scanner

	// Reporter, if set, receives the result after the run ends.
	Reporter Reporter

	Logger *zap.Logger

	// ID identifies the run in logs and reports. Generated when empty.
	ID string

	// readScript is swapped out in tests.
	readScript func(ScriptFile) (string, error)
}

// run carries the state of a single run through its components.
type run struct {
	mode   Mode
	policy policy
	conn   *Connector
	ledger *Ledger
	log    *zap.Logger
	read   func(ScriptFile) (string, error)

	state    State
	fatal    bool
	fatalErr error

	// executed counts scripts run in the currently open deferred transaction.
	executed int
}

func (rs *run) enter(s State) {
	rs.log.Debug("run state", zap.Stringer("from", rs.state), zap.Stringer("to", s))
	rs.state = s
}

func (rs *run) halt(err error) {
	rs.fatal = true
	if rs.fatalErr == nil {
		rs.fatalErr = err
	}
	rs.enter(StateHalted)
}

// Run scans, sorts and executes the scripts, then hands the result to the
// Reporter. The returned error is non-nil only when the run could not start,
// e.g. when Root is not a directory; every other failure is reported through
// RunResult.Success. The connection is closed before Run returns.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	if r.Connector == nil {
		return nil, errors.New("sqlexec: runner has no connector")
	}
	mode, err := ParseMode(string(r.Mode))
	if err != nil {
		return nil, err
	}
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("run_id", id), zap.Stringer("mode", mode))
	read := r.readScript
	if read == nil {
		read = ScriptFile.readSQL
	}
	scanner := r.Scanner
	if scanner == nil {
		scanner = &Scanner{Logger: log}
	}

	rs := &run{
		mode:   mode,
		policy: mode.policy(),
		conn:   r.Connector,
		ledger: NewLedger(),
		log:    log,
		read:   read,
	}
	defer r.Connector.Close()

	result := &RunResult{ID: id, Mode: mode, Started: time.Now()}
	log.Info("starting processing of SQL script files", zap.String("root", r.Root))

	rs.enter(StateScanning)
	scan, err := scanner.Scan(r.Root)
	if err != nil {
		log.Error("script directory not usable, halting", zap.Error(err))
		return nil, err
	}
	anomalies := SortAnomalies(scan.Anomalies)
	rs.ledger.AddAnomalies(anomalies...)
	sorted := SortScripts(scan.Files)

	if len(anomalies) > 0 {
		log.Warn("unreadable script paths found during scan", zap.Int("anomalies", len(anomalies)))
		if mode.haltsOnAnomaly() {
			for _, a := range anomalies {
				log.Warn("file anomaly", zap.String("path", a.Rel), zap.String("reason", string(a.Reason)))
			}
			log.Error("file anomalies found, halting before transaction start")
			rs.enter(StateScanFatal)
			rs.fatal = true
			rs.fatalErr = fmt.Errorf("%w: %d", ErrScanAnomalies, len(anomalies))
			rs.ledger.AddFound(sorted...)
			rs.ledger.Unprocessed(rs.ledger.Pending()...)
			return r.finish(ctx, rs, result), nil
		}
	}

	rs.enter(StateSorting)
	rs.ledger.AddFound(sorted...)
	log.Info("search and sorting complete", zap.Int("files", len(sorted)))

	if len(sorted) == 0 {
		log.Warn("no valid SQL files found, nothing to execute")
		rs.enter(StateCompleted)
		return r.finish(ctx, rs, result), nil
	}

	rs.enter(StateRunning)
	if err := rs.conn.Connect(ctx); err != nil {
		log.Error("SQL script execution cannot proceed without a database connection", zap.Error(err))
		rs.ledger.Unprocessed(rs.ledger.Pending()...)
		rs.halt(err)
		return r.finish(ctx, rs, result), nil
	}

	log.Info("starting execution of SQL files", zap.Int("files", len(sorted)))
	rs.execute(ctx, sorted)
	log.Info("finished iterating through SQL script files")

	if rs.policy.deferCommit {
		rs.finalCommit()
	}
	if !rs.fatal {
		rs.enter(StateCompleted)
	}
	return r.finish(ctx, rs, result), nil
}

// finish fills in the result, logs the summary and runs the reporter.
func (r *Runner) finish(ctx context.Context, rs *run, result *RunResult) *RunResult {
	result.Success = !rs.fatal
	result.Err = rs.fatalErr
	result.Final = rs.state
	result.Outcome = rs.ledger.Outcome()

	out := result.Outcome
	rs.log.Info("execution summary",
		zap.Bool("success", result.Success),
		zap.Stringer("final_state", result.Final),
		zap.Int(result.CommittedLabel(), len(out.Committed)),
		zap.Int("empty_files", len(out.Empty)),
		zap.Int("errors", len(out.Errored)),
		zap.Int("file_anomalies", len(out.Anomalies)),
		zap.Int("unprocessed_files", len(out.Unprocessed)))

	if r.Reporter != nil {
		rs.enter(StateReporting)
		if err := r.Reporter.Report(ctx, result); err != nil {
			rs.log.Error("failed to write report", zap.Error(err))
		}
	}
	rs.enter(StateDone)
	return result
}

// execute runs the per-file protocol over files in order.
func (rs *run) execute(ctx context.Context, files []ScriptFile) {
	total := len(files)
	for i, f := range files {
		log := rs.log.With(
			zap.String("file", f.Rel),
			zap.Int("index", i+1),
			zap.Int("total", total))
		log.Info("processing file")

		if err := rs.ensure(ctx); err != nil {
			execErr := newExecError(KindConnection, f.Rel, err)
			rs.ledger.Errored(f, execErr)
			_ = rs.conn.Rollback("connection lost")
			log.Error("run halted: lost database connection", zap.Error(err))
			rs.halt(execErr)
			rs.ledger.Unprocessed(rs.ledger.Pending()...)
			return
		}

		bucket, execErr := rs.applyFile(ctx, log, f)
		if execErr == nil {
			switch bucket {
			case BucketEmpty:
				rs.ledger.Empty(f)
			case BucketCommitted:
				rs.ledger.Committed(f)
			}
			continue
		}

		rs.ledger.Errored(f, execErr)
		_ = rs.conn.Rollback(fmt.Sprintf("%s in %s", execErr.Kind, f.Rel))
		if rs.policy.deferCommit {
			rs.executed = 0
		}
		if rs.policy.continueOnError && execErr.Kind != KindUnexpected {
			log.Warn("skipping file after error, continuing with next file")
			continue
		}
		log.Error("run halted", zap.Int("halted_at", i+1), zap.Int("of", total))
		rs.halt(execErr)
		rs.ledger.Unprocessed(rs.ledger.Pending()...)
		return
	}
}

// ensure makes sure a session is available for the next file. Inside a
// deferred transaction that already holds work, a lost session cannot be
// replaced without losing that work, so no reconnect is attempted.
func (rs *run) ensure(ctx context.Context) error {
	if rs.policy.deferCommit && rs.executed > 0 {
		if err := rs.conn.Check(ctx); err != nil {
			return fmt.Errorf("connection lost mid-transaction with %d executed scripts: %w", rs.executed, err)
		}
		return nil
	}
	_, err := rs.conn.Ensure(ctx)
	return err
}

// applyFile reads, executes and (outside deferred mode) commits one script.
// It reports which bucket the script belongs in but does not record it.
func (rs *run) applyFile(ctx context.Context, log *zap.Logger, f ScriptFile) (bucket Bucket, execErr *ExecError) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("unexpected error processing file", zap.Any("panic", p), zap.Stack("stack"))
			bucket = BucketErrored
			execErr = &ExecError{
				Kind:    KindUnexpected,
				Path:    f.Rel,
				Message: fmt.Sprint(p),
				Err:     fmt.Errorf("panic: %v", p),
			}
		}
	}()

	script, err := rs.read(f)
	if err != nil {
		log.Error("file error: cannot read script", zap.Error(err))
		return BucketErrored, newExecError(KindRead, f.Rel, err)
	}
	if !utf8.ValidString(script) {
		log.Error("encoding error: script is not valid UTF-8")
		return BucketErrored, &ExecError{
			Kind:    KindRead,
			Path:    f.Rel,
			Message: "encoding error (need UTF-8)",
		}
	}
	if strings.TrimSpace(script) == "" {
		log.Warn("empty file, skipping")
		return BucketEmpty, nil
	}

	session := rs.conn.Session()
	log.Info("executing SQL script", zap.String("md5", checksum(script)))
	if err := session.Exec(ctx, script); err != nil {
		e := newExecError(KindStatement, f.Rel, err)
		log.Error("database execution error",
			zap.String("sqlstate", e.Code),
			zap.String("detail", e.Message))
		return BucketErrored, e
	}

	if rs.policy.deferCommit {
		rs.executed++
		log.Info("script added to transaction")
		return BucketCommitted, nil
	}

	if err := rs.conn.Commit(); err != nil {
		e := newExecError(KindCommit, f.Rel, err)
		log.Error("database commit error",
			zap.String("sqlstate", e.Code),
			zap.String("detail", e.Message))
		return BucketErrored, e
	}
	log.Info("transaction committed")
	return BucketCommitted, nil
}

// finalCommit closes the deferred transaction of an all-or-nothing run.
func (rs *run) finalCommit() {
	if rs.fatal {
		rs.log.Warn("commit skipped due to earlier fatal error")
		return
	}
	rs.log.Info("attempting final commit")
	if err := rs.conn.Commit(); err != nil {
		e := newExecError(KindCommit, "final commit", err)
		rs.log.Error("final commit failed",
			zap.String("sqlstate", e.Code),
			zap.String("detail", e.Message))
		_ = rs.conn.Rollback("final commit failure")
		rs.halt(e)
		return
	}
	rs.executed = 0
	rs.log.Info("final commit successful")
}
