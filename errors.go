package sqlexec

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrorKind classifies failures observed during a run.
type ErrorKind int

const (
	// KindScanAnomaly: a script path could not be read as a regular file.
	KindScanAnomaly ErrorKind = iota + 1
	// KindConnection: the session could not be established or re-established.
	KindConnection
	// KindRead: a script passed the scan but its content could not be read.
	KindRead
	// KindStatement: the database rejected a script.
	KindStatement
	// KindCommit: committing the transaction failed.
	KindCommit
	// KindUnexpected: anything else. Always fatal.
	KindUnexpected
)

var kindNames = map[ErrorKind]string{
	KindScanAnomaly: "scan anomaly",
	KindConnection:  "connection error",
	KindRead:        "read error",
	KindStatement:   "statement error",
	KindCommit:      "commit error",
	KindUnexpected:  "unexpected error",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "ErrorKind(" + strconv.Itoa(int(k)) + ")"
}

// ErrConnectionExhausted is returned when every connection attempt failed.
var ErrConnectionExhausted = errors.New("database connection attempts exhausted")

// ExecError is the error record kept for a script that failed.
type ExecError struct {
	Kind ErrorKind

	// Path is the script's path relative to the scan root.
	Path string

	// Code is the database's machine-readable status (SQLSTATE for
	// PostgreSQL, the extended result code for SQLite). Empty when the
	// failure did not come from the database.
	Code string

	// Message is the database's human-readable message, or the error text.
	Message string

	Err error
}

func (e *ExecError) Error() string {
	where := e.Kind.String()
	if e.Path != "" {
		where += " in " + e.Path
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: [%s] %s", where, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// newExecError builds an ExecError, pulling the status code and message out
// of any driver error found in err's chain.
func newExecError(kind ErrorKind, path string, err error) *ExecError {
	code, msg := DatabaseErrorDetails(err)
	return &ExecError{Kind: kind, Path: path, Code: code, Message: msg, Err: err}
}

// DatabaseErrorDetails returns the status code and message carried by a
// driver error. Errors that did not come from a supported driver yield an
// empty code and err.Error() as the message.
func DatabaseErrorDetails(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	if code, msg, ok := postgresErrorDetails(err); ok {
		return code, msg
	}
	if code, msg, ok := sqliteErrorDetails(err); ok {
		return code, msg
	}
	return "", err.Error()
}
