package sqlexec

import (
	"errors"
	"strconv"

	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
)

// sqliteErrorDetails extracts the extended result code and message from
// errors raised by either SQLite driver.
func sqliteErrorDetails(err error) (code, message string, ok bool) {
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return strconv.Itoa(int(cgoErr.ExtendedCode)), cgoErr.Error(), true
	}

	var pureErr *sqlite.Error
	if errors.As(err, &pureErr) {
		return strconv.Itoa(pureErr.Code()), pureErr.Error(), true
	}
	return "", "", false
}
