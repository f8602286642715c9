package sqlexec

import (
	"fmt"
	"strings"
)

// Mode is the transaction policy for a run. It never changes mid-run.
type Mode string

const (
	// PerFile commits after each script. A failing script is rolled back
	// and the run continues with the next one.
	PerFile Mode = "per-file"

	// PerFileUntilError commits after each script and halts on the first
	// failure of any kind.
	PerFileUntilError Mode = "per-file-until-error"

	// AllOrNothing runs every script inside one transaction that is
	// committed only if all of them succeed.
	AllOrNothing Mode = "all-or-nothing"
)

// Modes lists the supported modes in the order they are documented.
var Modes = []Mode{PerFile, AllOrNothing, PerFileUntilError}

// ParseMode validates s as a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("transaction mode %q not supported. Must be one of: per-file, all-or-nothing, per-file-until-error", s)
}

func (m Mode) String() string {
	return string(m)
}

// policy is the pair of decisions that distinguishes the modes.
type policy struct {
	// continueOnError keeps the loop going after a file-local failure.
	continueOnError bool

	// deferCommit holds every script in one transaction until the end.
	deferCommit bool
}

func (m Mode) policy() policy {
	switch m {
	case PerFile:
		return policy{continueOnError: true}
	case AllOrNothing:
		return policy{deferCommit: true}
	default:
		return policy{}
	}
}

// haltsOnAnomaly reports whether scan anomalies stop the run before any
// script executes.
func (m Mode) haltsOnAnomaly() bool {
	return !m.policy().continueOnError
}
