package sqlexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerBuckets(t *testing.T) {
	files := scripts("1.sql", "2.sql", "3.sql", "4.sql")
	l := NewLedger()
	l.AddFound(files...)
	l.AddAnomalies(Anomaly{Rel: "5.sql", Reason: ReasonBrokenLink})

	assert.Equal(t, files, l.Pending())

	l.Committed(files[0])
	l.Empty(files[1])
	l.Errored(files[2], &ExecError{Kind: KindStatement, Path: "3.sql", Message: "boom"})
	assert.Equal(t, files[3:], l.Pending())
	l.Unprocessed(files[3])
	assert.Empty(t, l.Pending())

	b, ok := l.placement(files[2])
	require.True(t, ok)
	assert.Equal(t, BucketErrored, b)

	out := l.Outcome()
	assert.Equal(t, files, out.Found)
	assert.Equal(t, []string{"1.sql"}, rels(out.Committed))
	assert.Equal(t, []string{"2.sql"}, rels(out.Empty))
	assert.Equal(t, []string{"3.sql"}, rels(out.ErroredFiles()))
	assert.Equal(t, "boom", out.Errored[0].Err.Message)
	assert.Equal(t, []string{"4.sql"}, rels(out.Unprocessed))
	require.Len(t, out.Anomalies, 1)
	assert.Equal(t, ReasonBrokenLink, out.Anomalies[0].Reason)
}

func TestLedgerRejectsSecondDisposition(t *testing.T) {
	files := scripts("1.sql")
	l := NewLedger()
	l.AddFound(files...)
	l.Committed(files[0])

	assert.Panics(t, func() { l.Errored(files[0], &ExecError{Kind: KindCommit}) })
	assert.Panics(t, func() { l.Unprocessed(files[0]) })
	assert.Panics(t, func() { l.Committed(files[0]) })
}

func TestLedgerRejectsUnknownScript(t *testing.T) {
	l := NewLedger()
	assert.Panics(t, func() { l.Empty(ScriptFile{Path: "/x.sql", Rel: "x.sql"}) })
}

func TestLedgerRejectsDuplicateDiscovery(t *testing.T) {
	l := NewLedger()
	l.AddFound(scripts("1.sql")...)
	assert.Panics(t, func() { l.AddFound(scripts("1.sql")...) })
}

func TestLedgerOutcomeIsACopy(t *testing.T) {
	files := scripts("1.sql", "2.sql")
	l := NewLedger()
	l.AddFound(files...)
	l.Committed(files[0])

	out := l.Outcome()
	out.Committed[0] = ScriptFile{Rel: "changed"}
	assert.Equal(t, []string{"1.sql"}, rels(l.Outcome().Committed))
}

func TestCommittedLabel(t *testing.T) {
	tests := []struct {
		mode    Mode
		success bool
		want    string
	}{
		{AllOrNothing, false, "executable_files"},
		{AllOrNothing, true, "committed_files"},
		{PerFile, false, "committed_files"},
		{PerFileUntilError, false, "committed_files"},
	}
	for _, tt := range tests {
		r := &RunResult{Mode: tt.mode, Success: tt.success}
		assert.Equal(t, tt.want, r.CommittedLabel(), "%s success=%v", tt.mode, tt.success)
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMode("  Per-File ")
	require.NoError(t, err)
	assert.Equal(t, PerFile, got)

	_, err = ParseMode("sometimes")
	assert.ErrorContains(t, err, "not supported")
}

func TestModePolicy(t *testing.T) {
	assert.Equal(t, policy{continueOnError: true}, PerFile.policy())
	assert.Equal(t, policy{}, PerFileUntilError.policy())
	assert.Equal(t, policy{deferCommit: true}, AllOrNothing.policy())

	assert.False(t, PerFile.haltsOnAnomaly())
	assert.True(t, PerFileUntilError.haltsOnAnomaly())
	assert.True(t, AllOrNothing.haltsOnAnomaly())
}
