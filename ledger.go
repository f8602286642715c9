package sqlexec

import "fmt"

// Bucket is a terminal disposition for a discovered script.
type Bucket int

const (
	BucketEmpty Bucket = iota + 1
	BucketCommitted
	BucketErrored
	BucketUnprocessed
)

func (b Bucket) String() string {
	switch b {
	case BucketEmpty:
		return "empty"
	case BucketCommitted:
		return "committed"
	case BucketErrored:
		return "errored"
	case BucketUnprocessed:
		return "unprocessed"
	default:
		return fmt.Sprintf("Bucket(%d)", int(b))
	}
}

// FileError pairs an errored script with its error record.
type FileError struct {
	File ScriptFile
	Err  *ExecError
}

// RunOutcome is the read-only view of a ledger once a run has ended.
type RunOutcome struct {
	Found       []ScriptFile
	Anomalies   []Anomaly
	Empty       []ScriptFile
	Committed   []ScriptFile
	Errored     []FileError
	Unprocessed []ScriptFile
}

// ErroredFiles returns the scripts in the errored bucket.
func (o RunOutcome) ErroredFiles() []ScriptFile {
	files := make([]ScriptFile, 0, len(o.Errored))
	for _, fe := range o.Errored {
		files = append(files, fe.File)
	}
	return files
}

// Ledger records the final disposition of every script in a run. Each script
// lands in exactly one terminal bucket; recording it twice is a programming
// error and panics.
type Ledger struct {
	found     []ScriptFile
	known     map[string]bool
	anomalies []Anomaly
	placed    map[string]Bucket

	empty       []ScriptFile
	committed   []ScriptFile
	errored     []FileError
	unprocessed []ScriptFile
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		known:  make(map[string]bool),
		placed: make(map[string]Bucket),
	}
}

// AddFound registers the sorted scripts discovered by the scan.
func (l *Ledger) AddFound(files ...ScriptFile) {
	for _, f := range files {
		if l.known[f.Path] {
			panic(fmt.Sprintf("sqlexec: script %s registered twice", f.Rel))
		}
		l.known[f.Path] = true
		l.found = append(l.found, f)
	}
}

// AddAnomalies registers scan anomalies. Anomalies are terminal on arrival.
func (l *Ledger) AddAnomalies(anomalies ...Anomaly) {
	l.anomalies = append(l.anomalies, anomalies...)
}

func (l *Ledger) place(f ScriptFile, b Bucket) {
	if !l.known[f.Path] {
		panic(fmt.Sprintf("sqlexec: script %s recorded as %s but was never found", f.Rel, b))
	}
	if prev, ok := l.placement(f); ok {
		panic(fmt.Sprintf("sqlexec: script %s recorded as %s, already %s", f.Rel, b, prev))
	}
	l.placed[f.Path] = b
}

// Empty records f as empty or whitespace-only.
func (l *Ledger) Empty(f ScriptFile) {
	l.place(f, BucketEmpty)
	l.empty = append(l.empty, f)
}

// Committed records f as committed, or as executed inside a transaction that
// has not been committed yet.
func (l *Ledger) Committed(f ScriptFile) {
	l.place(f, BucketCommitted)
	l.committed = append(l.committed, f)
}

// Errored records f as failed.
func (l *Ledger) Errored(f ScriptFile, err *ExecError) {
	l.place(f, BucketErrored)
	l.errored = append(l.errored, FileError{File: f, Err: err})
}

// Unprocessed records files as never attempted.
func (l *Ledger) Unprocessed(files ...ScriptFile) {
	for _, f := range files {
		l.place(f, BucketUnprocessed)
		l.unprocessed = append(l.unprocessed, f)
	}
}

// placement returns where f was recorded, if anywhere.
func (l *Ledger) placement(f ScriptFile) (Bucket, bool) {
	b, ok := l.placed[f.Path]
	return b, ok
}

// Pending returns found scripts that are not yet in a terminal bucket, in
// discovery order.
func (l *Ledger) Pending() []ScriptFile {
	var pending []ScriptFile
	for _, f := range l.found {
		if _, ok := l.placed[f.Path]; !ok {
			pending = append(pending, f)
		}
	}
	return pending
}

// Outcome returns a copy of the ledger's contents.
func (l *Ledger) Outcome() RunOutcome {
	return RunOutcome{
		Found:       append([]ScriptFile(nil), l.found...),
		Anomalies:   append([]Anomaly(nil), l.anomalies...),
		Empty:       append([]ScriptFile(nil), l.empty...),
		Committed:   append([]ScriptFile(nil), l.committed...),
		Errored:     append([]FileError(nil), l.errored...),
		Unprocessed: append([]ScriptFile(nil), l.unprocessed...),
	}
}
