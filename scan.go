package sqlexec

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ScriptExt is the extension a path must carry to be considered a script.
const ScriptExt = ".sql"

// ScriptFile identifies one candidate script found under the scan root.
type ScriptFile struct {
	// Path is the absolute path to the file.
	Path string

	// Rel is the slash-separated path relative to the scan root. It is the
	// natural-sort key and the name used in reports.
	Rel string
}

// String returns the path used in reports.
func (f ScriptFile) String() string {
	return f.Rel
}

// readSQL reads the script's content.
func (f ScriptFile) readSQL() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AnomalyReason says why a path matching the script extension was rejected.
type AnomalyReason string

const (
	ReasonBrokenLink     AnomalyReason = "broken-symlink"
	ReasonDirectory      AnomalyReason = "directory"
	ReasonIrregular      AnomalyReason = "not-regular-file"
	ReasonUnreadable     AnomalyReason = "unreadable"
	ReasonUnreachableDir AnomalyReason = "unreachable-directory"
)

// Anomaly is a path that matched the script extension (or a directory that
// could not be traversed) but cannot be treated as a readable regular file.
type Anomaly struct {
	Path   string
	Rel    string
	Reason AnomalyReason
	Err    error
}

// String returns the anomaly's path and reason.
func (a Anomaly) String() string {
	if a.Err != nil {
		return fmt.Sprintf("%s (%s: %v)", a.Rel, a.Reason, a.Err)
	}
	return fmt.Sprintf("%s (%s)", a.Rel, a.Reason)
}

// ErrNotDirectory is returned by Scan when the root is not a directory.
var ErrNotDirectory = errors.New("script directory is not a directory")

// Scanner recursively collects script files below a root directory.
type Scanner struct {
	// Ext is the extension a file name must end with. Defaults to ScriptExt.
	Ext string

	Logger *zap.Logger
}

// ScanResult holds the two unordered sequences produced by a scan.
type ScanResult struct {
	Root      string
	Files     []ScriptFile
	Anomalies []Anomaly
}

// Scan walks root, following symbolic links, and classifies every entry whose
// name ends with the script extension. Failures below the root become
// anomalies; only a missing or unusable root is returned as an error.
func (s *Scanner) Scan(root string) (*ScanResult, error) {
	ext := s.Ext
	if ext == "" {
		ext = ScriptExt
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve script directory %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("script directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}
	if _, err := os.ReadDir(abs); err != nil {
		return nil, fmt.Errorf("read script directory %s: %w", root, err)
	}

	log.Info("searching for scripts", zap.String("root", abs), zap.String("ext", ext))
	w := &walker{
		root:    abs,
		ext:     ext,
		log:     log,
		active:  make(map[string]struct{}),
		result:  &ScanResult{Root: abs},
	}
	w.walk(abs)
	log.Info("search complete",
		zap.Int("files", len(w.result.Files)),
		zap.Int("anomalies", len(w.result.Anomalies)))
	return w.result, nil
}

type walker struct {
	root    string
	ext     string
	log     *zap.Logger
	active  map[string]struct{}
	result  *ScanResult
}

func (w *walker) rel(path string) string {
	r, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(r)
}

func (w *walker) anomaly(path string, reason AnomalyReason, err error) {
	a := Anomaly{Path: path, Rel: w.rel(path), Reason: reason, Err: err}
	w.log.Warn("scan anomaly",
		zap.String("path", a.Rel),
		zap.String("reason", string(reason)),
		zap.Error(err))
	w.result.Anomalies = append(w.result.Anomalies, a)
}

func (w *walker) walk(dir string) {
	// active holds the directories on the current descent path. Aliases of
	// other directories are walked under every name they have.
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.anomaly(dir, ReasonUnreachableDir, err)
		return
	}
	if _, onPath := w.active[real]; onPath {
		w.log.Debug("skipping symlink cycle", zap.String("path", w.rel(dir)))
		return
	}
	w.active[real] = struct{}{}
	defer delete(w.active, real)

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.anomaly(dir, ReasonUnreachableDir, err)
		return
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		matches := strings.HasSuffix(entry.Name(), w.ext)

		info, statErr := os.Stat(path)
		if statErr != nil {
			if matches {
				w.classifyStatError(path, entry, statErr)
			}
			continue
		}
		if info.IsDir() {
			if matches {
				w.anomaly(path, ReasonDirectory, nil)
			}
			w.walk(path)
			continue
		}
		if !matches {
			continue
		}
		if !info.Mode().IsRegular() {
			w.anomaly(path, ReasonIrregular, nil)
			continue
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			w.anomaly(path, ReasonUnreadable, openErr)
			continue
		}
		_ = f.Close()
		w.result.Files = append(w.result.Files, ScriptFile{Path: path, Rel: w.rel(path)})
	}
}

func (w *walker) classifyStatError(path string, entry fs.DirEntry, err error) {
	if entry.Type()&fs.ModeSymlink != 0 && errors.Is(err, fs.ErrNotExist) {
		w.anomaly(path, ReasonBrokenLink, err)
		return
	}
	w.anomaly(path, ReasonUnreadable, err)
}

// checksum returns the hex MD5 of content.
func checksum(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
