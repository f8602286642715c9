package sqlexec

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	leadingDigits = regexp.MustCompile(`^[0-9]+`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
)

// NewScript creates an empty script in dir named "<number>_<description>.sql"
// and returns its path.
// mode: "int" (default) uses one more than the highest numeric prefix among
// the scripts directly in dir, padded to three digits; "timestamp" uses the
// Unix time.
func NewScript(dir, description, mode string) (string, error) {
	desc := kebabCase(description)
	if desc == "" {
		return "", fmt.Errorf("description %q has no usable characters", description)
	}

	var number string
	if strings.ToLower(mode) == "timestamp" {
		number = strconv.FormatInt(time.Now().Unix(), 10)
	} else {
		next, err := nextScriptNumber(dir)
		if err != nil {
			return "", err
		}
		number = fmt.Sprintf("%03d", next)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s%s", number, desc, ScriptExt))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create script %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString("-- Write your SQL here\n"); err != nil {
		return "", fmt.Errorf("failed to write script %s: %w", path, err)
	}
	return path, nil
}

func nextScriptNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to scan script directory: %w", err)
	}
	max := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ScriptExt) {
			continue
		}
		prefix := leadingDigits.FindString(e.Name())
		if prefix == "" {
			continue
		}
		num, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if num > max {
			max = num
		}
	}
	return max + 1, nil
}

// kebabCase converts a string to kebab-case.
func kebabCase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
