package sqlexec

import (
	"sort"
	"strings"
)

// naturalKey splits s into alternating text and digit runs. The key always
// starts with a text run (possibly empty), so position i holds text when i is
// even and digits when i is odd.
func naturalKey(s string) []string {
	var key []string
	start := 0
	digits := false
	for i := 0; i < len(s); i++ {
		isDigit := s[i] >= '0' && s[i] <= '9'
		if isDigit != digits {
			key = append(key, s[start:i])
			start = i
			digits = isDigit
		}
	}
	return append(key, s[start:])
}

// compareDigits compares two digit runs by numeric value without parsing, so
// arbitrarily long runs cannot overflow.
func compareDigits(a, b string) int {
	ta := strings.TrimLeft(a, "0")
	tb := strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	return strings.Compare(ta, tb)
}

// NaturalCompare orders a and b so that embedded integers compare by value
// ("2" < "10") and everything else compares bytewise. Equal numeric values
// with different zero padding fall back to a plain string comparison, which
// keeps the order total.
func NaturalCompare(a, b string) int {
	ka, kb := naturalKey(a), naturalKey(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		var c int
		if i%2 == 0 {
			c = strings.Compare(ka[i], kb[i])
		} else {
			c = compareDigits(ka[i], kb[i])
		}
		if c != 0 {
			return c
		}
	}
	if len(ka) != len(kb) {
		if len(ka) < len(kb) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// NaturalLess reports whether a sorts before b in natural order.
func NaturalLess(a, b string) bool {
	return NaturalCompare(a, b) < 0
}

// SortScripts returns a naturally ordered copy of files keyed on their path
// relative to the scan root. The input is not modified.
func SortScripts(files []ScriptFile) []ScriptFile {
	sorted := make([]ScriptFile, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		return NaturalLess(sorted[i].Rel, sorted[j].Rel)
	})
	return sorted
}

// SortAnomalies returns a naturally ordered copy of anomalies.
func SortAnomalies(anomalies []Anomaly) []Anomaly {
	sorted := make([]Anomaly, len(anomalies))
	copy(sorted, anomalies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return NaturalLess(sorted[i].Rel, sorted[j].Rel)
	})
	return sorted
}
