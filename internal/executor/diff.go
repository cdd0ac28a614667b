package executor

import "strings"

// DiffSize counts changed lines between before and after: lines present in
// one version and not matched in the other. Line order is ignored.
func DiffSize(before, after []byte) int {
	counts := make(map[string]int)
	for _, l := range splitLines(before) {
		counts[l]++
	}
	for _, l := range splitLines(after) {
		counts[l]--
	}
	n := 0
	for _, c := range counts {
		if c < 0 {
			c = -c
		}
		n += c
	}
	return n
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}
