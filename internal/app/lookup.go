package app

import (
	"bufio"
	"io"
	"strings"

	"github.com/scriptducks/hashes-gui/internal/domain"
)

// DedupeHashes trims lines and drops blanks and repeats, keeping first-seen order.
func DedupeHashes(lines []string) []string {
	out := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		h := strings.TrimSpace(line)
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// ReadHashes reads one hash per line from r, ignoring invalid UTF-8.
func ReadHashes(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.ToValidUTF8(sc.Text(), ""))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return DedupeHashes(lines), nil
}

// WriteLookupResults writes one "hash[:salt]:plaintext[:algorithm]" line per found hash.
func WriteLookupResults(w io.Writer, founds []domain.LookupFound, includeAlgorithm bool) error {
	bw := bufio.NewWriter(w)
	for _, f := range founds {
		parts := []string{f.Hash.String()}
		if f.Salt != "" {
			parts = append(parts, f.Salt.String())
		}
		parts = append(parts, f.Plaintext.String())
		if includeAlgorithm {
			parts = append(parts, f.Algorithm.String())
		}
		if _, err := bw.WriteString(strings.Join(parts, ":") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
