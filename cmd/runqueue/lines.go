package main

import (
	"fmt"
	"os"
	"strings"
)

// pendingJobs parses the command file. Blank lines and lines already marked
// complete with a "# " prefix are skipped; line indices refer to the raw
// file so completed lines can be rewritten in place.
func pendingJobs(path string) ([]job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read command file: %w", err)
	}

	var jobs []job
	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		jobs = append(jobs, job{line: i, cmd: trimmed})
	}
	return jobs, nil
}

// markComplete prefixes one raw line with "# ", writing a backup of the
// previous file contents first.
func markComplete(path string, lineIdx int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read command file: %w", err)
	}
	if err := os.WriteFile(path+".bak", data, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	if lineIdx < 0 || lineIdx >= len(lines) {
		return fmt.Errorf("line %d outside command file", lineIdx)
	}
	lines[lineIdx] = "# " + lines[lineIdx]
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("rewrite command file: %w", err)
	}
	return nil
}
