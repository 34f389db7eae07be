package alarmlog

import (
	"bufio"
	"os"
	"slices"
	"strings"
)

// Filter keeps the alarm lines ("<timestamp> [<block>: <alarm>") whose block is not ignored.
// Lines written by the logger about itself carry no block and are dropped.
func Filter(lines []string, ignore []string) []string {
	var out []string
	for _, line := range lines {
		_, rest, ok := strings.Cut(line, "[")
		if !ok {
			continue
		}
		block, _, _ := strings.Cut(rest, ":")
		if slices.Contains(ignore, block) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// ReadLogs reads the current log at path and all of its backups.
func ReadLogs(path string) (map[string][]string, error) {
	backups, err := Backups(path)
	if err != nil {
		return nil, err
	}
	files := append(backups, path)

	out := make(map[string][]string, len(files))
	for _, name := range files {
		lines, err := readLines(name)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[name] = lines
	}
	return out, nil
}

func readLines(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
