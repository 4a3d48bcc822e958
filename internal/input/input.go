// Package input expands flag values read from stdin ("-") or from files
// ("@path"), one value per line.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ExpandValues replaces "-" with the lines of stdin and "@path" with the
// lines of that file. Other values pass through. Blank lines and lines
// starting with # are skipped. Stdin may be read once.
func ExpandValues(values []string, stdin io.Reader) ([]string, error) {
	var result []string
	stdinUsed := false
	for _, v := range values {
		switch {
		case v == "-":
			if stdinUsed {
				return nil, errors.New("stdin (-) given more than once")
			}
			stdinUsed = true
			lines, err := ReadLines(stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			result = append(result, lines...)
		case strings.HasPrefix(v, "@"):
			path := strings.TrimPrefix(v, "@")
			file, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			lines, err := ReadLines(file)
			file.Close()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			result = append(result, lines...)
		default:
			result = append(result, v)
		}
	}
	return result, nil
}

// ReadLines reads the non-empty, non-comment lines of r.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
