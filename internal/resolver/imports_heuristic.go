//go:build !cgo

package resolver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ParserName identifies the import parser compiled into this build.
const ParserName = "heuristic"

var (
	importLine = regexp.MustCompile(`^import\s+([A-Z][A-Za-z0-9_]*(?:\.[A-Z][A-Za-z0-9_]*)*)(?:\s|$)`)
	moduleLine = regexp.MustCompile(`^(?:port\s+|effect\s+)?module\s+[A-Z][A-Za-z0-9_]*(?:\.[A-Z][A-Za-z0-9_]*)*(?:\s|$)`)
)

// parseImports returns the module names imported by an Elm source file.
// Declarations start in column zero, so a line-oriented scan over the
// comment-stripped source finds every import clause.
func parseImports(ctx context.Context, source []byte) ([]string, error) {
	var modules []string

	scanner := bufio.NewScanner(bytes.NewReader(stripComments(source)))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := strings.TrimRight(scanner.Text(), " \t\r")
		if !isHeaderText(line) {
			continue
		}

		if strings.HasPrefix(line, "import") {
			m := importLine.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("malformed import at line %d: %q", lineNo, line)
			}
			modules = append(modules, m[1])
			continue
		}

		if !moduleLine.MatchString(line) {
			return nil, fmt.Errorf("malformed module declaration at line %d: %q", lineNo, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return modules, nil
}

// stripComments blanks out line and (nested) block comments and string
// literals, keeping newlines so line numbers survive.
func stripComments(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)

	depth := 0
	inString := false
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case depth > 0:
			if c == '{' && i+1 < len(out) && out[i+1] == '-' {
				depth++
				out[i], out[i+1] = ' ', ' '
				i++
				continue
			}
			if c == '-' && i+1 < len(out) && out[i+1] == '}' {
				depth--
				out[i], out[i+1] = ' ', ' '
				i++
				continue
			}
			if c != '\n' {
				out[i] = ' '
			}
		case inString:
			if c == '\\' && i+1 < len(out) {
				out[i] = ' '
				if out[i+1] != '\n' {
					out[i+1] = ' '
				}
				i++
				continue
			}
			if c == '"' || c == '\n' {
				inString = false
			}
			if c != '\n' {
				out[i] = ' '
			}
		case c == '"':
			inString = true
			out[i] = ' '
		case c == '{' && i+1 < len(out) && out[i+1] == '-':
			depth = 1
			out[i], out[i+1] = ' ', ' '
			i++
		case c == '-' && i+1 < len(out) && out[i+1] == '-':
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		}
	}

	return out
}
