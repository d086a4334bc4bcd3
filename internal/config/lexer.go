package config

import (
	"bufio"
	"os"
	"strings"

	"github.com/webserv/goserv/pkg/errors"
)

// lexer tokenizes a config file into a flat list of comment-stripped,
// trimmed, non-blank lines: `#` truncates a line to end-of-line, and
// blank lines are dropped entirely before the block parser ever sees
// them.
type lexer struct {
	lines []string
	pos   int
}

func newLexer(path string) (*lexer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewConfigError("failed to open config file "+path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewConfigError("failed to read config file "+path, err)
	}
	return &lexer{lines: lines}, nil
}

func (l *lexer) hasMore() bool { return l.pos < len(l.lines) }

func (l *lexer) current() string {
	if !l.hasMore() {
		return ""
	}
	return l.lines[l.pos]
}

func (l *lexer) advance() { l.pos++ }

func (l *lexer) lineNo() int { return l.pos + 1 }

// splitDirective splits "name  value..." on the first whitespace run,
// trimming both halves.
func splitDirective(line string) (name, value string) {
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return strings.TrimSpace(line), ""
	}
	name = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	return name, value
}

// stripTrailingSemicolon removes a single trailing ';' directive
// terminator, if present.
func stripTrailingSemicolon(value string) string {
	value = strings.TrimSpace(value)
	return strings.TrimSuffix(value, ";")
}

func isBlockEnd(line string) bool {
	return strings.TrimSpace(line) == "}"
}
