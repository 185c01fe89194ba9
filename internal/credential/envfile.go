package credential

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
)

var ErrMalformedLine = errors.New("malformed env line")

// RenderEnv renders b as NAME=value lines in bundle order. Values come from
// the generator alphabet or base64url tokens, so no quoting is needed.
func RenderEnv(b *entity.Bundle) string {
	var sb strings.Builder
	for _, e := range b.Entries {
		sb.WriteString(e.Name)
		sb.WriteByte('=')
		sb.WriteString(e.Value)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ParseEnv reads an env file back into an ordered bundle. Blank lines and
// comments are skipped; values are decoded by godotenv so hand-quoted values
// still load. A repeated name keeps its first position and its last value.
func ParseEnv(r io.Reader) (*entity.Bundle, error) {
	b := &entity.Bundle{}
	pos := map[string]int{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, _, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: line %d", ErrMalformedLine, lineNo)
		}
		kv, err := godotenv.Unmarshal(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedLine, lineNo, err)
		}
		value := kv[name]
		if i, dup := pos[name]; dup {
			b.Entries[i].Value = value
			continue
		}
		pos[name] = len(b.Entries)
		b.Entries = append(b.Entries, entity.Entry{Name: name, Value: value})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return b, nil
}
