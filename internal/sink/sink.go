// Package sink persists generated bundles. The generator never performs I/O;
// callers pick one or more sinks.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
)

var ErrUnknownSink = errors.New("unknown sink")

// Sink stores a bundle somewhere outside the process.
type Sink interface {
	Name() string
	Store(ctx context.Context, b *entity.Bundle) error
}

// Multi stores into each sink in order and stops at the first failure.
type Multi struct {
	sinks  []Sink
	logger *zap.SugaredLogger
}

func NewMulti(logger *zap.SugaredLogger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) Name() string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	return strings.Join(names, ",")
}

func (m *Multi) Store(ctx context.Context, b *entity.Bundle) error {
	for _, s := range m.sinks {
		if err := s.Store(ctx, b); err != nil {
			m.logger.Errorw("bundle store failed", "bundle", b.ID, "sink", s.Name(), "err", err)
			return fmt.Errorf("%s sink: %w", s.Name(), err)
		}
		m.logger.Infow("bundle stored", "bundle", b.ID, "sink", s.Name(), "secrets", len(b.Entries))
	}
	return nil
}

// ParseNames splits a comma separated sink list such as "file,keyring".
func ParseNames(raw string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		switch name {
		case "":
			continue
		case "file", "keyring", "gcp", "audit":
			out = append(out, name)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownSink, name)
		}
	}
	return out, nil
}
