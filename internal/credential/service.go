package credential

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
	"github.com/ovaphlow/pitchfork/service-secrets/pkg/secure"
	"github.com/ovaphlow/pitchfork/service-secrets/pkg/utilities"
)

// Generator produces fresh secret bundles. It holds no state between calls
// beyond its injected dependencies.
type Generator struct {
	src    secure.Source
	now    func() time.Time
	newID  func() string
	defs   []entity.Definition
	logger *zap.SugaredLogger
}

// Option configures a Generator.
type Option func(*Generator)

// WithSource replaces the random source (tests use a deterministic one).
func WithSource(src secure.Source) Option {
	return func(g *Generator) { g.src = src }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithDefinitions replaces the default bundle layout. Callers validate the
// definitions first, see WithLengths.
func WithDefinitions(defs []entity.Definition) Option {
	return func(g *Generator) { g.defs = defs }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(g *Generator) { g.logger = logger }
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		src:    secure.Default(),
		now:    time.Now,
		newID:  utilities.NewKSUID,
		defs:   DefaultDefinitions(),
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateSecretBundle generates every defined secret. The signing key is
// generated once and shared by both service tokens. Any random source failure
// aborts the call and no bundle is returned.
func (g *Generator) GenerateSecretBundle(ctx context.Context) (*entity.Bundle, error) {
	now := g.now()
	b := &entity.Bundle{
		ID:          g.newID(),
		GeneratedAt: now,
		Entries:     make([]entity.Entry, 0, len(g.defs)),
	}

	var signingKey string
	for _, d := range g.defs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var value string
		var err error
		switch d.Kind {
		case entity.KindToken:
			if signingKey == "" {
				return nil, fmt.Errorf("%s: %w", d.Name, ErrMissingSigningKey)
			}
			value, err = SignServiceToken(NewServiceClaims(d.Role, now), signingKey)
		default:
			value, err = secure.String(g.src, d.Length)
			if d.Kind == entity.KindSigningKey {
				signingKey = value
			}
		}
		if err != nil {
			g.logger.Errorw("secret generation failed", "bundle", b.ID, "secret", d.Name, "err", err)
			return nil, fmt.Errorf("generate %s: %w", d.Name, err)
		}
		b.Entries = append(b.Entries, entity.Entry{Name: d.Name, Value: value})
	}

	g.logger.Infow("secret bundle generated", "bundle", b.ID, "secrets", len(b.Entries))
	return b, nil
}
