package entity

import "time"

// Kind classifies a secret for length floors and generation strategy.
type Kind string

const (
	KindPassword   Kind = "password"
	KindKey        Kind = "key"
	KindSigningKey Kind = "signing_key"
	KindToken      Kind = "token"
)

// MinLength returns the shortest length accepted for the kind. Tokens are
// derived, so they have no floor.
func (k Kind) MinLength() int {
	switch k {
	case KindPassword:
		return 16
	case KindKey, KindSigningKey:
		return 32
	default:
		return 0
	}
}

// MaxLength returns the longest length accepted for the kind.
func (k Kind) MaxLength() int {
	if k == KindToken {
		return 0
	}
	return 4096
}

// Definition describes one named secret in a bundle.
type Definition struct {
	Name   string
	Kind   Kind
	Length int
	// Role is set for KindToken definitions only.
	Role string
}

// Entry is a generated secret.
type Entry struct {
	Name  string
	Value string
}

// Bundle is an ordered set of secrets produced by one generation call.
type Bundle struct {
	ID          string
	GeneratedAt time.Time
	Entries     []Entry
}

// Get returns the value for name.
func (b *Bundle) Get(name string) (string, bool) {
	for _, e := range b.Entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

// Names returns entry names in bundle order.
func (b *Bundle) Names() []string {
	out := make([]string, 0, len(b.Entries))
	for _, e := range b.Entries {
		out = append(out, e.Name)
	}
	return out
}

// AuditRow records that a secret was generated, without its value.
type AuditRow struct {
	ID          int64     `db:"id"`
	BundleID    string    `db:"bundle_id"`
	Name        string    `db:"name"`
	Fingerprint string    `db:"fingerprint"`
	Length      int       `db:"length"`
	GeneratedAt time.Time `db:"generated_at"`
}
