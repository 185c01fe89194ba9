package credential

import (
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
)

// Names of the secrets expected by the deployment's compose files.
const (
	RedisPassword     = "REDIS_PASSWORD"
	DBRLSRolePassword = "DB_RLS_ROLE_PASSWORD"
	MeiliMasterKey    = "MEILI_MASTER_KEY"
	PostgresPassword  = "POSTGRES_PASSWORD"
	JWTSecret         = "JWT_SECRET"
	AnonKey           = "ANON_KEY"
	ServiceRoleKey    = "SERVICE_ROLE_KEY"
	DashboardPassword = "DASHBOARD_PASSWORD"
	SecretKeyBase     = "SECRET_KEY_BASE"
	VaultEncKey       = "VAULT_ENC_KEY"
	PGMetaCryptoKey   = "PG_META_CRYPTO_KEY"
)

var (
	ErrLengthBelowFloor   = errors.New("length below floor")
	ErrLengthAboveCeiling = errors.New("length above ceiling")
	ErrUnknownSecret      = errors.New("unknown secret")
	ErrMissingSigningKey  = errors.New("signing key must precede tokens")
	ErrDuplicateSecret    = errors.New("duplicate secret")
	ErrTokenLengthFixed   = errors.New("token length is derived")
	ErrUnknownTokenRole   = errors.New("unknown token role")
	ErrMultipleSigningKey = errors.New("more than one signing key")
)

// DefaultDefinitions returns the bundle layout in output order.
func DefaultDefinitions() []entity.Definition {
	return []entity.Definition{
		{Name: RedisPassword, Kind: entity.KindPassword, Length: 24},
		{Name: DBRLSRolePassword, Kind: entity.KindPassword, Length: 24},
		{Name: MeiliMasterKey, Kind: entity.KindKey, Length: 32},
		{Name: PostgresPassword, Kind: entity.KindPassword, Length: 32},
		{Name: JWTSecret, Kind: entity.KindSigningKey, Length: 40},
		{Name: AnonKey, Kind: entity.KindToken, Role: RoleAnonymous},
		{Name: ServiceRoleKey, Kind: entity.KindToken, Role: RoleService},
		{Name: DashboardPassword, Kind: entity.KindPassword, Length: 16},
		{Name: SecretKeyBase, Kind: entity.KindKey, Length: 64},
		{Name: VaultEncKey, Kind: entity.KindKey, Length: 32},
		{Name: PGMetaCryptoKey, Kind: entity.KindKey, Length: 32},
	}
}

// WithLengths returns a copy of defs with the lengths in overrides applied.
func WithLengths(defs []entity.Definition, overrides map[string]int) ([]entity.Definition, error) {
	out := make([]entity.Definition, len(defs))
	copy(out, defs)
	for name, n := range overrides {
		i := indexOf(out, name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSecret, name)
		}
		if out[i].Kind == entity.KindToken {
			return nil, fmt.Errorf("%w: %s", ErrTokenLengthFixed, name)
		}
		out[i].Length = n
	}
	return out, ValidateDefinitions(out)
}

// ValidateDefinitions checks floors, uniqueness and that exactly one signing
// key comes before any token.
func ValidateDefinitions(defs []entity.Definition) error {
	seen := make(map[string]bool, len(defs))
	signing := false
	for _, d := range defs {
		if seen[d.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateSecret, d.Name)
		}
		seen[d.Name] = true
		switch d.Kind {
		case entity.KindSigningKey:
			if signing {
				return fmt.Errorf("%w: %s", ErrMultipleSigningKey, d.Name)
			}
			signing = true
		case entity.KindToken:
			if !signing {
				return fmt.Errorf("%w: %s", ErrMissingSigningKey, d.Name)
			}
			if d.Role != RoleAnonymous && d.Role != RoleService {
				return fmt.Errorf("%w: %q", ErrUnknownTokenRole, d.Role)
			}
			continue
		}
		if min := d.Kind.MinLength(); d.Length < min {
			return fmt.Errorf("%w: %s has %d, needs at least %d", ErrLengthBelowFloor, d.Name, d.Length, min)
		}
		if max := d.Kind.MaxLength(); d.Length > max {
			return fmt.Errorf("%w: %s has %d, at most %d", ErrLengthAboveCeiling, d.Name, d.Length, max)
		}
	}
	return nil
}

func indexOf(defs []entity.Definition, name string) int {
	for i, d := range defs {
		if d.Name == name {
			return i
		}
	}
	return -1
}
