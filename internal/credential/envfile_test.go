package credential

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEnv_RoundTrip(t *testing.T) {
	b, err := NewGenerator(WithClock(fixedClock)).GenerateSecretBundle(context.Background())
	require.NoError(t, err)

	text := RenderEnv(b)
	assert.Len(t, strings.Split(strings.TrimSuffix(text, "\n"), "\n"), len(b.Entries))
	assert.True(t, strings.HasPrefix(text, RedisPassword+"="))

	parsed, err := ParseEnv(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, b.Entries, parsed.Entries)
}

func TestRenderEnv_ZeroSource(t *testing.T) {
	b, err := NewGenerator(WithSource(zeroSource{}), WithClock(fixedClock)).GenerateSecretBundle(context.Background())
	require.NoError(t, err)
	lines := strings.Split(RenderEnv(b), "\n")
	assert.Equal(t, "REDIS_PASSWORD="+strings.Repeat("A", 24), lines[0])
	assert.Equal(t, "DASHBOARD_PASSWORD="+strings.Repeat("A", 16), lines[7])
}

func TestParseEnv_HandEdited(t *testing.T) {
	in := `# generated secrets

REDIS_PASSWORD="quoted value"
export POSTGRES_PASSWORD=plain
DASHBOARD_PASSWORD='single'
REDIS_PASSWORD=override
`
	b, err := ParseEnv(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{RedisPassword, PostgresPassword, DashboardPassword}, b.Names())

	v, _ := b.Get(RedisPassword)
	assert.Equal(t, "override", v)
	v, _ = b.Get(PostgresPassword)
	assert.Equal(t, "plain", v)
	v, _ = b.Get(DashboardPassword)
	assert.Equal(t, "single", v)
}

func TestParseEnv_Malformed(t *testing.T) {
	_, err := ParseEnv(strings.NewReader("REDIS_PASSWORD=ok\nnot a pair\n"))
	assert.ErrorIs(t, err, ErrMalformedLine)
	assert.Contains(t, err.Error(), "line 2")
}
