package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential"
	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
	"github.com/ovaphlow/pitchfork/service-secrets/internal/sink"
)

func TestRun_GenerateToStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), nil, &stdout, &stderr))

	b, err := credential.ParseEnv(strings.NewReader(stdout.String()))
	require.NoError(t, err)
	assert.Len(t, b.Entries, len(credential.DefaultDefinitions()))
}

func TestRun_GenerateFileThenVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"generate", "--out", path}, &stdout, &stderr))
	assert.Empty(t, stdout.String())

	// second run refuses to overwrite
	err := run(context.Background(), []string{"generate", "--out", path}, &stdout, &stderr)
	assert.Error(t, err)

	stdout.Reset()
	require.NoError(t, run(context.Background(), []string{"verify", "--env", path}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "ANON_KEY ok role=anonymous")
	assert.Contains(t, stdout.String(), "SERVICE_ROLE_KEY ok role=service")
}

func TestRun_VerifyDetectsForeignKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"generate", "-o", path}, &stdout, &stderr))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, credential.JWTSecret+"=") {
			lines[i] = credential.JWTSecret + "=" + strings.Repeat("Z", 40)
		}
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))

	err = run(context.Background(), []string{"verify", "--env", path}, &stdout, &stderr)
	assert.ErrorIs(t, err, credential.ErrInvalidToken)
}

func TestRun_BelowFloorLength(t *testing.T) {
	t.Setenv("SECRETGEN_LENGTH_REDIS_PASSWORD", "8")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), nil, &stdout, &stderr)
	assert.ErrorIs(t, err, credential.ErrLengthBelowFloor)
	assert.Empty(t, stdout.String())
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"rotate"}, &stdout, &stderr)
	assert.Error(t, err)
	assert.Contains(t, stderr.String(), "usage: secretgen")
}

type failingSink struct{ calls int }

func (f *failingSink) Name() string { return "keyring" }

func (f *failingSink) Store(context.Context, *entity.Bundle) error {
	f.calls++
	return errors.New("keyring locked")
}

func TestPersist_FailedSinkLeavesNoEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	b, err := credential.NewGenerator().GenerateSecretBundle(context.Background())
	require.NoError(t, err)

	extra := &failingSink{}
	err = persist(context.Background(), zap.NewNop().Sugar(), b, []sink.Sink{extra}, &sink.FileSink{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyring locked")
	assert.Equal(t, 1, extra.calls)

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPersist_FileWrittenAfterSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	b, err := credential.NewGenerator().GenerateSecretBundle(context.Background())
	require.NoError(t, err)

	ring := keyring.NewArrayKeyring(nil)
	require.NoError(t, persist(context.Background(), zap.NewNop().Sugar(), b,
		[]sink.Sink{sink.NewKeyringSink(ring)}, &sink.FileSink{Path: path}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, credential.RenderEnv(b), string(data))
	item, err := ring.Get(credential.JWTSecret)
	require.NoError(t, err)
	key, _ := b.Get(credential.JWTSecret)
	assert.Equal(t, key, string(item.Data))
}

func TestRun_GenerateExistingFileFailsBeforeSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	require.NoError(t, os.WriteFile(path, []byte("KEEP=1\n"), 0o600))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"generate", "--out", path, "--sink", "gcp"}, &stdout, &stderr)
	assert.ErrorIs(t, err, sink.ErrFileExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "KEEP=1\n", string(data))
}

func TestRun_FileSinkNeedsOut(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"generate", "--sink", "file"}, &stdout, &stderr)
	assert.Error(t, err)
	assert.Empty(t, stdout.String())
}

func TestRun_SubcommandHelp(t *testing.T) {
	for _, cmd := range []string{"generate", "verify", "audit", "serve"} {
		t.Run(cmd, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			require.NoError(t, run(context.Background(), []string{cmd, "--help"}, &stdout, &stderr))
			assert.Contains(t, stderr.String(), "Usage of "+cmd)
			assert.Empty(t, stdout.String())
		})
	}
}

func TestVerify_FromKeyring(t *testing.T) {
	b, err := credential.NewGenerator().GenerateSecretBundle(context.Background())
	require.NoError(t, err)
	ring := keyring.NewArrayKeyring(nil)
	require.NoError(t, sink.NewKeyringSink(ring).Store(context.Background(), b))

	openRing := func() (keyring.Keyring, error) { return ring, nil }
	var stdout, stderr bytes.Buffer
	require.NoError(t, verify([]string{"--from", "keyring"}, openRing, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "ANON_KEY ok role=anonymous")
	assert.Contains(t, stdout.String(), "SERVICE_ROLE_KEY ok role=service")

	require.NoError(t, ring.Remove(credential.ServiceRoleKey))
	err = verify([]string{"--from", "keyring"}, openRing, &stdout, &stderr)
	assert.ErrorIs(t, err, keyring.ErrKeyNotFound)

	err = verify([]string{"--from", "vault"}, openRing, &stdout, &stderr)
	assert.Error(t, err)
}

type fakeLister struct {
	rows map[string][]entity.AuditRow
	err  error
}

func (f fakeLister) ListByBundle(_ context.Context, bundleID string) ([]entity.AuditRow, error) {
	return f.rows[bundleID], f.err
}

func TestListAudit(t *testing.T) {
	at := time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC)
	l := fakeLister{rows: map[string][]entity.AuditRow{
		"bundle-a": {
			{ID: 1, BundleID: "bundle-a", Name: credential.RedisPassword, Fingerprint: "0a1b", Length: 24, GeneratedAt: at},
			{ID: 2, BundleID: "bundle-a", Name: credential.JWTSecret, Fingerprint: "2c3d", Length: 40, GeneratedAt: at},
		},
	}}

	var stdout bytes.Buffer
	require.NoError(t, listAudit(context.Background(), l, "bundle-a", &stdout))
	assert.Equal(t,
		"REDIS_PASSWORD fingerprint=0a1b length=24 generated=2025-05-01T10:00:00Z\n"+
			"JWT_SECRET fingerprint=2c3d length=40 generated=2025-05-01T10:00:00Z\n",
		stdout.String())

	err := listAudit(context.Background(), l, "bundle-z", &stdout)
	assert.ErrorIs(t, err, errBundleNotAudited)

	err = listAudit(context.Background(), fakeLister{err: errors.New("conn refused")}, "bundle-a", &stdout)
	assert.ErrorContains(t, err, "conn refused")
}

func TestRun_AuditNeedsBundle(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"audit"}, &stdout, &stderr)
	assert.ErrorContains(t, err, "--bundle")
}
