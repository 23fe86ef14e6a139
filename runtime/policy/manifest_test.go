package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/runtime/policy"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadManifestAppliesDefaultReloadSeconds(t *testing.T) {
	path := writeManifest(t, "id: acme-default\nversion: v3\nregoPath: pack.rego\n")

	m, err := policy.LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "acme-default", m.ID)
	assert.Equal(t, "v3", m.Version)
	assert.Equal(t, "pack.rego", m.RegoPath)
	assert.Equal(t, 30, m.ReloadSeconds)
	assert.Equal(t, policy.PackRef{ID: "acme-default", Version: "v3"}, m.Ref())
}

func TestLoadManifestHonorsExplicitReloadSeconds(t *testing.T) {
	path := writeManifest(t, "id: acme\nversion: v1\nregoPath: pack.rego\nreloadSeconds: 120\n")

	m, err := policy.LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, 120, m.ReloadSeconds)
}

func TestLoadManifestRejectsMissingID(t *testing.T) {
	path := writeManifest(t, "version: v1\nregoPath: pack.rego\n")

	_, err := policy.LoadManifest(path)
	require.Error(t, err)
}

func TestLoadManifestRejectsMissingFile(t *testing.T) {
	_, err := policy.LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
