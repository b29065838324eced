package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:1905", cfg.Address())
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, LicensingAuto, cfg.Licensing)
	assert.Equal(t, []string{"Automation"}, cfg.Licenses)
	assert.Zero(t, cfg.RateLimit)
	assert.Empty(t, cfg.Registry.Endpoints)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otii.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: otii-lab.example.com
port: 1906
connect_timeout: 30s
licensing: manual
licenses: [Automation, Battery]
rate_limit: 50
rate_burst: 10
registry:
  endpoints: ["10.0.0.1:2379"]
  farm: lab1
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "otii-lab.example.com:1906", cfg.Address())
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, LicensingManual, cfg.Licensing)
	assert.Equal(t, []string{"Automation", "Battery"}, cfg.Licenses)
	assert.Equal(t, 50.0, cfg.RateLimit)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, []string{"10.0.0.1:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, "lab1", cfg.Registry.Farm)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otii.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 2905\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2905", cfg.Address())
	assert.Equal(t, LicensingAuto, cfg.Licensing, "unset fields keep their defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadCredentialsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"username":"tester","password":"secret"}`), 0o600))

	creds, ok := LoadCredentials(path)
	require.True(t, ok)
	assert.Equal(t, "tester", creds.Username)
	assert.Equal(t, "secret", creds.Password)
}

func TestLoadCredentialsEnvFallback(t *testing.T) {
	t.Setenv(EnvUsername, "envuser")
	t.Setenv(EnvPassword, "envpass")

	creds, ok := LoadCredentials(filepath.Join(t.TempDir(), "absent.json"))
	require.True(t, ok)
	assert.Equal(t, "envuser", creds.Username)
	assert.Equal(t, "envpass", creds.Password)
}

func TestLoadCredentialsNoneConfigured(t *testing.T) {
	// t.Setenv registers the restore even for unset variables.
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")
	require.NoError(t, os.Unsetenv(EnvUsername))
	require.NoError(t, os.Unsetenv(EnvPassword))

	_, ok := LoadCredentials(filepath.Join(t.TempDir(), "absent.json"))
	assert.False(t, ok)
}

func TestLoadCredentialsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, ok := LoadCredentials(path)
	assert.False(t, ok)
}
