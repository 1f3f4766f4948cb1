package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a debug-level logger so config output shows in CI logs.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[drive]
shared_drive_id = "0ABshared"
root_folder_id = "root-marketing"
credentials_file = "/etc/flow-go/sa.json"

[transfers]
chunk_size = "8MiB"
max_probes = 5
chunk_timeout = "90s"
bandwidth_limit = "10MB"

[limits]
max_file_size = "100MiB"
max_batch_size = "1GiB"
direct_threshold = "4MB"

[server]
listen = ":9090"
url = "https://intake.example.com"
admin_password = "s3cret"

[notify]
token = "tok"
group_id = "12345@g.us"
time_zone = "UTC"

[clients]
backend = "redis"
redis_addr = "localhost:6379"

[logging]
log_level = "debug"
log_format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0ABshared", cfg.Drive.SharedDriveID)
	assert.Equal(t, "root-marketing", cfg.Drive.RootFolderID)
	assert.Equal(t, defaultAPIBaseURL, cfg.Drive.APIBaseURL)
	assert.Equal(t, "8MiB", cfg.Transfers.ChunkSize)
	assert.Equal(t, 5, cfg.Transfers.MaxProbes)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "s3cret", cfg.Server.AdminPassword)
	assert.Equal(t, ClientsBackendRedis, cfg.Clients.Backend)
	assert.Equal(t, "clientes", cfg.Clients.RedisKey)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `
[transfers]
chunk_size = "2MiB"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "2MiB", cfg.Transfers.ChunkSize)
	assert.Equal(t, defaultMaxProbes, cfg.Transfers.MaxProbes)
	assert.Equal(t, defaultMaxFileSize, cfg.Limits.MaxFileSize)
	assert.Equal(t, defaultListen, cfg.Server.Listen)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, `[transfers`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_UnknownKeySuggestion(t *testing.T) {
	path := writeTestConfig(t, `
[transfers]
chunk_sise = "4MiB"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "chunk_sise" in [transfers]`)
	assert.Contains(t, err.Error(), `did you mean "chunk_size"?`)
}

func TestLoad_UnknownSectionSuggestion(t *testing.T) {
	path := writeTestConfig(t, `
[limts]
max_file_size = "1MiB"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "limits"?`)
}

func TestLoad_ValidationErrorsAccumulate(t *testing.T) {
	path := writeTestConfig(t, `
[transfers]
chunk_size = "1000000"
max_probes = 0

[logging]
log_level = "verbose"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_size")
	assert.Contains(t, err.Error(), "max_probes")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_EnvAndCLIOverrides(t *testing.T) {
	path := writeTestConfig(t, `
[server]
url = "http://file.example.com"
listen = ":1000"
`)

	listen := ":2000"
	env := EnvOverrides{
		ConfigPath:      path,
		AdminPassword:   "from-env",
		CredentialsJSON: `{"type":"service_account"}`,
		ServerURL:       "http://env.example.com",
	}
	cli := CLIOverrides{Listen: &listen}

	cfg, gotPath, err := Resolve(env, cli)
	require.NoError(t, err)

	assert.Equal(t, path, gotPath)
	assert.Equal(t, ":2000", cfg.Server.Listen)
	assert.Equal(t, "http://env.example.com", cfg.Server.URL)
	assert.Equal(t, "from-env", cfg.Server.AdminPassword)
	assert.JSONEq(t, `{"type":"service_account"}`, cfg.Drive.CredentialsJSON)
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	envPath := writeTestConfig(t, `[server]
listen = ":1"`)
	cliPath := writeTestConfig(t, `[server]
listen = ":2"`)

	cfg, gotPath, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})
	require.NoError(t, err)
	assert.Equal(t, cliPath, gotPath)
	assert.Equal(t, ":2", cfg.Server.Listen)
}

func TestResolve_RedisOverrideRevalidated(t *testing.T) {
	path := writeTestConfig(t, `[clients]
backend = "redis"`)

	_, _, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis_addr")

	cfg, _, err := Resolve(EnvOverrides{ConfigPath: path, RedisAddr: "127.0.0.1:6379"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", cfg.Clients.RedisAddr)
}
