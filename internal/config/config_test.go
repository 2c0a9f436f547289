package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "lotbridge.yaml", `
db: /var/lib/lotbridge/ledger.db
genesis: genesis.cue
listen: ":9000"
log:
  level: debug
  format: json
invariant_checks: false
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/lotbridge/ledger.db", cfg.DB)
	assert.Equal(t, "genesis.cue", cfg.Genesis)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.InvariantChecks)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "lotbridge.yaml", "db: from-file.db\n")
	t.Setenv("LOTBRIDGE_DB", "from-env.db")
	t.Setenv("LOTBRIDGE_LOG_LEVEL", "warn")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DB)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_SetFlagOverridesEnv(t *testing.T) {
	t.Setenv("LOTBRIDGE_DB", "from-env.db")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("db", "", "")
	fs.String("listen", "", "")
	require.NoError(t, fs.Parse([]string{"--db", "from-flag.db"}))

	cfg, err := Load("", map[string]*pflag.Flag{
		KeyDB:     fs.Lookup("db"),
		KeyListen: fs.Lookup("listen"),
	})
	require.NoError(t, err)
	assert.Equal(t, "from-flag.db", cfg.DB)
	assert.Equal(t, Default().Listen, cfg.Listen, "unset flags do not override")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.ErrorContains(t, err, "does not exist")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty db", func(c *Config) { c.DB = "" }, "db must not be empty"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}
