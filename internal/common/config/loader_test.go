package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
database:
  postgres:
    host: localhost
    database: renter
    user: wizard
  redis:
    address: localhost:6379
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "desktop", cfg.Wizard.Surface)
	assert.Equal(t, 24, cfg.Wizard.MinResidenceMonths)
	assert.False(t, cfg.Wizard.DebugSkip)
	assert.True(t, cfg.Wizard.SubmitValidatesAll)
	assert.True(t, cfg.Database.Redis.Enabled)
	assert.Equal(t, 30*time.Minute, GetDuration(cfg.Wizard.SessionTTL))
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile_EnvOverride(t *testing.T) {
	t.Setenv("WIZARD_DEBUG_SKIP", "true")
	t.Setenv("WIZARD_SURFACE", "mobile")
	t.Setenv("WIZARD_MIN_RESIDENCE_MONTHS", "36")

	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.True(t, cfg.Wizard.DebugSkip)
	assert.Equal(t, "mobile", cfg.Wizard.Surface)
	assert.Equal(t, 36, cfg.Wizard.MinResidenceMonths)
}

func TestLoadFromFile_ExpandsPlaceholders(t *testing.T) {
	t.Setenv("TEST_PG_PASSWORD", "s3cret")

	cfg, err := LoadFromFile(writeConfig(t, minimalYAML+`
    password: ${TEST_PG_PASSWORD}
`))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Redis.Password)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing postgres host",
			body: "database:\n  postgres:\n    database: renter\n    user: wizard\n  redis:\n    address: x\n",
			want: "database.postgres.host is required",
		},
		{
			name: "unknown surface",
			body: minimalYAML + "wizard:\n  surface: tablet\n",
			want: "wizard.surface must be desktop or mobile",
		},
		{
			name: "redis required when enabled",
			body: "database:\n  postgres:\n    host: h\n    database: d\n    user: u\n",
			want: "database.redis.address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "renter", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=renter sslmode=disable", p.GetDSN())
}
