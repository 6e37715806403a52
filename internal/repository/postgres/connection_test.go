package postgres

import (
	"testing"
	"time"

	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:             "db.local",
		Port:             5432,
		User:             "cashdesk",
		Database:         "cashdesk",
		SSLMode:          "disable",
		MaxConnections:   8,
		MinConnections:   20,
		ConnMaxLifetime:  time.Hour,
		StatementTimeout: 5 * time.Second,
	}

	pc, err := poolConfig(cfg, "cashdesk-api-7f9c")
	require.NoError(t, err)

	assert.Equal(t, int32(8), pc.MaxConns)
	assert.Equal(t, int32(8), pc.MinConns, "min is capped at max")
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, "cashdesk-api-7f9c", pc.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "5000", pc.ConnConfig.RuntimeParams["statement_timeout"])
	assert.Equal(t, "5000", pc.ConnConfig.RuntimeParams["lock_timeout"])
	assert.Equal(t, "db.local", pc.ConnConfig.Host)
}

func TestPoolConfig_Defaults(t *testing.T) {
	cfg := &config.DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable"}

	pc, err := poolConfig(cfg, "")
	require.NoError(t, err)

	assert.Equal(t, "cashdesk", pc.ConnConfig.RuntimeParams["application_name"])
	assert.NotContains(t, pc.ConnConfig.RuntimeParams, "statement_timeout")
	assert.Positive(t, pc.MaxConns)
}
