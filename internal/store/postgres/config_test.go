package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigPoolConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		maxConns int32
		minConns int32
		lifetime time.Duration
		appName  string
	}{
		{
			name:     "defaults",
			cfg:      Config{ConnString: "postgres://u:p@localhost:5432/certsign"},
			maxConns: DefaultMaxConns,
			minConns: DefaultMinConns,
			lifetime: DefaultMaxConnLifetime,
			appName:  ApplicationName,
		},
		{
			name:     "overrides",
			cfg:      Config{ConnString: "postgres://u:p@localhost:5432/certsign", MaxConns: 30, MinConns: 4, MaxConnLifetime: 5 * time.Minute},
			maxConns: 30,
			minConns: 4,
			lifetime: 5 * time.Minute,
			appName:  ApplicationName,
		},
		{
			name:     "min clamped to max",
			cfg:      Config{ConnString: "postgres://u:p@localhost:5432/certsign", MaxConns: 2, MinConns: 5},
			maxConns: 2,
			minConns: 2,
			lifetime: DefaultMaxConnLifetime,
			appName:  ApplicationName,
		},
		{
			name:     "application name from connection string",
			cfg:      Config{ConnString: "postgres://u:p@localhost:5432/certsign?application_name=worker"},
			maxConns: DefaultMaxConns,
			minConns: DefaultMinConns,
			lifetime: DefaultMaxConnLifetime,
			appName:  "worker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := tt.cfg.poolConfig()
			require.NoError(t, err)
			require.Equal(t, tt.maxConns, pc.MaxConns)
			require.Equal(t, tt.minConns, pc.MinConns)
			require.Equal(t, tt.lifetime, pc.MaxConnLifetime)
			require.Equal(t, tt.appName, pc.ConnConfig.RuntimeParams["application_name"])
			require.Equal(t, 10*time.Second, pc.ConnConfig.ConnectTimeout)
		})
	}
}

func TestConfigPoolConfig_Invalid(t *testing.T) {
	_, err := Config{}.poolConfig()
	require.Error(t, err)

	_, err = Config{ConnString: "postgres://u:p@localhost:notaport/db"}.poolConfig()
	require.Error(t, err)
}
