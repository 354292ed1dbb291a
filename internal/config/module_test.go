package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultApprovalRules(t *testing.T) {
	cfg := Default()

	require.Len(t, cfg.Approval.Rules, 5)
	require.Empty(t, cfg.Approval.Rules[0].Levels)
	require.Equal(t, []string{"L1_MANAGER", "L2_DIRECTOR"}, cfg.Approval.Rules[2].Levels)
	require.Equal(t, 48, cfg.Approval.Rules[2].ExpiryHours)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "*/5 * * * *", cfg.Scheduler.WorkflowSweep)
	require.Equal(t, 8, cfg.Scheduler.Workers)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\nsequence:\n  max_step_attempts: 3\n"), 0o600))
	t.Setenv("APP_SERVER_HOST", "127.0.0.1")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, 3, cfg.Sequence.MaxStepAttempts)
}
