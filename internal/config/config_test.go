package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "elastiq.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "[elastiq]\nbatch_plugin = fake\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 5*time.Second, cfg.Elastiq.SleepInterval)
	require.Equal(t, 10, cfg.Elastiq.WaitingJobsThreshold)
	require.Equal(t, "fake", cfg.Elastiq.BatchPlugin)
	require.Equal(t, 3, cfg.Quota.MaxVMs)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
[elastiq]
waiting_jobs_threshold = 20
check_queue_every_s = 30

[quota]
min_vms = 2
max_vms = 10

[debug]
dry_run_boot_vms = 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 20, cfg.Elastiq.WaitingJobsThreshold)
	require.Equal(t, 30*time.Second, cfg.Elastiq.CheckQueueEvery)
	require.Equal(t, 2, cfg.Quota.MinVMs)
	require.Equal(t, 10, cfg.Quota.MaxVMs)
	require.True(t, cfg.Debug.DryRunBootVMs)
	require.False(t, cfg.Debug.DryRunShutdownVMs)
}

func TestLoadCapturesPluginSection(t *testing.T) {
	path := writeConfig(t, `
[elastiq]
batch_plugin = htcondor

[htcondor]
pool = my-pool.cern.ch
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "my-pool.cern.ch", cfg.PluginSection["pool"])
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	require.Error(t, err)
}

func TestLoadDecodesUserData(t *testing.T) {
	path := writeConfig(t, "[ec2]\nuser_data_b64 = aGVsbG8=\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(cfg.EC2.UserData))
}
