package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "0.0.0.0", cfg.RTC.ListenIP)
	assert.Equal(t, 40000, cfg.RTC.UDPPort)
	assert.Equal(t, 2*time.Second, cfg.RTC.WorkerDeathGrace)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := "port: 9000\nqueue_size: 4\nrtc:\n  announced_ip: 203.0.113.7\n  worker_death_grace: 5s\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 4, cfg.QueueSize)
	assert.Equal(t, "203.0.113.7", cfg.RTC.AnnouncedIP)
	assert.Equal(t, 5*time.Second, cfg.RTC.WorkerDeathGrace)
	assert.Equal(t, 64, cfg.SendBuffer)
}

func TestLoadFileEnv(t *testing.T) {
	t.Setenv("STAGE_PORT", "7070")
	t.Setenv("STAGE_RTC_UDP_PORT", "41000")
	t.Setenv("VOICE_PORT", "9090")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, 41000, cfg.RTC.UDPPort)
}

func TestLoadFileRejectsBadPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 70000\n"), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
