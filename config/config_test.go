package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "netmux.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "bind_addr: 127.0.0.1:9000\nmax_throughput: 25\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.BindAddr)
	require.Equal(t, 25, cfg.MaxThroughput)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, "max_throughput: 3\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default().BindAddr, cfg.BindAddr)
	require.Equal(t, 3, cfg.MaxThroughput)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "bind_addr: 127.0.0.1:9000\nmax_throughput: 25\n")

	t.Setenv("NETMUX_BIND_ADDR", "0.0.0.0:7000")
	t.Setenv("NETMUX_MAX_THROUGHPUT", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:7000", cfg.BindAddr)
	require.Equal(t, 7, cfg.MaxThroughput)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "max_throughput: [not, a, number]\n"))
	require.Error(t, err)

	t.Setenv("NETMUX_MAX_THROUGHPUT", "many")
	_, err = Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	cfg := Default()
	cfg.BindAddr = ""
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MaxThroughput = 0
	require.Error(t, cfg.Validate())

	cfg.MaxThroughput = -5
	require.Error(t, cfg.Validate())
}
