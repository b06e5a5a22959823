package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMCPServerCmdFlagDefaults(t *testing.T) {
	flags := mcpServerCmd.Flags()

	transport := flags.Lookup("transport")
	require.NotNil(t, transport)
	require.Equal(t, "stdio", transport.DefValue)

	host := flags.Lookup("host")
	require.NotNil(t, host)
	require.Equal(t, "localhost", host.DefValue)

	port := flags.Lookup("port")
	require.NotNil(t, port)
	require.Equal(t, "8080", port.DefValue)

	for _, name := range []string{"allowed-ips", "enable-ip-auth", "enable-access-log", "tool-prefix"} {
		require.NotNil(t, flags.Lookup(name), "flag %s must be registered", name)
	}
}

func TestRunMCPServerRejectsInvalidTransport(t *testing.T) {
	setupStatsStore(t)

	restore := mcpTransport
	mcpTransport = "tcp"
	t.Cleanup(func() { mcpTransport = restore })

	err := runMCPServer(mcpServerCmd, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid transport")
}
