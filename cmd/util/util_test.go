package util

import (
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
	"time"
)

// parseFlags resets viper and binds the connection flags parsed from args
func parseFlags(t *testing.T, args ...string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{Use: "test"}
	SetupConnectionFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	require.NoError(t, viper.BindPFlags(cmd.PersistentFlags()))
}

func TestWrapString(t *testing.T) {
	wrapped := WrapString(strings.Repeat("word ", 30))
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("short   text"))
}

func TestGetConnectionConfig(t *testing.T) {
	parseFlags(t, "--protocol", "vst", "--timeout", "3s", "--user", "root", "--conn-per-host", "4")

	config, err := GetConnectionConfig()
	require.NoError(t, err)
	assert.Equal(t, common.ProtocolVST, config.Protocol)
	assert.Equal(t, 3*time.Second, config.Timeout)
	assert.Equal(t, 4, config.ConnectionsPerHost)
	assert.Nil(t, config.Observer)
	assert.Equal(t, common.BasicAuthentication("root", ""), GetAuthentication(config))
}

func TestGetConnectionConfigErrors(t *testing.T) {
	parseFlags(t, "--protocol", "smoke-signals")
	_, err := GetConnectionConfig()
	assert.Error(t, err)

	parseFlags(t, "--timeout=-1s")
	_, err = GetConnectionConfig()
	assert.Error(t, err)

	parseFlags(t, "--ssl", "--ca-file", "/does/not/exist.pem")
	_, err = GetConnectionConfig()
	assert.Error(t, err)
}

func TestJWTTakesPrecedence(t *testing.T) {
	parseFlags(t, "--user", "root", "--jwt", "token")
	config, err := GetConnectionConfig()
	require.NoError(t, err)
	assert.Equal(t, common.JWTAuthentication("token"), GetAuthentication(config))
}

func TestGetHosts(t *testing.T) {
	parseFlags(t, "--endpoints", "db1:8529, tcp://db2:8530,", "--proxy", "proxy:3128", "--proxy-user", "pu")

	hosts, err := GetHosts()
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, "db1:8529", hosts[0].String())
	assert.Equal(t, "db2:8530", hosts[1].String())
	require.NotNil(t, hosts[1].Proxy)
	assert.Equal(t, "proxy", hosts[1].Proxy.Host)
	assert.True(t, hosts[1].Proxy.HasAuth())

	parseFlags(t, "--endpoints=")
	_, err = GetHosts()
	assert.Error(t, err)

	parseFlags(t, "--endpoints", "no-port")
	_, err = GetHosts()
	assert.Error(t, err)
}
