package registry_test

import (
	"testing"

	"github.com/effective-security/mcpagent/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServersConfig(t *testing.T) {
	t.Setenv("REGISTRY_TEST_API_KEY", "secret")
	t.Setenv("REGISTRY_TEST_BIN", "/opt/bin")

	t.Run("json", func(t *testing.T) {
		cfg, err := registry.LoadServersConfig("testdata/servers.json")
		require.NoError(t, err)
		require.Len(t, cfg.MCPServers, 3)
		assert.Equal(t, []string{"search", "weather"}, cfg.Names())

		w := cfg.MCPServers["weather"]
		assert.Equal(t, "weather-server", w.Command)
		assert.Equal(t, "secret", w.Env["API_KEY"])
		assert.Equal(t, []string{"--debug"}, cfg.MCPServers["search"].Args)
		assert.True(t, cfg.MCPServers["old"].Disabled)
	})

	t.Run("yaml", func(t *testing.T) {
		cfg, err := registry.LoadServersConfig("testdata/servers.yaml")
		require.NoError(t, err)
		assert.Equal(t, []string{"search", "weather"}, cfg.Names())
		assert.Equal(t, "/opt/bin/weather-server", cfg.MCPServers["weather"].Command)
		assert.Equal(t, "secret", cfg.MCPServers["weather"].Env["API_KEY"])
	})

	t.Run("missing", func(t *testing.T) {
		_, err := registry.LoadServersConfig("testdata/missing.json")
		assert.Error(t, err)
	})
}

func TestParseServersConfig(t *testing.T) {
	tcases := []struct {
		name string
		data string
		err  string
	}{
		{
			name: "empty",
			data: `{"mcpServers":{}}`,
		},
		{
			name: "no_command",
			data: `{"mcpServers":{"a":{"args":["x"]}}}`,
			err:  "invalid servers configuration",
		},
		{
			name: "null_server",
			data: `{"mcpServers":{"a":null}}`,
			err:  `server "a" has no configuration`,
		},
		{
			name: "bad_json",
			data: `{"mcpServers":`,
			err:  "unable to parse servers configuration",
		},
		{
			name: "bad_type",
			data: `{"mcpServers":{"a":{"command":["x"]}}}`,
			err:  "unable to parse servers configuration",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registry.ParseServersConfig([]byte(tc.data))
			if tc.err == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)
			}
		})
	}
}
