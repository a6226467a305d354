package registry

import (
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"
)

// ServerConfig describes how to start one tool provider.
type ServerConfig struct {
	// Command is the provider executable.
	Command string `json:"command" validate:"required"`
	// Args are passed to the command.
	Args []string `json:"args,omitempty"`
	// Env is added to the agent environment of the provider.
	Env map[string]string `json:"env,omitempty"`
	// Disabled servers are not started.
	Disabled bool `json:"disabled,omitempty"`
}

// ServersConfig is the provider configuration file.
type ServersConfig struct {
	MCPServers map[string]*ServerConfig `json:"mcpServers" validate:"dive"`
}

// Names returns enabled server names in sorted order.
func (c *ServersConfig) Names() []string {
	var names []string
	for name, s := range c.MCPServers {
		if s != nil && !s.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Validate returns an error if the configuration is incomplete.
func (c *ServersConfig) Validate() error {
	for name, s := range c.MCPServers {
		if name == "" {
			return errors.New("server name is required")
		}
		if s == nil {
			return errors.Newf("server %q has no configuration", name)
		}
	}
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid servers configuration")
	}
	return nil
}

// LoadServersConfig loads the provider configuration from a JSON or YAML
// file. Environment references such as ${API_KEY} in command, args and env
// values are expanded.
func LoadServersConfig(file string) (*ServersConfig, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to read servers configuration")
	}
	return ParseServersConfig(data)
}

// ParseServersConfig parses the provider configuration from JSON or YAML.
func ParseServersConfig(data []byte) (*ServersConfig, error) {
	cfg := new(ServersConfig)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "unable to parse servers configuration")
	}

	for _, s := range cfg.MCPServers {
		if s == nil {
			continue
		}
		s.Command = os.ExpandEnv(s.Command)
		for i, a := range s.Args {
			s.Args[i] = os.ExpandEnv(a)
		}
		for k, v := range s.Env {
			s.Env[k] = os.ExpandEnv(v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
