package batchloader

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig is the on-disk shape for describing a Loader's default options.
// Host applications that want environment-specific defaults (a shorter
// timeout in a latency-sensitive path, return_nil_on_error in a best-effort
// dashboard) can ship one of these instead of hard-coding Option calls.
type YAMLConfig struct {
	GetPolicy            string `yaml:"get_policy"`
	TimeoutMS            int    `yaml:"timeout_ms"`
	Async                *bool  `yaml:"async"`
	MaxConcurrentSources int    `yaml:"max_concurrent_sources"`
}

// LoadOptionsYAML parses raw YAML into a slice of Option suitable for New.
func LoadOptionsYAML(raw []byte) ([]Option, error) {
	var cfg YAMLConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("batchloader: parse config: %w", err)
	}
	return cfg.toOptions()
}

// LoadOptionsYAMLFile reads path and parses it the same way as
// LoadOptionsYAML.
func LoadOptionsYAMLFile(path string) ([]Option, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batchloader: read config %s: %w", path, err)
	}
	return LoadOptionsYAML(raw)
}

func (cfg YAMLConfig) toOptions() ([]Option, error) {
	var opts []Option

	if cfg.GetPolicy != "" {
		policy, err := parseGetPolicy(cfg.GetPolicy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithGetPolicy(policy))
	}
	if cfg.TimeoutMS > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.TimeoutMS)*time.Millisecond))
	}
	if cfg.Async != nil {
		opts = append(opts, WithAsync(*cfg.Async))
	}
	if cfg.MaxConcurrentSources > 0 {
		opts = append(opts, WithMaxConcurrentSources(cfg.MaxConcurrentSources))
	}
	return opts, nil
}

func parseGetPolicy(s string) (GetPolicy, error) {
	switch s {
	case "raise_on_error":
		return RaiseOnError, nil
	case "return_nil_on_error":
		return ReturnNilOnError, nil
	case "tuples":
		return Tuples, nil
	default:
		return 0, &ConfigurationError{Option: "get_policy", Reason: fmt.Sprintf("unrecognised value %q", s)}
	}
}
