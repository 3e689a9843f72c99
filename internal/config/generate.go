package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

const header = `# mevsup configuration
# Every key can be overridden with MEVSUP_<SECTION>_<KEY>, e.g. MEVSUP_RESTART_DELAY=10s
`

// GenerateYAML renders cfg as a commented YAML config file
func GenerateYAML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(yamlView(cfg)); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// yamlView renders durations as "5s" rather than nanoseconds
func yamlView(cfg *Config) map[string]interface{} {
	return map[string]interface{}{
		"worker": cfg.Worker,
		"balance": map[string]interface{}{
			"command":    cfg.Balance.Command,
			"args":       cfg.Balance.Args,
			"credential": cfg.Balance.Credential,
			"timeout":    cfg.Balance.Timeout.String(),
		},
		"session": cfg.Session,
		"restart": map[string]interface{}{
			"policy":      cfg.Restart.Policy,
			"delay":       cfg.Restart.Delay.String(),
			"max_delay":   cfg.Restart.MaxDelay.String(),
			"reset_after": cfg.Restart.ResetAfter.String(),
		},
		"shutdown": map[string]interface{}{
			"grace": cfg.Shutdown.Grace.String(),
		},
		"log":     cfg.Log,
		"metrics": cfg.Metrics,
		"history": cfg.History,
	}
}
