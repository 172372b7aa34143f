package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// probeFile is the on-disk probe configuration. Nil fields are unset.
type probeFile struct {
	Host     *string  `json:"host" yaml:"host"`
	Scheme   *string  `json:"scheme" yaml:"scheme"`
	Username *string  `json:"username" yaml:"username"`
	Password *string  `json:"password" yaml:"password"`
	Warn     *float64 `json:"warn" yaml:"warn"`
	Crit     *float64 `json:"crit" yaml:"crit"`
	Timeout  *string  `json:"timeout" yaml:"timeout"` // "10s"
}

// loadProbeFile reads a JSON or YAML (by extension) probe configuration.
func loadProbeFile(path string) (*probeFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf probeFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &pf)
	default:
		err = json.Unmarshal(b, &pf)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &pf, nil
}

func parseDurationSeconds(s string) (int, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return int(d / time.Second), nil
}
