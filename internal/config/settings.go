package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"theta_watcher/internal/lifecycle"
)

// Settings are the automation knobs an operator may change while the
// process runs. They take effect on the next tick.
type Settings struct {
	AutoClose         bool    `yaml:"paper_autoclose" json:"paper_autoclose"`
	PartialAtPct      float64 `yaml:"partial_at" json:"partial_at"`
	EarlyLockDiffPct  float64 `yaml:"earlylock_diff" json:"earlylock_diff"`
	IVRAlertThreshold float64 `yaml:"ivr_threshold" json:"ivr_threshold"`
}

// DefaultSettings seeds Settings from the environment.
func (c *Config) DefaultSettings() Settings {
	return Settings{
		AutoClose:         c.Paper.AutoClose,
		PartialAtPct:      c.Paper.PartialAt,
		EarlyLockDiffPct:  c.Paper.EarlyLockDiff,
		IVRAlertThreshold: c.Paper.IVRAlertThreshold,
	}
}

// Validate rejects percentages outside 0-100.
func (s Settings) Validate() error {
	check := func(name string, v float64) error {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: %s %.1f outside 0-100", ErrInvalidConfig, name, v)
		}
		return nil
	}
	if err := check("partial_at", s.PartialAtPct); err != nil {
		return err
	}
	if err := check("earlylock_diff", s.EarlyLockDiffPct); err != nil {
		return err
	}
	return check("ivr_threshold", s.IVRAlertThreshold)
}

// CloseRules is the part of Settings the close engine reads.
func (s Settings) CloseRules() lifecycle.Settings {
	return lifecycle.Settings{
		AutoClose:        s.AutoClose,
		PartialAtPct:     s.PartialAtPct,
		EarlyLockDiffPct: s.EarlyLockDiffPct,
	}
}

// Summary reads like "auto=on, partial≥50%, early-lock+5, IVR≥50".
func (s Settings) Summary() string {
	auto := "off"
	if s.AutoClose {
		auto = "on"
	}
	return fmt.Sprintf("auto=%s, partial≥%.0f%%, early-lock+%.0f, IVR≥%.0f",
		auto, s.PartialAtPct, s.EarlyLockDiffPct, s.IVRAlertThreshold)
}

// LoadSettings reads path over defaults. A missing file yields defaults;
// keys absent from the file keep their default values.
func LoadSettings(path string, defaults Settings) (Settings, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("read settings: %w", err)
	}

	s := defaults
	if err := yaml.Unmarshal(b, &s); err != nil {
		return defaults, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return defaults, err
	}
	return s, nil
}

// SaveSettings writes s to path through a temp file and rename.
func SaveSettings(path string, s Settings) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
