package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/user/proctord/internal/detect"
)

type Config struct {
	DataDir          string        `json:"data_dir"`
	LogLevel         string        `json:"log_level"`
	Listen           string        `json:"listen"`
	ReportsDir       string        `json:"reports_dir"`
	MaxConcurrent    int           `json:"max_concurrent"`
	ExtractTimeoutMS int           `json:"extract_timeout_ms"`
	FrameIntervalMS  int           `json:"frame_interval_ms"`
	RetentionMinutes int           `json:"retention_minutes"`
	SweepSchedule    string        `json:"sweep_schedule"`
	Questions        []string      `json:"questions"`
	Limits           detect.Limits `json:"limits"`
	Vision           struct {
		Endpoint string `json:"endpoint"`
	} `json:"vision"`
	Audio struct {
		Endpoint string `json:"endpoint"`
	} `json:"audio"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:          filepath.Join(os.Getenv("HOME"), ".proctord"),
		LogLevel:         "info",
		Listen:           ":5050",
		MaxConcurrent:    4,
		ExtractTimeoutMS: 2000,
		FrameIntervalMS:  600,
		RetentionMinutes: 240,
		SweepSchedule:    "@every 5m",
		Questions: []string{
			"Tell me about yourself.",
			"Explain a project you are proud of.",
			"What are your strengths and weaknesses?",
			"Explain TCP vs UDP.",
		},
		Limits: detect.DefaultLimits(),
	}

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.ReportsDir == "" {
		cfg.ReportsDir = filepath.Join(cfg.DataDir, "reports")
	}

	// Override from env (highest precedence)
	if listen := os.Getenv("PROCTORD_LISTEN"); listen != "" {
		cfg.Listen = listen
	}
	if url := os.Getenv("PROCTORD_VISION_URL"); url != "" {
		cfg.Vision.Endpoint = url
	}
	if url := os.Getenv("PROCTORD_AUDIO_URL"); url != "" {
		cfg.Audio.Endpoint = url
	}
	if token := os.Getenv("PROCTORD_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if chat := os.Getenv("PROCTORD_TELEGRAM_CHAT"); chat != "" {
		if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}

	return cfg, nil
}

// Save writes the config as indented JSON, atomically via temp + rename.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ListValues flattens the config into dot-separated keys. With mask set,
// secret values are shown truncated.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads a single dot-separated key from the config file at path.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	values, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	val, ok := values[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return val, nil
}

// SetValue updates a single dot-separated key in the config file at path.
// The value is parsed as JSON when possible and falls back to a plain
// string.
func SetValue(path, key, value string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	values, err := ListValues(cfg, false)
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	values[key] = parsed

	nested := Unflatten(values)
	data, err := json.Marshal(nested)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	updated := &Config{}
	if err := json.Unmarshal(data, updated); err != nil {
		return fmt.Errorf("apply config value: %w", err)
	}
	return Save(path, updated)
}
