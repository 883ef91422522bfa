package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"strategy-core/pkg/db"
)

// Config represents a strategy configuration entry in YAML.
type Config struct {
	ID         string                 `yaml:"id"`
	Name       string                 `yaml:"name"`
	Type       string                 `yaml:"type"`
	Symbols    []string               `yaml:"symbols"`
	Interval   string                 `yaml:"interval"`
	Parameters map[string]interface{} `yaml:"parameters"`
	IsActive   bool                   `yaml:"is_active"`
}

// ConfigFile represents the top-level YAML structure.
type ConfigFile struct {
	Strategies []Config `yaml:"strategies"`
}

// LoadConfig reads strategies from a YAML file.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a strategies document.
func ParseConfig(data []byte) ([]Config, error) {
	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(file.Strategies))
	for i, cfg := range file.Strategies {
		if cfg.ID == "" || cfg.Type == "" {
			return nil, fmt.Errorf("%w: entry %d needs id and type", ErrInvalidParams, i)
		}
		if seen[cfg.ID] {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidParams, cfg.ID)
		}
		seen[cfg.ID] = true
		if cfg.Name == "" {
			file.Strategies[i].Name = cfg.ID
		}
	}
	return file.Strategies, nil
}

// Instance converts a YAML entry into its strategy_instances row.
func (c Config) Instance() (db.StrategyInstance, error) {
	params := c.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return db.StrategyInstance{}, fmt.Errorf("failed to marshal parameters for strategy %s: %w", c.Name, err)
	}
	return db.StrategyInstance{
		ID:           c.ID,
		Name:         c.Name,
		StrategyType: c.Type,
		Symbols:      strings.Join(SplitSymbols(strings.Join(c.Symbols, ",")), ","),
		Interval:     c.Interval,
		Parameters:   string(paramsJSON),
		IsActive:     c.IsActive,
	}, nil
}

// SyncConfigToDB upserts strategies from config into the database.
func SyncConfigToDB(ctx context.Context, database *db.Database, configs []Config) error {
	for _, cfg := range configs {
		inst, err := cfg.Instance()
		if err != nil {
			return err
		}
		if err := database.UpsertStrategyInstance(ctx, inst); err != nil {
			return fmt.Errorf("failed to upsert strategy %s: %w", cfg.Name, err)
		}
	}
	return nil
}
