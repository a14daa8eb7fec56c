package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SymbolOverride adjusts the trigger for one symbol.
type SymbolOverride struct {
	Symbol           string  `yaml:"symbol"`
	ThresholdPercent float64 `yaml:"threshold_percent"`
}

// OverridesFile is the top-level YAML structure.
type OverridesFile struct {
	Symbols []SymbolOverride `yaml:"symbols"`
}

// LoadOverrides reads per-symbol thresholds. A missing file means no overrides.
func LoadOverrides(path string) (map[string]decimal.Decimal, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]decimal.Decimal{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes the YAML document in data.
func ParseOverrides(data []byte) (map[string]decimal.Decimal, error) {
	var file OverridesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(file.Symbols))
	for _, o := range file.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(o.Symbol))
		if sym == "" {
			return nil, errors.New("override with empty symbol")
		}
		if o.ThresholdPercent <= 0 {
			return nil, fmt.Errorf("%s: threshold_percent must be positive", sym)
		}
		out[sym] = decimal.NewFromFloat(o.ThresholdPercent)
	}
	return out, nil
}
