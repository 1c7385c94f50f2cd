// Package strategy loads, validates and registers trading strategies.
package strategy

import (
	"fmt"
	"strings"
	"sync"

	"papertrade/internal/domain"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const paramsSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "stop_loss_pct":     {"type": "number", "minimum": 0, "exclusiveMaximum": 1},
    "take_profit_pct":   {"type": "number", "minimum": 0},
    "max_hold_hours":    {"type": "number", "minimum": 0},
    "trailing_stop_pct": {"type": "number", "minimum": 0, "exclusiveMaximum": 1},
    "position_size_pct": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
    "min_confidence":    {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var (
	schemaOnce     sync.Once
	paramsSchema   *jsonschema.Schema
	schemaCompiled error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("params.json", strings.NewReader(paramsSchemaJSON)); err != nil {
			schemaCompiled = err
			return
		}
		paramsSchema, schemaCompiled = compiler.Compile("params.json")
	})
	return paramsSchema, schemaCompiled
}

// DefaultParams are applied for any field the raw map leaves unset.
func DefaultParams() domain.StrategyParams {
	return domain.StrategyParams{
		StopLossPct:     0.05,
		TakeProfitPct:   0.10,
		MaxHoldHours:    24,
		TrailingStopPct: 0,
		PositionSizePct: 0.10,
		MinConfidence:   0.6,
	}
}

// ParseParams validates a raw parameter map against the schema and decodes it
// onto the defaults. Unknown keys and out-of-range values are rejected.
func ParseParams(raw map[string]any) (domain.StrategyParams, error) {
	params := DefaultParams()
	if len(raw) == 0 {
		return params, nil
	}
	schema, err := compiledSchema()
	if err != nil {
		return params, fmt.Errorf("strategy params schema: %w", err)
	}
	if err := schema.Validate(normalizeRaw(raw)); err != nil {
		return params, fmt.Errorf("invalid strategy params: %w", err)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &params,
		ErrorUnused: true,
	})
	if err != nil {
		return params, err
	}
	if err := decoder.Decode(raw); err != nil {
		return params, fmt.Errorf("invalid strategy params: %w", err)
	}
	return params, nil
}

// normalizeRaw converts integer yaml scalars to float64 so the schema's
// number checks apply uniformly.
func normalizeRaw(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		switch n := v.(type) {
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		default:
			out[k] = v
		}
	}
	return out
}
