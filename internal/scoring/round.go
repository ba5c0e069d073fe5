package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RoundKind is the input style of a scoresheet round.
type RoundKind string

const (
	RoundKindNumeric       RoundKind = "numeric"
	RoundKindCheckbox      RoundKind = "checkbox"
	RoundKindRank          RoundKind = "rank"
	RoundKindTimer         RoundKind = "timer"
	RoundKindResources     RoundKind = "resources"
	RoundKindVictoryPoints RoundKind = "victory_points"
)

var (
	// ErrInvalidRoundKind indicates an unrecognized round kind.
	ErrInvalidRoundKind = errors.New("scoring: invalid round kind")
	// ErrInvalidRoundConfig indicates a config payload that does not match its round kind.
	ErrInvalidRoundConfig = errors.New("scoring: invalid round config")

	configValidator = validator.New(validator.WithRequiredStructEnabled())
)

// ParseRoundKind normalizes stored input.
func ParseRoundKind(rawInput string) (RoundKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch RoundKind(normalized) {
	case RoundKindNumeric, RoundKindCheckbox, RoundKindRank, RoundKindTimer, RoundKindResources, RoundKindVictoryPoints:
		return RoundKind(normalized), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRoundKind, rawInput)
	}
}

// RoundConfig is the kind-specific point scale of a round. The zero value is the identity transform.
type RoundConfig struct {
	// Modifier multiplies numeric-like values, or is the points awarded for a checked checkbox.
	Modifier *int64 `json:"modifier,omitempty" validate:"omitempty,ne=0"`
	// Lookup maps rank r to Lookup[r-1] points.
	Lookup []int64 `json:"lookup,omitempty" validate:"omitempty,max=64"`
	Min    *int64  `json:"min,omitempty"`
	Max    *int64  `json:"max,omitempty"`
}

// ParseRoundConfig decodes the config payload for a round kind.
// In strict mode a malformed payload is an error; otherwise it falls back to the empty config.
func ParseRoundConfig(kind RoundKind, raw []byte, strict bool) (RoundConfig, error) {
	cfg, err := decodeRoundConfig(kind, raw)
	if err == nil {
		return cfg, nil
	}
	if strict {
		return RoundConfig{}, err
	}
	return RoundConfig{}, nil
}

func decodeRoundConfig(kind RoundKind, raw []byte) (RoundConfig, error) {
	if _, err := ParseRoundKind(string(kind)); err != nil {
		return RoundConfig{}, fmt.Errorf("%w: %v", ErrInvalidRoundConfig, err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return RoundConfig{}, nil
	}

	var cfg RoundConfig
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return RoundConfig{}, fmt.Errorf("%w: %s: %v", ErrInvalidRoundConfig, kind, err)
	}
	if err := configValidator.Struct(cfg); err != nil {
		return RoundConfig{}, fmt.Errorf("%w: %s: %v", ErrInvalidRoundConfig, kind, err)
	}
	if cfg.Min != nil && cfg.Max != nil && *cfg.Max < *cfg.Min {
		return RoundConfig{}, fmt.Errorf("%w: %s: max below min", ErrInvalidRoundConfig, kind)
	}

	if len(cfg.Lookup) > 0 && kind != RoundKindRank {
		return RoundConfig{}, fmt.Errorf("%w: %s: lookup is only valid for rank rounds", ErrInvalidRoundConfig, kind)
	}
	if kind == RoundKindCheckbox && (cfg.Min != nil || cfg.Max != nil) {
		return RoundConfig{}, fmt.Errorf("%w: %s: bounds are not valid for checkbox rounds", ErrInvalidRoundConfig, kind)
	}
	return cfg, nil
}

// RoundScore maps a raw input value to the round's score. A nil raw value stays unscored.
func RoundScore(kind RoundKind, cfg RoundConfig, raw *int64) *int64 {
	if raw == nil {
		return nil
	}
	value := *raw

	switch kind {
	case RoundKindCheckbox:
		if value == 0 {
			return pointer(0)
		}
		return pointer(modifierOr(cfg, 1))
	case RoundKindRank:
		if value >= 1 && int(value) <= len(cfg.Lookup) {
			return pointer(cfg.Lookup[value-1])
		}
		return pointer(value)
	default:
		value *= modifierOr(cfg, 1)
		if cfg.Min != nil && value < *cfg.Min {
			value = *cfg.Min
		}
		if cfg.Max != nil && value > *cfg.Max {
			value = *cfg.Max
		}
		return pointer(value)
	}
}

func modifierOr(cfg RoundConfig, fallback int64) int64 {
	if cfg.Modifier == nil {
		return fallback
	}
	return *cfg.Modifier
}

func pointer(value int64) *int64 {
	v := value
	return &v
}
