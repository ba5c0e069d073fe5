package scoring

import (
	"errors"
	"testing"
)

func TestParseRoundConfigStrictness(t *testing.T) {
	testCases := []struct {
		name    string
		kind    RoundKind
		raw     string
		wantErr bool
	}{
		{name: "empty", kind: RoundKindNumeric, raw: ""},
		{name: "null", kind: RoundKindTimer, raw: "null"},
		{name: "modifier", kind: RoundKindResources, raw: `{"modifier":2}`},
		{name: "rank-lookup", kind: RoundKindRank, raw: `{"lookup":[10,6,3]}`},
		{name: "bounds", kind: RoundKindNumeric, raw: `{"min":0,"max":50}`},
		{name: "unknown-field", kind: RoundKindNumeric, raw: `{"multiplier":2}`, wantErr: true},
		{name: "lookup-on-numeric", kind: RoundKindNumeric, raw: `{"lookup":[1]}`, wantErr: true},
		{name: "inverted-bounds", kind: RoundKindVictoryPoints, raw: `{"min":10,"max":5}`, wantErr: true},
		{name: "zero-modifier", kind: RoundKindCheckbox, raw: `{"modifier":0}`, wantErr: true},
		{name: "checkbox-bounds", kind: RoundKindCheckbox, raw: `{"max":5}`, wantErr: true},
		{name: "malformed-json", kind: RoundKindRank, raw: `{"lookup":`, wantErr: true},
		{name: "unknown-kind", kind: RoundKind("dice"), raw: `{}`, wantErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := ParseRoundConfig(testCase.kind, []byte(testCase.raw), true)
			if testCase.wantErr {
				if !errors.Is(err, ErrInvalidRoundConfig) {
					t.Fatalf("expected invalid round config error, got %v", err)
				}
				cfg, lenientErr := ParseRoundConfig(testCase.kind, []byte(testCase.raw), false)
				if lenientErr != nil {
					t.Fatalf("lenient parsing must not fail: %v", lenientErr)
				}
				if cfg.Modifier != nil || cfg.Lookup != nil || cfg.Min != nil || cfg.Max != nil {
					t.Fatalf("lenient parsing must fall back to the empty config, got %+v", cfg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRoundScoreTransforms(t *testing.T) {
	value := func(v int64) *int64 { return &v }
	two := int64(2)
	five := int64(5)
	zero := int64(0)
	ten := int64(10)

	testCases := []struct {
		name string
		kind RoundKind
		cfg  RoundConfig
		raw  *int64
		want *int64
	}{
		{name: "unscored", kind: RoundKindNumeric, raw: nil, want: nil},
		{name: "numeric-identity", kind: RoundKindNumeric, raw: value(-4), want: value(-4)},
		{name: "resources-modifier", kind: RoundKindResources, cfg: RoundConfig{Modifier: &two}, raw: value(6), want: value(12)},
		{name: "victory-points-clamped", kind: RoundKindVictoryPoints, cfg: RoundConfig{Min: &zero, Max: &ten}, raw: value(14), want: value(10)},
		{name: "checkbox-checked", kind: RoundKindCheckbox, cfg: RoundConfig{Modifier: &five}, raw: value(1), want: value(5)},
		{name: "checkbox-unchecked", kind: RoundKindCheckbox, cfg: RoundConfig{Modifier: &five}, raw: value(0), want: value(0)},
		{name: "checkbox-default", kind: RoundKindCheckbox, raw: value(1), want: value(1)},
		{name: "rank-lookup", kind: RoundKindRank, cfg: RoundConfig{Lookup: []int64{10, 6, 3}}, raw: value(2), want: value(6)},
		{name: "rank-beyond-lookup", kind: RoundKindRank, cfg: RoundConfig{Lookup: []int64{10}}, raw: value(4), want: value(4)},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got := RoundScore(testCase.kind, testCase.cfg, testCase.raw)
			if testCase.want == nil {
				if got != nil {
					t.Fatalf("expected unscored round, got %d", *got)
				}
				return
			}
			if got == nil || *got != *testCase.want {
				t.Fatalf("expected %d, got %v", *testCase.want, got)
			}
		})
	}
}

func TestParseRoundKindAcceptsHyphenatedInput(t *testing.T) {
	kind, err := ParseRoundKind("Victory-Points")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != RoundKindVictoryPoints {
		t.Fatalf("expected victory points kind, got %q", kind)
	}
}
