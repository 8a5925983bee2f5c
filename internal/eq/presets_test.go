// SPDX-License-Identifier: MIT
package eq

import (
	"errors"
	"slices"
	"testing"
)

func TestPresetNamesSorted(t *testing.T) {
	names := PresetNames()
	if len(names) != 7 {
		t.Fatalf("got %d presets, want 7", len(names))
	}
	if !slices.IsSorted(names) {
		t.Errorf("names not sorted: %v", names)
	}
}

func TestPresetLookup(t *testing.T) {
	gains, err := Preset(" rock ")
	if err != nil {
		t.Fatalf("Preset: %v", err)
	}
	want := []float64{4, 2, -2, -1, 1, 3, 4, 3}
	if !slices.Equal(gains, want) {
		t.Errorf("rock = %v, want %v", gains, want)
	}

	// Callers get a copy.
	gains[0] = 99
	again, _ := Preset("Rock")
	if again[0] != 4 {
		t.Error("mutating a returned preset changed the table")
	}
}

func TestPresetUnknown(t *testing.T) {
	if _, err := Preset("Dubstep"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("err = %v, want ErrUnknownPreset", err)
	}
}

func TestEveryPresetFitsDefaultBands(t *testing.T) {
	for _, name := range PresetNames() {
		gains, _ := Preset(name)
		if len(gains) != len(DefaultFrequencies) {
			t.Errorf("%s has %d gains, want %d", name, len(gains), len(DefaultFrequencies))
		}
	}
}

func TestApplyPreset(t *testing.T) {
	b := newDefaultBank(t)
	if err := b.ApplyPreset("Treble Boost"); err != nil {
		t.Fatalf("ApplyPreset: %v", err)
	}
	if got := b.Gain(7); got != 8 {
		t.Errorf("gain 7 = %v, want 8", got)
	}
	if err := b.ApplyPreset("nope"); err == nil {
		t.Error("expected error for unknown preset")
	}
}
