// SPDX-License-Identifier: MIT
package eq

import (
	"fmt"
	"slices"
	"strings"
)

// Gains are in dB for the eight default bands, lowest first.
var presets = map[string][]float64{
	"Flat":         {0, 0, 0, 0, 0, 0, 0, 0},
	"Rock":         {4, 2, -2, -1, 1, 3, 4, 3},
	"Pop":          {-1, 2, 4, 4, 1, -1, -1, -1},
	"Jazz":         {3, 2, 1, 2, -1, -1, 0, 1},
	"Classical":    {4, 3, 2, 0, -1, -1, 0, 3},
	"Bass Boost":   {6, 4, 2, 0, 0, 0, 0, 0},
	"Treble Boost": {0, 0, 0, 0, 2, 4, 6, 8},
}

// PresetNames returns the known preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Preset returns a copy of the gains for name. Matching ignores case and
// surrounding whitespace.
func Preset(name string) ([]float64, error) {
	key := strings.TrimSpace(name)
	for n, gains := range presets {
		if strings.EqualFold(n, key) {
			return slices.Clone(gains), nil
		}
	}
	return nil, fmt.Errorf("eq: %w: %q", ErrUnknownPreset, name)
}
