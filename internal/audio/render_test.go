// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"path/filepath"
	"testing"

	"eqplayer/internal/eq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderConfig() EngineConfig {
	return EngineConfig{FramesPerBuffer: testFrameSize, Channels: 2}
}

func TestRender_WritesWholeTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	samples := sineTrack(440, 0.5, 50*testFrameSize+17)

	err := Render(context.Background(), renderConfig(), samples, testSampleRate, path, RenderOptions{
		Volume:   1,
		BitDepth: 24,
		Preset:   "rock",
	})
	require.NoError(t, err)

	rate, depth, data := readWAV(t, path)
	assert.Equal(t, testSampleRate, rate)
	assert.Equal(t, 24, depth)
	assert.Len(t, data, len(samples))

	var nonZero int
	for _, v := range data {
		if v != 0 {
			nonZero++
		}
	}
	assert.Greater(t, nonZero, len(data)/2)
}

func TestRender_ZeroVolumeIsSilent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silent.wav")
	samples := sineTrack(1000, 0.9, 10*testFrameSize)

	require.NoError(t, Render(context.Background(), renderConfig(), samples, testSampleRate, path, RenderOptions{}))

	_, depth, data := readWAV(t, path)
	assert.Equal(t, 16, depth)
	require.Len(t, data, len(samples))
	for i, v := range data {
		require.Zero(t, v, "sample %d", i)
	}
}

func TestRender_Errors(t *testing.T) {
	dir := t.TempDir()
	samples := sineTrack(440, 0.5, testFrameSize)

	err := Render(context.Background(), renderConfig(), samples, testSampleRate, filepath.Join(dir, "a.wav"), RenderOptions{Preset: "polka"})
	assert.ErrorIs(t, err, eq.ErrUnknownPreset)

	err = Render(context.Background(), renderConfig(), samples, 0, filepath.Join(dir, "b.wav"), RenderOptions{})
	assert.ErrorIs(t, err, eq.ErrInvalidConfig)

	err = Render(context.Background(), renderConfig(), samples, testSampleRate, filepath.Join(dir, "missing", "c.wav"), RenderOptions{})
	assert.Error(t, err)
}
