// SPDX-License-Identifier: MIT
package audio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readWAV(t *testing.T, path string) (sampleRate, bitDepth int, data []int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile(), "not a valid WAV file")
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return int(dec.SampleRate), int(dec.BitDepth), buf.Data
}

func TestRecorder_WritesEveryBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lossless.wav")
	rec, err := NewRecorder(path, testSampleRate, 16, testFrameSize, true)
	require.NoError(t, err)
	assert.Equal(t, path, rec.Path())

	block := make([]float64, testFrameSize)
	for i := range block {
		block[i] = 0.5
	}
	for range 200 {
		rec.Process(block)
	}
	rec.Process(block[:10])
	rec.Process(nil)

	require.NoError(t, rec.Close())
	assert.Zero(t, rec.Dropped())
	assert.Equal(t, uint64(200*testFrameSize+10), rec.Written())

	rate, depth, data := readWAV(t, path)
	assert.Equal(t, testSampleRate, rate)
	assert.Equal(t, 16, depth)
	require.Len(t, data, 200*testFrameSize+10)
	assert.InDelta(t, 0.5*32767, data[0], 1)
}

func TestRecorder_SplitsLongBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.wav")
	rec, err := NewRecorder(path, testSampleRate, 16, 64, true)
	require.NoError(t, err)

	block := make([]float64, 64*3+17)
	for i := range block {
		block[i] = float64(i) / float64(len(block))
	}
	rec.Process(block)

	require.NoError(t, rec.Close())
	assert.Zero(t, rec.Dropped())
	assert.Equal(t, uint64(len(block)), rec.Written())

	_, _, data := readWAV(t, path)
	require.Len(t, data, len(block))
	assert.InDelta(t, block[len(block)-1]*32767, data[len(data)-1], 1)
}

func TestRecorder_ClipsAndSupports24Bit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	rec, err := NewRecorder(path, testSampleRate, 24, 4, true)
	require.NoError(t, err)

	rec.Process([]float64{2, -2, 0, 1})
	require.NoError(t, rec.Close())

	_, depth, data := readWAV(t, path)
	assert.Equal(t, 24, depth)
	max24 := 1<<23 - 1
	assert.Equal(t, []int{max24, -max24, 0, max24}, data)
}

func TestRecorder_ProcessAfterCloseIsIgnored(t *testing.T) {
	rec, err := NewRecorder(filepath.Join(t.TempDir(), "closed.wav"), testSampleRate, 16, 8, false)
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	assert.NotPanics(t, func() { rec.Process(make([]float64, 8)) })
	assert.Zero(t, rec.Written())
	assert.NoError(t, rec.Close(), "close is idempotent")
}

func TestRecorder_InvalidArguments(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		desc          string
		path          string
		rate, depth   int
		errorContains string
	}{
		{"Unsupported bit depth", filepath.Join(dir, "a.wav"), testSampleRate, 8, "bit depth"},
		{"Zero sample rate", filepath.Join(dir, "b.wav"), 0, 16, "invalid recorder format"},
		{"Invalid path", "/nonexistent/path/file.wav", testSampleRate, 16, ""},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := NewRecorder(tt.path, tt.rate, tt.depth, testFrameSize, false)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("Error %q does not contain %q", err.Error(), tt.errorContains)
			}
		})
	}
}

func TestRecordingErrorCases(t *testing.T) {
	dir := t.TempDir()

	e, _ := newTestEngine(t)
	err := e.StartRecording(filepath.Join(dir, "none.wav"), 16)
	assert.ErrorIs(t, err, ErrNoTrack)
	assert.NoError(t, e.StopRecording(), "stop when not recording")

	require.NoError(t, e.Load(sineTrack(440, 0.5, testSampleRate), testSampleRate))
	require.NoError(t, e.StartRecording(filepath.Join(dir, "first.wav"), 16))
	err = e.StartRecording(filepath.Join(dir, "second.wav"), 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already recording")

	require.NoError(t, e.StopRecording())
	assert.Nil(t, e.Recording())
}

func TestRecordingCapturesProcessedOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.wav")
	e, sink := playing(t, sineTrack(1000, 0.25, testFrameSize*4))
	e.SetVolume(0.5)

	require.NoError(t, e.StartRecording(path, 16))
	require.NotNil(t, e.Recording())

	var first []float32
	for i := range 5 {
		out := sink.pull()
		if i == 0 {
			first = out
		}
	}

	require.NoError(t, e.Close())
	assert.Nil(t, e.Recording(), "close finalizes the recording")

	_, _, data := readWAV(t, path)
	require.Len(t, data, testFrameSize*4)
	for i := range 16 {
		assert.InDelta(t, float64(first[i*2])*32767, data[i], 1, "sample %d", i)
	}
}

func BenchmarkRecordingProcessHotPath(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.wav")
	rec, err := NewRecorder(path, testSampleRate, 16, testFrameSize, false)
	if err != nil {
		b.Fatal(err)
	}
	defer rec.Close()

	block := make([]float64, testFrameSize)
	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		rec.Process(block)
	}
}
