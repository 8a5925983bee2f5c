// SPDX-License-Identifier: MIT
package analysis

// Processor is implemented by anything that observes the processed audio
// stream. Process is called synchronously from the real-time audio callback
// with the filtered, volume-scaled block (without zero padding), so it must
// not block, allocate on the steady-state path, log or perform I/O. The slice
// is only valid for the duration of the call.
type Processor interface {
	Process(block []float64)
}

// Resetter is implemented by processors that carry state across blocks and
// must forget it when the track changes.
type Resetter interface {
	Reset()
}

// Preparer is implemented by processors that can pre-allocate for a known
// block size before the callback starts.
type Preparer interface {
	Prepare(blockSize int)
}

// ProcessorFunc adapts a plain function to Processor.
type ProcessorFunc func(block []float64)

func (f ProcessorFunc) Process(block []float64) { f(block) }
