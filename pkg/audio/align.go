// Package audio provides PCM byte-stream utilities for the Expertline voice
// pipeline. The synthesis providers emit raw 16-bit little-endian PCM in
// arbitrarily sized network chunks; this package re-frames those chunks on
// 2-byte sample boundaries so downstream consumers never see a torn sample.
package audio

import "log/slog"

// Aligner re-frames a raw PCM byte stream into sample-aligned chunks.
//
// Each call to Push returns a chunk whose length is always even. When the
// incoming data (combined with any byte held over from the previous call)
// has odd length, the final byte is retained and prepended to the next push.
// A trailing odd byte left when the stream ends is dropped by Flush; it is
// half a sample and must never be emitted as a corrupt short frame.
//
// An Aligner is scoped to a single synthesis stream and is not safe for
// concurrent use.
type Aligner struct {
	leftover    byte
	hasLeftover bool
}

// Push appends chunk to any held-over byte and returns the longest even-length
// prefix. The returned slice is nil when no complete sample is available yet.
func (a *Aligner) Push(chunk []byte) []byte {
	if len(chunk) == 0 {
		return nil
	}

	data := chunk
	if a.hasLeftover {
		combined := make([]byte, 0, len(chunk)+1)
		combined = append(combined, a.leftover)
		combined = append(combined, chunk...)
		data = combined
		a.hasLeftover = false
	}

	if len(data)%2 != 0 {
		a.leftover = data[len(data)-1]
		a.hasLeftover = true
		data = data[:len(data)-1]
	}

	if len(data) == 0 {
		return nil
	}
	return data
}

// Flush discards any held-over odd byte and reports whether one was dropped.
// Call it once when the source stream ends.
func (a *Aligner) Flush() (dropped bool) {
	dropped = a.hasLeftover
	if dropped {
		slog.Debug("audio aligner: dropping trailing odd byte")
	}
	a.hasLeftover = false
	a.leftover = 0
	return dropped
}
