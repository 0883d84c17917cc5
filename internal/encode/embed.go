package encode

import "math/rand"

// MemoryEmbedder fills the non-indicator channels of a recalled memory row.
// The default below injects small Gaussian noise so rows look embedding-like
// to the attention mechanism; it is a provisional stand-in for a learned
// memory encoder and is isolated here so one can be dropped in later.
type MemoryEmbedder interface {
	Fill(row []float32)
}

// noiseScale keeps the synthetic signal small relative to the unit
// indicator channels.
const noiseScale = 0.1

// NoiseEmbedder writes seeded Gaussian noise scaled by noiseScale.
type NoiseEmbedder struct {
	rng *rand.Rand
}

// NewNoiseEmbedder returns an embedder with its own seeded source.
func NewNoiseEmbedder(seed int64) *NoiseEmbedder {
	return &NoiseEmbedder{rng: rand.New(rand.NewSource(seed))}
}

// Fill overwrites row with noise.
func (n *NoiseEmbedder) Fill(row []float32) {
	for i := range row {
		row[i] = float32(n.rng.NormFloat64()) * noiseScale
	}
}

// ZeroEmbedder leaves the auxiliary channels at zero. Useful in tests where
// deterministic memory rows matter.
type ZeroEmbedder struct{}

// Fill zeroes row.
func (ZeroEmbedder) Fill(row []float32) {
	for i := range row {
		row[i] = 0
	}
}
