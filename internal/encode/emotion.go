package encode

import "math"

// EmotionSynth derives a (valence, arousal, dominance) target for a sample.
// The bootstrap implementation below is a stand-in until the simulator logs
// real emotional state; swapping in a learned or closed-loop source only
// requires replacing this interface on the encoder.
type EmotionSynth interface {
	Synthesize(needs *NeedsRecord, outcome *OutcomeRecord) []float32
}

// BootstrapSynth infers emotion heuristically from needs and outcome.
//
// Sign convention: a positive needs delta means the need grew (bad), so
// valence is the negated tanh of the mean delta. This polarity follows the
// simulator's logging convention and is assumed, not verified, here.
type BootstrapSynth struct{}

// Synthesize returns a 3-vector bounded in [-1, 1] by construction.
func (BootstrapSynth) Synthesize(needs *NeedsRecord, outcome *OutcomeRecord) []float32 {
	emotion := make([]float32, EmotionDim)

	if outcome != nil && len(outcome.NeedsDeltas) > 0 {
		var sum float32
		for _, delta := range outcome.NeedsDeltas {
			sum += delta
		}
		avg := sum / float32(len(outcome.NeedsDeltas))
		emotion[0] = -tanh32(avg)
	}

	// High unmet needs read as high arousal.
	avgNeed := (needs.Hunger + needs.Energy + needs.Safety) / 3
	emotion[1] = tanh32(avgNeed*2 - 1)

	// Feeling safe reads as dominant.
	emotion[2] = tanh32(1 - needs.Safety*2)

	return emotion
}

func tanh32(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}
