package brain

import (
	"math"

	"github.com/colesmailbox96-tech/Brain/internal/encode"
)

// Adam hyperparameters. The step-size schedule itself belongs to the
// training loop; these moment decays stay fixed.
const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// ceClamp keeps the cross-entropy finite when a probability underflows.
const ceClamp = 1e-12

// StepMetrics summarizes one minibatch update.
type StepMetrics struct {
	Loss        float32 // combined mean loss
	ActionLoss  float32 // mean cross-entropy
	EmotionLoss float32 // mean squared error
	Correct     int     // argmax matches over the batch
}

// Losses computes the per-sample loss terms the training objective uses:
// cross-entropy of the action distribution against the label, and mean
// squared error of the emotion estimate against its synthesized target.
func Losses(logits, emotion []float32, action int, target []float32) (ce, mse float32) {
	probs := ActionProbs(logits)
	p := float64(probs[action])
	if p < ceClamp {
		p = ceClamp
	}
	ce = float32(-math.Log(p))
	for i := range emotion {
		d := emotion[i] - target[i]
		mse += d * d
	}
	mse /= float32(len(emotion))
	return ce, mse
}

// EmotionWeight scales the emotion regression term in the combined loss.
// The emotion targets are heuristic bootstrap labels, so they are kept from
// dominating the action-imitation objective.
const EmotionWeight = 0.5

// TrainStep runs forward and backward over one minibatch and applies a
// single Adam update. Gradients are averaged over the batch; the batch is an
// atomic unit.
func (m *Model) TrainStep(batch []encode.Sample, lr float32) StepMetrics {
	m.zeroGrads()
	var metrics StepMetrics
	invN := 1 / float32(len(batch))

	for _, s := range batch {
		c := m.forward(s.Perception, s.Memory, s.Mask)

		probs := ActionProbs(c.logits)
		ce, mse := Losses(c.logits, c.emotion, s.Action, s.Emotion)
		metrics.ActionLoss += ce * invN
		metrics.EmotionLoss += mse * invN
		if argmax(probs) == s.Action {
			metrics.Correct++
		}

		dLogits := make([]float32, len(probs))
		for i, p := range probs {
			dLogits[i] = p * invN
		}
		dLogits[s.Action] -= invN

		dEmotion := make([]float32, len(c.emotion))
		for i := range c.emotion {
			dEmotion[i] = EmotionWeight * 2 * (c.emotion[i] - s.Emotion[i]) /
				float32(len(c.emotion)) * invN
		}

		m.backward(c, dLogits, dEmotion)
	}
	metrics.Loss = metrics.ActionLoss + EmotionWeight*metrics.EmotionLoss
	m.adamStep(lr)
	return metrics
}

func argmax(v []float32) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

func (m *Model) zeroGrads() {
	for _, t := range m.params {
		for i := range t.grad {
			t.grad[i] = 0
		}
	}
}

func (m *Model) adamStep(lr float32) {
	m.step++
	c1 := 1 - float32(math.Pow(adamBeta1, float64(m.step)))
	c2 := 1 - float32(math.Pow(adamBeta2, float64(m.step)))
	for _, t := range m.params {
		for i, g := range t.grad {
			t.m[i] = adamBeta1*t.m[i] + (1-adamBeta1)*g
			t.v[i] = adamBeta2*t.v[i] + (1-adamBeta2)*g*g
			mHat := t.m[i] / c1
			vHat := t.v[i] / c2
			t.data[i] -= lr * mHat / (float32(math.Sqrt(float64(vHat))) + adamEps)
		}
	}
}

// backward accumulates parameter gradients for one sample given the loss
// gradients at the two heads. Mirrors forward exactly, in reverse.
func (m *Model) backward(c *fwdCache, dLogits, dEmotion []float32) {
	cfg := m.cfg
	d, slots := cfg.ModelDim, cfg.MemorySlots

	// Emotion head: tanh, then two dense layers.
	dEraw := make([]float32, len(dEmotion))
	for i := range dEmotion {
		dEraw[i] = dEmotion[i] * (1 - c.emotion[i]*c.emotion[i])
	}
	qFinal := c.blocks[len(c.blocks)-1].n2.out
	dq := make([]float32, d)

	dEh := make([]float32, m.ew1.rows)
	denseBack(m.ew2, m.eb2, c.eh, dEraw, dEh)
	reluBack(dEh, c.eh)
	denseBack(m.ew1, m.eb1, qFinal, dEh, dq)

	// Action head.
	dAh := make([]float32, m.aw1.rows)
	denseBack(m.aw2, m.ab2, c.ah, dLogits, dAh)
	reluBack(dAh, c.ah)
	denseBack(m.aw1, m.ab1, qFinal, dAh, dq)

	// Blocks in reverse. The projected memory k0 feeds every block, so its
	// gradient accumulates across all of them.
	dk0 := make([]float32, slots*d)
	for i := len(m.blocks) - 1; i >= 0; i-- {
		dq = m.blockBack(m.blocks[i], &c.blocks[i], c.k0, c.mask, dq, dk0)
	}

	// Perception projection.
	dPh1 := make([]float32, d)
	denseBack(m.pw2, m.pb2, c.ph1, dq, dPh1)
	reluBack(dPh1, c.ph1)
	denseBack(m.pw1, m.pb1, c.x, dPh1, nil)

	// Memory projection. The positional table is fixed, so dk0 flows
	// straight into the ReLU output.
	for t := 0; t < slots; t++ {
		dMh := make([]float32, d)
		copy(dMh, dk0[t*d:(t+1)*d])
		reluBack(dMh, c.mh[t*d:(t+1)*d])
		denseBack(m.mw, m.mb, c.mem[t*cfg.MemoryDim:(t+1)*cfg.MemoryDim], dMh, nil)
	}
}

// blockBack propagates through one attention block, returning the gradient
// of the block's input query and accumulating into dk0.
func (m *Model) blockBack(b *block, bc *blockCache, k0 []float32, mask []bool, dOut, dk0 []float32) []float32 {
	cfg := m.cfg
	d, slots, heads := cfg.ModelDim, cfg.MemorySlots, cfg.Heads
	headDim := d / heads
	scale := float32(1 / math.Sqrt(float64(headDim)))

	// Second sublayer: r2 = n1.out + ffn(n1.out); out = norm2(r2).
	dR2 := lnBack(dOut, &bc.n2, b.norm2g, b.norm2b)
	dN1 := make([]float32, d)
	copy(dN1, dR2) // residual branch

	dFh := make([]float32, b.fw1.rows)
	denseBack(b.fw2, b.fb2, bc.fh, dR2, dFh)
	reluBack(dFh, bc.fh)
	denseBack(b.fw1, b.fb1, bc.n1.out, dFh, dN1)

	// First sublayer: r1 = qIn + attnOut; n1 = norm1(r1).
	dR1 := lnBack(dN1, &bc.n1, b.norm1g, b.norm1b)
	dQIn := make([]float32, d)
	copy(dQIn, dR1) // residual branch

	dConcat := make([]float32, d)
	denseBack(b.wo, b.bo, bc.concat, dR1, dConcat)

	// Attention backward.
	dQh := make([]float32, d)
	dKh := make([]float32, slots*d)
	dVh := make([]float32, slots*d)
	dW := make([]float32, slots)
	for h := 0; h < heads; h++ {
		hs := h * headDim
		weights := bc.weights[h*slots : (h+1)*slots]

		for t := 0; t < slots; t++ {
			dW[t] = 0
			if weights[t] == 0 {
				// Masked or zero-weight slot: contributes nothing
				// forward, receives nothing backward.
				continue
			}
			var dot float32
			for j := 0; j < headDim; j++ {
				dot += dConcat[hs+j] * bc.vh[t*d+hs+j]
			}
			dW[t] = dot
			for j := 0; j < headDim; j++ {
				dVh[t*d+hs+j] += weights[t] * dConcat[hs+j]
			}
		}

		// Softmax backward over the unmasked slots.
		var sumWD float32
		for t := 0; t < slots; t++ {
			sumWD += weights[t] * dW[t]
		}
		for t := 0; t < slots; t++ {
			dScore := weights[t] * (dW[t] - sumWD) * scale
			if dScore == 0 {
				continue
			}
			for j := 0; j < headDim; j++ {
				dQh[hs+j] += dScore * bc.kh[t*d+hs+j]
				dKh[t*d+hs+j] += dScore * bc.qh[hs+j]
			}
		}
	}

	denseBack(b.wq, b.bq, bc.qIn, dQh, dQIn)
	for t := 0; t < slots; t++ {
		denseBack(b.wk, b.bk, k0[t*d:(t+1)*d], dKh[t*d:(t+1)*d], dk0[t*d:(t+1)*d])
		denseBack(b.wv, b.bv, k0[t*d:(t+1)*d], dVh[t*d:(t+1)*d], dk0[t*d:(t+1)*d])
	}
	return dQIn
}

// denseBack accumulates dW += dy ⊗ x and db += dy, and adds the input
// gradient into dx when dx is non-nil.
func denseBack(w, b *tensor, x, dy, dx []float32) {
	for o := 0; o < w.rows; o++ {
		g := dy[o]
		if g == 0 {
			continue
		}
		b.grad[o] += g
		row := w.grad[o*w.cols : (o+1)*w.cols]
		wrow := w.data[o*w.cols : (o+1)*w.cols]
		for i, xv := range x {
			row[i] += g * xv
			if dx != nil {
				dx[i] += g * wrow[i]
			}
		}
	}
}

// reluBack zeroes gradient entries where the forward activation clipped.
func reluBack(dy, post []float32) {
	for i := range dy {
		if post[i] <= 0 {
			dy[i] = 0
		}
	}
}

// lnBack backpropagates layer normalization, accumulating gain/bias
// gradients and returning the input gradient.
func lnBack(dOut []float32, c *lnCache, gain, bias *tensor) []float32 {
	n := float32(len(dOut))
	dXhat := make([]float32, len(dOut))
	var meanD, meanDX float32
	for i, g := range dOut {
		gain.grad[i] += g * c.xhat[i]
		bias.grad[i] += g
		dXhat[i] = g * gain.data[i]
		meanD += dXhat[i]
		meanDX += dXhat[i] * c.xhat[i]
	}
	meanD /= n
	meanDX /= n
	dx := make([]float32, len(dOut))
	for i := range dx {
		dx[i] = c.invStd * (dXhat[i] - meanD - c.xhat[i]*meanDX)
	}
	return dx
}
