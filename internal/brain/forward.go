package brain

import (
	"fmt"
	"math"
)

const normEps = 1e-5

// Output is the result of one forward pass.
type Output struct {
	Logits  []float32 // NumActions unnormalized action scores
	Emotion []float32 // EmotionDim, tanh-bounded
	// Attention holds per-block attention weights over memory slots,
	// averaged across heads. Masked slots carry exactly zero weight.
	Attention [][]float32
}

// Forward runs the network on one (perception, memory, mask) triple. mask
// marks padding slots (true = padded); a nil mask treats every slot as real.
// Wrong input lengths are a caller contract violation and panic: the feature
// encoder guarantees fixed shapes, so a mismatch here is a programming
// error, not a data condition.
func (m *Model) Forward(perception, memory []float32, mask []bool) Output {
	cache := m.forward(perception, memory, mask)
	return Output{
		Logits:    cache.logits,
		Emotion:   cache.emotion,
		Attention: cache.avgAttention(m.cfg),
	}
}

// ActionProbs converts action logits into a probability distribution.
func ActionProbs(logits []float32) []float32 {
	probs := make([]float32, len(logits))
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}
	var sum float32
	for i, l := range logits {
		probs[i] = float32(math.Exp(float64(l - maxLogit)))
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// lnCache keeps the normalized activations a layer norm backward needs.
type lnCache struct {
	xhat   []float32
	invStd float32
	out    []float32
}

type blockCache struct {
	qIn     []float32 // query entering the block (D)
	qh      []float32 // projected query (D)
	kh, vh  []float32 // projected memory (S*D)
	weights []float32 // attention weights (H*S), zero at masked slots
	concat  []float32 // attended heads, concatenated (D)
	r1      []float32 // qIn + attention output (D)
	n1      lnCache
	fh      []float32 // FFN hidden post-ReLU (4D)
	r2      []float32 // n1.out + FFN output (D)
	n2      lnCache
}

type fwdCache struct {
	x    []float32 // perception input
	ph1  []float32 // perception fc1 post-ReLU
	q0   []float32 // perception latent
	mem  []float32 // memory input (S*E)
	mh   []float32 // memory fc post-ReLU (S*D)
	k0   []float32 // mh + positional table (S*D)
	mask []bool

	blocks []blockCache

	ah      []float32 // action head hidden post-ReLU
	logits  []float32
	eh      []float32 // emotion head hidden post-ReLU
	eraw    []float32 // emotion pre-tanh
	emotion []float32
}

func (c *fwdCache) avgAttention(cfg Config) [][]float32 {
	out := make([][]float32, len(c.blocks))
	for i := range c.blocks {
		avg := make([]float32, cfg.MemorySlots)
		for h := 0; h < cfg.Heads; h++ {
			for t := 0; t < cfg.MemorySlots; t++ {
				avg[t] += c.blocks[i].weights[h*cfg.MemorySlots+t]
			}
		}
		for t := range avg {
			avg[t] /= float32(cfg.Heads)
		}
		out[i] = avg
	}
	return out
}

func (m *Model) forward(perception, memory []float32, mask []bool) *fwdCache {
	cfg := m.cfg
	if len(perception) != cfg.PerceptionDim {
		panic(fmt.Sprintf("brain: perception length %d, want %d", len(perception), cfg.PerceptionDim))
	}
	if len(memory) != cfg.MemorySlots*cfg.MemoryDim {
		panic(fmt.Sprintf("brain: memory length %d, want %d", len(memory), cfg.MemorySlots*cfg.MemoryDim))
	}
	if mask != nil && len(mask) != cfg.MemorySlots {
		panic(fmt.Sprintf("brain: mask length %d, want %d", len(mask), cfg.MemorySlots))
	}

	d, slots := cfg.ModelDim, cfg.MemorySlots
	c := &fwdCache{x: perception, mem: memory, mask: mask}

	// Perception projection: linear -> ReLU -> linear.
	c.ph1 = denseReLU(m.pw1, m.pb1, perception)
	c.q0 = dense(m.pw2, m.pb2, c.ph1)

	// Memory projection + positional signal. Every block attends to the
	// same projected memory.
	c.mh = make([]float32, slots*d)
	c.k0 = make([]float32, slots*d)
	for t := 0; t < slots; t++ {
		row := denseReLU(m.mw, m.mb, memory[t*cfg.MemoryDim:(t+1)*cfg.MemoryDim])
		copy(c.mh[t*d:], row)
		for j := 0; j < d; j++ {
			c.k0[t*d+j] = row[j] + m.pos[t*d+j]
		}
	}

	q := c.q0
	c.blocks = make([]blockCache, len(m.blocks))
	for i, b := range m.blocks {
		bc := &c.blocks[i]
		bc.qIn = q
		m.attend(b, bc, c.k0, mask)

		// Residual + layer norm around attention.
		bc.r1 = make([]float32, d)
		attnOut := dense(b.wo, b.bo, bc.concat)
		for j := 0; j < d; j++ {
			bc.r1[j] = q[j] + attnOut[j]
		}
		layerNorm(bc.r1, b.norm1g.data, b.norm1b.data, &bc.n1)

		// Position-wise feed-forward with its own residual + norm.
		bc.fh = denseReLU(b.fw1, b.fb1, bc.n1.out)
		ffnOut := dense(b.fw2, b.fb2, bc.fh)
		bc.r2 = make([]float32, d)
		for j := 0; j < d; j++ {
			bc.r2[j] = bc.n1.out[j] + ffnOut[j]
		}
		layerNorm(bc.r2, b.norm2g.data, b.norm2b.data, &bc.n2)

		q = bc.n2.out
	}

	// Output heads.
	c.ah = denseReLU(m.aw1, m.ab1, q)
	c.logits = dense(m.aw2, m.ab2, c.ah)

	c.eh = denseReLU(m.ew1, m.eb1, q)
	c.eraw = dense(m.ew2, m.eb2, c.eh)
	c.emotion = make([]float32, len(c.eraw))
	for i, v := range c.eraw {
		c.emotion[i] = float32(math.Tanh(float64(v)))
	}
	return c
}

// attend runs masked multi-head scaled dot-product attention with the block
// query against the shared projected memory.
func (m *Model) attend(b *block, bc *blockCache, k0 []float32, mask []bool) {
	cfg := m.cfg
	d, slots, heads := cfg.ModelDim, cfg.MemorySlots, cfg.Heads
	headDim := d / heads
	scale := float32(1 / math.Sqrt(float64(headDim)))

	bc.qh = dense(b.wq, b.bq, bc.qIn)
	bc.kh = make([]float32, slots*d)
	bc.vh = make([]float32, slots*d)
	for t := 0; t < slots; t++ {
		copy(bc.kh[t*d:], dense(b.wk, b.bk, k0[t*d:(t+1)*d]))
		copy(bc.vh[t*d:], dense(b.wv, b.bv, k0[t*d:(t+1)*d]))
	}

	bc.weights = make([]float32, heads*slots)
	bc.concat = make([]float32, d)
	scores := make([]float32, slots)
	for h := 0; h < heads; h++ {
		hs := h * headDim
		for t := 0; t < slots; t++ {
			var dot float32
			for j := 0; j < headDim; j++ {
				dot += bc.qh[hs+j] * bc.kh[t*d+hs+j]
			}
			scores[t] = dot * scale
		}
		maskedSoftmax(scores, mask, bc.weights[h*slots:(h+1)*slots])
		for t := 0; t < slots; t++ {
			w := bc.weights[h*slots+t]
			if w == 0 {
				continue
			}
			for j := 0; j < headDim; j++ {
				bc.concat[hs+j] += w * bc.vh[t*d+hs+j]
			}
		}
	}
}

// maskedSoftmax normalizes scores over unmasked slots only. Masked slots get
// exactly zero weight; if every slot is masked the whole row is zero, so
// padded memories contribute nothing rather than producing NaN.
func maskedSoftmax(scores []float32, mask []bool, out []float32) {
	maxScore := float32(math.Inf(-1))
	for t, s := range scores {
		if mask != nil && mask[t] {
			continue
		}
		if s > maxScore {
			maxScore = s
		}
	}
	if math.IsInf(float64(maxScore), -1) {
		for t := range out {
			out[t] = 0
		}
		return
	}
	var sum float32
	for t, s := range scores {
		if mask != nil && mask[t] {
			out[t] = 0
			continue
		}
		out[t] = float32(math.Exp(float64(s - maxScore)))
		sum += out[t]
	}
	for t := range out {
		out[t] /= sum
	}
}

// dense computes w*x + b for a row-major [out x in] weight matrix.
func dense(w, b *tensor, x []float32) []float32 {
	out := make([]float32, w.rows)
	for o := 0; o < w.rows; o++ {
		sum := b.data[o]
		row := w.data[o*w.cols : (o+1)*w.cols]
		for i, xv := range x {
			sum += row[i] * xv
		}
		out[o] = sum
	}
	return out
}

func denseReLU(w, b *tensor, x []float32) []float32 {
	out := dense(w, b, x)
	for i, v := range out {
		if v < 0 {
			out[i] = 0
		}
	}
	return out
}

// layerNorm normalizes x and applies gain/bias, recording what the backward
// pass needs.
func layerNorm(x, gain, bias []float32, c *lnCache) {
	n := float32(len(x))
	var mean float32
	for _, v := range x {
		mean += v
	}
	mean /= n
	var variance float32
	for _, v := range x {
		d := v - mean
		variance += d * d
	}
	variance /= n
	c.invStd = float32(1 / math.Sqrt(float64(variance)+normEps))
	c.xhat = make([]float32, len(x))
	c.out = make([]float32, len(x))
	for i, v := range x {
		c.xhat[i] = (v - mean) * c.invStd
		c.out[i] = gain[i]*c.xhat[i] + bias[i]
	}
}
