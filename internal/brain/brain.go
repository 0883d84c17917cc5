// Package brain implements the NPC decision network: an attention model
// that fuses the agent's current perception with its recalled memories and
// emits an action distribution plus an emotional state estimate.
//
// The perception vector is projected into a single attention query; memory
// rows are projected into the same latent space and attended to across a
// stack of transformer blocks. Two heads read the fused representation:
// action logits over the 9 behavior kinds and a tanh-bounded 3D emotion.
package brain

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/colesmailbox96-tech/Brain/internal/encode"
)

// Config fixes the network shapes. ModelDim must be divisible by Heads.
type Config struct {
	PerceptionDim int   `json:"perception_dim"`
	MemorySlots   int   `json:"memory_slots"`
	MemoryDim     int   `json:"memory_dim"`
	ModelDim      int   `json:"model_dim"`
	Heads         int   `json:"heads"`
	Blocks        int   `json:"blocks"`
	Seed          int64 `json:"seed"`
}

// DefaultConfig mirrors the shapes the simulator's inference runtime
// expects: 20-dim perception, 50x32 memory, 128-wide latent, 4 heads,
// 2 attention blocks.
func DefaultConfig() Config {
	return Config{
		PerceptionDim: 20,
		MemorySlots:   50,
		MemoryDim:     32,
		ModelDim:      128,
		Heads:         4,
		Blocks:        2,
		Seed:          42,
	}
}

func (c Config) validate() error {
	if c.PerceptionDim <= 0 || c.MemorySlots <= 0 || c.MemoryDim <= 0 {
		return fmt.Errorf("brain: non-positive input shape %+v", c)
	}
	if c.ModelDim <= 0 || c.Heads <= 0 || c.Blocks <= 0 {
		return fmt.Errorf("brain: non-positive model shape %+v", c)
	}
	if c.ModelDim%c.Heads != 0 {
		return fmt.Errorf("brain: model dim %d not divisible by %d heads", c.ModelDim, c.Heads)
	}
	if c.ModelDim%2 != 0 {
		return fmt.Errorf("brain: model dim %d must be even", c.ModelDim)
	}
	return nil
}

// tensor is one named parameter matrix (rows x cols, row-major) with its
// gradient accumulator and Adam moment estimates. Bias and gain vectors use
// rows == 1.
type tensor struct {
	name       string
	rows, cols int
	data       []float32
	grad       []float32
	m, v       []float32
}

func newTensor(name string, rows, cols int) *tensor {
	n := rows * cols
	return &tensor{
		name: name, rows: rows, cols: cols,
		data: make([]float32, n),
		grad: make([]float32, n),
		m:    make([]float32, n),
		v:    make([]float32, n),
	}
}

// block holds one memory-attention transformer block: multi-head attention
// with residual + layer norm, then a position-wise feed-forward with its own
// residual + layer norm.
type block struct {
	wq, bq *tensor
	wk, bk *tensor
	wv, bv *tensor
	wo, bo *tensor

	norm1g, norm1b *tensor
	norm2g, norm2b *tensor

	fw1, fb1 *tensor // D -> 4D
	fw2, fb2 *tensor // 4D -> D
}

// Model is the decision network. Parameters are exclusively owned; nothing
// mutates them outside TrainStep.
type Model struct {
	cfg Config

	pw1, pb1 *tensor // perception fc1: P -> D
	pw2, pb2 *tensor // perception fc2: D -> D

	mw, mb *tensor // memory fc: E -> D

	pos []float32 // MemorySlots x ModelDim sinusoidal table, not learned

	blocks []*block

	aw1, ab1 *tensor // action head fc1: D -> D
	aw2, ab2 *tensor // action head fc2: D -> 9

	ew1, eb1 *tensor // emotion head fc1: D -> D/2
	ew2, eb2 *tensor // emotion head fc2: D/2 -> 3

	params []*tensor
	step   int // Adam timestep
}

// New builds a randomly initialized model.
func New(cfg Config) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d := cfg.ModelDim
	m := &Model{cfg: cfg}

	m.pw1 = m.add("perception.fc1.weight", d, cfg.PerceptionDim)
	m.pb1 = m.add("perception.fc1.bias", 1, d)
	m.pw2 = m.add("perception.fc2.weight", d, d)
	m.pb2 = m.add("perception.fc2.bias", 1, d)

	m.mw = m.add("memory.fc.weight", d, cfg.MemoryDim)
	m.mb = m.add("memory.fc.bias", 1, d)

	for i := 0; i < cfg.Blocks; i++ {
		b := &block{}
		p := fmt.Sprintf("block%d.", i)
		b.wq = m.add(p+"attn.q.weight", d, d)
		b.bq = m.add(p+"attn.q.bias", 1, d)
		b.wk = m.add(p+"attn.k.weight", d, d)
		b.bk = m.add(p+"attn.k.bias", 1, d)
		b.wv = m.add(p+"attn.v.weight", d, d)
		b.bv = m.add(p+"attn.v.bias", 1, d)
		b.wo = m.add(p+"attn.out.weight", d, d)
		b.bo = m.add(p+"attn.out.bias", 1, d)
		b.norm1g = m.add(p+"norm1.gain", 1, d)
		b.norm1b = m.add(p+"norm1.bias", 1, d)
		b.norm2g = m.add(p+"norm2.gain", 1, d)
		b.norm2b = m.add(p+"norm2.bias", 1, d)
		b.fw1 = m.add(p+"ffn.fc1.weight", 4*d, d)
		b.fb1 = m.add(p+"ffn.fc1.bias", 1, 4*d)
		b.fw2 = m.add(p+"ffn.fc2.weight", d, 4*d)
		b.fb2 = m.add(p+"ffn.fc2.bias", 1, d)
		m.blocks = append(m.blocks, b)
	}

	m.aw1 = m.add("action.fc1.weight", d, d)
	m.ab1 = m.add("action.fc1.bias", 1, d)
	m.aw2 = m.add("action.fc2.weight", encode.NumActions, d)
	m.ab2 = m.add("action.fc2.bias", 1, encode.NumActions)

	m.ew1 = m.add("emotion.fc1.weight", d/2, d)
	m.eb1 = m.add("emotion.fc1.bias", 1, d/2)
	m.ew2 = m.add("emotion.fc2.weight", encode.EmotionDim, d/2)
	m.eb2 = m.add("emotion.fc2.bias", 1, encode.EmotionDim)

	m.initWeights(rand.New(rand.NewSource(cfg.Seed)))
	m.pos = positionalTable(cfg.MemorySlots, d)
	return m, nil
}

func (m *Model) add(name string, rows, cols int) *tensor {
	t := newTensor(name, rows, cols)
	m.params = append(m.params, t)
	return t
}

// initWeights draws weight matrices from a scaled normal (He init on fan-in,
// as elsewhere in this codebase's networks), zeroes biases, and sets layer
// norm gains to 1.
func (m *Model) initWeights(rng *rand.Rand) {
	for _, t := range m.params {
		if t.rows == 1 { // bias / gain vector
			continue
		}
		scale := float32(math.Sqrt(2 / float64(t.cols)))
		for i := range t.data {
			t.data[i] = float32(rng.NormFloat64()) * scale
		}
	}
	for _, b := range m.blocks {
		fill(b.norm1g.data, 1)
		fill(b.norm2g.data, 1)
	}
}

func fill(s []float32, v float32) {
	for i := range s {
		s[i] = v
	}
}

// Config returns the model's shape configuration.
func (m *Model) Config() Config { return m.cfg }

// NumParams reports the learned parameter count.
func (m *Model) NumParams() int {
	n := 0
	for _, t := range m.params {
		n += len(t.data)
	}
	return n
}

// Tensors exposes the named parameter tensors and their shapes for
// checkpointing and export. Weight matrices report [rows, cols]; vectors
// report [cols].
func (m *Model) Tensors() map[string]NamedTensor {
	out := make(map[string]NamedTensor, len(m.params))
	for _, t := range m.params {
		shape := []int{t.rows, t.cols}
		if t.rows == 1 {
			shape = []int{t.cols}
		}
		out[t.name] = NamedTensor{Shape: shape, Data: t.data}
	}
	return out
}

// NamedTensor is a read-only view of one parameter tensor.
type NamedTensor struct {
	Shape []int
	Data  []float32
}

// SetTensor overwrites one parameter tensor by name. The value length must
// match exactly.
func (m *Model) SetTensor(name string, data []float32) error {
	for _, t := range m.params {
		if t.name != name {
			continue
		}
		if len(data) != len(t.data) {
			return fmt.Errorf("brain: tensor %s expects %d values, got %d", name, len(t.data), len(data))
		}
		copy(t.data, data)
		return nil
	}
	return fmt.Errorf("brain: unknown tensor %s", name)
}

// positionalTable builds the fixed sinusoidal slot encoding: even channels
// sin, odd channels cos, wavelengths geometric in 10000.
func positionalTable(slots, dim int) []float32 {
	pe := make([]float32, slots*dim)
	for t := 0; t < slots; t++ {
		for c := 0; c < dim; c += 2 {
			div := math.Exp(float64(c) * (-math.Log(10000) / float64(dim)))
			angle := float64(t) * div
			pe[t*dim+c] = float32(math.Sin(angle))
			if c+1 < dim {
				pe[t*dim+c+1] = float32(math.Cos(angle))
			}
		}
	}
	return pe
}
