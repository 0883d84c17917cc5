package brain

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/colesmailbox96-tech/Brain/internal/encode"
)

func smallConfig() Config {
	return Config{
		PerceptionDim: 8,
		MemorySlots:   4,
		MemoryDim:     6,
		ModelDim:      16,
		Heads:         2,
		Blocks:        1,
		Seed:          1,
	}
}

func smallModel(t *testing.T) *Model {
	t.Helper()
	m, err := New(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func randInputs(cfg Config, seed int64) (perception, memory []float32, mask []bool) {
	rng := rand.New(rand.NewSource(seed))
	perception = make([]float32, cfg.PerceptionDim)
	for i := range perception {
		perception[i] = rng.Float32()
	}
	memory = make([]float32, cfg.MemorySlots*cfg.MemoryDim)
	for i := range memory {
		memory[i] = rng.Float32() - 0.5
	}
	mask = make([]bool, cfg.MemorySlots)
	return perception, memory, mask
}

func TestConfigValidation(t *testing.T) {
	bad := []Config{
		{},
		{PerceptionDim: 8, MemorySlots: 4, MemoryDim: 6, ModelDim: 15, Heads: 2, Blocks: 1}, // odd dim
		{PerceptionDim: 8, MemorySlots: 4, MemoryDim: 6, ModelDim: 16, Heads: 3, Blocks: 1}, // indivisible
		{PerceptionDim: 8, MemorySlots: 4, MemoryDim: 6, ModelDim: 16, Heads: 2, Blocks: 0},
	}
	for i, cfg := range bad {
		if _, err := New(cfg); err == nil {
			t.Errorf("config %d accepted: %+v", i, cfg)
		}
	}
	if _, err := New(DefaultConfig()); err != nil {
		t.Errorf("default config rejected: %v", err)
	}
}

func TestForwardShapes(t *testing.T) {
	m := smallModel(t)
	cfg := m.Config()
	p, mem, mask := randInputs(cfg, 2)

	out := m.Forward(p, mem, mask)
	if len(out.Logits) != encode.NumActions {
		t.Errorf("logits length %d, want %d", len(out.Logits), encode.NumActions)
	}
	if len(out.Emotion) != encode.EmotionDim {
		t.Errorf("emotion length %d, want %d", len(out.Emotion), encode.EmotionDim)
	}
	if len(out.Attention) != cfg.Blocks {
		t.Fatalf("attention blocks %d, want %d", len(out.Attention), cfg.Blocks)
	}
	for _, v := range out.Emotion {
		if v < -1 || v > 1 {
			t.Errorf("emotion %v outside [-1, 1]", v)
		}
	}
}

func TestForwardDeterministic(t *testing.T) {
	m := smallModel(t)
	p, mem, mask := randInputs(m.Config(), 3)
	a := m.Forward(p, mem, mask)
	b := m.Forward(p, mem, mask)
	for i := range a.Logits {
		if a.Logits[i] != b.Logits[i] {
			t.Fatalf("logit %d diverged: %v vs %v", i, a.Logits[i], b.Logits[i])
		}
	}
}

func TestForwardPanicsOnBadShape(t *testing.T) {
	m := smallModel(t)
	_, mem, mask := randInputs(m.Config(), 4)
	defer func() {
		if recover() == nil {
			t.Error("no panic on wrong perception length")
		}
	}()
	m.Forward(make([]float32, 3), mem, mask)
}

func TestActionProbs(t *testing.T) {
	probs := ActionProbs([]float32{1, 2, 3, -1, 0, 0.5, 2.5, -3, 1.5})
	var sum float32
	for _, p := range probs {
		if p <= 0 || p >= 1 {
			t.Errorf("probability %v outside (0, 1)", p)
		}
		sum += p
	}
	if math.Abs(float64(sum)-1) > 1e-5 {
		t.Errorf("probabilities sum to %v", sum)
	}
	if argmax(probs) != 2 {
		t.Errorf("argmax = %d, want 2", argmax(probs))
	}

	// Large logits must not overflow.
	probs = ActionProbs([]float32{1000, 999, 998, 0, 0, 0, 0, 0, 0})
	if math.IsNaN(float64(probs[0])) || math.IsInf(float64(probs[0]), 0) {
		t.Errorf("overflow: %v", probs[0])
	}
}

func TestMaskedSoftmax(t *testing.T) {
	out := make([]float32, 4)
	maskedSoftmax([]float32{1, 2, 3, 4}, []bool{false, true, false, true}, out)
	if out[1] != 0 || out[3] != 0 {
		t.Errorf("masked slots got weight: %v", out)
	}
	if sum := out[0] + out[2]; math.Abs(float64(sum)-1) > 1e-5 {
		t.Errorf("active weights sum to %v", sum)
	}
	if out[2] <= out[0] {
		t.Errorf("ordering lost: %v", out)
	}

	// Every slot masked degrades to all-zero weights, not NaN.
	maskedSoftmax([]float32{1, 2, 3, 4}, []bool{true, true, true, true}, out)
	for i, v := range out {
		if v != 0 {
			t.Errorf("fully masked slot %d = %v, want 0", i, v)
		}
	}
}

func TestAttentionRespectsMask(t *testing.T) {
	m := smallModel(t)
	cfg := m.Config()
	p, mem, _ := randInputs(cfg, 5)
	mask := []bool{false, false, true, true}

	out := m.Forward(p, mem, mask)
	for b, weights := range out.Attention {
		if len(weights) != cfg.MemorySlots {
			t.Fatalf("block %d attention length %d", b, len(weights))
		}
		if weights[2] != 0 || weights[3] != 0 {
			t.Errorf("block %d attended padding slots: %v", b, weights)
		}
		if sum := weights[0] + weights[1]; math.Abs(float64(sum)-1) > 1e-4 {
			t.Errorf("block %d active weights sum to %v", b, sum)
		}
	}
}

func TestFullyMaskedMemoryStaysFinite(t *testing.T) {
	m := smallModel(t)
	cfg := m.Config()
	p, mem, _ := randInputs(cfg, 6)
	mask := []bool{true, true, true, true}

	out := m.Forward(p, mem, mask)
	for i, l := range out.Logits {
		if math.IsNaN(float64(l)) || math.IsInf(float64(l), 0) {
			t.Fatalf("logit %d = %v with empty memory", i, l)
		}
	}
	for b, weights := range out.Attention {
		for _, w := range weights {
			if w != 0 {
				t.Errorf("block %d attention nonzero with empty memory: %v", b, weights)
			}
		}
	}

	// The memory content must not leak through masked slots.
	mem2 := make([]float32, len(mem))
	for i := range mem2 {
		mem2[i] = mem[i] + 7
	}
	out2 := m.Forward(p, mem2, mask)
	for i := range out.Logits {
		if out.Logits[i] != out2.Logits[i] {
			t.Fatalf("masked memory changed logit %d: %v vs %v", i, out.Logits[i], out2.Logits[i])
		}
	}
}

func toySamples(cfg Config, n int) []encode.Sample {
	rng := rand.New(rand.NewSource(11))
	samples := make([]encode.Sample, n)
	for i := range samples {
		p := make([]float32, cfg.PerceptionDim)
		for j := range p {
			p[j] = rng.Float32() * 0.1
		}
		action := i % 3
		p[action] = 1 // action is readable from the perception
		mem := make([]float32, cfg.MemorySlots*cfg.MemoryDim)
		mask := make([]bool, cfg.MemorySlots)
		for t := range mask {
			mask[t] = t > 0
		}
		mem[0] = 1
		samples[i] = encode.Sample{
			Perception: p,
			Memory:     mem,
			Mask:       mask,
			Action:     action,
			Emotion:    []float32{0.5, -0.5, 0},
		}
	}
	return samples
}

func TestTrainStepReducesLoss(t *testing.T) {
	m := smallModel(t)
	samples := toySamples(m.Config(), 24)

	first := m.TrainStep(samples, 0.01)
	var last StepMetrics
	for i := 0; i < 60; i++ {
		last = m.TrainStep(samples, 0.01)
	}
	if !(last.Loss < first.Loss) {
		t.Fatalf("loss did not decrease: %v -> %v", first.Loss, last.Loss)
	}
	if last.Correct < len(samples)*2/3 {
		t.Errorf("accuracy after training: %d/%d", last.Correct, len(samples))
	}
}

func TestLosses(t *testing.T) {
	logits := []float32{10, 0, 0, 0, 0, 0, 0, 0, 0}
	emotion := []float32{0.5, -0.5, 0}

	ce, mse := Losses(logits, emotion, 0, emotion)
	if ce > 0.01 {
		t.Errorf("confident correct prediction ce = %v", ce)
	}
	if mse != 0 {
		t.Errorf("exact emotion mse = %v", mse)
	}

	ceWrong, _ := Losses(logits, emotion, 1, emotion)
	if ceWrong <= ce {
		t.Errorf("wrong label ce %v <= correct label ce %v", ceWrong, ce)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	m := smallModel(t)
	samples := toySamples(m.Config(), 8)
	m.TrainStep(samples, 0.01) // move off the init point

	path := filepath.Join(t.TempDir(), "model.json")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Config() != m.Config() {
		t.Fatalf("config changed: %+v vs %+v", loaded.Config(), m.Config())
	}

	p, mem, mask := randInputs(m.Config(), 12)
	a := m.Forward(p, mem, mask)
	b := loaded.Forward(p, mem, mask)
	for i := range a.Logits {
		if a.Logits[i] != b.Logits[i] {
			t.Fatalf("logit %d differs after reload: %v vs %v", i, a.Logits[i], b.Logits[i])
		}
	}
	for i := range a.Emotion {
		if a.Emotion[i] != b.Emotion[i] {
			t.Fatalf("emotion %d differs after reload: %v vs %v", i, a.Emotion[i], b.Emotion[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("loading a missing file succeeded")
	}
}

func TestSetTensor(t *testing.T) {
	m := smallModel(t)
	tensors := m.Tensors()
	if len(tensors) == 0 {
		t.Fatal("no tensors exported")
	}

	name := "perception.fc1.weight"
	spec, ok := tensors[name]
	if !ok {
		t.Fatalf("tensor %q not exported", name)
	}
	n := 1
	for _, d := range spec.Shape {
		n *= d
	}
	if err := m.SetTensor(name, make([]float32, n)); err != nil {
		t.Errorf("SetTensor with right size: %v", err)
	}
	if err := m.SetTensor(name, make([]float32, n+1)); err == nil {
		t.Error("SetTensor accepted wrong size")
	}
	if err := m.SetTensor("no.such.tensor", make([]float32, 4)); err == nil {
		t.Error("SetTensor accepted unknown name")
	}
}

func TestNumParamsMatchesTensors(t *testing.T) {
	m := smallModel(t)
	total := 0
	for _, spec := range m.Tensors() {
		n := 1
		for _, d := range spec.Shape {
			n *= d
		}
		total += n
	}
	if total != m.NumParams() {
		t.Errorf("tensor elements %d != NumParams %d", total, m.NumParams())
	}
}
