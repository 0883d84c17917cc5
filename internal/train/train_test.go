package train

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/colesmailbox96-tech/Brain/internal/brain"
	"github.com/colesmailbox96-tech/Brain/internal/dataset"
	"github.com/colesmailbox96-tech/Brain/internal/encode"
)

func testConfig() brain.Config {
	return brain.Config{
		PerceptionDim: 8,
		MemorySlots:   4,
		MemoryDim:     6,
		ModelDim:      16,
		Heads:         2,
		Blocks:        1,
		Seed:          1,
	}
}

// separableStore builds samples whose action is readable straight from the
// perception vector, so a few epochs are enough to learn it.
func separableStore(cfg brain.Config, n int) *dataset.Store {
	rng := rand.New(rand.NewSource(21))
	samples := make([]encode.Sample, n)
	for i := range samples {
		p := make([]float32, cfg.PerceptionDim)
		for j := range p {
			p[j] = rng.Float32() * 0.1
		}
		action := i % 3
		p[action] = 1
		mem := make([]float32, cfg.MemorySlots*cfg.MemoryDim)
		mem[0] = 1
		mask := make([]bool, cfg.MemorySlots)
		for t := 1; t < len(mask); t++ {
			mask[t] = true
		}
		samples[i] = encode.Sample{
			Perception: p,
			Memory:     mem,
			Mask:       mask,
			Action:     action,
			Emotion:    []float32{0.2, -0.2, 0.1},
			NPCID:      i % 3,
			Tick:       int64(i),
		}
	}
	return dataset.FromSamples(samples)
}

func TestTrainWritesCheckpoints(t *testing.T) {
	cfg := testConfig()
	model, err := brain.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	store := separableStore(cfg, 60)

	trainCfg := DefaultConfig()
	trainCfg.Epochs = 5
	trainCfg.BatchSize = 8
	trainCfg.OutDir = t.TempDir()
	trainCfg.Quiet = true

	result, err := Train(model, store, trainCfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if _, err := os.Stat(result.BestPath); err != nil {
		t.Errorf("best checkpoint missing: %v", err)
	}
	if _, err := os.Stat(result.FinalPath); err != nil {
		t.Errorf("final checkpoint missing: %v", err)
	}
	if filepath.Base(result.BestPath) != "npc_brain_best.json" {
		t.Errorf("best path %q", result.BestPath)
	}
	if filepath.Base(result.FinalPath) != "npc_brain_final.json" {
		t.Errorf("final path %q", result.FinalPath)
	}
	if result.BestLoss >= 1e30 {
		t.Errorf("best loss never recorded: %v", result.BestLoss)
	}

	if _, err := brain.Load(result.BestPath); err != nil {
		t.Errorf("best checkpoint unreadable: %v", err)
	}
}

func TestTrainLearnsSeparableData(t *testing.T) {
	cfg := testConfig()
	model, err := brain.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	store := separableStore(cfg, 60)

	trainCfg := DefaultConfig()
	trainCfg.Epochs = 30
	trainCfg.BatchSize = 8
	trainCfg.LR = 0.005
	trainCfg.OutDir = t.TempDir()
	trainCfg.Quiet = true

	if _, err := Train(model, store, trainCfg); err != nil {
		t.Fatalf("Train: %v", err)
	}

	m := Evaluate(model, store.All())
	if m.Accuracy < 0.8 {
		t.Errorf("accuracy %v after training on separable data", m.Accuracy)
	}
}

func TestTrainRefusesEmptyStore(t *testing.T) {
	cfg := testConfig()
	model, err := brain.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	trainCfg := DefaultConfig()
	trainCfg.OutDir = t.TempDir()
	trainCfg.Quiet = true

	if _, err := Train(model, dataset.FromSamples(nil), trainCfg); err != ErrNoSamples {
		t.Errorf("empty store: err = %v, want ErrNoSamples", err)
	}
}

func TestFineTuneWritesAgentCheckpoint(t *testing.T) {
	cfg := testConfig()
	model, err := brain.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	store := separableStore(cfg, 30).FilterNPC(1)
	if store.Len() == 0 {
		t.Fatal("filter produced no samples")
	}

	ftCfg := DefaultFineTuneConfig(1)
	ftCfg.Epochs = 3
	ftCfg.OutDir = t.TempDir()
	ftCfg.Quiet = true

	result, err := FineTune(model, store, ftCfg)
	if err != nil {
		t.Fatalf("FineTune: %v", err)
	}
	if filepath.Base(result.BestPath) != "npc_brain_1.json" {
		t.Errorf("checkpoint path %q", result.BestPath)
	}
	if _, err := os.Stat(result.BestPath); err != nil {
		t.Errorf("checkpoint missing: %v", err)
	}
}

func TestFineTuneTinyStoreProceeds(t *testing.T) {
	cfg := testConfig()
	model, err := brain.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	store := separableStore(cfg, MinFineTuneSamples-2)

	ftCfg := DefaultFineTuneConfig(0)
	ftCfg.Epochs = 1
	ftCfg.OutDir = t.TempDir()
	ftCfg.Quiet = true

	if _, err := FineTune(model, store, ftCfg); err != nil {
		t.Errorf("tiny store refused: %v", err)
	}

	if _, err := FineTune(model, dataset.FromSamples(nil), ftCfg); err != ErrNoSamples {
		t.Errorf("empty store: err = %v, want ErrNoSamples", err)
	}
}

func TestEvaluateMatchesLossDefinition(t *testing.T) {
	cfg := testConfig()
	model, err := brain.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	store := separableStore(cfg, 10)

	m := Evaluate(model, store.All())
	want := m.ActionLoss + brain.EmotionWeight*m.EmotionLoss
	if diff := m.Loss - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("combined loss %v, want %v", m.Loss, want)
	}
	if m.Accuracy < 0 || m.Accuracy > 1 {
		t.Errorf("accuracy %v out of range", m.Accuracy)
	}
}
