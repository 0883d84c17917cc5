// Package train drives the epoch loop: shuffled minibatches, combined
// action/emotion loss, validation-driven learning-rate decay, and best-model
// checkpointing.
package train

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/colesmailbox96-tech/Brain/internal/brain"
	"github.com/colesmailbox96-tech/Brain/internal/dataset"
	"github.com/colesmailbox96-tech/Brain/internal/encode"
	"github.com/colesmailbox96-tech/Brain/internal/runlog"
)

// ErrNoSamples is returned when the store holds nothing to train on.
// Training on an empty partition is refused outright.
var ErrNoSamples = errors.New("train: no usable samples")

// Config controls a base training run.
type Config struct {
	Epochs    int
	BatchSize int
	LR        float32
	ValFrac   float64
	Patience  int // epochs without val improvement before halving the LR
	Seed      int64
	OutDir    string
	Log       *runlog.Log
	Quiet     bool
}

// DefaultConfig mirrors the training defaults the logged controller was
// bootstrapped with.
func DefaultConfig() Config {
	return Config{
		Epochs:    50,
		BatchSize: 32,
		LR:        0.001,
		ValFrac:   0.1,
		Patience:  5,
		Seed:      42,
	}
}

// Result reports what a run produced.
type Result struct {
	BestLoss  float32
	BestPath  string
	FinalPath string
}

// EvalMetrics summarizes a gradient-free pass over a partition.
type EvalMetrics struct {
	Loss        float32
	ActionLoss  float32
	EmotionLoss float32
	Accuracy    float32
}

// Train runs the full epoch loop over store and writes npc_brain_best.json
// (on strict validation improvement) and npc_brain_final.json
// (unconditionally) under cfg.OutDir.
func Train(model *brain.Model, store *dataset.Store, cfg Config) (*Result, error) {
	if store.Len() == 0 {
		return nil, ErrNoSamples
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	trainView, valView := store.Split(cfg.ValFrac, cfg.Seed)
	if trainView.Len() == 0 {
		return nil, ErrNoSamples
	}
	if !cfg.Quiet {
		fmt.Printf("Train samples: %d, Validation samples: %d\n", trainView.Len(), valView.Len())
	}

	result := &Result{
		BestLoss:  float32(1e30),
		BestPath:  filepath.Join(cfg.OutDir, "npc_brain_best.json"),
		FinalPath: filepath.Join(cfg.OutDir, "npc_brain_final.json"),
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	lr := cfg.LR
	sinceImproved := 0

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		em := runEpoch(model, trainView, cfg.BatchSize, lr, rng)

		// Validation signal: falls back to the training loss when the
		// partition is too small to hold anything out.
		signal := em.Loss
		var valLoss, valAcc *float32
		if valView.Len() > 0 {
			vm := Evaluate(model, valView)
			signal = vm.Loss
			valLoss, valAcc = &vm.Loss, &vm.Accuracy
		}

		improved := signal < result.BestLoss
		if improved {
			result.BestLoss = signal
			sinceImproved = 0
			if err := model.Save(result.BestPath); err != nil {
				return nil, err
			}
		} else {
			sinceImproved++
			if sinceImproved > cfg.Patience {
				lr *= 0.5
				sinceImproved = 0
			}
		}

		if !cfg.Quiet {
			fmt.Printf("Epoch %d/%d: train loss=%.4f (action=%.4f emotion=%.4f) acc=%.2f%%",
				epoch, cfg.Epochs, em.Loss, em.ActionLoss, em.EmotionLoss, 100*em.Accuracy)
			if valLoss != nil {
				fmt.Printf(" | val loss=%.4f acc=%.2f%%", *valLoss, 100**valAcc)
			}
			if improved {
				fmt.Printf(" -> saved best")
			}
			fmt.Println()
		}

		if err := cfg.Log.RecordEpoch(runlog.EpochMetrics{
			Epoch: epoch, TrainLoss: em.Loss, ActionLoss: em.ActionLoss,
			EmotionLoss: em.EmotionLoss, TrainAcc: em.Accuracy,
			ValLoss: valLoss, ValAcc: valAcc, LR: lr, Improved: improved,
		}); err != nil {
			return nil, err
		}
	}

	if err := model.Save(result.FinalPath); err != nil {
		return nil, err
	}
	return result, nil
}

// MinFineTuneSamples is the point below which per-agent fine-tuning is
// unlikely to help. It is a warning threshold, not a refusal.
const MinFineTuneSamples = 10

// FineTuneConfig controls a personalization run over an NPC-filtered store.
type FineTuneConfig struct {
	NPCID     int
	Epochs    int
	BatchSize int
	LR        float32
	Seed      int64
	OutDir    string
	Log       *runlog.Log
	Quiet     bool
}

// DefaultFineTuneConfig uses a lower learning rate and smaller batches than
// base training, suiting the small per-agent sample counts.
func DefaultFineTuneConfig(npcID int) FineTuneConfig {
	return FineTuneConfig{
		NPCID:     npcID,
		Epochs:    20,
		BatchSize: 8,
		LR:        0.0001,
		Seed:      42,
	}
}

// FineTune runs the same epoch loop over a single agent's samples. Held-out
// validation is usually meaningless at per-agent sample counts, so the
// checkpoint criterion is best training loss, written to
// npc_brain_<id>.json.
func FineTune(model *brain.Model, store *dataset.Store, cfg FineTuneConfig) (*Result, error) {
	if store.Len() == 0 {
		return nil, ErrNoSamples
	}
	if store.Len() < MinFineTuneSamples {
		fmt.Printf("Warning: only %d samples for NPC %d, fine-tuning may not be effective\n",
			store.Len(), cfg.NPCID)
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	view := store.All()
	result := &Result{
		BestLoss: float32(1e30),
		BestPath: filepath.Join(cfg.OutDir, fmt.Sprintf("npc_brain_%d.json", cfg.NPCID)),
	}
	result.FinalPath = result.BestPath
	rng := rand.New(rand.NewSource(cfg.Seed))

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		em := runEpoch(model, view, cfg.BatchSize, cfg.LR, rng)

		improved := em.Loss < result.BestLoss
		if improved {
			result.BestLoss = em.Loss
			if err := model.Save(result.BestPath); err != nil {
				return nil, err
			}
		}
		if !cfg.Quiet {
			fmt.Printf("Epoch %d/%d: loss=%.4f acc=%.2f%%\n",
				epoch, cfg.Epochs, em.Loss, 100*em.Accuracy)
		}
		if err := cfg.Log.RecordEpoch(runlog.EpochMetrics{
			Epoch: epoch, TrainLoss: em.Loss, ActionLoss: em.ActionLoss,
			EmotionLoss: em.EmotionLoss, TrainAcc: em.Accuracy,
			LR: cfg.LR, Improved: improved,
		}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// runEpoch shuffles the partition and applies one Adam update per
// minibatch, returning mean metrics across batches.
func runEpoch(model *brain.Model, view *dataset.View, batchSize int, lr float32, rng *rand.Rand) EvalMetrics {
	if batchSize <= 0 {
		batchSize = 1
	}
	order := make([]int, view.Len())
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	var sum EvalMetrics
	correct, batches := 0, 0
	for start := 0; start < len(order); start += batchSize {
		end := start + batchSize
		if end > len(order) {
			end = len(order)
		}
		batch := make([]encode.Sample, 0, end-start)
		for _, idx := range order[start:end] {
			batch = append(batch, view.Sample(idx))
		}
		sm := model.TrainStep(batch, lr)
		sum.Loss += sm.Loss
		sum.ActionLoss += sm.ActionLoss
		sum.EmotionLoss += sm.EmotionLoss
		correct += sm.Correct
		batches++
	}
	inv := 1 / float32(batches)
	sum.Loss *= inv
	sum.ActionLoss *= inv
	sum.EmotionLoss *= inv
	sum.Accuracy = float32(correct) / float32(len(order))
	return sum
}

// Evaluate runs a forward-only pass over a partition. No gradients are
// computed or applied.
func Evaluate(model *brain.Model, view *dataset.View) EvalMetrics {
	var m EvalMetrics
	correct := 0
	for i := 0; i < view.Len(); i++ {
		s := view.Sample(i)
		out := model.Forward(s.Perception, s.Memory, s.Mask)
		ce, mse := brain.Losses(out.Logits, out.Emotion, s.Action, s.Emotion)
		m.ActionLoss += ce
		m.EmotionLoss += mse
		if argmax(out.Logits) == s.Action {
			correct++
		}
	}
	n := float32(view.Len())
	m.ActionLoss /= n
	m.EmotionLoss /= n
	m.Loss = m.ActionLoss + brain.EmotionWeight*m.EmotionLoss
	m.Accuracy = float32(correct) / n
	return m
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
