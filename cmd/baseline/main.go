// Command baseline trains a plain dense classifier on the derived 13-feature
// dataset. It gives a cheap reference accuracy for the attention model to
// beat, and doubles as a loom smoke test on this data.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sort"

	"github.com/openfluke/loom/nn"

	"github.com/colesmailbox96-tech/Brain/internal/device"
	"github.com/colesmailbox96-tech/Brain/internal/encode"
	"github.com/colesmailbox96-tech/Brain/internal/export"
)

const baselineConfig = `{
	"id": "npc_baseline",
	"batch_size": 16,
	"grid_rows": 1,
	"grid_cols": 1,
	"layers_per_cell": 4,
	"layers": [
		{
			"type": "dense", "activation": "relu",
			"input_height": 13, "output_height": 64
		},
		{
			"type": "dense", "activation": "relu",
			"input_height": 64, "output_height": 64
		},
		{
			"type": "dense", "activation": "none",
			"input_height": 64, "output_height": 9
		},
		{
			"type": "softmax", "activation": "none",
			"input_height": 9
		}
	]
}`

func main() {
	dataDir := flag.String("data-dir", "training_data", "directory with the exported derived dataset")
	epochs := flag.Int("epochs", 40, "number of training epochs")
	lr := flag.Float64("lr", 0.005, "learning rate")
	deviceSpec := flag.String("device", "cpu", "compute device: cpu, gpu, or gpu:<adapter>")
	seed := flag.Int64("seed", 42, "shuffle seed")
	flag.Parse()

	sel := device.Select(*deviceSpec)
	fmt.Printf("Using device: requested=%s active=%s\n", sel.Requested, sel.Active)
	if sel.Note != "" {
		fmt.Printf("[warn] %s\n", sel.Note)
	}

	fd, meta, err := export.LoadDataset(*dataDir)
	if err != nil {
		log.Fatalf("load dataset: %v", err)
	}
	fmt.Printf("Loaded %d samples, %d features, %d classes\n",
		meta.NumSamples, meta.NumFeatures, meta.NumClasses)
	if meta.NumFeatures != encode.NumFeatures {
		log.Fatalf("dataset has %d features, expected %d", meta.NumFeatures, encode.NumFeatures)
	}

	// 90/10 shuffled split.
	rng := rand.New(rand.NewSource(*seed))
	perm := rng.Perm(len(fd.Labels))
	nVal := len(perm) / 10
	if nVal == 0 && len(perm) > 1 {
		nVal = 1
	}
	valIdx, trainIdx := perm[:nVal], perm[nVal:]
	if len(trainIdx) == 0 {
		log.Fatalf("not enough samples to train: %d", len(fd.Labels))
	}

	const batchSize = 16
	batches := createBatches(fd, trainIdx, batchSize)
	fmt.Printf("Training on %d samples (%d batches), validating on %d\n",
		len(trainIdx), len(batches), len(valIdx))

	network, err := nn.BuildNetworkFromJSON(baselineConfig)
	if err != nil {
		log.Fatalf("build network: %v", err)
	}
	network.InitializeWeights()

	config := &nn.TrainingConfig{
		Epochs:       *epochs,
		LearningRate: float32(*lr),
		UseGPU:       sel.UseGPU,
		LossType:     "cross_entropy",
		Verbose:      true,
	}
	result, err := network.Train(batches, config)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	fmt.Printf("\nLoss: %.6f → %.6f\n", result.LossHistory[0], result.FinalLoss)

	// Per-class accuracy on the held-out split.
	correct := 0
	var classTotal, classHit [encode.NumActions]int
	expected := make([]float64, 0, len(valIdx))
	actual := make([]float64, 0, len(valIdx))
	for _, i := range valIdx {
		out, _ := network.Forward(fd.Features[i])
		pred := argmax(out)
		label := fd.Labels[i]
		classTotal[label]++
		if pred == label {
			correct++
			classHit[label]++
		}
		expected = append(expected, float64(label))
		actual = append(actual, float64(pred))
	}
	if len(valIdx) > 0 {
		fmt.Printf("\nValidation accuracy: %.1f%% (%d/%d)\n",
			100*float64(correct)/float64(len(valIdx)), correct, len(valIdx))

		type classAcc struct {
			label, total, hit int
		}
		accs := make([]classAcc, 0, encode.NumActions)
		for label, total := range classTotal {
			if total > 0 {
				accs = append(accs, classAcc{label, total, classHit[label]})
			}
		}
		sort.Slice(accs, func(i, j int) bool { return accs[i].total > accs[j].total })
		for _, ca := range accs {
			fmt.Printf("  %-14s %3d/%-3d (%.0f%%)\n",
				encode.ActionName(ca.label), ca.hit, ca.total, 100*float64(ca.hit)/float64(ca.total))
		}

		metrics, err := nn.EvaluateModel(expected, actual)
		if err == nil {
			fmt.Printf("\nDeviation score: %.2f%%\n", metrics.Score)
		}
	}
}

// createBatches packs samples into loom training batches with one-hot targets.
func createBatches(fd *export.FlatDataset, idx []int, batchSize int) []nn.TrainingBatch {
	numBatches := (len(idx) + batchSize - 1) / batchSize
	batches := make([]nn.TrainingBatch, 0, numBatches)
	for b := 0; b < len(idx); b += batchSize {
		end := b + batchSize
		if end > len(idx) {
			end = len(idx)
		}
		n := end - b
		input := make([]float32, n*encode.NumFeatures)
		target := make([]float32, n*encode.NumActions)
		for i := 0; i < n; i++ {
			s := idx[b+i]
			copy(input[i*encode.NumFeatures:], fd.Features[s])
			target[i*encode.NumActions+fd.Labels[s]] = 1.0
		}
		batches = append(batches, nn.TrainingBatch{Input: input, Target: target})
	}
	return batches
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
