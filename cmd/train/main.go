// Command train bootstraps the NPC decision network from logged behavior:
// it loads decision logs, trains the attention model, checkpoints the best
// and final parameters, and writes the inference export artifact.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/colesmailbox96-tech/Brain/internal/brain"
	"github.com/colesmailbox96-tech/Brain/internal/dataset"
	"github.com/colesmailbox96-tech/Brain/internal/device"
	"github.com/colesmailbox96-tech/Brain/internal/encode"
	"github.com/colesmailbox96-tech/Brain/internal/export"
	"github.com/colesmailbox96-tech/Brain/internal/runlog"
	"github.com/colesmailbox96-tech/Brain/internal/train"
)

func main() {
	dataDir := flag.String("data-dir", "data_logs", "directory containing decisions_*.jsonl files")
	outDir := flag.String("out-dir", "models", "directory for checkpoints and the export artifact")
	epochs := flag.Int("epochs", 50, "number of training epochs")
	batchSize := flag.Int("batch-size", 32, "minibatch size")
	lr := flag.Float64("lr", 0.001, "initial learning rate")
	deviceSpec := flag.String("device", "cpu", "compute device: cpu, gpu, or gpu:<adapter>")
	seed := flag.Int64("seed", 42, "random seed for encoding, splitting, and init")
	runlogPath := flag.String("runlog", "", "optional SQLite run log path")
	flag.Parse()

	sel := device.Select(*deviceSpec)
	fmt.Printf("Using device: requested=%s active=%s\n", sel.Requested, sel.Active)
	if sel.Note != "" {
		fmt.Printf("[warn] %s\n", sel.Note)
	}

	fmt.Println("Loading dataset...")
	enc := encode.NewEncoder(encode.Config{Seed: *seed})
	store, err := dataset.Load(*dataDir, enc)
	if err != nil {
		log.Fatalf("load dataset: %v", err)
	}
	fmt.Printf("Loaded %d training samples (%d lines skipped)\n", store.Len(), store.Skipped())
	if store.Len() == 0 {
		log.Fatalf("no training data found in %s — run the simulator to generate decision logs first", *dataDir)
	}

	cfg := brain.DefaultConfig()
	cfg.Seed = *seed
	model, err := brain.New(cfg)
	if err != nil {
		log.Fatalf("create model: %v", err)
	}
	fmt.Printf("Model parameters: %d\n", model.NumParams())

	trainCfg := train.DefaultConfig()
	trainCfg.Epochs = *epochs
	trainCfg.BatchSize = *batchSize
	trainCfg.LR = float32(*lr)
	trainCfg.Seed = *seed
	trainCfg.OutDir = *outDir

	if *runlogPath != "" {
		rl, err := runlog.Open(*runlogPath, "train", *dataDir, trainCfg)
		if err != nil {
			log.Fatalf("open run log: %v", err)
		}
		defer rl.Close()
		trainCfg.Log = rl
		fmt.Printf("Run log: %s (run %s)\n", *runlogPath, rl.RunID())
	}

	fmt.Println("\nStarting training...")
	result, err := train.Train(model, store, trainCfg)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}

	fmt.Println("\nExporting inference artifact...")
	if err := export.WriteModel(model, *outDir, "npc_brain"); err != nil {
		log.Fatalf("export failed: %v", err)
	}

	fmt.Println("\nTraining complete!")
	fmt.Printf("Best validation loss: %.4f\n", result.BestLoss)
	fmt.Printf("Checkpoints and export saved to %s/\n", *outDir)
}
