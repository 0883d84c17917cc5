// Command finetune personalizes a trained decision network for a single NPC
// using only that NPC's logged decisions.
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
	baseModel := flag.String("base-model", "", "path to the base model checkpoint (required)")
	npcID := flag.Int("npc-id", -1, "NPC id to fine-tune for (required)")
	dataDir := flag.String("data-dir", "data_logs", "directory containing decisions_*.jsonl files")
	outDir := flag.String("out-dir", "models", "directory for the personalized checkpoint")
	epochs := flag.Int("epochs", 20, "number of fine-tuning epochs")
	lr := flag.Float64("lr", 0.0001, "fine-tuning learning rate")
	deviceSpec := flag.String("device", "cpu", "compute device: cpu, gpu, or gpu:<adapter>")
	seed := flag.Int64("seed", 42, "random seed")
	runlogPath := flag.String("runlog", "", "optional SQLite run log path")
	exportArtifact := flag.Bool("export", false, "also write an inference artifact for the personalized model")
	flag.Parse()

	if *baseModel == "" {
		log.Fatalf("-base-model is required")
	}
	if *npcID < 0 {
		log.Fatalf("-npc-id is required")
	}

	sel := device.Select(*deviceSpec)
	fmt.Printf("Using device: requested=%s active=%s\n", sel.Requested, sel.Active)
	if sel.Note != "" {
		fmt.Printf("[warn] %s\n", sel.Note)
	}

	model, err := brain.Load(*baseModel)
	if err != nil {
		log.Fatalf("load base model: %v", err)
	}
	fmt.Printf("Loaded base model from %s (%d parameters)\n", *baseModel, model.NumParams())

	enc := encode.NewEncoder(encode.Config{Seed: *seed})
	store, err := dataset.Load(*dataDir, enc)
	if err != nil {
		log.Fatalf("load dataset: %v", err)
	}
	npcStore := store.FilterNPC(*npcID)
	fmt.Printf("NPC %d: %d samples (of %d total)\n", *npcID, npcStore.Len(), store.Len())

	cfg := train.DefaultFineTuneConfig(*npcID)
	cfg.Epochs = *epochs
	cfg.LR = float32(*lr)
	cfg.Seed = *seed
	cfg.OutDir = *outDir

	if *runlogPath != "" {
		rl, err := runlog.Open(*runlogPath, "finetune", *dataDir, cfg)
		if err != nil {
			log.Fatalf("open run log: %v", err)
		}
		defer rl.Close()
		cfg.Log = rl
		fmt.Printf("Run log: %s (run %s)\n", *runlogPath, rl.RunID())
	}

	result, err := train.FineTune(model, npcStore, cfg)
	if err != nil {
		log.Fatalf("fine-tuning failed: %v", err)
	}

	if *exportArtifact {
		name := fmt.Sprintf("npc_brain_%d", *npcID)
		if err := export.WriteModel(model, *outDir, name); err != nil {
			log.Fatalf("export failed: %v", err)
		}
		fmt.Printf("Inference artifact written for %s\n", name)
	}

	fmt.Printf("Fine-tuned model saved to %s (best loss %.4f)\n", result.BestPath, result.BestLoss)
}
