// Command verify runs the whole pipeline end to end on synthetic logs:
// generate, load, train, checkpoint, export, reload, infer, fine-tune.
// Every stage prints a pass/fail line; any failure sets a nonzero exit.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/colesmailbox96-tech/Brain/internal/brain"
	"github.com/colesmailbox96-tech/Brain/internal/dataset"
	"github.com/colesmailbox96-tech/Brain/internal/encode"
	"github.com/colesmailbox96-tech/Brain/internal/export"
	"github.com/colesmailbox96-tech/Brain/internal/train"
)

var failed bool

func check(name string, ok bool, detail string) {
	if ok {
		fmt.Printf("  ✓ %s\n", name)
	} else {
		fmt.Printf("  ✗ %s: %s\n", name, detail)
		failed = true
	}
}

func fatal(name string, err error) {
	fmt.Printf("  ✗ %s: %v\n", name, err)
	os.Exit(1)
}

func main() {
	keep := flag.Bool("keep", false, "keep the scratch directory after the run")
	flag.Parse()

	dir, err := os.MkdirTemp("", "brain-verify-")
	if err != nil {
		fatal("create scratch dir", err)
	}
	if !*keep {
		defer os.RemoveAll(dir)
	}
	fmt.Printf("Scratch dir: %s\n", dir)

	fmt.Println("\n[1/6] Synthetic decision logs")
	logDir := filepath.Join(dir, "logs")
	numEntries := 200
	if err := writeSyntheticLogs(logDir, numEntries); err != nil {
		fatal("write logs", err)
	}

	enc := encode.NewEncoder(encode.Config{Seed: 7})
	store, err := dataset.Load(logDir, enc)
	if err != nil {
		fatal("load dataset", err)
	}
	// Two deliberately bad lines are appended to the log file.
	check("loads all valid entries", store.Len() == numEntries,
		fmt.Sprintf("got %d, want %d", store.Len(), numEntries))
	check("skips malformed lines", store.Skipped() == 2,
		fmt.Sprintf("skipped %d, want 2", store.Skipped()))

	counts := store.ActionCounts()
	allActions := true
	for _, c := range counts {
		if c == 0 {
			allActions = false
		}
	}
	check("all 9 action classes present", allActions, fmt.Sprintf("counts %v", counts))

	fmt.Println("\n[2/6] Training")
	cfg := brain.DefaultConfig()
	cfg.ModelDim, cfg.Heads, cfg.Blocks = 32, 2, 1
	cfg.Seed = 7
	model, err := brain.New(cfg)
	if err != nil {
		fatal("create model", err)
	}

	trainCfg := train.DefaultConfig()
	trainCfg.Epochs = 3
	trainCfg.BatchSize = 16
	trainCfg.OutDir = filepath.Join(dir, "models")
	trainCfg.Quiet = true
	result, err := train.Train(model, store, trainCfg)
	if err != nil {
		fatal("train", err)
	}
	check("best loss is finite", !math.IsNaN(float64(result.BestLoss)) && !math.IsInf(float64(result.BestLoss), 0),
		fmt.Sprintf("loss %v", result.BestLoss))
	_, statErr := os.Stat(result.BestPath)
	check("best checkpoint written", statErr == nil, result.BestPath)
	_, statErr = os.Stat(result.FinalPath)
	check("final checkpoint written", statErr == nil, result.FinalPath)

	_, err = train.Train(model, dataset.FromSamples(nil), trainCfg)
	check("empty store refused", err == train.ErrNoSamples, fmt.Sprintf("err %v", err))

	fmt.Println("\n[3/6] Checkpoint round trip")
	reloaded, err := brain.Load(result.FinalPath)
	if err != nil {
		fatal("load checkpoint", err)
	}
	s := store.Sample(0)
	o1 := model.Forward(s.Perception, s.Memory, s.Mask)
	o2 := reloaded.Forward(s.Perception, s.Memory, s.Mask)
	check("reloaded model matches", maxDiff(o1.Logits, o2.Logits) == 0 && maxDiff(o1.Emotion, o2.Emotion) == 0,
		fmt.Sprintf("logit diff %g", maxDiff(o1.Logits, o2.Logits)))

	fmt.Println("\n[4/6] Export artifact")
	exportDir := filepath.Join(dir, "export")
	if err := export.WriteModel(model, exportDir, "npc_brain"); err != nil {
		fatal("write artifact", err)
	}
	artifact, err := export.LoadModel(exportDir, "npc_brain")
	if err != nil {
		fatal("load artifact", err)
	}

	actions, emotions, err := artifact.Run([][]float32{s.Perception}, [][]float32{s.Memory})
	if err != nil {
		fatal("run artifact", err)
	}
	check("action output has 9 logits", len(actions) == 1 && len(actions[0]) == encode.NumActions,
		fmt.Sprintf("got %d rows", len(actions)))
	check("emotion output has 3 channels", len(emotions) == 1 && len(emotions[0]) == encode.EmotionDim,
		fmt.Sprintf("got %d rows", len(emotions)))

	probs := brain.ActionProbs(actions[0])
	sum := float32(0)
	for _, p := range probs {
		sum += p
	}
	check("action probabilities sum to 1", math.Abs(float64(sum)-1) < 1e-4, fmt.Sprintf("sum %v", sum))

	emotionBounded := true
	for _, e := range emotions[0] {
		if e < -1 || e > 1 {
			emotionBounded = false
		}
	}
	check("emotions bounded in [-1, 1]", emotionBounded, fmt.Sprintf("%v", emotions[0]))

	check("artifact forward matches source model", maxDiff(o1.Logits, actions[0]) < 1e-5,
		fmt.Sprintf("diff %g", maxDiff(o1.Logits, actions[0])))

	fmt.Println("\n[5/6] Fine-tuning")
	npcStore := store.FilterNPC(2)
	check("per-agent filter selects a subset", npcStore.Len() > 0 && npcStore.Len() < store.Len(),
		fmt.Sprintf("%d of %d", npcStore.Len(), store.Len()))

	ftCfg := train.DefaultFineTuneConfig(2)
	ftCfg.Epochs = 2
	ftCfg.OutDir = filepath.Join(dir, "models")
	ftCfg.Quiet = true
	ftResult, err := train.FineTune(model, npcStore, ftCfg)
	if err != nil {
		fatal("fine-tune", err)
	}
	_, statErr = os.Stat(ftResult.BestPath)
	check("personalized checkpoint written", statErr == nil, ftResult.BestPath)

	// Tiny-store warning path: below the sample threshold the run still
	// proceeds and produces a checkpoint.
	tiny := dataset.FromSamples(collect(store, 8))
	tinyCfg := train.DefaultFineTuneConfig(99)
	tinyCfg.Epochs = 1
	tinyCfg.OutDir = filepath.Join(dir, "models")
	tinyCfg.Quiet = true
	fmt.Printf("  (expect a low-sample warning) ")
	_, err = train.FineTune(model, tiny, tinyCfg)
	check("tiny store still fine-tunes", err == nil, fmt.Sprintf("err %v", err))

	fmt.Println("\n[6/6] Derived dataset")
	fd := &export.FlatDataset{}
	_, err = dataset.Scan(logDir, func(entry *encode.LogEntry) {
		if entry.Perception != nil && entry.Perception.Needs != nil && entry.Decision != nil {
			fd.Append(entry.Perception, entry.Decision.Type)
		}
	})
	if err != nil {
		fatal("scan logs", err)
	}
	flatDir := filepath.Join(dir, "flat")
	if err := export.WriteDataset(fd, flatDir); err != nil {
		fatal("write dataset", err)
	}
	fd2, meta, err := export.LoadDataset(flatDir)
	if err != nil {
		fatal("load dataset", err)
	}
	check("derived dataset round trips", meta.NumSamples == numEntries && len(fd2.Features) == numEntries,
		fmt.Sprintf("meta %d, rows %d", meta.NumSamples, len(fd2.Features)))
	check("13 features per row", meta.NumFeatures == encode.NumFeatures && len(fd2.Features[0]) == encode.NumFeatures,
		fmt.Sprintf("got %d", meta.NumFeatures))

	fmt.Println()
	if failed {
		fmt.Println("✗ Verification FAILED")
		os.Exit(1)
	}
	fmt.Println("✓ All pipeline stages verified")
}

// writeSyntheticLogs produces decisions_verify.jsonl with entries cycling
// through every action and five NPC ids, plus two malformed trailing lines.
func writeSyntheticLogs(dir string, n int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "decisions_verify.jsonl"))
	if err != nil {
		return err
	}
	defer f.Close()

	actions := []string{
		"Idle", "Move", "Forage", "Eat", "Rest",
		"Explore", "Socialize", "BuildShelter", "SeekShelter",
	}
	weathers := []string{"clear", "rain"}
	recalls := [][]string{nil, {"food"}, {"danger", "npc"}, {"shelter", "food", "danger"}}
	rng := rand.New(rand.NewSource(99))

	enc := json.NewEncoder(f)
	for i := 0; i < n; i++ {
		tick := int64(i)
		tod := rng.Float32()
		entry := encode.LogEntry{
			Tick:  &tick,
			NPCID: i % 5,
			Perception: &encode.PerceptionRecord{
				Position:  &encode.Position{X: rng.Float32() * 200, Y: rng.Float32() * 150},
				Needs:     &encode.NeedsRecord{Hunger: rng.Float32(), Energy: rng.Float32(), Social: rng.Float32(), Curiosity: rng.Float32(), Safety: rng.Float32()},
				TimeOfDay: &tod,
				Weather:   weathers[i%len(weathers)],
				NearbyTiles: []encode.TileRecord{
					{Type: "Water"}, {Type: "BerryBush"}, {Type: "Cave"},
				},
				NearbyNPCs:    []encode.NPCRecord{{ID: (i + 1) % 5}},
				MemoryRecalls: recalls[i%len(recalls)],
			},
			Decision: &encode.DecisionRecord{Type: actions[i%len(actions)]},
			Outcome: &encode.OutcomeRecord{
				NeedsDeltas: map[string]float32{"hunger": rng.Float32()*0.2 - 0.1},
				Event:       "none",
			},
		}
		if err := enc.Encode(&entry); err != nil {
			return err
		}
	}
	// A truncated JSON object and a record with no tick.
	if _, err := f.WriteString("{\"tick\": 5, \"npcId\"\n{\"npcId\": 1}\n"); err != nil {
		return err
	}
	return nil
}

func collect(store *dataset.Store, n int) []encode.Sample {
	if n > store.Len() {
		n = store.Len()
	}
	out := make([]encode.Sample, n)
	for i := 0; i < n; i++ {
		out[i] = store.Sample(i)
	}
	return out
}

func maxDiff(a, b []float32) float64 {
	var max float64
	for i := range a {
		d := math.Abs(float64(a[i] - b[i]))
		if d > max {
			max = d
		}
	}
	return max
}
