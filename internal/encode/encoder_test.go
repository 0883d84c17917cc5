package encode

import (
	"math"
	"testing"
)

func testPerception() *PerceptionRecord {
	tod := float32(0.25)
	return &PerceptionRecord{
		Position:  &Position{X: 100, Y: 75},
		Needs:     &NeedsRecord{Hunger: 0.8, Energy: 0.3, Social: 0.5, Curiosity: 0.1, Safety: 0.9},
		TimeOfDay: &tod,
		Weather:   "rain",
		NearbyTiles: []TileRecord{
			{Type: "Water"}, {Type: "Water"}, {Type: "BerryBush"}, {Type: "Cave"}, {Type: "Grass"},
		},
		NearbyNPCs:    []NPCRecord{{ID: 1}, {ID: 2}},
		MemoryRecalls: []string{"food", "danger"},
	}
}

func TestEncodePerceptionLayout(t *testing.T) {
	enc := NewEncoder(Config{})
	vec := enc.EncodePerception(testPerception())

	if len(vec) != enc.Config().PerceptionDim {
		t.Fatalf("vector length %d, want %d", len(vec), enc.Config().PerceptionDim)
	}

	want := []float32{
		0.5, 0.5, // position normalized by world size
		0.8, 0.3, 0.5, 0.1, 0.9, // needs
		0.25,     // time of day
		1,        // rain
		0.4,      // 2 water tiles / 5
		0.2,      // 1 food tile / 5 (Grass ignored)
		1.0 / 3,  // 1 shelter tile / 3
		0.4,      // 2 npcs / 5
		0, 0, 0, // emotion placeholders
	}
	for i, w := range want {
		if diff := math.Abs(float64(vec[i] - w)); diff > 1e-6 {
			t.Errorf("vec[%d] = %v, want %v", i, vec[i], w)
		}
	}
	for i := len(want); i < len(vec); i++ {
		if vec[i] != 0 {
			t.Errorf("padding vec[%d] = %v, want 0", i, vec[i])
		}
	}
}

func TestEncodePerceptionDefaults(t *testing.T) {
	enc := NewEncoder(Config{})
	p := &PerceptionRecord{
		Position: &Position{},
		Needs:    &NeedsRecord{},
	}
	vec := enc.EncodePerception(p)
	if vec[7] != 0.5 {
		t.Errorf("missing timeOfDay encoded as %v, want 0.5", vec[7])
	}
	if vec[8] != 0 {
		t.Errorf("non-rain weather encoded as %v, want 0", vec[8])
	}
}

func TestEncodePerceptionCapsCounts(t *testing.T) {
	enc := NewEncoder(Config{})
	p := testPerception()
	for i := 0; i < 20; i++ {
		p.NearbyTiles = append(p.NearbyTiles, TileRecord{Type: "Water"})
		p.NearbyNPCs = append(p.NearbyNPCs, NPCRecord{ID: 10 + i})
	}
	vec := enc.EncodePerception(p)
	if vec[9] != 1 {
		t.Errorf("water count = %v, want capped at 1", vec[9])
	}
	if vec[12] != 1 {
		t.Errorf("npc count = %v, want capped at 1", vec[12])
	}
}

func TestEncodeMemoryIndicators(t *testing.T) {
	enc := NewEncoder(Config{})
	enc.SetMemoryEmbedder(ZeroEmbedder{})
	cfg := enc.Config()

	memory, mask := enc.EncodeMemory([]string{"food", "danger", "npc", "shelter", "agent"})
	if len(memory) != cfg.MemorySlots*cfg.MemoryDim {
		t.Fatalf("memory length %d, want %d", len(memory), cfg.MemorySlots*cfg.MemoryDim)
	}
	if len(mask) != cfg.MemorySlots {
		t.Fatalf("mask length %d, want %d", len(mask), cfg.MemorySlots)
	}

	wantChannel := []int{0, 1, 2, 3, 2}
	for i, ch := range wantChannel {
		row := memory[i*cfg.MemoryDim : (i+1)*cfg.MemoryDim]
		for j, v := range row {
			want := float32(0)
			if j == ch {
				want = 1
			}
			if v != want {
				t.Errorf("row %d channel %d = %v, want %v", i, j, v, want)
			}
		}
		if mask[i] {
			t.Errorf("row %d masked, want active", i)
		}
	}

	for i := len(wantChannel); i < cfg.MemorySlots; i++ {
		if !mask[i] {
			t.Errorf("padding row %d not masked", i)
		}
		row := memory[i*cfg.MemoryDim : (i+1)*cfg.MemoryDim]
		for j, v := range row {
			if v != 0 {
				t.Errorf("padding row %d channel %d = %v, want 0", i, j, v)
			}
		}
	}
}

func TestEncodeMemoryNoiseBounded(t *testing.T) {
	enc := NewEncoder(Config{Seed: 1})
	memory, _ := enc.EncodeMemory([]string{"food"})
	dim := enc.Config().MemoryDim
	nonzero := false
	for j := numRecallChannels; j < dim; j++ {
		if memory[j] != 0 {
			nonzero = true
		}
		if math.Abs(float64(memory[j])) > 1 {
			t.Errorf("noise channel %d = %v, out of range", j, memory[j])
		}
	}
	if !nonzero {
		t.Error("noise channels all zero, embedder not applied")
	}
}

func TestEncodeMemoryTruncatesOverflow(t *testing.T) {
	enc := NewEncoder(Config{MemorySlots: 2, MemoryDim: 8})
	_, mask := enc.EncodeMemory([]string{"food", "danger", "npc"})
	if len(mask) != 2 {
		t.Fatalf("mask length %d, want 2", len(mask))
	}
	if mask[0] || mask[1] {
		t.Error("recalled rows masked after truncation")
	}
}

func TestEncodeActionTotal(t *testing.T) {
	names := []string{
		"Idle", "Move", "Forage", "Eat", "Rest",
		"Explore", "Socialize", "BuildShelter", "SeekShelter",
	}
	seen := make(map[int]bool)
	for _, name := range names {
		label := EncodeAction(name)
		if label < 0 || label >= NumActions {
			t.Fatalf("EncodeAction(%q) = %d, out of range", name, label)
		}
		if seen[label] {
			t.Fatalf("EncodeAction(%q) = %d, label reused", name, label)
		}
		seen[label] = true
	}
	if EncodeAction("Teleport") != ActionIdle {
		t.Errorf("unknown action = %d, want idle fallback", EncodeAction("Teleport"))
	}
	if EncodeAction("seek_shelter") != ActionSeekShelter {
		t.Errorf("snake_case alias not recognized")
	}
}

func TestActionNameRoundTrip(t *testing.T) {
	for label := 0; label < NumActions; label++ {
		name := ActionName(label)
		if name == "" {
			t.Fatalf("no name for label %d", label)
		}
		if EncodeAction(name) != label {
			t.Errorf("EncodeAction(ActionName(%d)) = %d", label, EncodeAction(name))
		}
	}
}

func TestEncodeRejectsIncomplete(t *testing.T) {
	enc := NewEncoder(Config{})
	tick := int64(3)
	cases := []*LogEntry{
		nil,
		{},
		{Tick: &tick},
		{Tick: &tick, Perception: &PerceptionRecord{}},
		{Tick: &tick, Perception: testPerception()},
	}
	for i, entry := range cases {
		if _, err := enc.Encode(entry); err != ErrIncomplete {
			t.Errorf("case %d: err = %v, want ErrIncomplete", i, err)
		}
	}

	complete := &LogEntry{
		Tick:       &tick,
		NPCID:      4,
		Perception: testPerception(),
		Decision:   &DecisionRecord{Type: "Eat"},
	}
	sample, err := enc.Encode(complete)
	if err != nil {
		t.Fatalf("complete entry rejected: %v", err)
	}
	if sample.Action != ActionEat {
		t.Errorf("action = %d, want %d", sample.Action, ActionEat)
	}
	if sample.NPCID != 4 || sample.Tick != 3 {
		t.Errorf("identity fields = (%d, %d), want (4, 3)", sample.NPCID, sample.Tick)
	}
	if len(sample.Emotion) != EmotionDim {
		t.Errorf("emotion length %d, want %d", len(sample.Emotion), EmotionDim)
	}
}

func TestEmotionBounds(t *testing.T) {
	synth := BootstrapSynth{}
	needsCases := []*NeedsRecord{
		{},
		{Hunger: 1, Energy: 1, Social: 1, Curiosity: 1, Safety: 1},
		{Hunger: 0.9, Safety: 0.1},
	}
	outcomes := []*OutcomeRecord{
		nil,
		{NeedsDeltas: map[string]float32{"hunger": 5}},
		{NeedsDeltas: map[string]float32{"hunger": -5, "energy": -5}},
	}
	for _, n := range needsCases {
		for _, o := range outcomes {
			e := synth.Synthesize(n, o)
			if len(e) != EmotionDim {
				t.Fatalf("emotion length %d", len(e))
			}
			for i, v := range e {
				if v < -1 || v > 1 {
					t.Errorf("emotion[%d] = %v, out of [-1, 1]", i, v)
				}
			}
		}
	}
}

func TestEmotionPolarity(t *testing.T) {
	synth := BootstrapSynth{}

	// Needs grew: negative valence.
	worse := synth.Synthesize(&NeedsRecord{}, &OutcomeRecord{NeedsDeltas: map[string]float32{"hunger": 0.5}})
	if worse[0] >= 0 {
		t.Errorf("valence after worsening = %v, want negative", worse[0])
	}
	better := synth.Synthesize(&NeedsRecord{}, &OutcomeRecord{NeedsDeltas: map[string]float32{"hunger": -0.5}})
	if better[0] <= 0 {
		t.Errorf("valence after improving = %v, want positive", better[0])
	}

	// Low safety: low dominance is wrong way round; feeling safe reads
	// dominant, so safety 0 gives positive dominance.
	unsafe := synth.Synthesize(&NeedsRecord{Safety: 1}, nil)
	safe := synth.Synthesize(&NeedsRecord{Safety: 0}, nil)
	if unsafe[2] >= safe[2] {
		t.Errorf("dominance ordering wrong: unsafe %v >= safe %v", unsafe[2], safe[2])
	}
}

func TestEncodeFeaturesRow(t *testing.T) {
	row := EncodeFeatures(testPerception())
	if len(row) != NumFeatures {
		t.Fatalf("row length %d, want %d", len(row), NumFeatures)
	}
	if len(FeatureNames()) != NumFeatures {
		t.Fatalf("feature names %d, want %d", len(FeatureNames()), NumFeatures)
	}
	if len(ClassNames()) != NumActions {
		t.Fatalf("class names %d, want %d", len(ClassNames()), NumActions)
	}

	want := []float32{
		0.8, 0.3, 0.5, 0.1, 0.9, // needs
		0.25,    // time of day
		0, 1, 0, // weather one-hot: rain
		0.1, 0.1, // food/10, shelter/10
		0.2, // npcs/10
		0.4, // 2 recalls / 5
	}
	for i, w := range want {
		if diff := math.Abs(float64(row[i] - w)); diff > 1e-6 {
			t.Errorf("row[%d] (%s) = %v, want %v", i, FeatureNames()[i], row[i], w)
		}
	}
}

func TestNoiseEmbedderDeterminism(t *testing.T) {
	a := make([]float32, 16)
	b := make([]float32, 16)
	NewNoiseEmbedder(5).Fill(a)
	NewNoiseEmbedder(5).Fill(b)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at %d: %v vs %v", i, a[i], b[i])
		}
	}
	c := make([]float32, 16)
	NewNoiseEmbedder(6).Fill(c)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different seeds produced identical noise")
	}
}
