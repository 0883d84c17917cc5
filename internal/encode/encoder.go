// Package encode turns raw decision-log records into fixed-shape training
// tensors: a perception vector, a synthesized memory matrix with padding
// mask, an action label, and a bootstrapped emotion target.
package encode

import (
	"errors"
	"math/rand"
)

// The 9 canonical action kinds, in label order.
const (
	ActionIdle = iota
	ActionMove
	ActionForage
	ActionEat
	ActionRest
	ActionExplore
	ActionSocialize
	ActionBuildShelter
	ActionSeekShelter

	NumActions = 9
)

// EmotionDim is the size of the (valence, arousal, dominance) vector.
const EmotionDim = 3

// actionLabels maps logged action type strings to label indices. Both the
// simulator's CamelCase spelling and the snake_case spelling used in derived
// datasets are accepted. Anything else falls back to idle.
var actionLabels = map[string]int{
	"Idle": ActionIdle, "idle": ActionIdle,
	"Move": ActionMove, "move": ActionMove,
	"Forage": ActionForage, "forage": ActionForage,
	"Eat": ActionEat, "eat": ActionEat,
	"Rest": ActionRest, "rest": ActionRest,
	"Explore": ActionExplore, "explore": ActionExplore,
	"Socialize": ActionSocialize, "socialize": ActionSocialize,
	"BuildShelter": ActionBuildShelter, "build_shelter": ActionBuildShelter,
	"SeekShelter": ActionSeekShelter, "seek_shelter": ActionSeekShelter,
}

// ActionName returns the canonical snake_case name for a label.
func ActionName(label int) string {
	names := [NumActions]string{
		"idle", "move", "forage", "eat", "rest",
		"explore", "socialize", "build_shelter", "seek_shelter",
	}
	if label < 0 || label >= NumActions {
		return names[ActionIdle]
	}
	return names[label]
}

// EncodeAction maps an action type string to its label index. Total:
// unrecognized strings map to idle rather than failing.
func EncodeAction(actionType string) int {
	if label, ok := actionLabels[actionType]; ok {
		return label
	}
	return ActionIdle
}

// Config fixes the tensor shapes and normalization constants. Zero fields are
// replaced by defaults in NewEncoder.
type Config struct {
	PerceptionDim int
	MemorySlots   int
	MemoryDim     int
	WorldWidth    float32
	WorldHeight   float32
	Seed          int64
}

// DefaultConfig matches the shapes the simulator's inference side expects.
func DefaultConfig() Config {
	return Config{
		PerceptionDim: 20,
		MemorySlots:   50,
		MemoryDim:     32,
		WorldWidth:    200,
		WorldHeight:   150,
		Seed:          42,
	}
}

// Sample is one encoded training example. All shapes are fixed by the
// encoder's config; a Sample is immutable once built.
type Sample struct {
	Perception []float32 // len PerceptionDim
	Memory     []float32 // len MemorySlots*MemoryDim, row-major
	Mask       []bool    // len MemorySlots, true = padding slot
	Action     int
	Emotion    []float32 // len EmotionDim, each in [-1, 1]
	NPCID      int
	Tick       int64
}

// Encoder converts log entries into Samples. The emotion synthesizer and
// memory embedder are pluggable so the bootstrap heuristics can be swapped
// for learned components without touching the pipeline.
type Encoder struct {
	cfg     Config
	emotion EmotionSynth
	embed   MemoryEmbedder
}

// ErrIncomplete marks a record that lacks a required field. Callers skip
// these rather than aborting the load.
var ErrIncomplete = errors.New("encode: record missing required fields")

// NewEncoder builds an encoder with the bootstrap emotion synthesizer and
// the seeded noise memory embedder.
func NewEncoder(cfg Config) *Encoder {
	def := DefaultConfig()
	if cfg.PerceptionDim <= 0 {
		cfg.PerceptionDim = def.PerceptionDim
	}
	if cfg.MemorySlots <= 0 {
		cfg.MemorySlots = def.MemorySlots
	}
	if cfg.MemoryDim <= 0 {
		cfg.MemoryDim = def.MemoryDim
	}
	if cfg.WorldWidth <= 0 {
		cfg.WorldWidth = def.WorldWidth
	}
	if cfg.WorldHeight <= 0 {
		cfg.WorldHeight = def.WorldHeight
	}
	return &Encoder{
		cfg:     cfg,
		emotion: BootstrapSynth{},
		embed:   &NoiseEmbedder{rng: rand.New(rand.NewSource(cfg.Seed))},
	}
}

// Config returns the encoder's shape configuration.
func (e *Encoder) Config() Config { return e.cfg }

// SetEmotionSynth replaces the emotion synthesizer.
func (e *Encoder) SetEmotionSynth(s EmotionSynth) { e.emotion = s }

// SetMemoryEmbedder replaces the memory embedding provider.
func (e *Encoder) SetMemoryEmbedder(m MemoryEmbedder) { e.embed = m }

// Encode converts one log entry into a Sample. Entries without tick,
// perception, position, needs, or decision are rejected with ErrIncomplete.
func (e *Encoder) Encode(entry *LogEntry) (Sample, error) {
	if entry == nil || entry.Tick == nil || entry.Perception == nil ||
		entry.Perception.Position == nil || entry.Perception.Needs == nil ||
		entry.Decision == nil {
		return Sample{}, ErrIncomplete
	}
	memory, mask := e.EncodeMemory(entry.Perception.MemoryRecalls)
	return Sample{
		Perception: e.EncodePerception(entry.Perception),
		Memory:     memory,
		Mask:       mask,
		Action:     EncodeAction(entry.Decision.Type),
		Emotion:    e.emotion.Synthesize(entry.Perception.Needs, entry.Outcome),
		NPCID:      entry.NPCID,
		Tick:       *entry.Tick,
	}, nil
}

// EncodePerception flattens a perception record into the fixed-length
// vector. Layout: position(2), needs(5), timeOfDay(1), rain(1), water/food/
// shelter tile counts(3), nearby agents(1), emotion placeholders(3), then
// zero padding up to PerceptionDim. The placeholders stay zero during
// bootstrap training; closed-loop retraining fills them from the emotion
// head.
func (e *Encoder) EncodePerception(p *PerceptionRecord) []float32 {
	vec := make([]float32, 0, e.cfg.PerceptionDim)

	vec = append(vec, p.Position.X/e.cfg.WorldWidth)
	vec = append(vec, p.Position.Y/e.cfg.WorldHeight)

	n := p.Needs
	vec = append(vec, n.Hunger, n.Energy, n.Social, n.Curiosity, n.Safety)

	timeOfDay := float32(0.5)
	if p.TimeOfDay != nil {
		timeOfDay = *p.TimeOfDay
	}
	vec = append(vec, timeOfDay)

	if p.Weather == "rain" {
		vec = append(vec, 1)
	} else {
		vec = append(vec, 0)
	}

	water, food, shelter := countTiles(p.NearbyTiles)
	vec = append(vec, capAt1(float32(water)/5))
	vec = append(vec, capAt1(float32(food)/5))
	vec = append(vec, capAt1(float32(shelter)/3))
	vec = append(vec, capAt1(float32(len(p.NearbyNPCs))/5))

	// Emotion placeholder slots.
	vec = append(vec, 0, 0, 0)

	for len(vec) < e.cfg.PerceptionDim {
		vec = append(vec, 0)
	}
	return vec[:e.cfg.PerceptionDim]
}

// countTiles buckets nearby tiles into water / food / shelter categories.
// Both the simulator's tile type names and the lowercase category names seen
// in older logs are accepted.
func countTiles(tiles []TileRecord) (water, food, shelter int) {
	for _, t := range tiles {
		switch t.Type {
		case "Water", "water":
			water++
		case "BerryBush", "Tree", "food":
			food++
		case "Cave", "Shelter", "shelter":
			shelter++
		}
	}
	return water, food, shelter
}

// Memory recall categories, one indicator channel each.
var recallChannels = map[string]int{
	"food":    0,
	"danger":  1,
	"npc":     2,
	"agent":   2, // same category, alternate tag
	"shelter": 3,
}

// EncodeMemory maps recall tags onto matrix rows. Each recalled row gets one
// indicator channel set to 1 and the remaining channels filled by the memory
// embedder; rows past the recall count stay zero and are flagged as padding
// in the returned mask.
func (e *Encoder) EncodeMemory(recalls []string) ([]float32, []bool) {
	slots, dim := e.cfg.MemorySlots, e.cfg.MemoryDim
	memory := make([]float32, slots*dim)
	mask := make([]bool, slots)
	for i := range mask {
		mask[i] = true
	}
	if len(recalls) > slots {
		recalls = recalls[:slots]
	}
	for i, recall := range recalls {
		row := memory[i*dim : (i+1)*dim]
		if ch, ok := recallChannels[recall]; ok && ch < dim {
			row[ch] = 1
		}
		if dim > numRecallChannels {
			e.embed.Fill(row[numRecallChannels:])
		}
		mask[i] = false
	}
	return memory, mask
}

// numRecallChannels is the count of leading indicator channels in each
// memory row.
const numRecallChannels = 4

func capAt1(v float32) float32 {
	if v > 1 {
		return 1
	}
	return v
}
