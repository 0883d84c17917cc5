package encode

// Log record schema for decisions_*.jsonl files produced by the simulator.
// One JSON object per line. Optional fields unmarshal to nil / zero; required
// objects are pointers so a missing field is distinguishable from a zero one.

// LogEntry is a single perception→action→outcome record.
type LogEntry struct {
	Tick       *int64            `json:"tick"`
	NPCID      int               `json:"npcId"`
	Perception *PerceptionRecord `json:"perception"`
	Decision   *DecisionRecord   `json:"decision"`
	Outcome    *OutcomeRecord    `json:"outcome"`
}

// PerceptionRecord is the agent's sensed state at a tick.
type PerceptionRecord struct {
	Position      *Position    `json:"position"`
	Needs         *NeedsRecord `json:"needs"`
	TimeOfDay     *float32     `json:"timeOfDay"`
	Weather       string       `json:"weather"`
	NearbyTiles   []TileRecord `json:"nearbyTiles"`
	NearbyNPCs    []NPCRecord  `json:"nearbyNPCs"`
	MemoryRecalls []string     `json:"memoryRecalls"`
}

// Position is a 2D world coordinate.
type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// NeedsRecord holds the five internal need scalars, each in [0, 1].
type NeedsRecord struct {
	Hunger    float32 `json:"hunger"`
	Energy    float32 `json:"energy"`
	Social    float32 `json:"social"`
	Curiosity float32 `json:"curiosity"`
	Safety    float32 `json:"safety"`
}

// TileRecord is one nearby world tile.
type TileRecord struct {
	Type     string    `json:"type"`
	Position *Position `json:"position"`
}

// NPCRecord is one nearby agent.
type NPCRecord struct {
	ID       int       `json:"id"`
	Position *Position `json:"position"`
}

// DecisionRecord is the controller's chosen action.
type DecisionRecord struct {
	Type           string    `json:"type"`
	TargetPosition *Position `json:"targetPosition"`
}

// OutcomeRecord is the observed result of the action.
type OutcomeRecord struct {
	NeedsDeltas map[string]float32 `json:"needsDeltas"`
	Event       string             `json:"event"`
}
