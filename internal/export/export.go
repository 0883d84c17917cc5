// Package export serializes trained models into a portable safetensors
// artifact with a fixed tensor signature, and writes the derived flat
// dataset used for analysis outside the training pipeline.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openfluke/loom/nn"

	"github.com/colesmailbox96-tech/Brain/internal/brain"
	"github.com/colesmailbox96-tech/Brain/internal/encode"
)

// Manifest describes the inference artifact's external interface. The batch
// dimension is dynamic on every input and output, encoded as -1.
type Manifest struct {
	Format  string       `json:"format"`
	Config  brain.Config `json:"config"`
	Inputs  []TensorSpec `json:"inputs"`
	Outputs []TensorSpec `json:"outputs"`
	// OutputLayout names the slices of the fused output vector:
	// action logits first, emotion last.
	OutputLayout map[string][2]int `json:"output_layout"`
}

// TensorSpec names one external tensor and its shape.
type TensorSpec struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

// WriteModel writes `<name>.safetensors` plus `<name>.manifest.json` under
// dir. The safetensors file carries every named parameter tensor; the
// manifest pins the (perception, memory) -> output contract consumers rely
// on.
func WriteModel(m *brain.Model, dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	tensors := make(map[string]nn.TensorWithShape)
	for tname, t := range m.Tensors() {
		tensors[tname] = nn.TensorWithShape{Values: t.Data, Shape: t.Shape, DType: "F32"}
	}
	weightsPath := filepath.Join(dir, name+".safetensors")
	if err := nn.SaveSafetensors(weightsPath, tensors); err != nil {
		return fmt.Errorf("write safetensors: %w", err)
	}

	cfg := m.Config()
	manifest := Manifest{
		Format: "safetensors",
		Config: cfg,
		Inputs: []TensorSpec{
			{Name: "perception", Shape: []int{-1, cfg.PerceptionDim}},
			{Name: "memory", Shape: []int{-1, cfg.MemorySlots, cfg.MemoryDim}},
		},
		Outputs: []TensorSpec{
			{Name: "output", Shape: []int{-1, encode.NumActions + encode.EmotionDim}},
		},
		OutputLayout: map[string][2]int{
			"action_logits": {0, encode.NumActions},
			"emotion":       {encode.NumActions, encode.NumActions + encode.EmotionDim},
		},
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(dir, name+".manifest.json")
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Artifact is a loaded inference export: the reconstructed network plus its
// manifest.
type Artifact struct {
	Manifest Manifest
	model    *brain.Model
}

// LoadModel reconstructs a runnable artifact from WriteModel's output.
func LoadModel(dir, name string) (*Artifact, error) {
	manifestData, err := os.ReadFile(filepath.Join(dir, name+".manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	weightsData, err := os.ReadFile(filepath.Join(dir, name+".safetensors"))
	if err != nil {
		return nil, fmt.Errorf("read safetensors: %w", err)
	}
	tensors, err := nn.LoadSafetensorsWithShapes(weightsData)
	if err != nil {
		return nil, fmt.Errorf("parse safetensors: %w", err)
	}

	model, err := brain.New(manifest.Config)
	if err != nil {
		return nil, err
	}
	for tname, t := range tensors {
		if err := model.SetTensor(tname, t.Values); err != nil {
			return nil, fmt.Errorf("artifact %s: %w", name, err)
		}
	}
	return &Artifact{Manifest: manifest, model: model}, nil
}

// Model exposes the reconstructed network.
func (a *Artifact) Model() *brain.Model { return a.model }

// Run evaluates a batch. Each perception row must match the declared
// perception shape and each memory row the flattened memory shape. Padding
// masks are derived from all-zero memory rows, matching how the encoder
// leaves unused slots. Returns per-sample action logits and emotions.
func (a *Artifact) Run(perceptions, memories [][]float32) (actions, emotions [][]float32, err error) {
	if len(perceptions) != len(memories) {
		return nil, nil, fmt.Errorf("batch mismatch: %d perceptions vs %d memories", len(perceptions), len(memories))
	}
	cfg := a.model.Config()
	for i := range perceptions {
		if len(perceptions[i]) != cfg.PerceptionDim {
			return nil, nil, fmt.Errorf("sample %d: perception length %d, want %d", i, len(perceptions[i]), cfg.PerceptionDim)
		}
		if len(memories[i]) != cfg.MemorySlots*cfg.MemoryDim {
			return nil, nil, fmt.Errorf("sample %d: memory length %d, want %d", i, len(memories[i]), cfg.MemorySlots*cfg.MemoryDim)
		}
		mask := paddingMask(memories[i], cfg.MemorySlots, cfg.MemoryDim)
		out := a.model.Forward(perceptions[i], memories[i], mask)
		actions = append(actions, out.Logits)
		emotions = append(emotions, out.Emotion)
	}
	return actions, emotions, nil
}

// paddingMask marks all-zero memory rows as padding.
func paddingMask(memory []float32, slots, dim int) []bool {
	mask := make([]bool, slots)
	for t := 0; t < slots; t++ {
		mask[t] = true
		for _, v := range memory[t*dim : (t+1)*dim] {
			if v != 0 {
				mask[t] = false
				break
			}
		}
	}
	return mask
}
