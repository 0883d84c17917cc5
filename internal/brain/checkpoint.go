package brain

import (
	"encoding/json"
	"fmt"
	"os"
)

// checkpointFile is the on-disk parameter snapshot: the shape config plus
// every named tensor. JSON keeps float32 values exactly, so a reload is
// numerically identical to the saved model.
type checkpointFile struct {
	Config  Config                      `json:"config"`
	Tensors map[string]checkpointTensor `json:"tensors"`
}

type checkpointTensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// Save writes the model parameters to path.
func (m *Model) Save(path string) error {
	ckpt := checkpointFile{
		Config:  m.cfg,
		Tensors: make(map[string]checkpointTensor, len(m.params)),
	}
	for name, t := range m.Tensors() {
		ckpt.Tensors[name] = checkpointTensor{Shape: t.Shape, Data: t.Data}
	}
	data, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return nil
}

// Load rebuilds a model from a checkpoint written by Save. Optimizer moments
// are not part of a checkpoint; a loaded model starts a fresh Adam state.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	var ckpt checkpointFile
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	m, err := New(ckpt.Config)
	if err != nil {
		return nil, err
	}
	for _, t := range m.params {
		saved, ok := ckpt.Tensors[t.name]
		if !ok {
			return nil, fmt.Errorf("checkpoint %s: missing tensor %s", path, t.name)
		}
		if err := m.SetTensor(t.name, saved.Data); err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", path, err)
		}
	}
	return m, nil
}
