package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openfluke/loom/nn"

	"github.com/colesmailbox96-tech/Brain/internal/encode"
)

// DatasetMeta describes the derived flat dataset written next to the tensor
// files.
type DatasetMeta struct {
	NumSamples   int      `json:"num_samples"`
	NumFeatures  int      `json:"num_features"`
	NumClasses   int      `json:"num_classes"`
	FeatureNames []string `json:"feature_names"`
	ClassNames   []string `json:"class_names"`
}

// FlatDataset is the in-memory form of the derived dataset: one 13-column
// engineered feature row and one action label per log record.
type FlatDataset struct {
	Features [][]float32
	Labels   []int
}

// Append encodes one perception/decision pair into the dataset.
func (fd *FlatDataset) Append(p *encode.PerceptionRecord, actionType string) {
	fd.Features = append(fd.Features, encode.EncodeFeatures(p))
	fd.Labels = append(fd.Labels, encode.EncodeAction(actionType))
}

// WriteDataset writes features.safetensors, labels.safetensors, and
// metadata.json under dir.
func WriteDataset(fd *FlatDataset, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	n := len(fd.Features)

	flat := make([]float32, 0, n*encode.NumFeatures)
	for _, row := range fd.Features {
		flat = append(flat, row...)
	}
	features := map[string]nn.TensorWithShape{
		"features": {Values: flat, Shape: []int{n, encode.NumFeatures}, DType: "F32"},
	}
	if err := nn.SaveSafetensors(filepath.Join(dir, "features.safetensors"), features); err != nil {
		return fmt.Errorf("write features: %w", err)
	}

	labelVals := make([]float32, n)
	for i, label := range fd.Labels {
		labelVals[i] = float32(label)
	}
	labels := map[string]nn.TensorWithShape{
		"labels": {Values: labelVals, Shape: []int{n}, DType: "I64"},
	}
	if err := nn.SaveSafetensors(filepath.Join(dir, "labels.safetensors"), labels); err != nil {
		return fmt.Errorf("write labels: %w", err)
	}

	meta := DatasetMeta{
		NumSamples:   n,
		NumFeatures:  encode.NumFeatures,
		NumClasses:   encode.NumActions,
		FeatureNames: encode.FeatureNames(),
		ClassNames:   encode.ClassNames(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// LoadDataset reads a dataset written by WriteDataset.
func LoadDataset(dir string) (*FlatDataset, *DatasetMeta, error) {
	metaData, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta DatasetMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, nil, fmt.Errorf("parse metadata: %w", err)
	}

	featData, err := os.ReadFile(filepath.Join(dir, "features.safetensors"))
	if err != nil {
		return nil, nil, fmt.Errorf("read features: %w", err)
	}
	featTensors, err := nn.LoadSafetensorsWithShapes(featData)
	if err != nil {
		return nil, nil, fmt.Errorf("parse features: %w", err)
	}
	feat, ok := featTensors["features"]
	if !ok {
		return nil, nil, fmt.Errorf("features.safetensors: missing features tensor")
	}

	labelData, err := os.ReadFile(filepath.Join(dir, "labels.safetensors"))
	if err != nil {
		return nil, nil, fmt.Errorf("read labels: %w", err)
	}
	labelTensors, err := nn.LoadSafetensorsWithShapes(labelData)
	if err != nil {
		return nil, nil, fmt.Errorf("parse labels: %w", err)
	}
	lab, ok := labelTensors["labels"]
	if !ok {
		return nil, nil, fmt.Errorf("labels.safetensors: missing labels tensor")
	}

	fd := &FlatDataset{}
	width := meta.NumFeatures
	for i := 0; i+width <= len(feat.Values); i += width {
		row := make([]float32, width)
		copy(row, feat.Values[i:i+width])
		fd.Features = append(fd.Features, row)
	}
	for _, v := range lab.Values {
		fd.Labels = append(fd.Labels, int(v))
	}
	if len(fd.Features) != len(fd.Labels) {
		return nil, nil, fmt.Errorf("dataset %s: %d feature rows vs %d labels", dir, len(fd.Features), len(fd.Labels))
	}
	return fd, &meta, nil
}
