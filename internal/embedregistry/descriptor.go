// Package embedregistry implements the embedder registry and the embedder
// contract: a static descriptor table plus the Embedder interface, a
// deterministic FNV-1a hash fallback, a pluggable semantic embedder, and an
// LRU-cached wrapper.
package embedregistry

import (
	"os"
	"path/filepath"
	"time"
)

// Descriptor is a static registry entry describing one embedder.
type Descriptor struct {
	Name               string
	ID                 string
	Dimension          int
	IsSemantic         bool
	RequiresModelFiles bool
	ReleaseDate        time.Time
	ModelDirName       string
	RequiredFiles      []string
	IsBaseline         bool
}

// HashDescriptorID is the registry ID of the always-available hash fallback.
const HashDescriptorID = "hash-fnv1a-384"

// defaultDescriptors is the static table of known embedders: the baseline
// hash fallback plus illustrative bake-off candidate semantic models. New
// semantic models are added here, not discovered at runtime.
func defaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name:               "hash",
			ID:                 HashDescriptorID,
			Dimension:          384,
			IsSemantic:         false,
			RequiresModelFiles: false,
			IsBaseline:         true,
		},
		{
			Name:               "minilm",
			ID:                 "minilm-l6-v2",
			Dimension:          384,
			IsSemantic:         true,
			RequiresModelFiles: true,
			ReleaseDate:        time.Date(2021, 8, 1, 0, 0, 0, 0, time.UTC),
			ModelDirName:       "minilm-l6-v2",
			RequiredFiles:      []string{"model.onnx", "tokenizer.json", "config.json", "special_tokens_map.json", "tokenizer_config.json"},
		},
		{
			Name:               "embeddinggemma",
			ID:                 "embedding-gemma-768",
			Dimension:          768,
			IsSemantic:         true,
			RequiresModelFiles: true,
			ReleaseDate:        time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
			ModelDirName:       "embedding-gemma-768",
			RequiredFiles:      []string{"model.onnx", "tokenizer.json", "config.json", "special_tokens_map.json", "tokenizer_config.json"},
		},
	}
}

// modelFilesPresent reports whether every required file for d exists under
// modelsDir/d.ModelDirName.
func modelFilesPresent(modelsDir string, d Descriptor) bool {
	if !d.RequiresModelFiles {
		return true
	}
	dir := filepath.Join(modelsDir, d.ModelDirName)
	for _, f := range d.RequiredFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return false
		}
	}
	return true
}

// missingModelFiles returns the subset of RequiredFiles absent on disk.
func missingModelFiles(modelsDir string, d Descriptor) []string {
	if !d.RequiresModelFiles {
		return nil
	}
	dir := filepath.Join(modelsDir, d.ModelDirName)
	var missing []string
	for _, f := range d.RequiredFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			missing = append(missing, f)
		}
	}
	return missing
}
