package embedregistry

import (
	"sort"
	"strings"
	"time"
)

// Registry enumerates, validates, and loads embedder descriptors.
type Registry struct {
	descriptors []Descriptor
	modelsDir   string
}

// NewRegistry creates a registry rooted at modelsDir (for file-presence checks).
func NewRegistry(modelsDir string) *Registry {
	return &Registry{descriptors: defaultDescriptors(), modelsDir: modelsDir}
}

// All enumerates every known descriptor.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Available filters descriptors to those whose required files are present on disk.
func (r *Registry) Available() []Descriptor {
	var out []Descriptor
	for _, d := range r.descriptors {
		if modelFilesPresent(r.modelsDir, d) {
			out = append(out, d)
		}
	}
	return out
}

// Get looks up a descriptor case-insensitively by short name, full ID, or a
// "name-*" prefix match.
func (r *Registry) Get(nameOrID string) (Descriptor, error) {
	needle := strings.ToLower(nameOrID)
	for _, d := range r.descriptors {
		if strings.ToLower(d.Name) == needle || strings.ToLower(d.ID) == needle {
			return d, nil
		}
	}
	for _, d := range r.descriptors {
		if strings.HasPrefix(strings.ToLower(d.ID), needle+"-") || strings.HasPrefix(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return Descriptor{}, newUnknownError(nameOrID, r.descriptors)
}

// Validate returns nil if name resolves to an available descriptor. An
// unknown name returns Get's error; missing model files return a
// KindUnavailable error whose "missing" detail lists the missing files.
func (r *Registry) Validate(nameOrID string) error {
	d, err := r.Get(nameOrID)
	if err != nil {
		return err
	}
	if missing := missingModelFiles(r.modelsDir, d); len(missing) > 0 {
		return newUnavailable("model files missing for "+d.ID).WithDetail("missing", strings.Join(missing, ","))
	}
	return nil
}

// BestAvailable returns the first semantic embedder whose files are present
// (ordered by release date, newest first), else the hash fallback.
func (r *Registry) BestAvailable() Descriptor {
	avail := r.Available()
	var semantic []Descriptor
	for _, d := range avail {
		if d.IsSemantic {
			semantic = append(semantic, d)
		}
	}
	sort.Slice(semantic, func(i, j int) bool {
		return semantic[i].ReleaseDate.After(semantic[j].ReleaseDate)
	})
	if len(semantic) > 0 {
		return semantic[0]
	}
	for _, d := range r.descriptors {
		if d.ID == HashDescriptorID {
			return d
		}
	}
	return Descriptor{}
}

// BakeoffEligible returns descriptors released on/after cutoff that are not
// flagged as baseline (supplemented from original_source/src/bakeoff.rs per
// SPEC_FULL.md §3).
func (r *Registry) BakeoffEligible(cutoff time.Time) []Descriptor {
	var out []Descriptor
	for _, d := range r.descriptors {
		if d.IsBaseline {
			continue
		}
		if !d.ReleaseDate.Before(cutoff) {
			out = append(out, d)
		}
	}
	return out
}

func newUnknownError(requested string, all []Descriptor) error {
	names := make([]string, len(all))
	for i, d := range all {
		names[i] = d.Name
	}
	return newInvalidInput("unknown embedder " + requested + "; available: " + strings.Join(names, ", "))
}
