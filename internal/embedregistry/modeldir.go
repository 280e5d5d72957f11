package embedregistry

// ModelDirStatus reports the on-disk presence check for one descriptor: the
// set of required model files and which ones are actually missing.
type ModelDirStatus struct {
	Descriptor Descriptor
	Present    bool
	Missing    []string
}

// CheckModelDirs reports the file-presence status of every descriptor under modelsDir.
func CheckModelDirs(modelsDir string, descriptors []Descriptor) []ModelDirStatus {
	out := make([]ModelDirStatus, len(descriptors))
	for i, d := range descriptors {
		out[i] = ModelDirStatus{
			Descriptor: d,
			Present:    modelFilesPresent(modelsDir, d),
			Missing:    missingModelFiles(modelsDir, d),
		}
	}
	return out
}
