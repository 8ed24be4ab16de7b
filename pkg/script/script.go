// Package script handles parsing, validation and include expansion of
// YAML test scripts.
package script

// Script represents a parsed test script file.
type Script struct {
	SourcePath string // Path to the source file
	Name       string // Optional display name
	Platform   string // Optional platform hint: android, ios
	Steps      []Step // Top-level steps, includes not yet expanded
}

// DisplayName returns the script name, falling back to the file path.
func (s *Script) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.SourcePath
}
