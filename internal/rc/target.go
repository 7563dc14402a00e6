package rc

// Target is the file set handed to one compiler invocation:
// either a single path or an ordered sequence of paths.
type Target struct {
	paths []string
}

// Single targets one file.
func Single(path string) Target {
	return Target{paths: []string{path}}
}

// Sequence targets several files in the given order.
func Sequence(paths ...string) Target {
	return Target{paths: append([]string(nil), paths...)}
}

// Paths returns a copy of the target paths in order.
func (t Target) Paths() []string {
	return append([]string(nil), t.paths...)
}

// Len returns the number of target paths.
func (t Target) Len() int {
	return len(t.paths)
}
