package workdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/wavegrid/internal/params"
)

// ArchiveParams writes a YAML audit copy of the resolved configuration into
// the logs directory, named after the iteration range this submission
// covers. Successive resumes therefore leave one archived copy per range
// instead of a single mutable file.
func (t *Tree) ArchiveParams(store *params.Store, begin, end int) (string, error) {
	name := fmt.Sprintf("parameters_%d-%d.yaml", begin, end)
	path := filepath.Join(t.Logs, name)

	f, err := os.Create(path)
	if err != nil {
		return "", &SetupError{Op: "archive", Path: path, Err: err}
	}
	defer f.Close()

	if err := store.WriteYAML(f); err != nil {
		return "", &SetupError{Op: "archive", Path: path, Err: err}
	}
	return path, nil
}
