// Package file provides file-based persistence for workflow definitions and runs.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/cadence/pkg/persistence"
)

const (
	definitionsDir = "definitions"
	runsDir        = "runs"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Each record is one JSON file; writes go through a temp file and a rename.
type Persistence struct {
	root           string
	definitionRepo *DefinitionRepository
	runRepo        *RunRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:           cleanRoot,
		definitionRepo: &DefinitionRepository{dir: filepath.Join(cleanRoot, definitionsDir)},
		runRepo:        &RunRepository{dir: filepath.Join(cleanRoot, runsDir)},
	}
}

var _ persistence.Persistence = (*Persistence)(nil)

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Root is the directory holding every record of this store.
func (fp *Persistence) Root() string {
	return fp.root
}

func (fp *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return fp.definitionRepo
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

func writeJSON(dir, id string, value any) error {
	tmp, err := writeTemp(dir, id, value)
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, filepath.Join(dir, id+".json")); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("failed to store %s: %w", id, err)
	}

	return nil
}

// createJSON stores value only if no record named id exists yet. The hard link makes
// the check-and-create atomic across processes sharing dir.
func createJSON(dir, id string, value any) (bool, error) {
	tmp, err := writeTemp(dir, id, value)
	if err != nil {
		return false, err
	}

	defer func() { _ = os.Remove(tmp) }()

	err = os.Link(tmp, filepath.Join(dir, id+".json"))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to store %s: %w", id, err)
	}
}

func writeTemp(dir, id string, value any) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(dir, id+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", id, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to write %s: %w", id, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to close %s: %w", id, err)
	}

	return tmp.Name(), nil
}

// readJSON returns fs.ErrNotExist when the record is missing.
func readJSON(dir, id string, value any) error {
	data, err := os.ReadFile(filepath.Join(dir, id+".json"))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return nil
}

func listIDs(dir string) ([]string, error) {
	matches, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(match, ".json"))
	}

	return ids, nil
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func removeJSON(dir, id string) error {
	return os.Remove(filepath.Join(dir, id+".json"))
}
