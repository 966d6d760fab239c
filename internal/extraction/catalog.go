package extraction

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ModelExt is the file extension of selectable local models.
const ModelExt = ".gguf"

// DefaultModel is selected when a job names no model.
const DefaultModel = "mistral-7b.gguf"

// ListModels returns the *.gguf file names in dir, sorted. A missing
// directory yields an empty list.
func ListModels(dir string) ([]string, error) {
	const op = "ListModels"

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%s: failed to read models directory %s: %w", op, dir, err)
	}

	models := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ModelExt) {
			continue
		}
		models = append(models, e.Name())
	}
	sort.Strings(models)
	return models, nil
}

// HasModel reports whether name is one of the models in dir.
func HasModel(dir, name string) (bool, error) {
	models, err := ListModels(dir)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m == name {
			return true, nil
		}
	}
	return false, nil
}
