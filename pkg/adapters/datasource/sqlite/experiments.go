package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/apperrors"
)

// ExperimentLister lists the experiment files in the data directory.
type ExperimentLister struct {
	dataDir string
}

// NewExperimentLister creates a lister for a data directory.
func NewExperimentLister(dataDir string) *ExperimentLister {
	return &ExperimentLister{dataDir: dataDir}
}

// ListExperiments returns the names of all <experiment>.sq3 files, sorted.
func (l *ExperimentLister) ListExperiments(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.dataDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("data directory %s: %w", l.dataDir, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	experiments := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(entry.Name(), FileExtension)
		if !ok || datasource.ValidateExperimentName(name) != nil {
			continue
		}
		experiments = append(experiments, name)
	}
	sort.Strings(experiments)

	return experiments, nil
}

// Ensure ExperimentLister implements datasource.ExperimentLister at compile time.
var _ datasource.ExperimentLister = (*ExperimentLister)(nil)
