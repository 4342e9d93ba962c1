// Package customers is the example pipeline: customer CSV exports dropped in
// an input directory are staged to bronze and loaded into silver.customers.
package customers

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jszwec/csvutil"

	"duck-etl/internal/domain"
	"duck-etl/internal/schema"
	"duck-etl/internal/service/pipeline"
)

// Kind is the pipeline kind used in the pipeline file.
const Kind = "customers"

//go:embed model.yaml
var modelYAML []byte

var loadModel = sync.OnceValues(func() (domain.TableModel, error) {
	return schema.ParseModel(modelYAML)
})

// Model returns the silver.customers table model.
func Model() (domain.TableModel, error) {
	return loadModel()
}

// record is one row of the source export. Header names are the source's.
type record struct {
	CustomerID       string `csv:"Customer Id"`
	FirstName        string `csv:"First Name"`
	LastName         string `csv:"Last Name"`
	SubscriptionDate string `csv:"Subscription Date"`
}

// renames maps source headers to model columns.
var renames = map[string]string{
	"Customer Id":       "customer_id",
	"First Name":        "first_name",
	"Last Name":         "last_name",
	"Subscription Date": "subscription_date",
}

// Source reads customer exports from InputDir.
type Source struct {
	InputDir string
	logger   *slog.Logger
}

var _ pipeline.Source = (*Source)(nil)

// NewSource returns a Source reading from inputDir.
func NewSource(inputDir string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{InputDir: inputDir, logger: logger}
}

// Definition returns the pipeline definition for a customers pipeline named name.
func Definition(name, inputDir string, logger *slog.Logger) (pipeline.Definition, error) {
	model, err := Model()
	if err != nil {
		return pipeline.Definition{}, err
	}
	return pipeline.Definition{
		Name:   name,
		Models: []domain.TableModel{model},
		Source: NewSource(inputDir, logger),
	}, nil
}

// Extract stages every regular file of InputDir. Subdirectories are ignored.
func (s *Source) Extract(ctx context.Context, stage *pipeline.Stager) error {
	entries, err := os.ReadDir(s.InputDir)
	if err != nil {
		return fmt.Errorf("read input dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := os.ReadFile(filepath.Join(s.InputDir, e.Name())) //nolint:gosec // input dir is operator-configured
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if err := stage.Save(ctx, e.Name(), content); err != nil {
			return err
		}
	}
	s.logger.Debug("input staged", "dir", s.InputDir, "entries", len(entries))
	return nil
}

// Transform parses a customer CSV export into one frame with model column
// names. Only source columns that map to the model are kept; a missing one is
// left for the validator to report.
func (s *Source) Transform(_ context.Context, fileName string, content []byte) ([]domain.Frame, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(bytes.NewReader(content)))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty file", fileName)
		}
		return nil, fmt.Errorf("read header of %s: %w", fileName, err)
	}

	var columns []string
	var sourceHeaders []string
	for _, h := range dec.Header() {
		if col, ok := renames[h]; ok {
			columns = append(columns, col)
			sourceHeaders = append(sourceHeaders, h)
		}
	}
	frame := domain.NewFrame(columns...)

	for {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode %s: %w", fileName, err)
		}
		row := make([]any, len(sourceHeaders))
		for i, h := range sourceHeaders {
			row[i] = rec.field(h)
		}
		frame.Append(row...)
	}
	return []domain.Frame{frame}, nil
}

func (r record) field(header string) string {
	switch header {
	case "Customer Id":
		return r.CustomerID
	case "First Name":
		return r.FirstName
	case "Last Name":
		return r.LastName
	default:
		return r.SubscriptionDate
	}
}
