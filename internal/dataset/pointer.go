package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/datapilot-ai/datapilot/internal/domain"
)

// ReadPointer builds the minimal schema context for a delimited tabular
// file: the column names and a single representative row. The full
// dataset is never loaded.
func ReadPointer(path string) (domain.DatasetPointer, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.DatasetPointer{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return domain.DatasetPointer{}, fmt.Errorf("read dataset header: %w", err)
	}

	pointer := domain.DatasetPointer{
		Filename:  path,
		Columns:   header,
		SampleRow: map[string]string{},
	}

	first, err := reader.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.DatasetPointer{}, fmt.Errorf("read sample row: %w", err)
	}
	for i, col := range header {
		if i < len(first) {
			pointer.SampleRow[col] = first[i]
		}
	}
	return pointer, nil
}

// CountRows counts data rows (excluding the header) without keeping the
// file in memory.
func CountRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	count := -1 // discount the header
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("scan dataset rows: %w", err)
		}
		count++
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}
