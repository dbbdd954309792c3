package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Dataset is the registry record for an uploaded tabular file.
type Dataset struct {
	ID         string    `json:"dataset_id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Columns    []string  `json:"columns"`
	RowCount   int       `json:"row_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// DatasetPointer is the minimal schema context handed to the model instead
// of the full dataset: a filename, the column names and a single sample row.
type DatasetPointer struct {
	Filename  string            `json:"filename"`
	Columns   []string          `json:"columns"`
	SampleRow map[string]string `json:"sample_row"`
}

// Render formats the pointer for inclusion in a system instruction.
func (p DatasetPointer) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filename: %s\n", p.Filename)
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(p.Columns, ", "))
	sample, err := json.MarshalIndent(p.SampleRow, "", "  ")
	if err == nil {
		fmt.Fprintf(&b, "\nFirst row sample (Schema):\n%s", sample)
	}
	return b.String()
}
