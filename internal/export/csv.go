package export

import (
	"encoding/csv"
	"io"

	"contractanalyzer/internal/domain"
)

// BOM is the UTF-8 byte order mark spreadsheet tools need to detect encoding.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes contracts as CSV rows.
type CSVWriter struct {
	csv *csv.Writer
}

// NewCSVWriter creates a CSVWriter on w. The caller writes BOM first if needed.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *CSVWriter) WriteHeader() error {
	return w.csv.Write(Headers())
}

// WriteContracts writes one row per contract.
func (w *CSVWriter) WriteContracts(contracts []domain.ContractWithAnalysis) error {
	for i := range contracts {
		if err := w.csv.Write(Row(&contracts[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes buffered rows.
func (w *CSVWriter) Flush() {
	w.csv.Flush()
}

// Error returns any error from a previous write or flush.
func (w *CSVWriter) Error() error {
	return w.csv.Error()
}
