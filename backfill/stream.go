package backfill

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// RowStream yields data rows from a backfill source. Next returns io.EOF
// once the stream is exhausted; any other error is a stream-level failure
// that aborts the job.
type RowStream interface {
	Header() []string
	Next() ([]string, error)
	Close() error
}

// CSVStream adapts an io.Reader of CSV data to the RowStream contract.
// The first row is consumed as the header; rows may have varying widths.
type CSVStream struct {
	reader *csv.Reader
	closer io.Closer
	header []string
}

func NewCSVStream(r io.Reader) (*CSVStream, error) {
	if r == nil {
		return nil, fmt.Errorf("backfill: csv source is required")
	}
	parser := csv.NewReader(r)
	parser.FieldsPerRecord = -1

	stream := &CSVStream{reader: parser}
	if closer, ok := r.(io.Closer); ok {
		stream.closer = closer
	}

	header, err := parser.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			// empty source: no header, Next reports EOF immediately
			return stream, nil
		}
		return nil, fmt.Errorf("backfill: reading csv header: %w", err)
	}
	stream.header = header
	return stream, nil
}

// OpenCSVFile opens a CSV file as a RowStream. Close releases the file.
func OpenCSVFile(path string) (*CSVStream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backfill: opening csv source: %w", err)
	}
	stream, err := NewCSVStream(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return stream, nil
}

func (s *CSVStream) Header() []string {
	if s == nil {
		return nil
	}
	return s.header
}

func (s *CSVStream) Next() ([]string, error) {
	if s == nil || s.reader == nil {
		return nil, io.EOF
	}
	if s.header == nil {
		return nil, io.EOF
	}
	return s.reader.Read()
}

func (s *CSVStream) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

var _ RowStream = (*CSVStream)(nil)
