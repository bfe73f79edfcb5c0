package backfill

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goliatone/go-ingest/core"
)

// ArtifactWriter records failed rows for later inspection. Append is
// called once per failed row, before the job checkpoint advances past it.
type ArtifactWriter interface {
	Append(ctx context.Context, jobID string, header []string, rowErr core.RowError) (string, error)
}

// CSVArtifactWriter writes one error CSV per job: the original row fields
// plus row_index and error_message columns. Appending keeps errors from
// earlier runs of a resumed job.
type CSVArtifactWriter struct {
	Dir string
}

func (w CSVArtifactWriter) path(jobID string) string {
	dir := strings.TrimSpace(w.Dir)
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, jobID+"-errors.csv")
}

func (w CSVArtifactWriter) Append(ctx context.Context, jobID string, header []string, rowErr core.RowError) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", fmt.Errorf("backfill: artifact job id is required")
	}
	path := w.path(jobID)

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("backfill: opening error artifact: %w", err)
	}
	defer file.Close()

	out := csv.NewWriter(file)
	if fresh {
		columns := append(append([]string(nil), header...), "row_index", "error_message")
		if err := out.Write(columns); err != nil {
			return "", fmt.Errorf("backfill: writing artifact header: %w", err)
		}
	}
	record := append(append([]string(nil), rowErr.Row...), strconv.Itoa(rowErr.RowIndex), rowErr.Message)
	if err := out.Write(record); err != nil {
		return "", fmt.Errorf("backfill: writing artifact row: %w", err)
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return "", fmt.Errorf("backfill: flushing error artifact: %w", err)
	}
	return path, nil
}

var _ ArtifactWriter = CSVArtifactWriter{}
