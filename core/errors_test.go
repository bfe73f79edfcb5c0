package core

import (
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestDefaultErrorMapperSentinels(t *testing.T) {
	mapped := DefaultErrorMapper(fmt.Errorf("%w: github/dlv-1", ErrDeliveryNotFound))
	if mapped.TextCode != IngestErrorNotFound {
		t.Fatalf("expected not found text code, got %s", mapped.TextCode)
	}
	if mapped.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", mapped.Code)
	}

	mapped = DefaultErrorMapper(fmt.Errorf("%w: processed -> failed", ErrInvalidDeliveryState))
	if mapped.TextCode != IngestErrorInvalidState {
		t.Fatalf("expected invalid state text code, got %s", mapped.TextCode)
	}
	if mapped.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", mapped.Code)
	}
}

func TestDefaultErrorMapperHeuristics(t *testing.T) {
	mapped := DefaultErrorMapper(fmt.Errorf("core: provider id is required"))
	if mapped.TextCode != IngestErrorBadInput {
		t.Fatalf("expected bad input text code, got %s", mapped.TextCode)
	}
	if mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", mapped.Code)
	}
}

func TestDefaultErrorMapperPreservesEnvelope(t *testing.T) {
	rich := goerrors.New("delivery conflict", goerrors.CategoryConflict)
	mapped := DefaultErrorMapper(rich)
	if mapped.TextCode != IngestErrorInvalidState {
		t.Fatalf("expected default conflict text code, got %s", mapped.TextCode)
	}
	if mapped.Code != http.StatusConflict {
		t.Fatalf("expected conflict status backfilled, got %d", mapped.Code)
	}
}

func TestDefaultErrorMapperNil(t *testing.T) {
	if DefaultErrorMapper(nil) != nil {
		t.Fatalf("expected nil mapping for nil error")
	}
}
