package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IngestErrorBadInput        = "INGEST_BAD_INPUT"
	IngestErrorNotFound        = "INGEST_NOT_FOUND"
	IngestErrorInvalidState    = "INGEST_INVALID_STATE"
	IngestErrorDeadLettered    = "INGEST_DEAD_LETTERED"
	IngestErrorOperationFailed = "INGEST_OPERATION_FAILED"
	IngestErrorInternal        = "INGEST_INTERNAL_ERROR"
)

// ErrorMapper normalizes arbitrary errors into the ingest error envelope.
type ErrorMapper func(error) *goerrors.Error

// DefaultErrorMapper maps domain sentinels and common failure shapes into
// categorized errors with stable text codes and HTTP status hints.
func DefaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIngestErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrDeliveryNotFound), errors.Is(err, ErrBackfillJobNotFound):
		return newIngestError(err.Error(), goerrors.CategoryNotFound, IngestErrorNotFound)
	case errors.Is(err, ErrInvalidDeliveryState), errors.Is(err, ErrInvalidBackfillState):
		return newIngestError(err.Error(), goerrors.CategoryConflict, IngestErrorInvalidState)
	case errors.Is(err, ErrNotConfigured):
		return newIngestError(err.Error(), goerrors.CategoryInternal, IngestErrorInternal)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "dead letter"), strings.Contains(msg, "dead-letter"):
		return newIngestError(err.Error(), goerrors.CategoryOperation, IngestErrorDeadLettered)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newIngestError(err.Error(), goerrors.CategoryBadInput, IngestErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIngestErrorEnvelope(mapped)
}

func newIngestError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureIngestErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureIngestErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = ingestHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIngestTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIngestTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return IngestErrorBadInput
	case goerrors.CategoryNotFound:
		return IngestErrorNotFound
	case goerrors.CategoryConflict:
		return IngestErrorInvalidState
	case goerrors.CategoryOperation:
		return IngestErrorOperationFailed
	default:
		return IngestErrorInternal
	}
}

func ingestHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
