package errutil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/utils/logging"
)

// Handle logs the error with a message and returns it unchanged.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	log(ctx, msg, err, slog.LevelError)
	return err
}

// StatusCode maps the domain error taxonomy onto HTTP status codes
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, model.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleHTTP logs the error and writes a JSON error response with the status
// derived from StatusCode. Internal error details are not exposed on 5xx.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	code := StatusCode(err)
	level := slog.LevelWarn
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	log(ctx, "HTTP error", err, level, "status", code)

	message := err.Error()
	if code == http.StatusInternalServerError {
		message = http.StatusText(code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func log(ctx context.Context, msg string, err error, level slog.Level, extra ...any) {
	args := append([]any{"error", err.Error()}, extra...)
	var ge *goerr.Error
	if errors.As(err, &ge) {
		args = append(args, "values", ge.Values(), "stack", ge.Stacks())
	}

	logging.From(ctx).Log(ctx, level, msg, args...)
}
