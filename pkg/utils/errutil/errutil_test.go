package errutil_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/utils/errutil"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid input", goerr.Wrap(model.ErrInvalidInput, "empty"), http.StatusBadRequest},
		{"not found", goerr.Wrap(model.ErrNotFound, "missing"), http.StatusNotFound},
		{"invalid state", goerr.Wrap(goerr.Wrap(model.ErrInvalidState, "twice"), "approve"), http.StatusConflict},
		{"provider", goerr.Wrap(model.ErrProviderUnavailable, "down"), http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, errutil.StatusCode(tt.err)).Equal(tt.want)
		})
	}
}

func TestHandleHTTP(t *testing.T) {
	t.Run("client error keeps message", func(t *testing.T) {
		w := httptest.NewRecorder()
		errutil.HandleHTTP(context.Background(), w, goerr.Wrap(model.ErrNotFound, "draft missing"))

		gt.Value(t, w.Code).Equal(http.StatusNotFound)
		var body map[string]string
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &body)).Required()
		gt.String(t, body["error"]).Contains("draft missing")
	})

	t.Run("internal error hides details", func(t *testing.T) {
		w := httptest.NewRecorder()
		errutil.HandleHTTP(context.Background(), w, errors.New("database password is hunter2"))

		gt.Value(t, w.Code).Equal(http.StatusInternalServerError)
		gt.Bool(t, strings.Contains(w.Body.String(), "hunter2")).False()
	})
}
