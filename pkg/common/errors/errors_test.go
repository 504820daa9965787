package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/duynguyendang/lmerec/internal/manager"
	"github.com/duynguyendang/lmerec/pkg/bundle"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/embed"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("bad limit: %w", ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("anchor %q: %w", "X", dict.ErrNotFound), http.StatusNotFound},
		{manager.ErrNotReady, http.StatusServiceUnavailable},
		{manager.ErrRebuildInProgress, http.StatusConflict},
		{bundle.ErrNoSource, http.StatusPreconditionFailed},
		{fmt.Errorf("rebuild: %w", bundle.ErrArtifactMismatch), http.StatusInternalServerError},
		{fmt.Errorf("decode: %w", embed.ErrIDSpaceMismatch), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
		{NewAppError(http.StatusTeapot, "teapot", nil), http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got := MapError(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, MapError(nil))
}
