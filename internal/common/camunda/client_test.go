package camunda

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"meeting-intel/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableZeebeError(t *testing.T) {
	assert.True(t, isRetryableZeebeError(fmt.Errorf("rpc error: code = Unavailable desc = connection refused")))
	assert.True(t, isRetryableZeebeError(context.DeadlineExceeded))
	assert.False(t, isRetryableZeebeError(fmt.Errorf("rpc error: code = PermissionDenied")))
}

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{"deadline", context.DeadlineExceeded, "TIMEOUT_ERROR"},
		{"unauthenticated", fmt.Errorf("rpc error: code = Unauthenticated"), "AUTHENTICATION_ERROR"},
		{"unavailable", fmt.Errorf("connection refused"), "EXTERNAL_SERVICE_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapZeebeError(tt.err, "connect", 3)
			stdErr, ok := errors.AsStandardError(mapped)
			require.True(t, ok)
			assert.Equal(t, tt.code, stdErr.Code)
			assert.Contains(t, stdErr.Details, "after 3 attempts")
		})
	}

	assert.True(t, stderrors.Is(mapZeebeError(context.DeadlineExceeded, "connect", 1), context.DeadlineExceeded))
}
