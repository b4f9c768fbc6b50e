package common_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupnotify/internal/common"
)

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", common.NewNotFoundError("delivery", "abc"), http.StatusNotFound, "delivery 'abc' not found"},
		{"validation", common.NewValidationError("guid is required"), http.StatusBadRequest, "guid is required"},
		{"wrapped validation", fmt.Errorf("intake: %w", common.NewValidationError("bad")), http.StatusBadRequest, "bad"},
		{"unauthorized", common.NewUnauthorizedError(""), http.StatusUnauthorized, "unauthorized"},
		{"deadline", fmt.Errorf("listing: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "upstream timed out"},
		{"delivery", common.NewDeliveryError("email", "no provider registered"), http.StatusInternalServerError, "internal server error"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Set(common.RequestIDKey, "req-1")

			common.HandleError(c, tt.err)

			require.Equal(t, tt.status, w.Code)
			var resp common.APIResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Equal(t, "req-1", resp.Error.RequestID)
		})
	}
}
