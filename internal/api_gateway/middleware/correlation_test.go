package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveWithCorrelation serves one request and reports the id seen by the handler
// through the gin context and the request context.
func serveWithCorrelation(t *testing.T, header string) (response, fromGin, fromCtx string) {
	t.Helper()

	router := gin.New()
	router.Use(CorrelationID())
	router.GET("/api/v1/transactions", func(c *gin.Context) {
		fromGin = GetCorrelationID(c)
		fromCtx = CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	if header != "" {
		req.Header.Set(CorrelationIDHeader, header)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	return rr.Header().Get(CorrelationIDHeader), fromGin, fromCtx
}

func TestCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		header    string
		keepsID   bool
		generated bool
	}{
		{name: "caller id is echoed", header: "batch-2024-05-01", keepsID: true},
		{name: "missing id is generated", header: "", generated: true},
		{name: "id at the length limit is kept", header: strings.Repeat("a", maxCorrelationIDLength), keepsID: true},
		{name: "oversized id is replaced", header: strings.Repeat("a", maxCorrelationIDLength+1), generated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response, fromGin, fromCtx := serveWithCorrelation(t, tt.header)

			assert.Equal(t, response, fromGin)
			assert.Equal(t, response, fromCtx)
			if tt.keepsID {
				assert.Equal(t, tt.header, response)
			}
			if tt.generated {
				_, err := uuid.Parse(response)
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetCorrelationID(c))

	c.Set(CorrelationIDKey, 7)
	assert.Empty(t, GetCorrelationID(c), "non-string values are ignored")

	c.Set(CorrelationIDKey, "abc")
	assert.Equal(t, "abc", GetCorrelationID(c))
}
