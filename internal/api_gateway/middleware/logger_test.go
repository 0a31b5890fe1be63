package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		method         string
		target         string
		status         int
		idempotencyKey string
		correlationID  string
		wantLevel      string
		wantFields     []string
	}{
		{
			name:          "successful query",
			method:        http.MethodGet,
			target:        "/api/v1/transactions?kind=deposit",
			status:        http.StatusOK,
			correlationID: "corr-1",
			wantLevel:     "INFO",
			wantFields: []string{
				`"path":"/api/v1/transactions?kind=deposit"`,
				`"status":200`,
				`"correlation_id":"corr-1"`,
			},
		},
		{
			name:           "rejected deposit",
			method:         http.MethodPost,
			target:         "/api/v1/deposits",
			status:         http.StatusUnprocessableEntity,
			idempotencyKey: "dep-7",
			wantLevel:      "WARN",
			wantFields: []string{
				`"method":"POST"`,
				`"status":422`,
				`"idempotency_key":"dep-7"`,
			},
		},
		{
			name:           "failed transfer",
			method:         http.MethodPost,
			target:         "/api/v1/transfers",
			status:         http.StatusInternalServerError,
			idempotencyKey: "tr-9",
			wantLevel:      "ERROR",
			wantFields: []string{
				`"status":500`,
				`"idempotency_key":"tr-9"`,
				`"latency":`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			router := gin.New()
			router.Use(CorrelationID(), Logger(slog.New(slog.NewJSONHandler(&logs, nil))))
			router.Handle(tt.method, "/api/v1/:resource", func(c *gin.Context) {
				c.Status(tt.status)
			})

			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.Header.Set("User-Agent", "ledger-test")
			if tt.idempotencyKey != "" {
				req.Header.Set("Idempotency-Key", tt.idempotencyKey)
			}
			if tt.correlationID != "" {
				req.Header.Set(CorrelationIDHeader, tt.correlationID)
			}
			router.ServeHTTP(httptest.NewRecorder(), req)

			out := logs.String()
			assert.Contains(t, out, `"msg":"HTTP request"`)
			assert.Contains(t, out, `"level":"`+tt.wantLevel+`"`)
			assert.Contains(t, out, `"user_agent":"ledger-test"`)
			for _, field := range tt.wantFields {
				assert.Contains(t, out, field)
			}
			if tt.idempotencyKey == "" {
				assert.NotContains(t, out, "idempotency_key")
			}
		})
	}
}
