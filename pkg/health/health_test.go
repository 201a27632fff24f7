package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"empty", nil, StatusUp},
		{"all up", map[string]Check{"a": up, "b": up}, StatusUp},
		{"degraded", map[string]Check{
			"a": up,
			"b": PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDegraded),
		}, StatusDegraded},
		{"down wins", map[string]Check{
			"a": PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDegraded),
			"b": PingCheck(func(context.Context) error { return errors.New("gone") }, StatusDown),
		}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(time.Second)
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))
		})
	}
}

func TestRunBoundsChecksByTimeout(t *testing.T) {
	c := NewChecker(20 * time.Millisecond)
	c.Register("slow", PingCheck(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, StatusDown))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["slow"].Message, "deadline")
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("cache", PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDegraded))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["cache"].Message)

	c.Register("digest", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDown, Message: "empty collection"}
	})
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker(0).LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
