package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out))
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
		{"fatal", FATAL},
		{"bogus", INFO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "debug", JSONFormat: true, Component: "risk"})

	l.Info("position sized", "symbol", "AAPL", "shares", 50, "err", errors.New("boom"))

	out := decodeLine(t, &buf)
	assert.Equal(t, "position sized", out["message"])
	assert.Equal(t, "risk", out["component"])
	assert.Equal(t, "AAPL", out["symbol"])
	assert.EqualValues(t, 50, out["shares"])
	assert.Equal(t, "boom", out["err"])
}

func TestPrintfFallback(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "info", JSONFormat: true})

	l.Warn("closed %d positions", 3)

	out := decodeLine(t, &buf)
	assert.Equal(t, "closed 3 positions", out["message"])
	assert.Equal(t, "warn", out["level"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "warn", JSONFormat: true})

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Error("shown")
	assert.NotZero(t, buf.Len())
}

func TestDerivedLoggersDoNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(&buf, &Config{Level: "info", JSONFormat: true})
	child := parent.WithField("symbol", "MSFT")

	parent.Info("parent")
	out := decodeLine(t, &buf)
	_, has := out["symbol"]
	assert.False(t, has)

	buf.Reset()
	child.Info("child")
	out = decodeLine(t, &buf)
	assert.Equal(t, "MSFT", out["symbol"])
}

func TestTraceContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, &Config{Level: "info", JSONFormat: true})
	ctx := NewContext(context.Background(), base)

	ctx, l := WithTraceContext(ctx)
	require.NotEmpty(t, l.TraceID())
	assert.Equal(t, l.TraceID(), TraceIDFromContext(ctx))
	assert.Same(t, l, FromContext(ctx))

	l.Info("cycle")
	out := decodeLine(t, &buf)
	assert.Equal(t, l.TraceID(), out["trace_id"])
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(&buf, &Config{Level: "info", JSONFormat: true, Component: "main"})
	child := parent.WithField("symbol", "AAPL").WithComponent("risk")

	child.Info("sized")
	line := buf.String()
	assert.Equal(t, 1, strings.Count(line, `"component"`), line)
	out := decodeLine(t, &buf)
	assert.Equal(t, "risk", out["component"])
	assert.Equal(t, "AAPL", out["symbol"])
	assert.Equal(t, "risk", child.Component())

	buf.Reset()
	parent.Info("still main")
	assert.Equal(t, "main", decodeLine(t, &buf)["component"])
}

func TestTraceIDSurvivesComponentChange(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "info", JSONFormat: true, Component: "engine"}).
		WithTraceID("abc").WithComponent("api")

	l.Info("x")
	line := buf.String()
	assert.Equal(t, 1, strings.Count(line, `"trace_id"`), line)
	out := decodeLine(t, &buf)
	assert.Equal(t, "abc", out["trace_id"])
	assert.Equal(t, "api", out["component"])
}

func TestEventContexts(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "info", JSONFormat: true, Component: "engine"})

	l.TradeContext("SOLUSDT", "BUY", 5, 101.5).Info("position opened")
	out := decodeLine(t, &buf)
	assert.Equal(t, "engine", out["component"])
	assert.Equal(t, "SOLUSDT", out["symbol"])
	assert.Equal(t, "BUY", out["side"])
	assert.EqualValues(t, 5, out["quantity"])
	assert.Equal(t, 101.5, out["price"])

	buf.Reset()
	l.PositionContext("SOLUSDT", 100, 5).Info("position closed")
	out = decodeLine(t, &buf)
	assert.Equal(t, 100.0, out["entry_price"])

	buf.Reset()
	l.SignalContext("SOLUSDT", "HOLD", 42).Info("decision")
	out = decodeLine(t, &buf)
	assert.Equal(t, "HOLD", out["action"])
	assert.EqualValues(t, 42, out["confidence"])

	buf.Reset()
	l.RiskContext(-2.5, 3).Warn("new entries halted")
	out = decodeLine(t, &buf)
	assert.Equal(t, -2.5, out["daily_pnl_pct"])
	assert.EqualValues(t, 3, out["losing_streak"])

	buf.Reset()
	l.APIContext("GET", "/api/status", 200).Info("request")
	out = decodeLine(t, &buf)
	assert.Equal(t, "/api/status", out["path"])
	assert.EqualValues(t, 200, out["status_code"])
}
