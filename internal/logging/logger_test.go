package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, enabled map[string]bool) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core), enabled)
	t.Cleanup(func() { Use(nil, nil) })
	return logs
}

func fieldMap(e observer.LoggedEntry) map[string]interface{} {
	return e.ContextMap()
}

func TestGet_NoopBeforeInitialize(t *testing.T) {
	Use(nil, nil)
	assert.False(t, IsCategoryEnabled(CategoryDispatch))
	// Must not panic.
	Get(CategoryDispatch).Info("ignored %d", 1)
	Base().Info("ignored")
}

func TestCategoryFieldAttached(t *testing.T) {
	logs := observe(t, nil)

	Dispatch("handler %s won", "greeting")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "handler greeting won", entry.Message)
	assert.Equal(t, "dispatch", fieldMap(entry)["cat"])
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	logs := observe(t, map[string]bool{"perception": false})

	Perception("dropped")
	Store("kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "store", fieldMap(logs.All()[0])["cat"])
	assert.False(t, IsCategoryEnabled(CategoryPerception))
	assert.True(t, IsCategoryEnabled(CategoryCatalog), "unlisted categories default on")
}

func TestLevelsRouteToZap(t *testing.T) {
	logs := observe(t, nil)

	DispatchDebug("d")
	CatalogWarn("w")
	StoreError("e")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}

func TestRequestLogger(t *testing.T) {
	logs := observe(t, nil)

	WithRequestID(CategoryChannel, "req-42").
		WithField("user", "5215550001").
		Info("accepted")

	require.Equal(t, 1, logs.Len())
	fields := fieldMap(logs.All()[0])
	assert.Equal(t, "req-42", fields["req"])
	assert.Equal(t, "5215550001", fields["user"])
	assert.Equal(t, "channel", fields["cat"])
}

func TestLoggerWith(t *testing.T) {
	logs := observe(t, nil)

	Get(CategoryEscalation).With("reason", "frustration").Warn("escalating")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "frustration", fieldMap(logs.All()[0])["reason"])
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, nil)

	timer := StartTimer(CategoryAPI, "classify")
	elapsed := timer.StopWithThreshold(-time.Second)

	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestInitialize_RejectsBadLevel(t *testing.T) {
	err := Initialize(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestAuditEvents(t *testing.T) {
	logs := observe(t, nil)

	a := Audit("u1", "r1")
	a.TurnStart("active")
	a.IntentResolved("price_query", "classifier", 0.82, true)
	a.Escalated("frustration")
	a.StoreFallback(errors.New("db down"))
	a.HandlerPanic("campaign", "boom")

	entries := logs.FilterField(zap.String("cat", "audit")).All()
	require.Len(t, entries, 5)

	start := fieldMap(entries[0])
	assert.Equal(t, "turn_start", start["event"])
	assert.Equal(t, "u1", start["user"])
	assert.Equal(t, "r1", start["req"])
	assert.Equal(t, "active", start["target"])

	intent := fieldMap(entries[1])
	assert.Equal(t, "price_query", intent["target"])
	assert.Equal(t, 0.82, intent["confidence"])

	assert.Equal(t, "db down", fieldMap(entries[3])["error"])
	assert.Equal(t, "boom", fieldMap(entries[4])["error"])
	assert.Equal(t, "campaign", fieldMap(entries[4])["handler"])
}

func TestAuditDisabled(t *testing.T) {
	logs := observe(t, map[string]bool{"audit": false})

	Audit("u1", "r1").Escalated("opt_out")

	assert.Equal(t, 0, logs.Len())
}
