// Package logging provides config-driven categorized logging for shadebot.
// Every category writes through a shared zap core; the category is attached
// as a structured field so a single JSON stream can be filtered per subsystem.
// Before Initialize is called all loggers are no-ops.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Boot/initialization
	CategoryDispatch   Category = "dispatch"   // Handler chain decisions
	CategoryPerception Category = "perception" // Fast matchers, classifier, edge cases
	CategoryEscalation Category = "escalation" // Escalation state machine
	CategorySpecs      Category = "specs"      // Slot extraction and merge
	CategoryDimension  Category = "dimension"  // Dimension parsing and catalog matching
	CategoryStore      Category = "store"      // Conversation store adapters
	CategoryCatalog    Category = "catalog"    // Catalog source
	CategoryCampaign   Category = "campaign"   // Campaign flows
	CategoryChannel    Category = "channel"    // HTTP and AMQP transport
	CategoryAPI        Category = "api"        // Completion service calls
	CategoryAudit      Category = "audit"      // Conversation audit trail
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // optional output path; empty means stderr
	Categories map[string]bool // nil means all enabled
}

// Logger wraps a zap sugared logger bound to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex

	base       *zap.Logger
	baseMu     sync.RWMutex
	categories map[string]bool
)

// Initialize builds the shared zap core from cfg. It may be called again to
// reconfigure; existing category loggers are rebuilt lazily.
func Initialize(cfg Config) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" || cfg.Format == "text" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.DisableStacktrace = true
	if cfg.File != "" {
		zcfg.OutputPaths = []string{cfg.File}
	}

	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	Use(logger, cfg.Categories)
	return nil
}

// Use installs an already-built zap logger (tests pass an observer core here).
func Use(logger *zap.Logger, enabled map[string]bool) {
	baseMu.Lock()
	old := base
	base = logger
	categories = enabled
	baseMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()

	if old != nil && old != logger {
		_ = old.Sync()
	}
}

// Base returns the shared zap logger, or a no-op logger before Initialize.
func Base() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	if base == nil {
		return zap.NewNop()
	}
	return base
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	baseMu.RLock()
	defer baseMu.RUnlock()

	if base == nil {
		return false
	}
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if logging is not initialized or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{
		category: category,
		sugar:    Base().With(zap.String("cat", string(category))).Sugar(),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying the given key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes the shared core (call at shutdown)
func Sync() {
	_ = Base().Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warn(format, args...)
}

// Dispatch logs to the dispatch category
func Dispatch(format string, args ...interface{}) {
	Get(CategoryDispatch).Info(format, args...)
}

// DispatchDebug logs debug to the dispatch category
func DispatchDebug(format string, args ...interface{}) {
	Get(CategoryDispatch).Debug(format, args...)
}

// DispatchError logs an error to the dispatch category
func DispatchError(format string, args ...interface{}) {
	Get(CategoryDispatch).Error(format, args...)
}

// Perception logs to the perception category
func Perception(format string, args ...interface{}) {
	Get(CategoryPerception).Info(format, args...)
}

// PerceptionDebug logs debug to the perception category
func PerceptionDebug(format string, args ...interface{}) {
	Get(CategoryPerception).Debug(format, args...)
}

// PerceptionWarn logs a warning to the perception category
func PerceptionWarn(format string, args ...interface{}) {
	Get(CategoryPerception).Warn(format, args...)
}

// Escalation logs to the escalation category
func Escalation(format string, args ...interface{}) {
	Get(CategoryEscalation).Info(format, args...)
}

// EscalationDebug logs debug to the escalation category
func EscalationDebug(format string, args ...interface{}) {
	Get(CategoryEscalation).Debug(format, args...)
}

// SpecsDebug logs debug to the specs category
func SpecsDebug(format string, args ...interface{}) {
	Get(CategorySpecs).Debug(format, args...)
}

// DimensionDebug logs debug to the dimension category
func DimensionDebug(format string, args ...interface{}) {
	Get(CategoryDimension).Debug(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreError logs an error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// Catalog logs to the catalog category
func Catalog(format string, args ...interface{}) {
	Get(CategoryCatalog).Info(format, args...)
}

// CatalogWarn logs a warning to the catalog category
func CatalogWarn(format string, args ...interface{}) {
	Get(CategoryCatalog).Warn(format, args...)
}

// Campaign logs to the campaign category
func Campaign(format string, args ...interface{}) {
	Get(CategoryCampaign).Info(format, args...)
}

// CampaignDebug logs debug to the campaign category
func CampaignDebug(format string, args ...interface{}) {
	Get(CategoryCampaign).Debug(format, args...)
}

// Channel logs to the channel category
func Channel(format string, args ...interface{}) {
	Get(CategoryChannel).Info(format, args...)
}

// ChannelDebug logs debug to the channel category
func ChannelDebug(format string, args ...interface{}) {
	Get(CategoryChannel).Debug(format, args...)
}

// ChannelError logs an error to the channel category
func ChannelError(format string, args ...interface{}) {
	Get(CategoryChannel).Error(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// APIWarn logs a warning to the api category
func APIWarn(format string, args ...interface{}) {
	Get(CategoryAPI).Warn(format, args...)
}

// =============================================================================
// REQUEST ID TRACING
// =============================================================================

// RequestLogger provides request-scoped logging with a correlation ID
type RequestLogger struct {
	logger    *Logger
	requestID string
	fields    map[string]interface{}
}

// WithRequestID creates a request-scoped logger for one inbound message
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{
		logger:    Get(category),
		requestID: requestID,
		fields:    make(map[string]interface{}),
	}
}

// WithField adds a field to the request logger
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	r.fields[key] = value
	return r
}

func (r *RequestLogger) sugar() *zap.SugaredLogger {
	kv := make([]interface{}, 0, 2+2*len(r.fields))
	kv = append(kv, "req", r.requestID)
	for k, v := range r.fields {
		kv = append(kv, k, v)
	}
	return r.logger.sugar.With(kv...)
}

func (r *RequestLogger) Debug(format string, args ...interface{}) {
	r.sugar().Debugf(format, args...)
}

func (r *RequestLogger) Info(format string, args ...interface{}) {
	r.sugar().Infof(format, args...)
}

func (r *RequestLogger) Warn(format string, args ...interface{}) {
	r.sugar().Warnf(format, args...)
}

func (r *RequestLogger) Error(format string, args ...interface{}) {
	r.sugar().Errorf(format, args...)
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
