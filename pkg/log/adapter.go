// Package log provides the SyncGuard logging stack: a zap core with emoji
// console output, a Kratos log.Logger adapter that redacts credentials, typed
// LogHelper methods per event category, and per-request context.
package log

import (
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// KratosAdapter routes Kratos key/value logs into zap.
type KratosAdapter struct {
	zapLogger *zap.Logger
}

// NewKratosAdapter wraps zapLogger as a Kratos log.Logger.
func NewKratosAdapter(zapLogger *zap.Logger) log.Logger {
	return &KratosAdapter{zapLogger: zapLogger}
}

var levels = map[log.Level]zapcore.Level{
	log.LevelDebug: zapcore.DebugLevel,
	log.LevelInfo:  zapcore.InfoLevel,
	log.LevelWarn:  zapcore.WarnLevel,
	log.LevelError: zapcore.ErrorLevel,
	log.LevelFatal: zapcore.FatalLevel,
}

// Log implements log.Logger. The "msg" pair becomes the entry message, a
// dangling trailing key is dropped.
func (a *KratosAdapter) Log(level log.Level, keyvals ...interface{}) error {
	if len(keyvals) == 0 {
		return nil
	}

	zl, ok := levels[level]
	if !ok {
		zl = zapcore.InfoLevel
	}
	var msg string
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if key == log.DefaultMessageKey {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		fields = append(fields, toField(key, keyvals[i+1]))
	}

	if ce := a.zapLogger.Check(zl, msg); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func toField(key string, value interface{}) zap.Field {
	switch v := value.(type) {
	case string:
		return zap.String(key, SanitizeField(key, v))
	case error:
		return zap.String(key, v.Error())
	case time.Duration:
		return zap.String(key, v.String())
	case time.Time:
		return zap.String(key, v.Format(time.RFC3339))
	case fmt.Stringer:
		return zap.String(key, SanitizeField(key, v.String()))
	}
	return zap.Any(key, value)
}
