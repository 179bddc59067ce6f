package log

import (
	"fmt"
	"os"
	"strings"
	"time"

	"SyncGuard/internal/conf"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// businessZone is the platform's operating timezone (Asia/Tashkent, UTC+5).
// A fixed zone keeps log timestamps stable on hosts without tzdata.
var businessZone = time.FixedZone("UZT", 5*3600)

// customTimeEncoder 以业务时区格式化时间: [2006-01-02 15:04:05]
func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.In(businessZone).Format("[2006-01-02 15:04:05]"))
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewZapLogger builds the service logger from cfg.
//
// Entries below ERROR go to stdout and ERROR and above to stderr, so a
// container runtime can split them. Development or "console" format gets
// the emoji console encoder, otherwise JSON. OutputFile, when set, always
// receives JSON through a rotating lumberjack writer, so a nightly run can
// be grepped after the fact.
func NewZapLogger(cfg *conf.Log) (*zap.Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("log config is nil")
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	env := cfg.Env
	if env == "" {
		env = os.Getenv("SYNCGUARD_ENV")
	}

	ec := encoderConfig()
	stdEncoder := zapcore.NewJSONEncoder(ec)
	if strings.EqualFold(cfg.Format, "console") || env == "development" {
		stdEncoder = NewEmojiConsoleEncoder(ec)
	}

	below := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level && l < zapcore.ErrorLevel })
	errorsUp := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level && l >= zapcore.ErrorLevel })

	cores := []zapcore.Core{
		zapcore.NewCore(stdEncoder, zapcore.Lock(os.Stdout), below),
		zapcore.NewCore(stdEncoder, zapcore.Lock(os.Stderr), errorsUp),
	}
	if cfg.OutputFile != "" {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(ec), zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    100, // MB
			MaxAge:     14,  // days
			MaxBackups: 14,
			Compress:   true,
		}), level))
	}

	return zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service", "SyncGuard")),
	), nil
}
