package log

import (
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// typeEmoji LogHelper 的 type 字段 -> 表情符号
var typeEmoji = map[string]string{
	"api":          "🔗",
	"request":      "🌐",
	"success":      "✅",
	"database":     "💾",
	"redis":        "📦",
	"rate_limit":   "🚦",
	"circuit":      "🔌",
	"sync":         "🔄",
	"monitor":      "📊",
	"alert":        "🚨",
	"scheduler":    "🎯",
	"startup":      "🚀",
	"audit":        "📋",
	"slow_request": "🐌",
}

// circuitEmoji 熔断状态迁移日志按目标状态细分
var circuitEmoji = map[string]string{
	"open":      "⛔",
	"half_open": "🧪",
	"closed":    "🔌",
}

var levelEmoji = map[zapcore.Level]string{
	zapcore.DebugLevel:  "🐛",
	zapcore.InfoLevel:   "ℹ️",
	zapcore.WarnLevel:   "⚠️",
	zapcore.ErrorLevel:  "❌",
	zapcore.DPanicLevel: "❌",
	zapcore.PanicLevel:  "❌",
	zapcore.FatalLevel:  "❌",
}

// statusEmoji HTTP 状态码 -> 红/橙/黄/绿
func statusEmoji(status int) string {
	switch {
	case status >= 500:
		return "🔴"
	case status >= 400:
		return "🟠"
	case status >= 300:
		return "🟡"
	}
	return "🟢"
}

// EmojiConsoleEncoder 在控制台输出的消息前加表情符号
// 优先级: HTTP status > 熔断目标状态 > type 字段 > 日志级别
type EmojiConsoleEncoder struct {
	zapcore.Encoder
}

// NewEmojiConsoleEncoder 创建带表情符号的控制台编码器
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

// EncodeEntry implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if emoji := pickEmoji(entry.Level, fields); emoji != "" {
		entry.Message = emoji + " " + entry.Message
	}
	return enc.Encoder.EncodeEntry(entry, fields)
}

// Clone implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: enc.Encoder.Clone()}
}

func pickEmoji(level zapcore.Level, fields []zapcore.Field) string {
	var logType, toState string
	var status int64
	for _, f := range fields {
		switch {
		case f.Key == "type" && f.Type == zapcore.StringType:
			logType = f.String
		case f.Key == "to" && f.Type == zapcore.StringType:
			toState = f.String
		case f.Key == "status" && (f.Type == zapcore.Int64Type || f.Type == zapcore.Int32Type):
			status = f.Integer
		}
	}

	if status > 0 {
		return statusEmoji(int(status))
	}
	if logType == "circuit" {
		if e, ok := circuitEmoji[toState]; ok {
			return e
		}
	}
	if e, ok := typeEmoji[logType]; ok {
		return e
	}
	return levelEmoji[level]
}
