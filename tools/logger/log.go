package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// LogLevel 日志级别
type LogLevel int

const (
	// DEBUG 调试级别
	DEBUG LogLevel = iota
	// INFO 信息级别
	INFO
	// WARN 警告级别
	WARN
	// ERROR 错误级别
	ERROR
	// FATAL 致命级别
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelFromString = map[string]LogLevel{
	"debug": DEBUG,
	"info":  INFO,
	"warn":  WARN,
	"error": ERROR,
	"fatal": FATAL,
}

// Logger 日志记录器
type Logger struct {
	level LogLevel
	zl    zerolog.Logger
}

// NewLogger 创建新的日志记录器
// stdout 是 MCP stdio 传输的协议通道，日志一律写 stderr
func NewLogger(level string) *Logger {
	return NewLoggerWithWriter(level, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05.000", NoColor: true})
}

// NewLoggerWithWriter 使用指定输出创建日志记录器，测试中可传入 bytes.Buffer
func NewLoggerWithWriter(level string, w io.Writer) *Logger {
	logLevel := INFO
	if l, ok := levelFromString[strings.ToLower(level)]; ok {
		logLevel = l
	}

	zl := zerolog.New(w).With().Timestamp().Logger()
	return &Logger{level: logLevel, zl: zl}
}

// Named 返回带组件字段的子日志记录器
func (l *Logger) Named(component string) *Logger {
	return &Logger{level: l.level, zl: l.zl.With().Str("component", component).Logger()}
}

// With 返回附带一个键值字段的子日志记录器
func (l *Logger) With(key, value string) *Logger {
	return &Logger{level: l.level, zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	switch level {
	case DEBUG:
		l.zl.Debug().Msg(msg)
	case INFO:
		l.zl.Info().Msg(msg)
	case WARN:
		l.zl.Warn().Msg(msg)
	case ERROR:
		l.zl.Error().Msg(msg)
	case FATAL:
		// 不调用 os.Exit，由调用方决定退出
		l.zl.Error().Str("severity", levelNames[FATAL]).Msg(msg)
	}
}

// Debug 调试日志
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info 信息日志
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn 警告日志
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error 错误日志
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// Fatal 致命错误日志
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, format, args...)
}

// GetLevel 获取当前日志级别
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// SetLevel 设置日志级别
func (l *Logger) SetLevel(level string) {
	if lvl, ok := levelFromString[strings.ToLower(level)]; ok {
		l.level = lvl
	}
}

// String 返回级别名称
func (lv LogLevel) String() string {
	if name, ok := levelNames[lv]; ok {
		return name
	}
	return "UNKNOWN"
}
