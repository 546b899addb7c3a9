/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package log is the process-wide printf-style logger, backed by zap.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel parses a level name, defaulting to InfoLevel.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

func (l Level) zap() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	jsonOn bool
	out    io.Writer = os.Stderr
	sugar            = build()
)

func build() *zap.SugaredLogger {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	var enc zapcore.Encoder
	if jsonOn {
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		enc = zapcore.NewConsoleEncoder(cfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(out), level)
	return zap.New(core).Sugar()
}

// SetLogLevel sets the minimum level written.
func SetLogLevel(l Level) {
	level.SetLevel(l.zap())
}

// GetLogLevel returns the current minimum level.
func GetLogLevel() Level {
	switch level.Level() {
	case zapcore.DebugLevel:
		return DebugLevel
	case zapcore.WarnLevel:
		return WarnLevel
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return ErrorLevel
	}
	return InfoLevel
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	sugar = build()
}

// SetJSON switches between console and JSON encoding.
func SetJSON(on bool) {
	mu.Lock()
	defer mu.Unlock()
	jsonOn = on
	sugar = build()
}

func logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Sync flushes buffered entries.
func Sync() error {
	return logger().Sync()
}

func Debug(format string, args ...any) {
	logger().Debugf(format, args...)
}

func Info(format string, args ...any) {
	logger().Infof(format, args...)
}

func Warn(format string, args ...any) {
	logger().Warnf(format, args...)
}

func Error(format string, args ...any) {
	logger().Errorf(format, args...)
}

// Logger carries fixed key/value fields, e.g. a request id.
type Logger struct {
	fields []any
}

// With returns a Logger that adds the given key/value pairs to every entry.
func With(keysAndValues ...any) *Logger {
	return &Logger{fields: keysAndValues}
}

func (l *Logger) Debug(format string, args ...any) {
	logger().With(l.fields...).Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	logger().With(l.fields...).Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	logger().With(l.fields...).Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	logger().With(l.fields...).Errorf(format, args...)
}
