package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerHonoursLevel(t *testing.T) {
	testCases := []struct {
		level       string
		environment string
		enabled     zapcore.Level
		disabled    zapcore.Level
	}{
		{level: "debug", environment: "development", enabled: zapcore.DebugLevel, disabled: zapcore.Level(-2)},
		{level: "", environment: "production", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
		{level: "WARNING", environment: "production", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
		{level: "bogus", environment: "", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
	}

	for _, testCase := range testCases {
		t.Run(testCase.level+"/"+testCase.environment, func(t *testing.T) {
			logger, err := NewLogger(testCase.level, testCase.environment)
			if err != nil {
				t.Fatalf("failed to build logger: %v", err)
			}
			core := logger.Core()
			if !core.Enabled(testCase.enabled) {
				t.Fatalf("expected %s to be enabled", testCase.enabled)
			}
			if core.Enabled(testCase.disabled) {
				t.Fatalf("expected %s to be disabled", testCase.disabled)
			}
		})
	}
}
