package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/seenimoa/fidcsim/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg     config.LoggingConfig
		level   zapcore.Level
		wantErr bool
	}{
		{config.LoggingConfig{Level: "info", Format: "console"}, zapcore.InfoLevel, false},
		{config.LoggingConfig{Level: "DEBUG", Format: "json"}, zapcore.DebugLevel, false},
		{config.LoggingConfig{Level: "warn", Format: "text"}, zapcore.WarnLevel, false},
		{config.LoggingConfig{Level: "", Format: ""}, zapcore.InfoLevel, false},
		{config.LoggingConfig{Level: "loud", Format: "json"}, 0, true},
		{config.LoggingConfig{Level: "info", Format: "xml"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Level+"/"+tt.cfg.Format, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if !logger.Core().Enabled(tt.level) {
				t.Errorf("level %s should be enabled", tt.level)
			}
			if tt.level > zapcore.DebugLevel && logger.Core().Enabled(tt.level-1) {
				t.Errorf("level %s should be disabled", tt.level-1)
			}
		})
	}
}
