package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Console format is meant for the CLI
// harness; everything else gets JSON with ISO8601 timestamps.
func NewLogger(cfg Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	fields := map[string]interface{}{"service": cfg.ServiceName}
	if cfg.ServiceVersion != "" {
		fields["version"] = cfg.ServiceVersion
	}
	if cfg.Environment != "" {
		fields["environment"] = cfg.Environment
	}
	if cfg.ModuleName != "" {
		fields["module"] = cfg.ModuleName
	}
	zc.InitialFields = fields

	return zc.Build()
}
