package logging

import (
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// instrumentationName identifies dbgnav records in the OTEL log pipeline.
const instrumentationName = "github.com/fyrsmithlabs/dbgnav"

// newDualCore tees console and OTEL outputs and applies sampling.
func newDualCore(cfg *Config, console zapcore.WriteSyncer, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Console {
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), console, cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		otelCore := otelzap.NewCore(instrumentationName,
			otelzap.WithLoggerProvider(otelProvider),
		)
		cores = append(cores, &levelFilterCore{
			Core:  otelCore,
			allow: func(l zapcore.Level) bool { return l >= cfg.Level },
		})
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}
	return newSampledCore(core, cfg.Sampling), nil
}
