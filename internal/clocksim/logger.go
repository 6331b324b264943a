package clocksim

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newPeerLogger builds a bare message-only logger writing to path, one line
// per event, matching the original per-machine log<lid>.txt files — a zap
// core with a console encoder standing in for the original's raw f.write
// calls.
func newPeerLogger(path string) (*zap.Logger, func() error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}

	encCfg := zapcore.EncoderConfig{
		MessageKey:    "msg",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	}
	encoder := zapcore.NewConsoleEncoder(encCfg)
	core := zapcore.NewCore(encoder, zapcore.AddSync(f), zapcore.InfoLevel)

	logger := zap.New(core)
	return logger, f.Close, nil
}
