package caskdb

import "go.uber.org/zap"

// NewLogger returns a production zap logger, or a no-op logger if one
// cannot be built. Open does not call it: a nil logger passed to Open
// makes logging a no-op. Callers that already run a zap logger in their
// process should pass it to Open instead of calling this.
func NewLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
