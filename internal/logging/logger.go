package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger creates a structured zerolog.Logger writing JSON to stdout. The
// stack name is attached as a context field when set.
func NewLogger(level, stack string) zerolog.Logger {
	ctx := zerolog.New(os.Stdout).With().Timestamp()

	if stack != "" {
		ctx = ctx.Str("stack", stack)
	}

	logger := ctx.Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return logger.Level(lvl)
}
