package utils

import (
	"io"

	"github.com/MrSnakeDoc/breachwatch/internal/logger"
)

// MustClose closes c and logs any error under name.
// Use for shutdown paths where a failed close is worth a line but not an abort.
func MustClose(c io.Closer, name string, log logger.Logger) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("failed to close", logger.String("component", name), logger.Error(err))
		return
	}
	log.Info("✅ closed cleanly", logger.String("component", name))
}
