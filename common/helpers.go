package common

import (
	"io"

	"github.com/tokenvault/tokenvault/log"
)

// CloseOrLog closes c, logging instead of returning any error.
func CloseOrLog(c io.Closer, logger *log.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("error closing", "closer", c, "err", err)
	}
}
