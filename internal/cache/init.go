package cache

import (
	"github.com/flexprice/invoicerecon/internal/config"
	"github.com/flexprice/invoicerecon/internal/logger"
)

// Initialize provides the process wide cache
func Initialize(cfg *config.Configuration, log *logger.Logger) Cache {
	return NewInMemoryCache(cfg, log)
}
