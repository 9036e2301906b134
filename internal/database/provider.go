package database

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kozaktomas/rollcall/internal/config"
)

// Opener connects to a database engine and prepares its schema.
type Opener func(ctx context.Context, cfg *config.DatabaseConfig) (Store, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Opener{}
)

// RegisterBackend makes an engine available to Open. It is called by the
// engine packages to avoid import cycles.
func RegisterBackend(name string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = open
}

// BackendFor returns the engine name for a database URL: "postgres" for
// postgres:// and postgresql:// URLs, "mysql" for anything else (a
// go-sql-driver DSN, optionally prefixed with mysql://).
func BackendFor(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "postgres"
	}
	return "mysql"
}

// Open connects using the backend selected by cfg.URL.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (Store, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, ErrNotConfigured
	}

	name := BackendFor(cfg.URL)
	backendsMu.RLock()
	open, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("database backend %q not registered", name)
	}
	return open(ctx, cfg)
}
