package lambda

import (
	"context"
	"sync"
	"time"

	"github.com/juan49ers-spec/Repaart-sub012/internal/config"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/server"
)

// staleAfter is how long a warm container may sit idle before IsHealthy reports it stale
const staleAfter = 5 * time.Minute

// ConnectionManager keeps the store connection and services alive across
// warm invocations of a Lambda function
type ConnectionManager struct {
	container   *server.Container
	lastUsed    time.Time
	mu          sync.RWMutex
	initialized bool
	initErr     error
	initOnce    sync.Once
	config      *config.Config
}

var (
	globalConnectionManager *ConnectionManager
	connectionManagerOnce   sync.Once
)

// GetConnectionManager returns the global connection manager instance
func GetConnectionManager() *ConnectionManager {
	connectionManagerOnce.Do(func() {
		globalConnectionManager = &ConnectionManager{}
	})
	return globalConnectionManager
}

// Initialize builds the container once. Later calls return the first result.
func (cm *ConnectionManager) Initialize(ctx context.Context, cfg *config.Config) error {
	cm.initOnce.Do(func() {
		cm.mu.Lock()
		defer cm.mu.Unlock()

		cm.config = cfg
		container, err := server.NewContainer(ctx, cfg)
		if err != nil {
			cm.initErr = err
			return
		}

		cm.container = container
		cm.lastUsed = time.Now()
		cm.initialized = true
	})

	return cm.initErr
}

// GetContainer returns the service container, loading the serverless
// configuration on first use
func (cm *ConnectionManager) GetContainer(ctx context.Context) (*server.Container, error) {
	cm.mu.Lock()
	if cm.initialized && cm.container != nil {
		cm.lastUsed = time.Now()
		container := cm.container
		cm.mu.Unlock()
		return container, nil
	}
	cfg := cm.config
	cm.mu.Unlock()

	if cfg == nil {
		loaded, err := config.LoadServerlessConfig()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cm.Initialize(ctx, cfg); err != nil {
		return nil, err
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.container, nil
}

// IsHealthy checks if the connection manager holds a recently used container
func (cm *ConnectionManager) IsHealthy() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.initialized || cm.container == nil {
		return false
	}

	return time.Since(cm.lastUsed) < staleAfter
}

// Cleanup closes the store connection. The manager cannot be reinitialized afterwards.
func (cm *ConnectionManager) Cleanup() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.container != nil {
		if err := cm.container.Close(); err != nil {
			return err
		}
		cm.container = nil
	}

	cm.initialized = false
	return nil
}

// UpdateLastUsed updates the last used timestamp
func (cm *ConnectionManager) UpdateLastUsed() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.lastUsed = time.Now()
}
