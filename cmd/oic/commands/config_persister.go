package commands

import (
	"fmt"
	"sync"
	"time"

	"github.com/WolVesz/oic-devops/internal/auth"
	"github.com/WolVesz/oic-devops/internal/constants"
)

// ConfigPersister implements the auth.ConfigPersister interface on top of
// the profile file.
type ConfigPersister struct {
	mutex sync.Mutex
}

// NewConfigPersister creates a new config persister.
func NewConfigPersister() *ConfigPersister {
	return &ConfigPersister{}
}

// SaveToken stores token as the cached token of profile.
func (p *ConfigPersister) SaveToken(profile string, token *auth.Token) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	stored, exists := config.Profiles[profile]
	if !exists {
		return fmt.Errorf("profile '%s': %w", profile, constants.ErrProfileNotFound)
	}

	stored.CachedToken = token.AccessToken

	obtainedAt := token.ObtainedAt
	if obtainedAt.IsZero() {
		obtainedAt = time.Now()
	}

	stored.TokenObtainedAt = obtainedAt.UTC().Format(time.RFC3339)

	return saveConfig(config)
}
