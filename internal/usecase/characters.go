package usecase

import (
	"fmt"
	"sync"

	"charrag/internal/domain"
)

// CharacterCatalog holds the loaded character definitions. Reload swaps the
// whole set so lookups never see a half-loaded directory.
type CharacterCatalog struct {
	load func() ([]*domain.Character, error)

	mu    sync.RWMutex
	chars []*domain.Character
	byKey map[string]*domain.Character
}

func NewCharacterCatalog(load func() ([]*domain.Character, error)) (*CharacterCatalog, error) {
	c := &CharacterCatalog{load: load}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads every definition. On error the previous set is kept.
func (c *CharacterCatalog) Reload() error {
	chars, err := c.load()
	if err != nil {
		return err
	}
	byKey := make(map[string]*domain.Character, len(chars))
	for _, ch := range chars {
		byKey[CharacterKey(ch.Name)] = ch
	}
	c.mu.Lock()
	c.chars, c.byKey = chars, byKey
	c.mu.Unlock()
	return nil
}

// Get resolves a name case-insensitively.
func (c *CharacterCatalog) Get(name string) (*domain.Character, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.byKey[CharacterKey(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCharacterNotFound, name)
	}
	return ch, nil
}

// BySource finds the character defined in path.
func (c *CharacterCatalog) BySource(path string) (*domain.Character, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.chars {
		if ch.Source == path {
			return ch, true
		}
	}
	return nil, false
}

// List returns the characters sorted by name.
func (c *CharacterCatalog) List() []*domain.Character {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*domain.Character(nil), c.chars...)
}
