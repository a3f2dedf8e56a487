package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"trivia-session-service/internal/domain"
)

// Catalog reads the power-up catalog from a YAML or JSON file once and serves it from memory.
type Catalog struct {
	path string

	once  sync.Once
	items []domain.PowerUp
	err   error
}

func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

func (c *Catalog) PowerUps(context.Context) ([]domain.PowerUp, error) {
	c.once.Do(func() {
		c.items, c.err = readCatalog(c.path)
	})
	if c.err != nil {
		return nil, c.err
	}
	return slices.Clone(c.items), nil
}

func readCatalog(path string) ([]domain.PowerUp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read power-up catalog: %w", err)
	}
	var doc struct {
		PowerUps []domain.PowerUp `json:"powerups" yaml:"powerups"`
	}
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode power-up catalog %s: %w", path, err)
	}

	seen := make(map[string]bool, len(doc.PowerUps))
	for _, pu := range doc.PowerUps {
		if pu.Name == "" {
			return nil, fmt.Errorf("power-up catalog %s: entry without a name", path)
		}
		if seen[pu.Name] {
			return nil, fmt.Errorf("power-up catalog %s: duplicate name %q", path, pu.Name)
		}
		seen[pu.Name] = true
	}
	return doc.PowerUps, nil
}
