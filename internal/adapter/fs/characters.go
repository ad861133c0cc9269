package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"charrag/internal/domain"
	"charrag/internal/port"
)

// LoadCharacter reads one character definition. The format follows the
// file extension: .json is JSON, everything else YAML.
func LoadCharacter(path string) (*domain.Character, error) {
	return loadCharacter(path, DefinitionFormat(path))
}

func loadCharacter(path, format string) (*domain.Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c domain.Character
	switch format {
	case "json":
		err = json.Unmarshal(data, &c)
	default:
		err = yaml.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, fmt.Errorf("%s: character has no name", path)
	}
	for kind := range c.Data {
		if _, err := domain.ParseMemoryKind(string(kind)); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	c.Source = path
	return &c, nil
}

// LoadCharacters loads every definition the walker finds under dir, sorted
// by name. Two files defining the same name is an error.
func LoadCharacters(walker port.FileWalker, dir string) ([]*domain.Character, error) {
	files, err := walker.Walk(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	seen := make(map[string]string, len(files))
	chars := make([]*domain.Character, 0, len(files))
	for _, f := range files {
		c, err := loadCharacter(f.Path, f.Format)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(c.Name)
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("character %q defined in both %s and %s", c.Name, prev, f.Path)
		}
		seen[key] = f.Path
		chars = append(chars, c)
	}

	sort.Slice(chars, func(i, j int) bool { return chars[i].Name < chars[j].Name })
	return chars, nil
}
