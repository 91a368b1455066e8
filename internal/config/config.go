// Package config loads the council's content configuration (models, prompts, templates)
// from TOML files, runtime settings from flags and environment, and API keys from .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"aicouncil/pkg/counciltypes"
)

// Configuration file names inside the config directory.
const (
	ModelsFile    = "models.toml"
	PromptsFile   = "prompts.toml"
	TemplatesFile = "templates.toml"

	DefaultDir = "config"
)

// ErrConfigNotFound is returned when a required configuration file is missing.
var ErrConfigNotFound = errors.New("configuration file not found")

// Prompts holds the system prompts used outside the advisor conversations.
type Prompts struct {
	RapporteurSystemPrompt string `toml:"rapporteur_system_prompt"`
	FilenameSlugPrompt     string `toml:"filename_slug_prompt"`
}

// Config is the content configuration of a council.
type Config struct {
	Models     map[string]string // friendly name -> model identifier
	Rapporteur string
	Pricing    map[string]counciltypes.ModelPrice
	Prompts    Prompts
	Templates  []counciltypes.TemplateCategory
}

type modelsFile struct {
	Models     map[string]string `toml:"models"`
	Rapporteur struct {
		Model string `toml:"model"`
	} `toml:"rapporteur"`
	Pricing map[string]counciltypes.ModelPrice `toml:"pricing"`
}

// Load reads models.toml, prompts.toml and the optional templates.toml from dir.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = DefaultDir
	}

	var models modelsFile
	if err := decodeFile(filepath.Join(dir, ModelsFile), &models); err != nil {
		return nil, err
	}
	if len(models.Models) == 0 {
		return nil, fmt.Errorf("%s: no models configured under [models]", ModelsFile)
	}
	if strings.TrimSpace(models.Rapporteur.Model) == "" {
		return nil, fmt.Errorf("%s: [rapporteur] model is required", ModelsFile)
	}

	var prompts Prompts
	if err := decodeFile(filepath.Join(dir, PromptsFile), &prompts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompts.RapporteurSystemPrompt) == "" {
		return nil, fmt.Errorf("%s: rapporteur_system_prompt is required", PromptsFile)
	}

	var templates map[string]map[string]string
	if err := decodeFile(filepath.Join(dir, TemplatesFile), &templates); err != nil && !errors.Is(err, ErrConfigNotFound) {
		return nil, err
	}

	cfg := &Config{
		Models:     models.Models,
		Rapporteur: models.Rapporteur.Model,
		Pricing:    models.Pricing,
		Prompts:    prompts,
		Templates:  sortedCategories(templates),
	}
	if cfg.Pricing == nil {
		cfg.Pricing = make(map[string]counciltypes.ModelPrice)
	}
	return cfg, nil
}

// Advisors returns the configured advisors ordered by name.
func (c *Config) Advisors() []counciltypes.AdvisorDescriptor {
	advisors := make([]counciltypes.AdvisorDescriptor, 0, len(c.Models))
	for name, modelID := range c.Models {
		advisors = append(advisors, counciltypes.AdvisorDescriptor{Name: name, ModelID: modelID})
	}
	sort.Slice(advisors, func(i, j int) bool { return advisors[i].Name < advisors[j].Name })
	return advisors
}

func decodeFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func sortedCategories(templates map[string]map[string]string) []counciltypes.TemplateCategory {
	categories := make([]counciltypes.TemplateCategory, 0, len(templates))
	for category, entries := range templates {
		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		sort.Strings(names)

		group := counciltypes.TemplateCategory{Name: category}
		for _, name := range names {
			group.Templates = append(group.Templates, counciltypes.PromptTemplate{Name: name, Text: entries[name]})
		}
		categories = append(categories, group)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories
}
