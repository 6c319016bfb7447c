package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/chelsseeey/price-watcher/scraper"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Catalog lists the sites, environment profiles and items a run can cover
type Catalog struct {
	Sites    []*scraper.SiteConfig       `yaml:"sites" json:"sites"`
	Profiles []models.EnvironmentProfile `yaml:"profiles" json:"profiles"`
	Items    []models.TargetItem         `yaml:"items" json:"items"`
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(c.Profiles) == 0 {
		c.Profiles = models.DefaultProfiles()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects unknown kinds, bad profiles, orphan items and duplicate IDs
func (c *Catalog) Validate() error {
	if len(c.Sites) == 0 {
		return fmt.Errorf("catalog has no sites")
	}
	sites := make(map[string]bool)
	for _, s := range c.Sites {
		if err := s.Validate(); err != nil {
			return err
		}
		if sites[s.Name] {
			return fmt.Errorf("duplicate site %q", s.Name)
		}
		sites[s.Name] = true
	}

	profiles := make(map[string]bool)
	for _, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
		if profiles[p.Key()] {
			return fmt.Errorf("duplicate profile %q", p.Key())
		}
		profiles[p.Key()] = true
	}

	items := make(map[string]bool)
	for _, it := range c.Items {
		if err := it.Validate(); err != nil {
			return err
		}
		if !sites[it.Site] {
			return fmt.Errorf("item %s: unknown site %q", it.ID, it.Site)
		}
		key := it.Site + "/" + it.Identifier("")
		if items[key] {
			return fmt.Errorf("duplicate item %q", key)
		}
		items[key] = true
	}
	return nil
}

// Site returns the named site configuration
func (c *Catalog) Site(name string) (*scraper.SiteConfig, bool) {
	for _, s := range c.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Profile returns the profile with the given key
func (c *Catalog) Profile(key string) (models.EnvironmentProfile, bool) {
	for _, p := range c.Profiles {
		if p.Key() == key {
			return p, true
		}
	}
	return models.EnvironmentProfile{}, false
}

// ItemsFor returns the items of one site in catalog order
func (c *Catalog) ItemsFor(site string) []models.TargetItem {
	var out []models.TargetItem
	for _, it := range c.Items {
		if it.Site == site {
			out = append(out, it)
		}
	}
	return out
}

// ApplyOverrides replaces item URLs and the flight carrier filter with values from the environment
func (c *Catalog) ApplyOverrides(cfg *Config) {
	for site, u := range cfg.ItemURLs {
		for i := range c.Items {
			if c.Items[i].Site == site {
				c.Items[i].URL = u
				break
			}
		}
	}
	if cfg.KayakAirline != "" {
		if s, ok := c.Site("kayak"); ok {
			s.CardKeyword = cfg.KayakAirline
		}
	}
}
