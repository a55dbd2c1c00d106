package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// Catalog is the set of tools a run covers
type Catalog struct {
	Tools []probe.Tool `yaml:"tools" validate:"min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadCatalog reads and validates a tools.yaml file. An empty path yields
// the built-in video converter catalog rooted at baseURL.
func LoadCatalog(path, baseURL string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(baseURL), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data, baseURL)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes catalog YAML. Tool URLs starting with "/" are joined
// to baseURL.
func ParseCatalog(data []byte, baseURL string) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	for i := range c.Tools {
		if strings.HasPrefix(c.Tools[i].URL, "/") {
			c.Tools[i].URL = strings.TrimRight(baseURL, "/") + c.Tools[i].URL
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks struct rules and that tool IDs are unique
func (c *Catalog) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid catalog: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid catalog: %w", err)
	}
	seen := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if seen[t.ID] {
			return fmt.Errorf("invalid catalog: duplicate tool id %q", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// Find returns the tool with id
func (c *Catalog) Find(id string) (probe.Tool, bool) {
	for _, t := range c.Tools {
		if t.ID == id {
			return t, true
		}
	}
	return probe.Tool{}, false
}

// DefaultCatalog describes the product's video converter
func DefaultCatalog(baseURL string) *Catalog {
	return &Catalog{Tools: []probe.Tool{probe.DefaultVideoConverter(baseURL)}}
}
