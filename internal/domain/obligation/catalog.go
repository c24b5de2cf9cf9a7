package obligation

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Catalog holds every obligation definition, keyed by kind
type Catalog struct {
	defs map[string]*Definition
}

// NewCatalog validates the definitions and indexes them by kind
func NewCatalog(defs ...*Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.defs[d.Kind]; dup {
			return nil, fmt.Errorf("%w: duplicate kind %q", ErrInvalidDefinition, d.Kind)
		}
		c.defs[d.Kind] = d
	}
	return c, nil
}

// Get returns the definition for kind
func (c *Catalog) Get(kind string) (*Definition, bool) {
	d, ok := c.defs[kind]
	return d, ok
}

// Kinds returns all kinds in sorted order
func (c *Catalog) Kinds() []string {
	kinds := make([]string, 0, len(c.defs))
	for k := range c.defs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Len returns the number of definitions
func (c *Catalog) Len() int {
	return len(c.defs)
}

type catalogFile struct {
	Obligations []definitionYAML `yaml:"obligations"`
}

type windowYAML struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type reviewYAML struct {
	Timeout       string `yaml:"timeout"`
	OnTimeout     string `yaml:"on_timeout"`
	DefaultRating int    `yaml:"default_rating"`
}

type penaltyYAML struct {
	Points        string `yaml:"points"`
	Category      string `yaml:"category"`
	DeclinePoints string `yaml:"decline_points"`
}

type definitionYAML struct {
	Kind           string       `yaml:"kind"`
	Label          string       `yaml:"label"`
	Windows        []windowYAML `yaml:"windows"`
	DeadlineOffset string       `yaml:"deadline_offset"`
	Review         *reviewYAML  `yaml:"review"`
	Penalty        penaltyYAML  `yaml:"penalty"`
	ReminderLead   string       `yaml:"reminder_lead"`
	NotifyAdmin    *bool        `yaml:"notify_admin"`
}

// ParseCatalogYAML decodes and validates a catalog from YAML bytes
func ParseCatalogYAML(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: catalog payload is empty", ErrInvalidDefinition)
	}

	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode catalog: %v", ErrInvalidDefinition, err)
	}
	if len(file.Obligations) == 0 {
		return nil, fmt.Errorf("%w: catalog has no obligations", ErrInvalidDefinition)
	}

	defs := make([]*Definition, 0, len(file.Obligations))
	for _, raw := range file.Obligations {
		d, err := raw.toDefinition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return NewCatalog(defs...)
}

// LoadCatalogReader reads catalog data from an io.Reader
func LoadCatalogReader(r io.Reader) (*Catalog, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("obligation: read catalog: %w", err)
	}
	return ParseCatalogYAML(content)
}

// LoadCatalogFile loads a catalog from an explicit file path
func LoadCatalogFile(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("obligation: read %s: %w", path, err)
	}
	c, err := ParseCatalogYAML(content)
	if err != nil {
		return nil, fmt.Errorf("obligation: %s: %w", path, err)
	}
	return c, nil
}

func (raw definitionYAML) toDefinition() (*Definition, error) {
	d := &Definition{Kind: strings.TrimSpace(raw.Kind), Label: strings.TrimSpace(raw.Label), NotifyAdmin: true}
	if raw.NotifyAdmin != nil {
		d.NotifyAdmin = *raw.NotifyAdmin
	}

	for _, w := range raw.Windows {
		start, err := ParseClockTime(w.Start)
		if err != nil {
			return nil, fmt.Errorf("%s/%s start: %w", d.Kind, w.Name, err)
		}
		end, err := ParseClockTime(w.End)
		if err != nil {
			return nil, fmt.Errorf("%s/%s end: %w", d.Kind, w.Name, err)
		}
		d.Windows = append(d.Windows, Window{Name: w.Name, Start: start, End: end})
	}

	var err error
	if d.DeadlineOffset, err = parseOptionalDuration(raw.DeadlineOffset); err != nil {
		return nil, fmt.Errorf("%s deadline_offset: %w", d.Kind, err)
	}
	if d.ReminderLead, err = parseOptionalDuration(raw.ReminderLead); err != nil {
		return nil, fmt.Errorf("%s reminder_lead: %w", d.Kind, err)
	}

	if d.Penalty.Points, err = parseOptionalDecimal(raw.Penalty.Points); err != nil {
		return nil, fmt.Errorf("%s penalty.points: %w", d.Kind, err)
	}
	if d.Penalty.DeclinePoints, err = parseOptionalDecimal(raw.Penalty.DeclinePoints); err != nil {
		return nil, fmt.Errorf("%s penalty.decline_points: %w", d.Kind, err)
	}
	d.Penalty.Category = raw.Penalty.Category

	if raw.Review != nil {
		timeout, err := parseOptionalDuration(raw.Review.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%s review.timeout: %w", d.Kind, err)
		}
		d.Review = &ReviewPhase{
			Timeout:       timeout,
			OnTimeout:     TimeoutPolicy(raw.Review.OnTimeout),
			DefaultRating: raw.Review.DefaultRating,
		}
	}

	return d, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return d, nil
}

func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return d, nil
}
