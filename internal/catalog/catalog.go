package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/brandradar/brandradar/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed brands.yaml
var defaultCatalog []byte

// Entry is one brand definition in a catalog file
type Entry struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type document struct {
	Brands []Entry `yaml:"brands"`
}

// BrandStore is the persistence seeding needs
type BrandStore interface {
	UpsertBrand(ctx context.Context, brand models.Brand) (models.Brand, bool, error)
}

// SeedResult counts what Seed changed
type SeedResult struct {
	Created int
	Updated int
}

// Default returns the built-in catalog
func Default() ([]Entry, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, falling back to the built-in catalog when path is empty.
func Load(path string) ([]Entry, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read brands file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML
func Parse(data []byte) ([]Entry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse brands YAML: %w", err)
	}

	seen := make(map[string]bool)
	var errs []error
	for i := range doc.Brands {
		entry := &doc.Brands[i]
		entry.Name = strings.TrimSpace(entry.Name)
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("brand %d: name is required", i+1))
			continue
		}
		key := strings.ToLower(entry.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("brand %q is listed twice", entry.Name))
		}
		seen[key] = true
		entry.Keywords = cleanKeywords(entry.Keywords)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if len(doc.Brands) == 0 {
		return nil, errors.New("brands file lists no brands")
	}

	return doc.Brands, nil
}

// Seed creates missing brands and replaces the keywords of existing ones.
func Seed(ctx context.Context, store BrandStore, entries []Entry) (SeedResult, error) {
	var result SeedResult
	for _, entry := range entries {
		brand, created, err := store.UpsertBrand(ctx, models.Brand{Name: entry.Name, Keywords: entry.Keywords})
		if err != nil {
			return result, fmt.Errorf("failed to seed brand %s: %w", entry.Name, err)
		}

		if created {
			result.Created++
			logrus.Infof("Created brand: %s", brand.Name)
		} else {
			result.Updated++
			logrus.Debugf("Brand already exists: %s", brand.Name)
		}
	}

	logrus.Infof("Seeding complete, %d brands ready for monitoring", len(entries))
	return result, nil
}

func cleanKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
