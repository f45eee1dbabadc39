package quality

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"audiostream/metasearch/internal/domain"
)

var (
	ErrProfileNotFound = errors.New("quality profile not found")
	ErrInvalidProfile  = errors.New("invalid quality profile")
)

// Catalog holds the quality profiles and indexers an operator configured.
type Catalog struct {
	Profiles []domain.QualityProfile `toml:"profile"`
	Indexers []domain.Indexer        `toml:"indexer"`
}

// LoadProfiles reads a TOML file of [[profile]] and [[indexer]] tables.
func LoadProfiles(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profiles: %w", err)
	}
	defer file.Close()
	return DecodeProfiles(file)
}

func DecodeProfiles(r io.Reader) (*Catalog, error) {
	var catalog Catalog
	decoder := toml.NewDecoder(r)
	if err := decoder.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Validate rejects duplicate ids and negative limits.
func (c *Catalog) Validate() error {
	seen := make(map[int]struct{}, len(c.Profiles))
	for _, profile := range c.Profiles {
		if strings.TrimSpace(profile.Name) == "" {
			return fmt.Errorf("%w: profile %d has no name", ErrInvalidProfile, profile.ID)
		}
		if _, dup := seen[profile.ID]; dup {
			return fmt.Errorf("%w: duplicate profile id %d", ErrInvalidProfile, profile.ID)
		}
		seen[profile.ID] = struct{}{}
		if profile.MinimumSize < 0 || profile.MaximumSize < 0 || profile.MaximumAge < 0 || profile.MinimumSeeders < 0 {
			return fmt.Errorf("%w: profile %q has a negative limit", ErrInvalidProfile, profile.Name)
		}
		if profile.MaximumSize > 0 && profile.MinimumSize > profile.MaximumSize {
			return fmt.Errorf("%w: profile %q minimum size exceeds maximum", ErrInvalidProfile, profile.Name)
		}
	}
	return nil
}

// Profile returns the profile with id.
func (c *Catalog) Profile(id int) (domain.QualityProfile, error) {
	for _, profile := range c.Profiles {
		if profile.ID == id {
			return profile, nil
		}
	}
	return domain.QualityProfile{}, fmt.Errorf("%w: id %d", ErrProfileNotFound, id)
}

// Default returns the profile flagged as default, else the first one, else the
// built-in default.
func (c *Catalog) Default() domain.QualityProfile {
	for _, profile := range c.Profiles {
		if profile.IsDefault {
			return profile
		}
	}
	if len(c.Profiles) > 0 {
		return c.Profiles[0]
	}
	return domain.DefaultQualityProfile()
}

// IndexerMap keys configured indexers by id.
func (c *Catalog) IndexerMap() map[int]domain.Indexer {
	out := make(map[int]domain.Indexer, len(c.Indexers))
	for _, indexer := range c.Indexers {
		out[indexer.ID] = indexer
	}
	return out
}
