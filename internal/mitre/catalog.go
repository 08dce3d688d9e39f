// Package mitre maps ATT&CK technique ids reported by the sandbox to MISP
// galaxy tags.
package mitre

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lvonguyen/nsxenrich/internal/enrichment"
)

// AttackPatternGalaxyUUID identifies the mitre-attack-pattern galaxy in MISP.
const AttackPatternGalaxyUUID = "c4e851fa-775f-11e7-8163-b774922098cd"

// GalaxySource fetches a MISP galaxy. *enrichment.MISPClient implements it.
type GalaxySource interface {
	GetGalaxy(ctx context.Context, galaxyUUID string) (*enrichment.Galaxy, error)
}

// Entry is one catalog technique: the galaxy cluster value, which embeds the
// technique id (e.g. "PowerShell - T1059.001"), and the tag to apply.
type Entry struct {
	ID  string
	Tag string
}

// Catalog is an ordered list of techniques. Order matters: lookups return the
// first qualifying entry.
type Catalog struct {
	entries []Entry
	index   map[string]int
}

// NewCatalog builds a catalog. A repeated id keeps its first position and
// takes the latest tag.
func NewCatalog(entries ...Entry) *Catalog {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if i, ok := c.index[e.ID]; ok {
			c.entries[i].Tag = e.Tag
			continue
		}
		c.index[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c
}

// Len returns the number of techniques in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns a copy of the catalog in order.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	return append([]Entry(nil), c.entries...)
}

// Match returns the tag of the first entry whose id contains techniqueID,
// case-insensitively. A parent technique (no ".") only matches catalog entries
// that are not sub-techniques themselves; a sub-technique matches anything.
func (c *Catalog) Match(techniqueID string) (string, bool) {
	if c == nil || techniqueID == "" {
		return "", false
	}

	needle := strings.ToLower(techniqueID)
	isSub := strings.Contains(techniqueID, ".")

	for _, e := range c.entries {
		if !strings.Contains(strings.ToLower(e.ID), needle) {
			continue
		}
		if isSub || !strings.Contains(e.ID, ".") {
			return e.Tag, true
		}
	}
	return "", false
}

// LoadCatalog builds the catalog from the ATT&CK pattern galaxy. MISP is
// optional: with no source, or when the fetch fails, the catalog is empty and
// reports simply carry no technique tags.
func LoadCatalog(ctx context.Context, src GalaxySource, logger *zap.Logger) *Catalog {
	if src == nil {
		return NewCatalog()
	}

	galaxy, err := src.GetGalaxy(ctx, AttackPatternGalaxyUUID)
	if err != nil {
		logger.Warn("Failed to load MITRE ATT&CK galaxy, technique tags disabled",
			zap.String("galaxy_uuid", AttackPatternGalaxyUUID),
			zap.Error(err),
		)
		return NewCatalog()
	}

	entries := make([]Entry, 0, len(galaxy.Clusters))
	for _, cluster := range galaxy.Clusters {
		if cluster.Value == "" || cluster.TagName == "" {
			continue
		}
		entries = append(entries, Entry{ID: cluster.Value, Tag: cluster.TagName})
	}

	catalog := NewCatalog(entries...)
	logger.Debug("Loaded MITRE ATT&CK catalog", zap.Int("techniques", catalog.Len()))
	return catalog
}
