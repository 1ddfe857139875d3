// Package catalog discovers scripts under a scan root and serves an
// in-memory snapshot of their parsed metadata. The filesystem is the source
// of truth; the snapshot is a cache that is rebuilt wholesale and swapped
// atomically, so readers never observe a half-updated catalog.
package catalog

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/scriptdeck/scriptdeck/internal/config"
	"github.com/scriptdeck/scriptdeck/internal/models"
	"github.com/scriptdeck/scriptdeck/internal/parser"
)

// UncategorizedKey is the category for scripts directly under the scan root.
const UncategorizedKey = "Uncategorized"

// ErrScriptNotFound indicates the requested script is not in the catalog.
var ErrScriptNotFound = errors.New("script not found")

// snapshot is one immutable scan result. Catalog swaps the whole value on
// refresh and readers copy the pointer under a read lock.
type snapshot struct {
	scripts    []models.Script
	byPath     map[string]int
	categories []models.Category
}

// Catalog scans a root directory for scripts and answers queries against the
// latest snapshot.
type Catalog struct {
	root       string
	extension  string
	categories map[string]config.CategoryConfig

	mu   sync.RWMutex
	snap *snapshot
}

// New creates a Catalog for the given scripts configuration. The scan root
// must exist; a missing root is a startup configuration error.
func New(cfg config.ScriptsConfig, categories map[string]config.CategoryConfig) (*Catalog, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	return &Catalog{
		root:       root,
		extension:  cfg.Extension,
		categories: categories,
		snap:       &snapshot{byPath: map[string]int{}},
	}, nil
}

// Root returns the absolute scan root.
func (c *Catalog) Root() string {
	return c.root
}

// Refresh rescans the root and swaps in the new snapshot. It never mutates
// the filesystem. Returns the number of cataloged scripts.
func (c *Catalog) Refresh() (int, error) {
	snap, err := c.scan()
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	log.Printf("[Catalog] Scanned %s: %d scripts in %d categories", c.root, len(snap.scripts), len(snap.categories))
	return len(snap.scripts), nil
}

func (c *Catalog) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Scripts returns catalog entries, optionally filtered by category key and a
// case-insensitive search over name and synopsis.
func (c *Catalog) Scripts(category, search string) []models.Script {
	snap := c.current()

	out := make([]models.Script, 0, len(snap.scripts))
	search = strings.ToLower(search)
	for _, s := range snap.scripts {
		if category != "" && category != "all" && s.Category != category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(s.Name), search) &&
			!strings.Contains(strings.ToLower(s.Synopsis), search) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Get returns the catalog entry for a relative path.
func (c *Catalog) Get(path string) (models.Script, error) {
	snap := c.current()
	i, ok := snap.byPath[path]
	if !ok {
		return models.Script{}, ErrScriptNotFound
	}
	return snap.scripts[i], nil
}

// Categories returns all categories present in the catalog with counts.
func (c *Catalog) Categories() []models.Category {
	return c.current().categories
}

// Count returns the number of cataloged scripts.
func (c *Catalog) Count() int {
	return len(c.current().scripts)
}

// scan walks the two-level root/Category/script layout. Files directly under
// the root land in the Uncategorized bucket. A failure on one file logs a
// warning and catalogs the file with minimal metadata; it never aborts the
// scan.
func (c *Catalog) scan() (*snapshot, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, err
	}

	var scripts []models.Script

	for _, entry := range entries {
		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			scripts = append(scripts, c.scanCategory(entry.Name())...)
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), c.extension) {
			scripts = append(scripts, c.buildEntry(entry.Name(), UncategorizedKey))
		}
	}

	sort.Slice(scripts, func(i, j int) bool {
		return scripts[i].Path < scripts[j].Path
	})

	snap := &snapshot{
		scripts: scripts,
		byPath:  make(map[string]int, len(scripts)),
	}
	for i, s := range scripts {
		snap.byPath[s.Path] = i
	}
	snap.categories = c.buildCategories(scripts)

	return snap, nil
}

func (c *Catalog) scanCategory(dir string) []models.Script {
	entries, err := os.ReadDir(filepath.Join(c.root, dir))
	if err != nil {
		log.Printf("[Catalog] Warning: cannot read category directory %s: %v", dir, err)
		return nil
	}

	var scripts []models.Script
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), c.extension) {
			continue
		}
		scripts = append(scripts, c.buildEntry(filepath.Join(dir, entry.Name()), dir))
	}
	return scripts
}

func (c *Catalog) buildEntry(relPath, categoryDir string) models.Script {
	key, label, icon, _ := c.categoryInfo(categoryDir)

	script := models.Script{
		Path:          filepath.ToSlash(relPath),
		Name:          strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath)),
		Filename:      filepath.Base(relPath),
		Category:      key,
		CategoryLabel: label,
		CategoryIcon:  icon,
	}

	fullPath := filepath.Join(c.root, relPath)
	if info, err := os.Stat(fullPath); err == nil {
		script.Size = info.Size()
		script.Modified = info.ModTime()
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		log.Printf("[Catalog] Warning: cannot read %s, cataloging with minimal metadata: %v", relPath, err)
		return script
	}
	script.Metadata = parser.Parse(string(content))

	return script
}

// categoryInfo resolves presentation metadata for a category directory. An
// unmapped directory still yields a usable category from its own name, so new
// categories appear with zero configuration changes.
func (c *Catalog) categoryInfo(dir string) (key, label, icon, description string) {
	if dir == UncategorizedKey {
		return UncategorizedKey, "Uncategorized", "folder", "Scripts without a category directory"
	}
	if info, ok := c.categories[dir]; ok {
		key = info.Key
		if key == "" {
			key = dir
		}
		label = info.Label
		if label == "" {
			label = strings.ReplaceAll(dir, "_", " ")
		}
		icon = info.Icon
		if icon == "" {
			icon = "folder"
		}
		return key, label, icon, info.Description
	}
	return dir, strings.ReplaceAll(dir, "_", " "), "folder", ""
}

func (c *Catalog) buildCategories(scripts []models.Script) []models.Category {
	counts := map[string]int{}
	meta := map[string]models.Category{}

	for _, s := range scripts {
		counts[s.Category]++
		if _, ok := meta[s.Category]; !ok {
			meta[s.Category] = models.Category{
				Key:   s.Category,
				Label: s.CategoryLabel,
				Icon:  s.CategoryIcon,
			}
		}
	}

	categories := make([]models.Category, 0, len(counts))
	for key, cat := range meta {
		cat.Count = counts[key]
		if cfg, ok := c.categoryConfigByKey(key); ok {
			cat.Description = cfg.Description
		}
		categories = append(categories, cat)
	}

	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Label < categories[j].Label
	})
	return categories
}

func (c *Catalog) categoryConfigByKey(key string) (config.CategoryConfig, bool) {
	for dir, cfg := range c.categories {
		k := cfg.Key
		if k == "" {
			k = dir
		}
		if k == key {
			return cfg, true
		}
	}
	return config.CategoryConfig{}, false
}
