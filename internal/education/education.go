package education

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Hocaabinn/sampah-keren-sub001/internal/model"
)

// Catalog is the read-only education-hub content, loaded from a bundled
// YAML file. Watch reloads it when the file changes on disk.
type Catalog struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	entries []model.EducationalContent
}

type catalogFile struct {
	Articles []model.EducationalContent `yaml:"articles"`
}

func Load(path string, logger *zap.Logger) (*Catalog, error) {
	catalog := &Catalog{path: path, logger: logger}
	if err := catalog.reload(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (c *Catalog) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries = file.Articles
	c.mu.Unlock()
	return nil
}

// Watch reloads the catalog on file changes until ctx is cancelled. A
// failed reload keeps the previous content.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(c.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := c.reload(); err != nil {
					c.logger.Warn("education catalog reload failed", zap.Error(err))
					continue
				}
				c.logger.Info("education catalog reloaded", zap.String("path", c.path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("education catalog watch error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (c *Catalog) Entries() []model.EducationalContent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.EducationalContent(nil), c.entries...)
}

func (c *Catalog) Get(id string) (model.EducationalContent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, entry := range c.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return model.EducationalContent{}, false
}

// Filter narrows the catalog by category, difficulty and a free-text
// query over title and author. Empty arguments match everything.
func (c *Catalog) Filter(category, difficulty, query string) []model.EducationalContent {
	query = strings.ToLower(strings.TrimSpace(query))
	matched := make([]model.EducationalContent, 0)
	for _, entry := range c.Entries() {
		if category != "" && !strings.EqualFold(entry.Category, category) {
			continue
		}
		if difficulty != "" && !strings.EqualFold(entry.Difficulty, difficulty) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(entry.Title), query) &&
			!strings.Contains(strings.ToLower(entry.Author), query) {
			continue
		}
		matched = append(matched, entry)
	}
	return matched
}

// Bookmarks is the per-session bookmark set. It lives in process memory
// only and is cleared when the session ends.
type Bookmarks struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

func NewBookmarks() *Bookmarks {
	return &Bookmarks{sets: make(map[string]map[string]struct{})}
}

func (b *Bookmarks) Add(userID, contentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sets[userID]
	if !ok {
		set = make(map[string]struct{})
		b.sets[userID] = set
	}
	set[contentID] = struct{}{}
}

func (b *Bookmarks) Remove(userID, contentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sets[userID], contentID)
}

func (b *Bookmarks) List(userID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.sets[userID]))
	for id := range b.sets[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *Bookmarks) Clear(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sets, userID)
}
