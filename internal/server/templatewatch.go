package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/alexjbarnes/fittrack/internal/store"
)

const (
	// templateDebounceInterval batches rapid writes, so an editor's
	// save-via-rename dance upserts once instead of per syscall.
	templateDebounceInterval = 500 * time.Millisecond

	// templateSettleDelay is how long a file must be quiet before it is
	// loaded.
	templateSettleDelay = 300 * time.Millisecond
)

// templateFile is the on-disk YAML shape. The name falls back to the
// file's base name so a bare food list is a valid template.
type templateFile struct {
	Name    string            `yaml:"name"`
	Protein []models.FoodItem `yaml:"protein"`
	Carbs   []models.FoodItem `yaml:"carbs"`
	Fat     []models.FoodItem `yaml:"fat"`
}

// TemplateWatcher hot-loads menu templates from a directory of YAML
// files, upserting them by name so admins can manage templates with a
// text editor instead of the API.
type TemplateWatcher struct {
	dir    string
	store  *store.Store
	logger *slog.Logger
}

// NewTemplateWatcher creates a watcher for dir.
func NewTemplateWatcher(dir string, st *store.Store, logger *slog.Logger) *TemplateWatcher {
	return &TemplateWatcher{dir: dir, store: st, logger: logger}
}

// Watch loads every template already in the directory, then blocks
// watching for changes until the context is cancelled.
func (t *TemplateWatcher) Watch(ctx context.Context) error {
	if err := t.loadAll(ctx); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(t.dir); err != nil {
		return fmt.Errorf("watching template dir: %w", err)
	}

	t.logger.Info("template watcher started", slog.String("dir", t.dir))

	pending := make(map[string]time.Time)

	ticker := time.NewTicker(templateDebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if !isTemplateFile(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				pending[event.Name] = time.Now()
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// Deleting a file does not delete the template: the
				// API owns removal, the directory only feeds upserts.
				delete(pending, event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			t.logger.Warn("template watcher error", slog.Any("error", err))

		case <-ticker.C:
			now := time.Now()

			for path, stamp := range pending {
				if now.Sub(stamp) < templateSettleDelay {
					continue
				}

				delete(pending, path)
				t.loadFile(ctx, path)
			}
		}
	}
}

func isTemplateFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))

	return ext == ".yaml" || ext == ".yml"
}

func (t *TemplateWatcher) loadAll(ctx context.Context) error {
	files, err := os.ReadDir(t.dir)
	if err != nil {
		return fmt.Errorf("reading template dir: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !isTemplateFile(file.Name()) {
			continue
		}

		t.loadFile(ctx, filepath.Join(t.dir, file.Name()))
	}

	return nil
}

// loadFile parses and upserts one template file. Parse failures are
// logged, never fatal: a broken file must not take the watcher down.
func (t *TemplateWatcher) loadFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		t.logger.Warn("reading template file",
			slog.String("path", path),
			slog.Any("error", err),
		)

		return
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.logger.Warn("parsing template file",
			slog.String("path", path),
			slog.Any("error", err),
		)

		return
	}

	name := file.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	tpl, err := t.store.UpsertMenuTemplateByName(ctx, models.MenuTemplate{
		Name:    name,
		Protein: file.Protein,
		Carbs:   file.Carbs,
		Fat:     file.Fat,
	})
	if err != nil {
		t.logger.Warn("upserting template",
			slog.String("name", name),
			slog.Any("error", err),
		)

		return
	}

	t.logger.Info("template loaded",
		slog.String("name", tpl.Name),
		slog.Int64("id", tpl.ID),
	)
}
