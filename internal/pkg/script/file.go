package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/anicoll/homehub/internal/pkg/model"
)

// FileRepository serves scripts, schedules and variable triggers from a
// YAML document. A script may keep its source in a separate file named by
// `file`, resolved relative to the document.
type FileRepository struct {
	path string

	mu        sync.RWMutex
	scripts   map[string]model.Script
	schedules []model.ScheduledScript
	triggers  []model.VariableTrigger
}

type fileScript struct {
	model.Script `yaml:",inline"`
	File         string `yaml:"file"`
}

type fileDocument struct {
	Scripts   []fileScript            `yaml:"scripts"`
	Schedules []model.ScheduledScript `yaml:"schedules"`
	Triggers  []model.VariableTrigger `yaml:"triggers"`
}

func NewFileRepository(path string) (*FileRepository, error) {
	r := &FileRepository{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the document. On error the previous content is kept.
func (r *FileRepository) Reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read scripts: %w", err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse scripts %s: %w", r.path, err)
	}

	scripts := make(map[string]model.Script, len(doc.Scripts))
	for _, fs := range doc.Scripts {
		if fs.ID == "" {
			return fmt.Errorf("parse scripts %s: script without id", r.path)
		}
		if _, ok := scripts[fs.ID]; ok {
			return fmt.Errorf("parse scripts %s: duplicate script %q", r.path, fs.ID)
		}
		if fs.File != "" {
			src, err := os.ReadFile(filepath.Join(filepath.Dir(r.path), fs.File))
			if err != nil {
				return fmt.Errorf("read script %s: %w", fs.ID, err)
			}
			fs.Source = string(src)
		}
		scripts[fs.ID] = fs.Script
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts = scripts
	r.schedules = doc.Schedules
	r.triggers = doc.Triggers
	return nil
}

func (r *FileRepository) GetScript(_ context.Context, id string) (*model.Script, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scripts[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *FileRepository) Schedules(context.Context) ([]model.ScheduledScript, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.ScheduledScript(nil), r.schedules...), nil
}

func (r *FileRepository) Triggers(context.Context) ([]model.VariableTrigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.VariableTrigger(nil), r.triggers...), nil
}
