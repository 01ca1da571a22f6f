package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/wibisana/lakon/pkg/plan"
)

// templateSchema validates template files before they are accepted.
const templateSchema = `{
	"type": "object",
	"required": ["category", "keywords", "steps"],
	"properties": {
		"category": {"type": "string", "minLength": 1},
		"keywords": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "minLength": 1}
		},
		"steps": {
			"type": "array",
			"minItems": 1,
			"maxItems": 20,
			"items": {
				"type": "object",
				"required": ["description", "actions"],
				"properties": {
					"description": {"type": "string", "minLength": 1, "maxLength": 5000},
					"actions": {
						"type": "array",
						"minItems": 1,
						"items": {
							"type": "object",
							"required": ["description", "type"],
							"properties": {
								"description": {"type": "string", "minLength": 1, "maxLength": 5000},
								"type": {"type": "string", "minLength": 1},
								"priority": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

// TemplateSet holds the strategy templates loaded from a directory of
// JSON files. Files are schema-validated on load; invalid files are
// skipped with a warning, never fatal.
type TemplateSet struct {
	mu        sync.RWMutex
	templates []plan.StrategyTemplate
	dir       string
	schema    *gojsonschema.Schema
	logger    zerolog.Logger
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	timer     *time.Timer
}

// NewTemplateSet creates an empty set.
func NewTemplateSet(logger zerolog.Logger) (*TemplateSet, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(templateSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile template schema: %w", err)
	}
	return &TemplateSet{schema: schema, logger: logger}, nil
}

// LoadDir reads every *.json template in dir, replacing the current set.
func (ts *TemplateSet) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read template directory: %w", err)
	}

	var loaded []plan.StrategyTemplate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		tpl, err := ts.loadFile(path)
		if err != nil {
			ts.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping invalid template")
			continue
		}
		loaded = append(loaded, tpl)
	}

	ts.mu.Lock()
	ts.templates = loaded
	ts.dir = dir
	ts.mu.Unlock()

	ts.logger.Info().Int("count", len(loaded)).Str("dir", dir).Msg("Templates loaded")
	return nil
}

func (ts *TemplateSet) loadFile(path string) (plan.StrategyTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return plan.StrategyTemplate{}, fmt.Errorf("failed to read template: %w", err)
	}

	result, err := ts.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return plan.StrategyTemplate{}, fmt.Errorf("failed to validate template: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return plan.StrategyTemplate{}, fmt.Errorf("template schema violations: %s", strings.Join(msgs, "; "))
	}

	var tpl plan.StrategyTemplate
	if err := json.Unmarshal(data, &tpl); err != nil {
		return plan.StrategyTemplate{}, fmt.Errorf("failed to parse template: %w", err)
	}
	return tpl, nil
}

// Match returns the first template whose keywords match the objective,
// or nil when none matches.
func (ts *TemplateSet) Match(objective string) *plan.StrategyTemplate {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	for i := range ts.templates {
		if ts.templates[i].Matches(objective) {
			tpl := ts.templates[i]
			return &tpl
		}
	}
	return nil
}

// Count returns the number of loaded templates.
func (ts *TemplateSet) Count() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.templates)
}

// Watch reloads the set when template files change. Reloads are
// debounced; watch errors are logged and non-fatal.
func (ts *TemplateSet) Watch() error {
	ts.mu.RLock()
	dir := ts.dir
	ts.mu.RUnlock()
	if dir == "" {
		return fmt.Errorf("no template directory loaded")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch template directory: %w", err)
	}

	ts.watcher = watcher
	ts.stopCh = make(chan struct{})
	go ts.run(dir)
	return nil
}

// Stop stops the template watcher.
func (ts *TemplateSet) Stop() error {
	if ts.watcher == nil {
		return nil
	}
	close(ts.stopCh)
	return ts.watcher.Close()
}

func (ts *TemplateSet) run(dir string) {
	for {
		select {
		case event, ok := <-ts.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(strings.ToLower(event.Name), ".json") {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				ts.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Template change detected")
				ts.scheduleReload(dir)
			}

		case err, ok := <-ts.watcher.Errors:
			if !ok {
				return
			}
			ts.logger.Error().Err(err).Msg("Template watcher error")

		case <-ts.stopCh:
			return
		}
	}
}

func (ts *TemplateSet) scheduleReload(dir string) {
	if ts.timer != nil {
		ts.timer.Stop()
	}
	ts.timer = time.AfterFunc(500*time.Millisecond, func() {
		if err := ts.LoadDir(dir); err != nil {
			ts.logger.Warn().Err(err).Msg("Template reload failed")
		}
	})
}
