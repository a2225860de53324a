package registry

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/harun/toolbelt/pkg/schema"
)

// SchemaWatcher watches a drop directory for wire-format schema files and
// registers them automatically. Changes are debounced before a reload.
type SchemaWatcher struct {
	dir       string
	registry  *Registry
	validator *schema.Validator
	watcher   *fsnotify.Watcher
	logger    zerolog.Logger
	debounce  time.Duration
	timer     *time.Timer
	stopCh    chan struct{}
}

// NewSchemaWatcher loads every *.json schema already in dir, then watches
// for additions and edits.
func NewSchemaWatcher(dir string, reg *Registry, v *schema.Validator, logger zerolog.Logger) (*SchemaWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sw := &SchemaWatcher{
		dir:       dir,
		registry:  reg,
		validator: v,
		watcher:   watcher,
		logger:    logger.With().Str("component", "schemawatcher").Logger(),
		debounce:  500 * time.Millisecond,
		stopCh:    make(chan struct{}),
	}

	sw.loadDir()
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	go sw.run()

	return sw, nil
}

// Stop stops the watcher
func (sw *SchemaWatcher) Stop() error {
	close(sw.stopCh)
	return sw.watcher.Close()
}

func (sw *SchemaWatcher) run() {
	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			sw.scheduleReload()
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn().Err(err).Msg("Watcher error")
		case <-sw.stopCh:
			return
		}
	}
}

func (sw *SchemaWatcher) scheduleReload() {
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.timer = time.AfterFunc(sw.debounce, sw.loadDir)
}

// loadDir validates and registers every schema file in the directory.
// Invalid files are logged and skipped.
func (sw *SchemaWatcher) loadDir() {
	entries, err := os.ReadDir(sw.dir)
	if err != nil {
		sw.logger.Warn().Str("dir", sw.dir).Err(err).Msg("Cannot read schema directory")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(sw.dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			sw.logger.Warn().Str("file", path).Err(err).Msg("Cannot read schema file")
			continue
		}
		parsed, err := sw.validator.Validate(raw)
		if err != nil {
			sw.logger.Warn().Str("file", path).Err(err).Msg("Schema file rejected")
			continue
		}
		result, err := sw.registry.Register(parsed)
		if err != nil {
			sw.logger.Warn().Str("file", path).Err(err).Msg("Schema registration failed")
			continue
		}
		if !result.AlreadyRegistered {
			sw.logger.Info().Str("tool", parsed.Name).Str("file", path).Msg("Schema loaded from directory")
		}
	}
}
