package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// PolicyWatcher reloads a policy file into a Registry whenever it changes.
// A file that fails to parse is logged and the previous policies stay active.
type PolicyWatcher struct {
	path     string
	registry *Registry
	logger   *observability.Logger

	// reloaded is signalled after each reload attempt; used by tests
	reloaded chan error
}

// NewPolicyWatcher creates a watcher for path
func NewPolicyWatcher(path string, registry *Registry, logger *observability.Logger) *PolicyWatcher {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &PolicyWatcher{
		path:     filepath.Clean(path),
		registry: registry,
		logger:   logger.WithField("policy_file", path),
	}
}

// Load reads the file once and replaces the registry overrides
func (w *PolicyWatcher) Load() error {
	policies, err := LoadPolicyFile(w.path)
	if err != nil {
		return err
	}
	if err := w.registry.Replace(policies); err != nil {
		return err
	}
	w.logger.WithField("policies", len(policies)).Info("Policies loaded")
	return nil
}

// Run watches the file until ctx is cancelled. The parent directory is
// watched so that editors which replace the file by rename are noticed.
func (w *PolicyWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	defer observability.RecoverPanic(w.logger, "policy watcher")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			err := w.Load()
			if err != nil {
				w.logger.WithError(err).Error("Policy reload failed, keeping previous policies")
			}
			w.notify(err)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Policy watcher error")
		}
	}
}

func (w *PolicyWatcher) notify(err error) {
	if w.reloaded == nil {
		return
	}
	select {
	case w.reloaded <- err:
	default:
	}
}
