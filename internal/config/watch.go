package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long Watch waits after the last file event before
// reloading. Editors emit several events per save.
const watchDebounce = 200 * time.Millisecond

// SourceDiff lists source IDs by how they changed between two configs.
type SourceDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether no source changed.
func (d SourceDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffSources compares two source lists by ID. IDs keep the order they
// have in next (Added, Changed) or prev (Removed).
func DiffSources(prev, next []Source) SourceDiff {
	old := make(map[string]Source, len(prev))
	for _, s := range prev {
		old[s.ID] = s
	}
	seen := make(map[string]bool, len(next))

	var d SourceDiff
	for _, s := range next {
		seen[s.ID] = true
		was, ok := old[s.ID]
		switch {
		case !ok:
			d.Added = append(d.Added, s.ID)
		case !reflect.DeepEqual(was, s):
			d.Changed = append(d.Changed, s.ID)
		}
	}
	for _, s := range prev {
		if !seen[s.ID] {
			d.Removed = append(d.Removed, s.ID)
		}
	}
	return d
}

// Watch monitors path and calls onChange with the reloaded Config and the
// source changes against the previously loaded one. Bursts of events are
// collapsed into one reload. It runs until ctx is cancelled.
//
// The parent directory is watched so that saves which replace the file
// are seen. A reload that fails (e.g., invalid YAML) is logged and the
// previous config stays current; onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config, SourceDiff)) error {
	path = filepath.Clean(path)
	current, err := Load(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}

			diff := DiffSources(current.Dashboard.Sources, cfg.Dashboard.Sources)
			slog.Info("config: reloaded", "path", path,
				"sources", len(cfg.Dashboard.Sources),
				"added", diff.Added, "removed", diff.Removed, "changed", diff.Changed)
			current = cfg
			onChange(cfg, diff)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
