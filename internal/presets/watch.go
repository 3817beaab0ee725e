package presets

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/Hausmaster333/MirageGen/internal/bus"
)

// Watch evicts cached presets whose files change in the preset directory
// and publishes EventPresetsReloaded for each. It blocks until ctx is done.
func (l *Library) Watch(ctx context.Context) error {
	if l.cfg.Dir == "" {
		return errors.New("presets: no directory to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(l.cfg.Dir); err != nil {
		return err
	}
	l.logger.Info().Str("dir", l.cfg.Dir).Msg("Watching preset directory")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			l.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn().Err(err).Msg("Preset watcher error")
		}
	}
}

func (l *Library) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	name, ok := presetName(filepath.Base(event.Name))
	if !ok {
		return
	}

	l.Invalidate(name)
	l.logger.Debug().Str("preset", name).Str("op", event.Op.String()).Msg("Preset changed")
	l.events.Publish(bus.Event{
		Type: bus.EventPresetsReloaded,
		Data: map[string]any{"preset": name, "op": event.Op.String()},
	})
}
