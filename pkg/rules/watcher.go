package rules

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher keeps a ruleset in sync with its backing file. Reload
// failures keep the previous ruleset in place.
type Watcher struct {
	path      string
	current   atomic.Pointer[Ruleset]
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	timerMu   sync.Mutex
	timer     *time.Timer
	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher loads the ruleset at path and starts watching it for
// changes.
func NewWatcher(path string) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		path:     path,
		watcher:  fsWatcher,
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}
	w.current.Store(initial)

	if path != "" {
		if err := fsWatcher.Add(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Ruleset file not watchable, hot-reload disabled")
		}
	}

	go w.eventLoop()
	return w, nil
}

// Current returns the active ruleset.
func (w *Watcher) Current() *Ruleset {
	return w.current.Load()
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	return w.watcher.Close()
}

// eventLoop processes file system events until closed.
func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Ruleset watcher error")

		case <-w.done:
			return
		}
	}
}

// scheduleReload debounces rapid writes to the ruleset file.
func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.reload()
	})
}

// reload swaps in the new ruleset, keeping the old one on failure.
func (w *Watcher) reload() {
	ruleset, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("Ruleset reload failed, keeping previous ruleset")
		return
	}

	w.current.Store(ruleset)
	log.Info().
		Str("path", w.path).
		Str("ruleset", ruleset.Name).
		Int("rules", len(ruleset.Rules)).
		Msg("Ruleset reloaded")
}
