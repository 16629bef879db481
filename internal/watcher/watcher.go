// Package watcher monitors ticket directories and triggers a callback when
// ticket files change.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called with the ticket directory and the changed files
// after changes settle
type ChangeCallback func(ticketDir string, changedFiles []string)

// TicketWatcher monitors ticket directories for YAML file changes. Rapid
// edits are debounced into one callback per directory.
type TicketWatcher struct {
	watcher  *fsnotify.Watcher
	callback ChangeCallback
	debounce time.Duration

	dirs map[string]struct{}

	pendingByDir map[string]map[string]struct{}
	timer        *time.Timer
	mu           sync.Mutex

	cancel context.CancelFunc
}

// New creates a watcher that reports ticket file changes to callback
func New(callback ChangeCallback) (*TicketWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &TicketWatcher{
		watcher:      watcher,
		callback:     callback,
		debounce:     500 * time.Millisecond,
		dirs:         make(map[string]struct{}),
		pendingByDir: make(map[string]map[string]struct{}),
	}, nil
}

// AddDir starts watching a ticket directory
func (tw *TicketWatcher) AddDir(dir string) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if _, exists := tw.dirs[dir]; exists {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return err
	}
	if err := tw.watcher.Add(dir); err != nil {
		return err
	}

	tw.dirs[dir] = struct{}{}
	return nil
}

// RemoveDir stops watching a ticket directory
func (tw *TicketWatcher) RemoveDir(dir string) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if _, exists := tw.dirs[dir]; !exists {
		return
	}
	tw.watcher.Remove(dir)
	delete(tw.dirs, dir)
	delete(tw.pendingByDir, dir)
}

// Start begins watching for file changes
func (tw *TicketWatcher) Start(ctx context.Context) {
	ctx, tw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-tw.watcher.Events:
				if !ok {
					return
				}
				tw.handleEvent(event)
			case _, ok := <-tw.watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// Stop stops watching for file changes
func (tw *TicketWatcher) Stop() {
	if tw.cancel != nil {
		tw.cancel()
	}
	tw.watcher.Close()
}

func (tw *TicketWatcher) handleEvent(event fsnotify.Event) {
	ext := filepath.Ext(event.Name)
	if ext != ".yaml" && ext != ".yml" {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	dir := tw.findDir(event.Name)
	if dir == "" {
		return
	}

	if tw.pendingByDir[dir] == nil {
		tw.pendingByDir[dir] = make(map[string]struct{})
	}
	tw.pendingByDir[dir][event.Name] = struct{}{}

	if tw.timer != nil {
		tw.timer.Stop()
	}
	tw.timer = time.AfterFunc(tw.debounce, tw.flush)
}

func (tw *TicketWatcher) findDir(filePath string) string {
	for dir := range tw.dirs {
		if strings.HasPrefix(filePath, dir) {
			return dir
		}
	}
	return ""
}

func (tw *TicketWatcher) flush() {
	tw.mu.Lock()
	pending := tw.pendingByDir
	tw.pendingByDir = make(map[string]map[string]struct{})
	tw.mu.Unlock()

	if tw.callback == nil {
		return
	}

	for dir, fileMap := range pending {
		files := make([]string, 0, len(fileMap))
		for f := range fileMap {
			files = append(files, f)
		}
		if len(files) > 0 {
			tw.callback(dir, files)
		}
	}
}

// SetDebounce sets the debounce duration for batching file changes
func (tw *TicketWatcher) SetDebounce(d time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.debounce = d
}
