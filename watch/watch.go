// Package watch implements the file-watch aggregator from §4.5: a dynamic
// feature that installs host-native filesystem watchers per registration
// and delivers batched, debounced workspace/didChangeWatchedFiles
// notifications.
//
// The watcher backend is fsnotify (as used for filesystem watching by
// SeleniaProject-Orizon's vfs package and jinterlante1206-AleutianLocal's
// trace file watcher) rather than a hand-rolled polling loop.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ondrik-labs/lsprotocol/protocol"
	"github.com/ondrik-labs/lsprotocol/registry"
)

const debounceWindow = 250 * time.Millisecond

// Services is the subset of dispatcher capability the feature needs to
// deliver watch notifications.
type Services interface {
	SendNotification(ctx context.Context, method string, params any) error
}

type watcherRegistration struct {
	id       string
	watchers []protocol.FileSystemWatcher
	dirs     []string
}

// Feature is a registry.Dynamic implementation covering
// workspace/didChangeWatchedFiles dynamic registration.
type Feature struct {
	registry.Feature
	services Services
	logger   *log.Logger
	fsw      *fsnotify.Watcher

	mu            sync.Mutex
	registrations map[string]*watcherRegistration
	dirRefs       map[string]int
	queue         []protocol.FileEvent
	timer         *time.Timer
	closed        bool
}

// New creates a Feature and starts its fsnotify event loop.
func New(services Services, logger *log.Logger) (*Feature, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	f := &Feature{
		Feature:       registry.NewBaseFeature("workspace/didChangeWatchedFiles"),
		services:      services,
		logger:        logger,
		fsw:           w,
		registrations: make(map[string]*watcherRegistration),
		dirRefs:       make(map[string]int),
	}
	go f.loop()
	return f, nil
}

// Messages lists the single method this feature dynamically registers for.
func (f *Feature) Messages() []string {
	return []string{protocol.MethodWorkspaceDidChangeWatchedFiles}
}

func (f *Feature) loop() {
	for {
		select {
		case ev, ok := <-f.fsw.Events:
			if !ok {
				return
			}
			f.handleFSEvent(ev)
		case err, ok := <-f.fsw.Errors:
			if !ok {
				return
			}
			f.logger.Printf("watch: filesystem watcher error: %v", err)
		}
	}
}

func (f *Feature) handleFSEvent(ev fsnotify.Event) {
	changeType, kind, ok := classify(ev.Op)
	if !ok {
		return
	}

	uri := protocol.DocumentURI("file://" + filepath.ToSlash(ev.Name))

	f.mu.Lock()
	if !f.matchesAnyRegistrationLocked(ev.Name, kind) {
		f.mu.Unlock()
		return
	}
	f.queue = append(f.queue, protocol.FileEvent{URI: uri, Type: changeType})
	if f.timer == nil {
		f.timer = time.AfterFunc(debounceWindow, f.flush)
	}
	f.mu.Unlock()
}

func classify(op fsnotify.Op) (protocol.FileChangeType, protocol.WatchKind, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return protocol.FileChangeCreated, protocol.WatchCreate, true
	case op&fsnotify.Write != 0:
		return protocol.FileChangeChanged, protocol.WatchChange, true
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return protocol.FileChangeDeleted, protocol.WatchDelete, true
	default:
		return 0, 0, false
	}
}

func (f *Feature) matchesAnyRegistrationLocked(name string, kind protocol.WatchKind) bool {
	for _, reg := range f.registrations {
		for _, w := range reg.watchers {
			if w.EffectiveKind()&kind == 0 {
				continue
			}
			if ok, _ := path.Match(w.GlobPattern, filepath.ToSlash(name)); ok {
				return true
			}
		}
	}
	return false
}

func (f *Feature) flush() {
	f.mu.Lock()
	batch := f.queue
	f.queue = nil
	f.timer = nil
	f.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := f.services.SendNotification(context.Background(), protocol.MethodWorkspaceDidChangeWatchedFiles, protocol.DidChangeWatchedFilesParams{
		Changes: batch,
	}); err != nil {
		f.logger.Printf("watch: failed to send didChangeWatchedFiles: %v", err)
	}
}

// Register installs watchers for every entry in options and tracks them
// under id, so Unregister can release exactly the directories this
// registration introduced.
func (f *Feature) Register(id string, options json.RawMessage) error {
	var opts protocol.DidChangeWatchedFilesRegistrationOptions
	if err := json.Unmarshal(options, &opts); err != nil {
		return fmt.Errorf("invalid didChangeWatchedFiles registration options: %w", err)
	}

	reg := &watcherRegistration{id: id, watchers: opts.Watchers}
	seen := make(map[string]bool)
	for _, w := range opts.Watchers {
		dir := baseDir(w.GlobPattern)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		reg.dirs = append(reg.dirs, dir)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, dir := range reg.dirs {
		if f.dirRefs[dir] == 0 {
			if err := f.fsw.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
		}
		f.dirRefs[dir]++
	}
	f.registrations[id] = reg
	return nil
}

// Unregister removes the registration's watchers, releasing any directory
// no other registration still references.
func (f *Feature) Unregister(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.registrations[id]
	if !ok {
		return fmt.Errorf("unknown watch registration id %q", id)
	}
	delete(f.registrations, id)

	for _, dir := range reg.dirs {
		f.dirRefs[dir]--
		if f.dirRefs[dir] <= 0 {
			delete(f.dirRefs, dir)
			if err := f.fsw.Remove(dir); err != nil {
				f.logger.Printf("watch: failed to stop watching %s: %v", dir, err)
			}
		}
	}
	return nil
}

// Dispose closes the underlying filesystem watcher.
func (f *Feature) Dispose() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
	}
	f.mu.Unlock()
	_ = f.fsw.Close()
}

// baseDir returns the longest directory prefix of pattern that contains no
// glob metacharacter, the directory fsnotify is asked to watch. Matching of
// the remaining pattern segments happens in matchesAnyRegistrationLocked;
// fsnotify itself watches one directory level, not a recursive subtree.
func baseDir(pattern string) string {
	parts := strings.Split(filepath.ToSlash(pattern), "/")
	var base []string
	for _, p := range parts {
		if strings.ContainsAny(p, "*?[") {
			break
		}
		base = append(base, p)
	}
	if len(base) == 0 {
		return "."
	}
	if len(base) == len(parts) {
		// pattern has no metacharacters: watch its parent directory.
		base = base[:len(base)-1]
		if len(base) == 0 {
			return "."
		}
	}
	dir := strings.Join(base, "/")
	if dir == "" {
		return "/"
	}
	return dir
}
