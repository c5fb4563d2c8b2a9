// Package watch invalidates memoized cost estimates when files change on
// disk. It is strictly opt-in; without it the estimator cache keeps its
// process-lifetime behavior.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounceInterval is the settle window applied to watcher events.
const DefaultDebounceInterval = 250 * time.Millisecond

// CostInvalidator evicts estimates and announces the eviction downstream.
type CostInvalidator interface {
	InvalidateCosts(paths []string)
}

// Service watches a project root's directory tree and forwards settled
// change events as cost invalidations, one notification per settled burst.
type Service struct {
	rootPath         string
	invalidator      CostInvalidator
	logger           *zap.Logger
	debounceInterval time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}

	pendingMutex sync.Mutex
	pendingPaths map[string]struct{}
	settleTimer  *time.Timer
}

// NewService constructs a watch service over the given root.
func NewService(rootPath string, invalidator CostInvalidator, logger *zap.Logger) *Service {
	return &Service{
		rootPath:         rootPath,
		invalidator:      invalidator,
		logger:           logger,
		debounceInterval: DefaultDebounceInterval,
		pendingPaths:     make(map[string]struct{}),
	}
}

// SetDebounceInterval overrides the settle window, used by tests to keep
// runs fast.
func (service *Service) SetDebounceInterval(interval time.Duration) {
	service.debounceInterval = interval
}

// Start registers the root's directory tree with fsnotify and begins
// forwarding events. New subdirectories are added on create events.
func (service *Service) Start() error {
	watcher, watcherError := fsnotify.NewWatcher()
	if watcherError != nil {
		return watcherError
	}
	service.watcher = watcher
	service.done = make(chan struct{})
	service.addWatchTree(service.rootPath)
	go service.run()
	return nil
}

// Stop ends event forwarding and closes the watcher.
func (service *Service) Stop() {
	if service.watcher == nil {
		return
	}
	close(service.done)
	_ = service.watcher.Close()
}

func (service *Service) run() {
	for {
		select {
		case <-service.done:
			return
		case event, open := <-service.watcher.Events:
			if !open {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				service.maybeWatchNewDirectory(event.Name)
			}
			service.recordPending(event.Name)
		case watchError, open := <-service.watcher.Errors:
			if !open {
				return
			}
			service.logger.Debug("watcher error: " + watchError.Error())
		}
	}
}

// recordPending accumulates the changed path and (re)arms the settle timer,
// so one burst of events yields one invalidation pass.
func (service *Service) recordPending(changedPath string) {
	service.pendingMutex.Lock()
	defer service.pendingMutex.Unlock()
	service.pendingPaths[changedPath] = struct{}{}
	if service.settleTimer != nil {
		service.settleTimer.Stop()
	}
	service.settleTimer = time.AfterFunc(service.debounceInterval, service.flushPending)
}

func (service *Service) flushPending() {
	service.pendingMutex.Lock()
	settledPaths := make([]string, 0, len(service.pendingPaths))
	for pendingPath := range service.pendingPaths {
		settledPaths = append(settledPaths, pendingPath)
	}
	service.pendingPaths = make(map[string]struct{})
	service.pendingMutex.Unlock()

	select {
	case <-service.done:
		return
	default:
	}
	if len(settledPaths) == 0 {
		return
	}
	service.invalidator.InvalidateCosts(settledPaths)
}

func (service *Service) maybeWatchNewDirectory(createdPath string) {
	pathInfo, statError := os.Stat(createdPath)
	if statError != nil || !pathInfo.IsDir() {
		return
	}
	service.addWatchTree(createdPath)
}

func (service *Service) addWatchTree(rootPath string) {
	_ = filepath.WalkDir(rootPath, func(walkedPath string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil || !directoryEntry.IsDir() {
			return nil
		}
		if addError := service.watcher.Add(walkedPath); addError != nil {
			service.logger.Debug("watcher add failed for " + walkedPath + ": " + addError.Error())
		}
		return nil
	})
}
