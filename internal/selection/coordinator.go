// Package selection wires the two checkbox trees together. The coordinator
// serializes every mutation behind one mutex, keeps the project tree's
// locked-path set in step with the change-set tree's selection, and exposes
// the combined checked-path surface consumed by document assembly and the UI.
package selection

import (
	"context"
	"sync"

	"github.com/temirov/revscope/internal/cost"
	"github.com/temirov/revscope/internal/tree"
	"github.com/temirov/revscope/internal/types"
)

// ChangeLister supplies the version-control delta between two refs. An empty
// result is indistinguishable from an underlying error by design.
type ChangeLister interface {
	ListChangedPaths(ctx context.Context, targetRef string, sourceRef string) []types.ChangeEntry
}

// Coordinator owns one change-set tree, one project tree and the shared cost
// estimator. All mutations pass through its mutex, so a new batch never
// starts before the previous batch's refresh notification has been emitted.
type Coordinator struct {
	mutex sync.Mutex

	changeLister  ChangeLister
	changeSetTree *tree.ChangeSetTree
	projectTree   *tree.ProjectTree
	estimator     *cost.Estimator

	listeners []types.RefreshListener
}

// NewCoordinator wires the coordinator to both trees. Tree notifications are
// forwarded to the coordinator's listeners unchanged.
func NewCoordinator(changeLister ChangeLister, changeSetTree *tree.ChangeSetTree, projectTree *tree.ProjectTree, estimator *cost.Estimator) *Coordinator {
	coordinator := &Coordinator{
		changeLister:  changeLister,
		changeSetTree: changeSetTree,
		projectTree:   projectTree,
		estimator:     estimator,
	}
	changeSetTree.AddRefreshListener(coordinator.forward)
	projectTree.AddRefreshListener(coordinator.forward)
	return coordinator
}

// AddRefreshListener registers a listener for every forwarded refresh
// notification. Listeners run synchronously on the mutating goroutine.
func (coordinator *Coordinator) AddRefreshListener(listener types.RefreshListener) {
	coordinator.mutex.Lock()
	coordinator.listeners = append(coordinator.listeners, listener)
	coordinator.mutex.Unlock()
}

func (coordinator *Coordinator) forward(notification types.RefreshNotification) {
	for _, listener := range coordinator.listeners {
		listener(notification)
	}
}

// Estimator returns the shared cost estimator.
func (coordinator *Coordinator) Estimator() *cost.Estimator {
	return coordinator.estimator
}

// Reload queries the change lister for the ref pair, rebuilds the change-set
// tree with every file pre-checked, and pushes the resulting selection into
// the project tree's locked-path set.
func (coordinator *Coordinator) Reload(ctx context.Context, targetRef string, sourceRef string) {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	changeEntries := coordinator.changeLister.ListChangedPaths(ctx, targetRef, sourceRef)
	coordinator.changeSetTree.Rebuild(changeEntries)
	coordinator.syncLockedPaths()
}

// syncLockedPaths recomputes the project tree's locked set from the change
// tree's current selection. A change file the user unchecks becomes
// selectable in the project tree again.
func (coordinator *Coordinator) syncLockedPaths() {
	coordinator.projectTree.UpdateChangeSet(coordinator.changeSetTree.CheckedPaths())
}

// ApplyBatch routes one UI gesture's batch to the tree named by origin and,
// for change-tree batches, refreshes the project tree's locked set afterward.
func (coordinator *Coordinator) ApplyBatch(ctx context.Context, origin types.NotificationOrigin, changes []types.SelectionChange) {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	switch origin {
	case types.OriginChangeSetTree:
		coordinator.changeSetTree.ApplyBatchSelectionChange(changes)
		coordinator.syncLockedPaths()
	case types.OriginProjectTree:
		coordinator.projectTree.ApplyBatchSelectionChange(ctx, changes)
	}
}

// SetAllChecked applies a bulk select or clear to the tree named by origin.
func (coordinator *Coordinator) SetAllChecked(ctx context.Context, origin types.NotificationOrigin, checked bool) error {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	switch origin {
	case types.OriginChangeSetTree:
		coordinator.changeSetTree.SetAllChecked(checked)
		coordinator.syncLockedPaths()
		return nil
	case types.OriginProjectTree:
		return coordinator.projectTree.SetAllChecked(ctx, checked)
	}
	return nil
}

// ChangeTreePaths returns the change tree's checked paths in hierarchy order.
func (coordinator *Coordinator) ChangeTreePaths() []types.PathEntry {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	return coordinator.changeSetTree.CheckedPaths()
}

// ProjectTreePaths returns the project tree's checked paths in hierarchy
// order.
func (coordinator *Coordinator) ProjectTreePaths() []types.PathEntry {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	return coordinator.projectTree.CheckedPaths()
}

// CombinedPaths returns the union of both trees' checked paths, change-set
// paths first, deduplicated, order-stable.
func (coordinator *Coordinator) CombinedPaths() []types.PathEntry {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	changePaths := coordinator.changeSetTree.CheckedPaths()
	seenPaths := make(map[types.PathEntry]struct{}, len(changePaths))
	combinedPaths := make([]types.PathEntry, 0, len(changePaths))
	for _, changePath := range changePaths {
		seenPaths[changePath] = struct{}{}
		combinedPaths = append(combinedPaths, changePath)
	}
	for _, projectPath := range coordinator.projectTree.CheckedPaths() {
		if _, alreadySeen := seenPaths[projectPath]; alreadySeen {
			continue
		}
		combinedPaths = append(combinedPaths, projectPath)
	}
	return combinedPaths
}

// CheckedChangeEntries returns the checked change files with their statuses,
// in hierarchy order.
func (coordinator *Coordinator) CheckedChangeEntries() []types.ChangeEntry {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	checkedPaths := coordinator.changeSetTree.CheckedPaths()
	changeEntries := make([]types.ChangeEntry, 0, len(checkedPaths))
	for _, checkedPath := range checkedPaths {
		changeEntry := types.ChangeEntry{Path: checkedPath, Status: types.StatusUnknown}
		if fileNode, found := coordinator.changeSetTree.Lookup(checkedPath); found {
			changeEntry.Status = fileNode.Status
		}
		changeEntries = append(changeEntries, changeEntry)
	}
	return changeEntries
}

// SelectedCostTotal sums the project tree's selected cost, recomputed on
// demand.
func (coordinator *Coordinator) SelectedCostTotal() int {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	return coordinator.projectTree.SelectedCostTotal()
}

// ChangeTreeNodes returns the change tree's root nodes for rendering.
func (coordinator *Coordinator) ChangeTreeNodes() []*tree.Node {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	return coordinator.changeSetTree.RootNodes()
}

// ChangeTreeCounts reports the pre- and post-filter entry counts of the last
// rebuild, distinguishing "no changes" from "all changes hidden".
func (coordinator *Coordinator) ChangeTreeCounts() (totalEntries int, visibleEntries int) {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	return coordinator.changeSetTree.TotalEntries(), coordinator.changeSetTree.VisibleEntries()
}

// ProjectChildren lists one level of the project tree under the given folder.
func (coordinator *Coordinator) ProjectChildren(folderPath types.PathEntry) []*tree.Node {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	return coordinator.projectTree.Children(folderPath)
}

// ProjectRootPath returns the directory the project tree is rooted at.
func (coordinator *Coordinator) ProjectRootPath() string {
	return coordinator.projectTree.RootPath()
}

// InvalidateCosts evicts the given absolute paths from the shared estimator
// cache and emits one watcher-origin refresh so consumers re-read rollups.
func (coordinator *Coordinator) InvalidateCosts(paths []string) {
	coordinator.mutex.Lock()
	defer coordinator.mutex.Unlock()
	for _, invalidatedPath := range paths {
		coordinator.estimator.Invalidate(invalidatedPath)
	}
	coordinator.forward(types.RefreshNotification{
		Origin:            types.OriginWatcher,
		Mutation:          types.MutationInvalidate,
		CheckedFileCount:  len(coordinator.projectTree.CheckedPaths()) + len(coordinator.changeSetTree.CheckedPaths()),
		SelectedCostTotal: coordinator.projectTree.SelectedCostTotal(),
	})
}
