package tree

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/temirov/revscope/internal/ignore"
	"github.com/temirov/revscope/internal/types"
)

// ProjectTree is the lazily-materialized checkbox tree over the full project
// hierarchy. Children are read from disk on every expansion and never cached;
// the only state the tree holds between calls is the checked-path set, the
// locked-path set and the active ignore rules. Traversal is best-effort: an
// unreadable directory yields an empty listing, never an error.
type ProjectTree struct {
	rootPath   string
	ruleSet    *ignore.RuleSet
	costSource CostSource

	checkedSet map[types.PathEntry]struct{}
	lockedSet  map[types.PathEntry]struct{}

	listeners []types.RefreshListener
}

// NewProjectTree constructs a project tree rooted at the given directory.
func NewProjectTree(rootPath string, ruleSet *ignore.RuleSet, costSource CostSource) *ProjectTree {
	return &ProjectTree{
		rootPath:   rootPath,
		ruleSet:    ruleSet,
		costSource: costSource,
		checkedSet: make(map[types.PathEntry]struct{}),
		lockedSet:  make(map[types.PathEntry]struct{}),
	}
}

// AddRefreshListener registers a listener invoked exactly once per completed
// mutation.
func (projectTree *ProjectTree) AddRefreshListener(listener types.RefreshListener) {
	projectTree.listeners = append(projectTree.listeners, listener)
}

// RootPath returns the absolute directory the tree is rooted at.
func (projectTree *ProjectTree) RootPath() string {
	return projectTree.rootPath
}

// Children lists the entries of the given folder, or of the root when the
// folder path is empty. Entries hidden by the ignore rules are dropped and
// siblings sort folders-before-files then lexicographically. Every returned
// folder carries a freshly derived (selection, cost) pair from a full walk of
// its subtree; nothing is cached across calls.
func (projectTree *ProjectTree) Children(folderPath types.PathEntry) []*Node {
	directoryEntries, readError := os.ReadDir(projectTree.absolutePathOf(folderPath))
	if readError != nil {
		return nil
	}
	childNodes := make([]*Node, 0, len(directoryEntries))
	for _, directoryEntry := range directoryEntries {
		entryPath := joinRelative(folderPath, directoryEntry.Name())
		if projectTree.ruleSet.Matches(entryPath) {
			continue
		}
		if directoryEntry.IsDir() {
			folderNode := newFolderNode(entryPath)
			projectTree.subtreeRollup(entryPath).applyToFolder(folderNode)
			childNodes = append(childNodes, folderNode)
			continue
		}
		childNodes = append(childNodes, projectTree.fileNodeFor(entryPath))
	}
	sortSiblingNodes(childNodes)
	return childNodes
}

// fileNodeFor builds the file node for a relative path from the current
// checked, locked and cost state.
func (projectTree *ProjectTree) fileNodeFor(filePath types.PathEntry) *Node {
	_, isChecked := projectTree.checkedSet[filePath]
	_, isLocked := projectTree.lockedSet[filePath]
	fileNode := &Node{
		Path:    filePath,
		Name:    baseNameOf(filePath),
		Kind:    types.NodeKindFile,
		Checked: isChecked,
		Locked:  isLocked,
	}
	if projectTree.costSource != nil {
		fileNode.Cost = projectTree.costSource.Estimate(filePath)
	}
	return fileNode
}

// subtreeRollup walks the folder's subtree aggregating its eligible files.
// Locked files are skipped entirely so they contribute neither selection nor
// cost. Unreadable directories contribute nothing.
func (projectTree *ProjectTree) subtreeRollup(folderPath types.PathEntry) folderRollup {
	var combined folderRollup
	directoryEntries, readError := os.ReadDir(projectTree.absolutePathOf(folderPath))
	if readError != nil {
		return combined
	}
	for _, directoryEntry := range directoryEntries {
		entryPath := joinRelative(folderPath, directoryEntry.Name())
		if projectTree.ruleSet.Matches(entryPath) {
			continue
		}
		if directoryEntry.IsDir() {
			childRollup := projectTree.subtreeRollup(entryPath)
			combined.eligibleCount += childRollup.eligibleCount
			combined.checkedCount += childRollup.checkedCount
			combined.costTotal += childRollup.costTotal
			continue
		}
		if _, isLocked := projectTree.lockedSet[entryPath]; isLocked {
			continue
		}
		combined.eligibleCount++
		if _, isChecked := projectTree.checkedSet[entryPath]; isChecked {
			combined.checkedCount++
		}
		if projectTree.costSource != nil {
			combined.costTotal += projectTree.costSource.Estimate(entryPath)
		}
	}
	return combined
}

// UpdateChangeSet replaces the locked-path set and fires a refresh signal.
// The checked-path set is left untouched.
func (projectTree *ProjectTree) UpdateChangeSet(lockedPaths []types.PathEntry) {
	replacementSet := make(map[types.PathEntry]struct{}, len(lockedPaths))
	for _, lockedPath := range lockedPaths {
		replacementSet[lockedPath] = struct{}{}
	}
	projectTree.lockedSet = replacementSet
	projectTree.notify(types.MutationChangeSetUpdate)
}

// SetIgnoreRules replaces the active rule set for subsequent listings and
// walks.
func (projectTree *ProjectTree) SetIgnoreRules(ruleSet *ignore.RuleSet) {
	projectTree.ruleSet = ruleSet
}

// SetAllChecked clears the selection set when checked is false, or walks the
// whole tree under the active ignore rules adding every non-locked file when
// checked is true. The walk checks the context between directory reads; when
// canceled mid-walk, paths already added stay selected and the context error
// is returned after the refresh notification.
func (projectTree *ProjectTree) SetAllChecked(ctx context.Context, checked bool) error {
	var walkError error
	if checked {
		walkError = projectTree.checkSubtree(ctx, "")
	} else {
		projectTree.checkedSet = make(map[types.PathEntry]struct{})
	}
	projectTree.notify(types.MutationSetAll)
	return walkError
}

// checkSubtree adds every non-locked file under the folder to the selection
// set, descending depth-first.
func (projectTree *ProjectTree) checkSubtree(ctx context.Context, folderPath types.PathEntry) error {
	if contextError := ctx.Err(); contextError != nil {
		return contextError
	}
	directoryEntries, readError := os.ReadDir(projectTree.absolutePathOf(folderPath))
	if readError != nil {
		return nil
	}
	for _, directoryEntry := range directoryEntries {
		entryPath := joinRelative(folderPath, directoryEntry.Name())
		if projectTree.ruleSet.Matches(entryPath) {
			continue
		}
		if directoryEntry.IsDir() {
			if walkError := projectTree.checkSubtree(ctx, entryPath); walkError != nil {
				return walkError
			}
			continue
		}
		if _, isLocked := projectTree.lockedSet[entryPath]; isLocked {
			continue
		}
		projectTree.checkedSet[entryPath] = struct{}{}
	}
	return nil
}

// ApplyBatchSelectionChange applies one user gesture's worth of checkbox
// transitions under the shared file-before-folder contract. Locked files have
// no user-reachable transition and are skipped. Folder entries cascade only
// when the batch carries no file entries.
func (projectTree *ProjectTree) ApplyBatchSelectionChange(ctx context.Context, changes []types.SelectionChange) {
	fileChanges, folderChanges := partitionSelectionChanges(changes)
	for _, fileChange := range fileChanges {
		if escapesRoot(fileChange.Path) {
			continue
		}
		if _, isLocked := projectTree.lockedSet[fileChange.Path]; isLocked {
			continue
		}
		if fileChange.Checked {
			projectTree.checkedSet[fileChange.Path] = struct{}{}
		} else {
			delete(projectTree.checkedSet, fileChange.Path)
		}
	}
	if len(fileChanges) == 0 {
		for _, folderChange := range folderChanges {
			projectTree.cascadeFolder(ctx, folderChange.Path, folderChange.Checked)
		}
	}
	projectTree.notify(types.MutationBatch)
}

// cascadeFolder sets every non-locked descendant file of the folder to the
// given value, removing unchecked paths from the selection set.
func (projectTree *ProjectTree) cascadeFolder(ctx context.Context, folderPath types.PathEntry, checked bool) {
	if ctx.Err() != nil {
		return
	}
	directoryEntries, readError := os.ReadDir(projectTree.absolutePathOf(folderPath))
	if readError != nil {
		return
	}
	for _, directoryEntry := range directoryEntries {
		entryPath := joinRelative(folderPath, directoryEntry.Name())
		if projectTree.ruleSet.Matches(entryPath) {
			continue
		}
		if directoryEntry.IsDir() {
			projectTree.cascadeFolder(ctx, entryPath, checked)
			continue
		}
		if _, isLocked := projectTree.lockedSet[entryPath]; isLocked {
			continue
		}
		if checked {
			projectTree.checkedSet[entryPath] = struct{}{}
		} else {
			delete(projectTree.checkedSet, entryPath)
		}
	}
}

// CheckedPaths returns the selection set in hierarchy order.
func (projectTree *ProjectTree) CheckedPaths() []types.PathEntry {
	checkedPaths := make([]types.PathEntry, 0, len(projectTree.checkedSet))
	for checkedPath := range projectTree.checkedSet {
		checkedPaths = append(checkedPaths, checkedPath)
	}
	sort.Slice(checkedPaths, func(firstIndex, secondIndex int) bool {
		return HierarchyLess(checkedPaths[firstIndex], checkedPaths[secondIndex])
	})
	return checkedPaths
}

// SelectedCostTotal sums the cost estimate over every currently checked path.
// The total is recomputed on demand and never cached.
func (projectTree *ProjectTree) SelectedCostTotal() int {
	if projectTree.costSource == nil {
		return 0
	}
	costTotal := 0
	for checkedPath := range projectTree.checkedSet {
		costTotal += projectTree.costSource.Estimate(checkedPath)
	}
	return costTotal
}

// CheckedCount returns the size of the selection set.
func (projectTree *ProjectTree) CheckedCount() int {
	return len(projectTree.checkedSet)
}

// absolutePathOf resolves a relative tree path under the root. Paths that
// escape the root resolve to an empty string, which directory reads treat as
// unreadable.
func (projectTree *ProjectTree) absolutePathOf(relativePath types.PathEntry) string {
	if relativePath == "" {
		return projectTree.rootPath
	}
	if escapesRoot(relativePath) {
		return ""
	}
	return filepath.Join(projectTree.rootPath, filepath.FromSlash(relativePath))
}

// escapesRoot reports whether a relative tree path climbs above the root
// after cleaning.
func escapesRoot(relativePath types.PathEntry) bool {
	cleanedPath := path.Clean(relativePath)
	return cleanedPath == ".." || strings.HasPrefix(cleanedPath, "../")
}

// joinRelative joins slash-separated relative path components.
func joinRelative(folderPath types.PathEntry, entryName string) types.PathEntry {
	if folderPath == "" {
		return entryName
	}
	return path.Join(folderPath, entryName)
}

func (projectTree *ProjectTree) notify(mutation types.MutationKind) {
	notification := types.RefreshNotification{
		Origin:            types.OriginProjectTree,
		Mutation:          mutation,
		CheckedFileCount:  len(projectTree.checkedSet),
		SelectedCostTotal: projectTree.SelectedCostTotal(),
	}
	for _, listener := range projectTree.listeners {
		listener(notification)
	}
}
