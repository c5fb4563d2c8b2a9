package tree

import (
	"github.com/temirov/revscope/internal/ignore"
	"github.com/temirov/revscope/internal/types"
)

// ChangeSetTree is the checkbox tree over the version-control delta. It is
// rebuilt in full whenever the ref pair changes; every visible file defaults
// to Checked on rebuild.
type ChangeSetTree struct {
	ruleSet    *ignore.RuleSet
	costSource CostSource

	lastEntries       []types.ChangeEntry
	rootNodes         []*Node
	nodeIndex         map[types.PathEntry]*Node
	checkedSet        map[types.PathEntry]struct{}
	totalEntryCount   int
	visibleEntryCount int

	listeners []types.RefreshListener
}

// NewChangeSetTree constructs an empty change-set tree. The cost source may
// be nil, in which case every file carries zero cost.
func NewChangeSetTree(ruleSet *ignore.RuleSet, costSource CostSource) *ChangeSetTree {
	return &ChangeSetTree{
		ruleSet:    ruleSet,
		costSource: costSource,
		nodeIndex:  make(map[types.PathEntry]*Node),
		checkedSet: make(map[types.PathEntry]struct{}),
	}
}

// AddRefreshListener registers a listener invoked exactly once per completed
// mutation.
func (changeSetTree *ChangeSetTree) AddRefreshListener(listener types.RefreshListener) {
	changeSetTree.listeners = append(changeSetTree.listeners, listener)
}

// Rebuild discards prior state and derives a fresh hierarchy from the given
// change entries. Entries hidden by the ignore rules are dropped; every
// surviving file starts Checked. Root-level files sort after root-level
// folders like any other sibling group.
func (changeSetTree *ChangeSetTree) Rebuild(entries []types.ChangeEntry) {
	changeSetTree.lastEntries = append([]types.ChangeEntry{}, entries...)
	changeSetTree.rootNodes = nil
	changeSetTree.nodeIndex = make(map[types.PathEntry]*Node)
	changeSetTree.checkedSet = make(map[types.PathEntry]struct{})
	changeSetTree.totalEntryCount = len(entries)
	changeSetTree.visibleEntryCount = 0

	for _, changeEntry := range entries {
		if changeSetTree.ruleSet.Matches(changeEntry.Path) {
			continue
		}
		if _, alreadyPresent := changeSetTree.nodeIndex[changeEntry.Path]; alreadyPresent {
			continue
		}
		changeSetTree.visibleEntryCount++
		fileNode := &Node{
			Path:    changeEntry.Path,
			Name:    baseNameOf(changeEntry.Path),
			Kind:    types.NodeKindFile,
			Status:  changeEntry.Status,
			Checked: true,
		}
		if changeSetTree.costSource != nil {
			fileNode.Cost = changeSetTree.costSource.Estimate(changeEntry.Path)
		}
		changeSetTree.nodeIndex[changeEntry.Path] = fileNode
		changeSetTree.checkedSet[changeEntry.Path] = struct{}{}
		changeSetTree.attachToParent(fileNode)
	}

	for _, rootNode := range changeSetTree.rootNodes {
		if rootNode.Kind == types.NodeKindFolder {
			sortTreeNodes(rootNode)
		}
	}
	sortSiblingNodes(changeSetTree.rootNodes)
	changeSetTree.recomputeDerivedState()
	changeSetTree.notify(types.MutationRebuild)
}

// attachToParent links a file node under its folder chain, creating and
// merging folder nodes by path so the same folder never appears twice.
func (changeSetTree *ChangeSetTree) attachToParent(fileNode *Node) {
	parentPath := parentPathOf(fileNode.Path)
	if parentPath == "" {
		changeSetTree.rootNodes = append(changeSetTree.rootNodes, fileNode)
		return
	}
	folderNode := changeSetTree.ensureFolder(parentPath)
	folderNode.Children = append(folderNode.Children, fileNode)
}

// ensureFolder returns the folder node for the given path, creating it and
// its ancestors on first use.
func (changeSetTree *ChangeSetTree) ensureFolder(folderPath types.PathEntry) *Node {
	if existingNode, found := changeSetTree.nodeIndex[folderPath]; found {
		return existingNode
	}
	folderNode := newFolderNode(folderPath)
	changeSetTree.nodeIndex[folderPath] = folderNode
	parentPath := parentPathOf(folderPath)
	if parentPath == "" {
		changeSetTree.rootNodes = append(changeSetTree.rootNodes, folderNode)
		return folderNode
	}
	parentNode := changeSetTree.ensureFolder(parentPath)
	parentNode.Children = append(parentNode.Children, folderNode)
	return folderNode
}

// SetAllChecked sets every file's selection to the given value without
// touching the hierarchy shape.
func (changeSetTree *ChangeSetTree) SetAllChecked(checked bool) {
	changeSetTree.checkedSet = make(map[types.PathEntry]struct{})
	for nodePath, indexedNode := range changeSetTree.nodeIndex {
		if indexedNode.Kind != types.NodeKindFile {
			continue
		}
		indexedNode.Checked = checked
		if checked {
			changeSetTree.checkedSet[nodePath] = struct{}{}
		}
	}
	changeSetTree.recomputeDerivedState()
	changeSetTree.notify(types.MutationSetAll)
}

// ApplyBatchSelectionChange applies one user gesture's worth of checkbox
// transitions. File entries apply first; folder entries cascade to their
// descendants only when the batch carries no file entries, because a folder
// entry arriving alongside file entries is a derived redraw of the folder's
// displayed state, not a gesture on the folder itself.
func (changeSetTree *ChangeSetTree) ApplyBatchSelectionChange(changes []types.SelectionChange) {
	fileChanges, folderChanges := partitionSelectionChanges(changes)
	for _, fileChange := range fileChanges {
		fileNode, found := changeSetTree.nodeIndex[fileChange.Path]
		if !found || fileNode.Kind != types.NodeKindFile {
			continue
		}
		changeSetTree.setFileChecked(fileNode, fileChange.Checked)
	}
	if len(fileChanges) == 0 {
		for _, folderChange := range folderChanges {
			folderNode, found := changeSetTree.nodeIndex[folderChange.Path]
			if !found || folderNode.Kind != types.NodeKindFolder {
				continue
			}
			changeSetTree.cascadeFolder(folderNode, folderChange.Checked)
		}
	}
	changeSetTree.recomputeDerivedState()
	changeSetTree.notify(types.MutationBatch)
}

// cascadeFolder sets every descendant file of the folder to the given value.
func (changeSetTree *ChangeSetTree) cascadeFolder(folderNode *Node, checked bool) {
	for _, childNode := range folderNode.Children {
		if childNode.Kind == types.NodeKindFolder {
			changeSetTree.cascadeFolder(childNode, checked)
			continue
		}
		changeSetTree.setFileChecked(childNode, checked)
	}
}

func (changeSetTree *ChangeSetTree) setFileChecked(fileNode *Node, checked bool) {
	fileNode.Checked = checked
	if checked {
		changeSetTree.checkedSet[fileNode.Path] = struct{}{}
	} else {
		delete(changeSetTree.checkedSet, fileNode.Path)
	}
}

// CheckedPaths returns every checked file in hierarchy order: at each level
// folders sort before files and both groups sort lexicographically.
func (changeSetTree *ChangeSetTree) CheckedPaths() []types.PathEntry {
	checkedPaths := make([]types.PathEntry, 0, len(changeSetTree.checkedSet))
	var collect func(node *Node)
	collect = func(node *Node) {
		if node.Kind == types.NodeKindFile {
			if node.Checked {
				checkedPaths = append(checkedPaths, node.Path)
			}
			return
		}
		for _, childNode := range node.Children {
			collect(childNode)
		}
	}
	for _, rootNode := range changeSetTree.rootNodes {
		collect(rootNode)
	}
	return checkedPaths
}

// RootNodes returns the root-level nodes for rendering, folders before files.
func (changeSetTree *ChangeSetTree) RootNodes() []*Node {
	return append([]*Node{}, changeSetTree.rootNodes...)
}

// Lookup returns the node stored for the given path.
func (changeSetTree *ChangeSetTree) Lookup(nodePath types.PathEntry) (*Node, bool) {
	foundNode, found := changeSetTree.nodeIndex[nodePath]
	return foundNode, found
}

// TotalEntries reports the pre-filter entry count of the last rebuild.
// Comparing it against VisibleEntries distinguishes "no changes" from
// "changes exist but all hidden by filtering".
func (changeSetTree *ChangeSetTree) TotalEntries() int {
	return changeSetTree.totalEntryCount
}

// VisibleEntries reports the post-filter entry count of the last rebuild.
func (changeSetTree *ChangeSetTree) VisibleEntries() int {
	return changeSetTree.visibleEntryCount
}

// SetIgnoreRules replaces the active rule set and rebuilds the hierarchy from
// the last entries so the filter takes effect immediately.
func (changeSetTree *ChangeSetTree) SetIgnoreRules(ruleSet *ignore.RuleSet) {
	changeSetTree.ruleSet = ruleSet
	changeSetTree.Rebuild(changeSetTree.lastEntries)
}

// SelectedCostTotal sums the cost over every checked file.
func (changeSetTree *ChangeSetTree) SelectedCostTotal() int {
	costTotal := 0
	for checkedPath := range changeSetTree.checkedSet {
		if fileNode, found := changeSetTree.nodeIndex[checkedPath]; found {
			costTotal += fileNode.Cost
		}
	}
	return costTotal
}

func (changeSetTree *ChangeSetTree) recomputeDerivedState() {
	for _, rootNode := range changeSetTree.rootNodes {
		if rootNode.Kind == types.NodeKindFolder {
			recomputeFolderStates(rootNode)
		}
	}
}

func (changeSetTree *ChangeSetTree) notify(mutation types.MutationKind) {
	notification := types.RefreshNotification{
		Origin:            types.OriginChangeSetTree,
		Mutation:          mutation,
		CheckedFileCount:  len(changeSetTree.checkedSet),
		SelectedCostTotal: changeSetTree.SelectedCostTotal(),
	}
	for _, listener := range changeSetTree.listeners {
		listener(notification)
	}
}
