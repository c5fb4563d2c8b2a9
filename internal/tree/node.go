// Package tree implements the two checkbox tree models of the selection
// engine: the change-set tree over the version-control delta and the lazily
// expanded project tree. Folder checkbox state and cost are always derived
// from eligible descendant files; locked files never participate in either.
package tree

import (
	"sort"
	"strings"

	"github.com/temirov/revscope/internal/types"
)

// CostSource yields the display cost for a relative path. A nil source is
// treated as zero cost everywhere.
type CostSource interface {
	Estimate(path string) int
}

// Node is one entry of a checkbox tree. The Kind tag distinguishes the two
// variants: files carry selection, lock and cost state, folders derive
// selection and cost from their eligible descendant files.
type Node struct {
	Path     types.PathEntry
	Name     string
	Kind     types.NodeKind
	Status   types.ChangeStatus
	Checked  bool
	Locked   bool
	Cost     int
	Children []*Node

	display types.DisplayState
}

// DisplayState returns the rendered checkbox value of the node. Files map
// their boolean selection directly; folders may render as partial when some
// but not all eligible descendants are checked. The partial value exists for
// rendering only and never enters the stored selection.
func (node *Node) DisplayState() types.DisplayState {
	if node.Kind == types.NodeKindFile {
		if node.Checked {
			return types.DisplayChecked
		}
		return types.DisplayUnchecked
	}
	if node.display == "" {
		return types.DisplayUnchecked
	}
	return node.display
}

// newFolderNode constructs an empty folder node for the given relative path.
func newFolderNode(folderPath types.PathEntry) *Node {
	return &Node{
		Path:    folderPath,
		Name:    baseNameOf(folderPath),
		Kind:    types.NodeKindFolder,
		display: types.DisplayUnchecked,
	}
}

// baseNameOf returns the final segment of a relative slash path.
func baseNameOf(pathValue string) string {
	if pathValue == "" {
		return ""
	}
	if separatorIndex := strings.LastIndex(pathValue, "/"); separatorIndex >= 0 {
		return pathValue[separatorIndex+1:]
	}
	return pathValue
}

// parentPathOf returns the folder portion of a relative slash path, empty for
// root-level entries.
func parentPathOf(pathValue string) string {
	if separatorIndex := strings.LastIndex(pathValue, "/"); separatorIndex >= 0 {
		return pathValue[:separatorIndex]
	}
	return ""
}

// sortSiblingNodes orders children folders-before-files, each group
// lexicographically by name.
func sortSiblingNodes(children []*Node) {
	sort.SliceStable(children, func(firstIndex, secondIndex int) bool {
		firstIsFolder := children[firstIndex].Kind == types.NodeKindFolder
		secondIsFolder := children[secondIndex].Kind == types.NodeKindFolder
		if firstIsFolder != secondIsFolder {
			return firstIsFolder
		}
		return children[firstIndex].Name < children[secondIndex].Name
	})
}

// sortTreeNodes sorts every sibling group under node recursively.
func sortTreeNodes(node *Node) {
	sortSiblingNodes(node.Children)
	for _, child := range node.Children {
		if child.Kind == types.NodeKindFolder {
			sortTreeNodes(child)
		}
	}
}

// folderRollup aggregates the eligible descendant files of a folder.
type folderRollup struct {
	eligibleCount int
	checkedCount  int
	costTotal     int
}

// applyToFolder writes the derived selection, display state and cost onto a
// folder node. A folder is checked only when it has at least one eligible
// descendant file and every one of them is checked.
func (rollup folderRollup) applyToFolder(folderNode *Node) {
	folderNode.Cost = rollup.costTotal
	folderNode.Checked = rollup.eligibleCount > 0 && rollup.checkedCount == rollup.eligibleCount
	switch {
	case folderNode.Checked:
		folderNode.display = types.DisplayChecked
	case rollup.checkedCount > 0:
		folderNode.display = types.DisplayPartial
	default:
		folderNode.display = types.DisplayUnchecked
	}
}

// recomputeFolderStates walks the subtree bottom-up, refreshing every
// folder's derived selection and cost, and returns the subtree's rollup.
func recomputeFolderStates(node *Node) folderRollup {
	if node.Kind == types.NodeKindFile {
		if node.Locked {
			return folderRollup{}
		}
		rollup := folderRollup{eligibleCount: 1, costTotal: node.Cost}
		if node.Checked {
			rollup.checkedCount = 1
		}
		return rollup
	}
	var combined folderRollup
	for _, child := range node.Children {
		childRollup := recomputeFolderStates(child)
		combined.eligibleCount += childRollup.eligibleCount
		combined.checkedCount += childRollup.checkedCount
		combined.costTotal += childRollup.costTotal
	}
	combined.applyToFolder(node)
	return combined
}

// HierarchyLess orders relative paths the way a sorted tree walk visits them:
// at every level folders come before files and siblings compare
// lexicographically.
func HierarchyLess(firstPath, secondPath string) bool {
	firstSegments := strings.Split(firstPath, "/")
	secondSegments := strings.Split(secondPath, "/")
	commonLength := len(firstSegments)
	if len(secondSegments) < commonLength {
		commonLength = len(secondSegments)
	}
	for segmentIndex := 0; segmentIndex < commonLength; segmentIndex++ {
		if firstSegments[segmentIndex] == secondSegments[segmentIndex] {
			continue
		}
		firstDescends := segmentIndex < len(firstSegments)-1
		secondDescends := segmentIndex < len(secondSegments)-1
		if firstDescends != secondDescends {
			return firstDescends
		}
		return firstSegments[segmentIndex] < secondSegments[segmentIndex]
	}
	return len(firstSegments) > len(secondSegments)
}
