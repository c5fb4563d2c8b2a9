package tree

import (
	"path/filepath"

	"github.com/temirov/revscope/internal/types"
)

// partitionSelectionChanges splits one batch into file and folder entries,
// preserving arrival order within each group. The split drives the strict
// file-before-folder apply order shared by both trees.
func partitionSelectionChanges(changes []types.SelectionChange) (fileChanges []types.SelectionChange, folderChanges []types.SelectionChange) {
	for _, selectionChange := range changes {
		if selectionChange.Kind == types.NodeKindFolder {
			folderChanges = append(folderChanges, selectionChange)
			continue
		}
		fileChanges = append(fileChanges, selectionChange)
	}
	return fileChanges, folderChanges
}

// AbsoluteCostSource estimates by absolute path, the key the shared
// process-wide cache uses.
type AbsoluteCostSource interface {
	Estimate(path string) int
}

// RootedCostSource adapts an absolute-path cost source to the relative paths
// used inside trees by joining them onto a fixed root.
type RootedCostSource struct {
	Root   string
	Source AbsoluteCostSource
}

// Estimate returns the cost of the relative path resolved under the root.
func (costSource RootedCostSource) Estimate(path string) int {
	if costSource.Source == nil {
		return 0
	}
	return costSource.Source.Estimate(filepath.Join(costSource.Root, filepath.FromSlash(path)))
}
