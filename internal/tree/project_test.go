package tree_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/temirov/revscope/internal/cost"
	"github.com/temirov/revscope/internal/ignore"
	"github.com/temirov/revscope/internal/tree"
	"github.com/temirov/revscope/internal/types"
)

// writeProjectFixture materializes relative path to content pairs under a
// temporary root and returns the root.
func writeProjectFixture(t *testing.T, files map[string]string) string {
	t.Helper()
	rootDirectory := t.TempDir()
	for relativePath, content := range files {
		absolutePath := filepath.Join(rootDirectory, filepath.FromSlash(relativePath))
		if makeError := os.MkdirAll(filepath.Dir(absolutePath), 0o755); makeError != nil {
			t.Fatalf("create fixture directory: %v", makeError)
		}
		if writeError := os.WriteFile(absolutePath, []byte(content), 0o644); writeError != nil {
			t.Fatalf("write fixture file: %v", writeError)
		}
	}
	return rootDirectory
}

func newFixtureTree(t *testing.T, files map[string]string, patterns []string) *tree.ProjectTree {
	t.Helper()
	rootDirectory := writeProjectFixture(t, files)
	costSource := tree.RootedCostSource{Root: rootDirectory, Source: cost.NewEstimator(nil)}
	return tree.NewProjectTree(rootDirectory, ignore.Compile(patterns), costSource)
}

func nodePaths(nodes []*tree.Node) []string {
	paths := make([]string, 0, len(nodes))
	for _, node := range nodes {
		paths = append(paths, node.Path)
	}
	return paths
}

func TestChildrenAppliesIgnoreRules(t *testing.T) {
	projectTree := newFixtureTree(t, map[string]string{
		"a.ts":              "content",
		"yarn.lock":         "lock",
		"node_modules/x.js": "module",
	}, []string{"*.lock", "node_modules"})

	rootChildren := projectTree.Children("")
	if !reflect.DeepEqual(nodePaths(rootChildren), []string{"a.ts"}) {
		t.Fatalf("expected only a.ts to survive filtering, got %v", nodePaths(rootChildren))
	}
}

func TestChildrenSortsFoldersBeforeFiles(t *testing.T) {
	projectTree := newFixtureTree(t, map[string]string{
		"zebra.go":    "z",
		"alpha.go":    "a",
		"pkg/file.go": "p",
		"cmd/main.go": "m",
	}, nil)

	rootChildren := projectTree.Children("")
	expectedOrder := []string{"cmd", "pkg", "alpha.go", "zebra.go"}
	if !reflect.DeepEqual(nodePaths(rootChildren), expectedOrder) {
		t.Fatalf("expected order %v, got %v", expectedOrder, nodePaths(rootChildren))
	}
}

func TestChildrenOfMissingDirectoryIsEmpty(t *testing.T) {
	projectTree := newFixtureTree(t, map[string]string{"a.go": "a"}, nil)
	if childNodes := projectTree.Children("no/such/dir"); len(childNodes) != 0 {
		t.Fatalf("expected empty listing for unreadable directory, got %v", nodePaths(childNodes))
	}
}

func TestLockedFileExcludedFromRollup(t *testing.T) {
	projectTree := newFixtureTree(t, map[string]string{
		"src/a.ts": "aaaaaaaa",
		"src/b.ts": "bbbb",
	}, nil)

	projectTree.UpdateChangeSet([]types.PathEntry{"src/a.ts"})
	if setAllError := projectTree.SetAllChecked(context.Background(), true); setAllError != nil {
		t.Fatalf("select all failed: %v", setAllError)
	}

	srcChildren := projectTree.Children("src")
	var lockedNode, freeNode *tree.Node
	for _, childNode := range srcChildren {
		switch childNode.Path {
		case "src/a.ts":
			lockedNode = childNode
		case "src/b.ts":
			freeNode = childNode
		}
	}
	if lockedNode == nil || freeNode == nil {
		t.Fatalf("expected both files listed, got %v", nodePaths(srcChildren))
	}
	if !lockedNode.Locked {
		t.Fatalf("expected src/a.ts to be locked")
	}
	if lockedNode.Checked {
		t.Fatalf("expected locked file to have no selection")
	}
	if freeNode.Cost != 1 {
		t.Fatalf("expected free file cost 1, got %d", freeNode.Cost)
	}

	rootChildren := projectTree.Children("")
	srcFolder := rootChildren[0]
	if srcFolder.Path != "src" || srcFolder.Kind != types.NodeKindFolder {
		t.Fatalf("expected src folder first, got %v", nodePaths(rootChildren))
	}
	if srcFolder.Cost != freeNode.Cost {
		t.Fatalf("expected locked cost excluded from rollup: want %d, got %d", freeNode.Cost, srcFolder.Cost)
	}
	if !srcFolder.Checked {
		t.Fatalf("expected folder Checked when its only eligible file is checked")
	}
}

func TestBatchSkipsLockedFiles(t *testing.T) {
	projectTree := newFixtureTree(t, map[string]string{"src/a.ts": "a", "src/b.ts": "b"}, nil)
	projectTree.UpdateChangeSet([]types.PathEntry{"src/a.ts"})

	projectTree.ApplyBatchSelectionChange(context.Background(), []types.SelectionChange{
		{Path: "src/a.ts", Kind: types.NodeKindFile, Checked: true},
		{Path: "src/b.ts", Kind: types.NodeKindFile, Checked: true},
	})
	if checkedPaths := projectTree.CheckedPaths(); !reflect.DeepEqual(checkedPaths, []types.PathEntry{"src/b.ts"}) {
		t.Fatalf("expected locked file to stay unselected, got %v", checkedPaths)
	}
}

func TestBatchFolderCascadeAndDerivedSuppression(t *testing.T) {
	projectTree := newFixtureTree(t, map[string]string{
		"src/a.ts": "a",
		"src/b.ts": "b",
		"other.md": "o",
	}, nil)

	projectTree.ApplyBatchSelectionChange(context.Background(), []types.SelectionChange{
		{Path: "src", Kind: types.NodeKindFolder, Checked: true},
	})
	if checkedPaths := projectTree.CheckedPaths(); !reflect.DeepEqual(checkedPaths, []types.PathEntry{"src/a.ts", "src/b.ts"}) {
		t.Fatalf("expected folder cascade to select src files, got %v", checkedPaths)
	}

	projectTree.ApplyBatchSelectionChange(context.Background(), []types.SelectionChange{
		{Path: "src", Kind: types.NodeKindFolder, Checked: false},
		{Path: "src/a.ts", Kind: types.NodeKindFile, Checked: false},
	})
	if checkedPaths := projectTree.CheckedPaths(); !reflect.DeepEqual(checkedPaths, []types.PathEntry{"src/b.ts"}) {
		t.Fatalf("expected derived folder entry not to cascade, got %v", checkedPaths)
	}
}

func TestSelectAllThenClear(t *testing.T) {
	fixtureFiles := make(map[string]string)
	for fileIndex := 0; fileIndex < 50; fileIndex++ {
		fixtureFiles[filepath.ToSlash(filepath.Join("pkg", string(rune('a'+fileIndex%26)), "file"+string(rune('a'+fileIndex%26))+".go"))] = "content"
	}
	fixtureFiles["skip.lock"] = "hidden"
	projectTree := newFixtureTree(t, fixtureFiles, []string{"*.lock"})

	if setAllError := projectTree.SetAllChecked(context.Background(), true); setAllError != nil {
		t.Fatalf("select all failed: %v", setAllError)
	}
	for _, checkedPath := range projectTree.CheckedPaths() {
		if checkedPath == "skip.lock" {
			t.Fatalf("expected ignored file to stay unselected")
		}
	}
	if projectTree.CheckedCount() == 0 {
		t.Fatalf("expected select all to check files")
	}
	if projectTree.SelectedCostTotal() == 0 {
		t.Fatalf("expected non-zero cost total after select all")
	}

	if clearError := projectTree.SetAllChecked(context.Background(), false); clearError != nil {
		t.Fatalf("clear failed: %v", clearError)
	}
	if checkedPaths := projectTree.CheckedPaths(); len(checkedPaths) != 0 {
		t.Fatalf("expected empty selection after clear, got %v", checkedPaths)
	}
	if projectTree.SelectedCostTotal() != 0 {
		t.Fatalf("expected zero cost total after clear, got %d", projectTree.SelectedCostTotal())
	}
}

func TestSelectAllCanceledKeepsPartialSelection(t *testing.T) {
	projectTree := newFixtureTree(t, map[string]string{"a.go": "a", "b.go": "b"}, nil)

	canceledContext, cancel := context.WithCancel(context.Background())
	cancel()
	if setAllError := projectTree.SetAllChecked(canceledContext, true); setAllError == nil {
		t.Fatalf("expected canceled walk to report the context error")
	}

	projectTree.ApplyBatchSelectionChange(context.Background(), []types.SelectionChange{
		{Path: "a.go", Kind: types.NodeKindFile, Checked: true},
	})
	if setAllError := projectTree.SetAllChecked(canceledContext, true); setAllError == nil {
		t.Fatalf("expected canceled walk to report the context error")
	}
	if checkedPaths := projectTree.CheckedPaths(); !reflect.DeepEqual(checkedPaths, []types.PathEntry{"a.go"}) {
		t.Fatalf("expected already-selected paths to survive cancellation, got %v", checkedPaths)
	}
}

func TestPathsEscapingRootAreRejected(t *testing.T) {
	rootDirectory := writeProjectFixture(t, map[string]string{"src/a.ts": "a"})
	outsidePath := filepath.Join(filepath.Dir(rootDirectory), "secret.txt")
	if writeError := os.WriteFile(outsidePath, []byte("secret"), 0o644); writeError != nil {
		t.Fatalf("write file outside root: %v", writeError)
	}
	costSource := tree.RootedCostSource{Root: rootDirectory, Source: cost.NewEstimator(nil)}
	projectTree := tree.NewProjectTree(rootDirectory, ignore.Compile(nil), costSource)

	if childNodes := projectTree.Children(".."); len(childNodes) != 0 {
		t.Fatalf("expected empty listing above the root, got %v", nodePaths(childNodes))
	}
	if childNodes := projectTree.Children("src/../.."); len(childNodes) != 0 {
		t.Fatalf("expected empty listing for a climbing path, got %v", nodePaths(childNodes))
	}

	projectTree.ApplyBatchSelectionChange(context.Background(), []types.SelectionChange{
		{Path: "../secret.txt", Kind: types.NodeKindFile, Checked: true},
		{Path: "src/a.ts", Kind: types.NodeKindFile, Checked: true},
	})
	if checkedPaths := projectTree.CheckedPaths(); !reflect.DeepEqual(checkedPaths, []types.PathEntry{"src/a.ts"}) {
		t.Fatalf("expected path above the root to stay unselected, got %v", checkedPaths)
	}

	projectTree.ApplyBatchSelectionChange(context.Background(), []types.SelectionChange{
		{Path: "..", Kind: types.NodeKindFolder, Checked: true},
	})
	if checkedPaths := projectTree.CheckedPaths(); !reflect.DeepEqual(checkedPaths, []types.PathEntry{"src/a.ts"}) {
		t.Fatalf("expected cascade above the root to select nothing, got %v", checkedPaths)
	}
}

func TestUpdateChangeSetDoesNotAlterSelection(t *testing.T) {
	projectTree := newFixtureTree(t, map[string]string{"src/a.ts": "a", "src/b.ts": "b"}, nil)
	projectTree.ApplyBatchSelectionChange(context.Background(), []types.SelectionChange{
		{Path: "src/b.ts", Kind: types.NodeKindFile, Checked: true},
	})

	projectTree.UpdateChangeSet([]types.PathEntry{"src/a.ts"})
	if checkedPaths := projectTree.CheckedPaths(); !reflect.DeepEqual(checkedPaths, []types.PathEntry{"src/b.ts"}) {
		t.Fatalf("expected selection untouched by change-set update, got %v", checkedPaths)
	}
}

func TestProjectTreeNotificationsPerMutation(t *testing.T) {
	projectTree := newFixtureTree(t, map[string]string{"a.go": "a"}, nil)
	var mutations []types.MutationKind
	projectTree.AddRefreshListener(func(notification types.RefreshNotification) {
		if notification.Origin != types.OriginProjectTree {
			t.Fatalf("expected project origin, got %s", notification.Origin)
		}
		mutations = append(mutations, notification.Mutation)
	})

	projectTree.UpdateChangeSet(nil)
	_ = projectTree.SetAllChecked(context.Background(), true)
	projectTree.ApplyBatchSelectionChange(context.Background(), []types.SelectionChange{
		{Path: "a.go", Kind: types.NodeKindFile, Checked: false},
	})

	expectedMutations := []types.MutationKind{types.MutationChangeSetUpdate, types.MutationSetAll, types.MutationBatch}
	if !reflect.DeepEqual(mutations, expectedMutations) {
		t.Fatalf("expected mutations %v, got %v", expectedMutations, mutations)
	}
}
