// Package vcs reads the version-control side of the review context through
// go-git: the changed-path delta between two refs, blob contents at a ref,
// and per-path diff text. Every read fails softly to an empty result so the
// trees stay navigable when history is missing or partial.
package vcs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/temirov/revscope/internal/types"
)

const openRepositoryErrorFormat = "open repository at %s: %w"

// Client wraps an opened go-git repository.
type Client struct {
	repository     *git.Repository
	repositoryPath string
}

// Open opens an existing repository at the given path.
func Open(repositoryPath string) (*Client, error) {
	repository, openError := git.PlainOpen(repositoryPath)
	if openError != nil {
		return nil, fmt.Errorf(openRepositoryErrorFormat, repositoryPath, openError)
	}
	return &Client{repository: repository, repositoryPath: repositoryPath}, nil
}

// RepositoryPath returns the path the client was opened at.
func (client *Client) RepositoryPath() string {
	return client.repositoryPath
}

// CurrentBranch returns the short name of the branch HEAD points at, or an
// empty string when HEAD is detached or unborn.
func (client *Client) CurrentBranch() string {
	headReference, headError := client.repository.Head()
	if headError != nil {
		return ""
	}
	return headReference.Name().Short()
}

// resolveRef resolves a ref name to a commit, trying branch, then tag, then
// raw commit hash.
func (client *Client) resolveRef(refName string) (*object.Commit, error) {
	if branchReference, referenceError := client.repository.Reference(plumbing.NewBranchReferenceName(refName), true); referenceError == nil {
		return client.repository.CommitObject(branchReference.Hash())
	}
	if tagReference, referenceError := client.repository.Reference(plumbing.NewTagReferenceName(refName), true); referenceError == nil {
		return client.repository.CommitObject(tagReference.Hash())
	}
	commit, commitError := client.repository.CommitObject(plumbing.NewHash(refName))
	if commitError != nil {
		return nil, fmt.Errorf("resolve ref %q: not a branch, tag, or commit hash", refName)
	}
	return commit, nil
}

// changesBetween diffs the source commit tree against the target commit tree
// with rename detection enabled.
func (client *Client) changesBetween(ctx context.Context, targetRef string, sourceRef string) (object.Changes, error) {
	targetCommit, targetError := client.resolveRef(targetRef)
	if targetError != nil {
		return nil, targetError
	}
	sourceCommit, sourceError := client.resolveRef(sourceRef)
	if sourceError != nil {
		return nil, sourceError
	}
	targetTree, targetTreeError := targetCommit.Tree()
	if targetTreeError != nil {
		return nil, targetTreeError
	}
	sourceTree, sourceTreeError := sourceCommit.Tree()
	if sourceTreeError != nil {
		return nil, sourceTreeError
	}
	return object.DiffTreeWithOptions(ctx, sourceTree, targetTree, object.DefaultDiffTreeOptions)
}

// ListChangedPaths returns the paths that differ between the target and
// source refs, each tagged with a status. The result is sorted by path and
// empty on any underlying error.
func (client *Client) ListChangedPaths(ctx context.Context, targetRef string, sourceRef string) []types.ChangeEntry {
	changes, changesError := client.changesBetween(ctx, targetRef, sourceRef)
	if changesError != nil {
		return nil
	}
	changeEntries := make([]types.ChangeEntry, 0, len(changes))
	for _, change := range changes {
		changeEntry, classified := classifyChange(change)
		if !classified {
			continue
		}
		changeEntries = append(changeEntries, changeEntry)
	}
	sort.Slice(changeEntries, func(firstIndex, secondIndex int) bool {
		return changeEntries[firstIndex].Path < changeEntries[secondIndex].Path
	})
	return changeEntries
}

// classifyChange maps one tree-diff change onto a change entry. A modify
// action whose from and to names differ is a rename; tree diffs cannot
// observe merge conflicts, so Unmerged never originates here.
func classifyChange(change *object.Change) (types.ChangeEntry, bool) {
	action, actionError := change.Action()
	if actionError != nil {
		return types.ChangeEntry{}, false
	}
	switch action {
	case merkletrie.Insert:
		return types.ChangeEntry{Path: change.To.Name, Status: types.StatusAdded}, true
	case merkletrie.Delete:
		return types.ChangeEntry{Path: change.From.Name, Status: types.StatusDeleted}, true
	case merkletrie.Modify:
		if change.From.Name != change.To.Name {
			return types.ChangeEntry{Path: change.To.Name, Status: types.StatusRenamed}, true
		}
		return types.ChangeEntry{Path: change.To.Name, Status: types.StatusModified}, true
	}
	return types.ChangeEntry{}, false
}

// ReadBlob returns the file contents at the given ref, or an empty string
// when the ref or path is missing.
func (client *Client) ReadBlob(_ context.Context, refName string, filePath string) string {
	commit, resolveError := client.resolveRef(refName)
	if resolveError != nil {
		return ""
	}
	commitTree, treeError := commit.Tree()
	if treeError != nil {
		return ""
	}
	treeFile, fileError := commitTree.File(filePath)
	if fileError != nil {
		return ""
	}
	contents, contentsError := treeFile.Contents()
	if contentsError != nil {
		return ""
	}
	return contents
}

// DiffText returns the unified diff for one path between the refs, or an
// empty string when unavailable.
func (client *Client) DiffText(ctx context.Context, targetRef string, sourceRef string, filePath string) string {
	changes, changesError := client.changesBetween(ctx, targetRef, sourceRef)
	if changesError != nil {
		return ""
	}
	for _, change := range changes {
		if change.To.Name != filePath && change.From.Name != filePath {
			continue
		}
		patch, patchError := change.PatchContext(ctx)
		if patchError != nil {
			return ""
		}
		return patch.String()
	}
	return ""
}

// ParseStatusCode maps a git status letter onto a change status. Rename and
// copy codes carry a similarity score suffix, so only the first letter is
// significant.
func ParseStatusCode(statusCode string) types.ChangeStatus {
	trimmedCode := strings.TrimSpace(statusCode)
	if trimmedCode == "" {
		return types.StatusUnknown
	}
	switch trimmedCode[0] {
	case 'A':
		return types.StatusAdded
	case 'M':
		return types.StatusModified
	case 'D':
		return types.StatusDeleted
	case 'R':
		return types.StatusRenamed
	case 'C':
		return types.StatusAdded
	case 'U':
		return types.StatusUnmerged
	default:
		return types.StatusUnknown
	}
}
