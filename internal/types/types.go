// Package types defines every cross-package data structure used by the revscope engine.
package types

// PathEntry is a filesystem-relative path, forward-slash separated with no
// leading slash. Path entries are the atomic unit of selection.
type PathEntry = string

// ChangeStatus classifies a change-set entry.
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "added"
	StatusModified ChangeStatus = "modified"
	StatusDeleted  ChangeStatus = "deleted"
	StatusRenamed  ChangeStatus = "renamed"
	StatusUnmerged ChangeStatus = "unmerged"
	StatusUnknown  ChangeStatus = "unknown"
)

// ChangeEntry is one path that differs between the target and source refs.
type ChangeEntry struct {
	Path   PathEntry    `json:"path"`
	Status ChangeStatus `json:"status"`
}

// NodeKind tags the two tree node variants.
type NodeKind string

const (
	NodeKindFile   NodeKind = "file"
	NodeKindFolder NodeKind = "folder"
)

// DisplayState is the rendered checkbox value of a node. Folders whose
// eligible descendants are partly checked display as partial; the stored
// selection stays boolean.
type DisplayState string

const (
	DisplayChecked   DisplayState = "checked"
	DisplayUnchecked DisplayState = "unchecked"
	DisplayPartial   DisplayState = "partial"
)

// SelectionChange is one checkbox transition inside a batch delivered by the
// host UI. Kind distinguishes direct file toggles from folder-level entries,
// which may be either user gestures or derived redraws.
type SelectionChange struct {
	Path    PathEntry `json:"path"`
	Kind    NodeKind  `json:"kind"`
	Checked bool      `json:"checked"`
}

// MutationKind names the tree operation that completed.
type MutationKind string

const (
	MutationRebuild         MutationKind = "rebuild"
	MutationSetAll          MutationKind = "set_all"
	MutationBatch           MutationKind = "batch"
	MutationChangeSetUpdate MutationKind = "change_set_update"
	MutationInvalidate      MutationKind = "invalidate"
)

// NotificationOrigin identifies which tree or service produced a refresh.
type NotificationOrigin string

const (
	OriginChangeSetTree NotificationOrigin = "changeset"
	OriginProjectTree   NotificationOrigin = "project"
	OriginWatcher       NotificationOrigin = "watcher"
)

// RefreshNotification is emitted exactly once per completed mutation so
// consumers always observe a settled snapshot.
type RefreshNotification struct {
	Origin            NotificationOrigin `json:"origin"`
	Mutation          MutationKind       `json:"mutation"`
	CheckedFileCount  int                `json:"checkedFileCount"`
	SelectedCostTotal int                `json:"selectedCostTotal"`
}

// RefreshListener receives refresh notifications. Listeners run synchronously
// on the mutating goroutine and must not mutate trees from the callback.
type RefreshListener func(notification RefreshNotification)
