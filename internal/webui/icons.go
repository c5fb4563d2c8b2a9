package webui

import (
	"os"
	"time"

	devicons "github.com/epilande/go-devicons"

	"github.com/temirov/revscope/internal/tree"
	"github.com/temirov/revscope/internal/types"
)

// iconFileInfo satisfies fs.FileInfo with just the fields icon lookup reads.
type iconFileInfo struct {
	name  string
	isDir bool
}

func (info iconFileInfo) Name() string { return info.name }

func (info iconFileInfo) Size() int64 { return 0 }

func (info iconFileInfo) Mode() os.FileMode {
	if info.isDir {
		return os.ModeDir | 0o755
	}
	return 0
}

func (info iconFileInfo) ModTime() time.Time { return time.Time{} }

func (info iconFileInfo) IsDir() bool { return info.isDir }

func (info iconFileInfo) Sys() any { return nil }

// iconForNode returns the icon glyph and hex color for a tree node. The
// devicons result type lives in that module's internal package and cannot be
// named here, so the two fields are returned directly.
func iconForNode(node *tree.Node) (icon string, color string) {
	style := devicons.IconForInfo(iconFileInfo{name: node.Name, isDir: node.Kind == types.NodeKindFolder})
	return style.Icon, style.Color
}
