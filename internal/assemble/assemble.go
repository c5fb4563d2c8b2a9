// Package assemble renders the final review-context artifact: a streaming
// XML envelope holding the instructions, a directory map of the selection,
// the checked change diffs and the checked supplementary file contents.
package assemble

import (
	"context"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/temirov/revscope/internal/tree"
	"github.com/temirov/revscope/internal/types"
	"github.com/temirov/revscope/internal/utils"
)

const (
	envelopeElementName      = "review_context"
	instructionsElementName  = "instructions"
	projectMapElementName    = "project_map"
	changesElementName       = "changes"
	changeElementName        = "change"
	supplementaryElementName = "supplementary_files"
	fileElementName          = "file"
	targetAttributeName      = "target"
	sourceAttributeName      = "source"
	pathAttributeName        = "path"
	statusAttributeName      = "status"
	tokensAttributeName      = "tokens"
	indentUnit               = "  "
)

// ChangeDocument is one change-set member of the envelope.
type ChangeDocument struct {
	Path   types.PathEntry
	Status types.ChangeStatus
	Tokens int
	Diff   string
}

// FileDocument is one supplementary selection of the envelope.
type FileDocument struct {
	Path    types.PathEntry
	Tokens  int
	Content string
}

// Document is the fully collected input of the renderer.
type Document struct {
	TargetRef     string
	SourceRef     string
	Instructions  string
	ProjectMap    string
	Changes       []ChangeDocument
	Supplementary []FileDocument
}

// TotalTokens sums the token counts over every member of the document.
func (document Document) TotalTokens() int {
	totalTokens := 0
	for _, changeDocument := range document.Changes {
		totalTokens += changeDocument.Tokens
	}
	for _, fileDocument := range document.Supplementary {
		totalTokens += fileDocument.Tokens
	}
	return totalTokens
}

// Render streams the document as an indented XML envelope. An unreadable
// member arrives here as empty text and renders as an empty element; the
// document itself never fails over content.
func Render(writer io.Writer, document Document) error {
	encoder := xml.NewEncoder(writer)
	encoder.Indent("", indentUnit)

	envelopeStart := xml.StartElement{Name: xml.Name{Local: envelopeElementName}}
	envelopeStart.Attr = append(envelopeStart.Attr,
		xml.Attr{Name: xml.Name{Local: targetAttributeName}, Value: document.TargetRef},
		xml.Attr{Name: xml.Name{Local: sourceAttributeName}, Value: document.SourceRef},
	)
	if encodeError := encoder.EncodeToken(envelopeStart); encodeError != nil {
		return encodeError
	}

	if encodeError := encodeTextElement(encoder, instructionsElementName, nil, document.Instructions); encodeError != nil {
		return encodeError
	}
	if encodeError := encodeTextElement(encoder, projectMapElementName, nil, document.ProjectMap); encodeError != nil {
		return encodeError
	}

	changesStart := xml.StartElement{Name: xml.Name{Local: changesElementName}}
	if encodeError := encoder.EncodeToken(changesStart); encodeError != nil {
		return encodeError
	}
	for _, changeDocument := range document.Changes {
		changeAttributes := []xml.Attr{
			{Name: xml.Name{Local: pathAttributeName}, Value: changeDocument.Path},
			{Name: xml.Name{Local: statusAttributeName}, Value: string(changeDocument.Status)},
			{Name: xml.Name{Local: tokensAttributeName}, Value: strconv.Itoa(changeDocument.Tokens)},
		}
		if encodeError := encodeTextElement(encoder, changeElementName, changeAttributes, changeDocument.Diff); encodeError != nil {
			return encodeError
		}
	}
	if encodeError := encoder.EncodeToken(changesStart.End()); encodeError != nil {
		return encodeError
	}

	supplementaryStart := xml.StartElement{Name: xml.Name{Local: supplementaryElementName}}
	if encodeError := encoder.EncodeToken(supplementaryStart); encodeError != nil {
		return encodeError
	}
	for _, fileDocument := range document.Supplementary {
		fileAttributes := []xml.Attr{
			{Name: xml.Name{Local: pathAttributeName}, Value: fileDocument.Path},
			{Name: xml.Name{Local: tokensAttributeName}, Value: strconv.Itoa(fileDocument.Tokens)},
		}
		if encodeError := encodeTextElement(encoder, fileElementName, fileAttributes, fileDocument.Content); encodeError != nil {
			return encodeError
		}
	}
	if encodeError := encoder.EncodeToken(supplementaryStart.End()); encodeError != nil {
		return encodeError
	}

	if encodeError := encoder.EncodeToken(envelopeStart.End()); encodeError != nil {
		return encodeError
	}
	if flushError := encoder.Flush(); flushError != nil {
		return flushError
	}
	_, writeError := io.WriteString(writer, "\n")
	return writeError
}

func encodeTextElement(encoder *xml.Encoder, elementName string, attributes []xml.Attr, text string) error {
	elementStart := xml.StartElement{Name: xml.Name{Local: elementName}, Attr: attributes}
	if encodeError := encoder.EncodeToken(elementStart); encodeError != nil {
		return encodeError
	}
	if text != "" {
		if encodeError := encoder.EncodeToken(xml.CharData(text)); encodeError != nil {
			return encodeError
		}
	}
	return encoder.EncodeToken(elementStart.End())
}

// RenderProjectMap renders the selected paths as an indented directory
// listing, two spaces per depth level, folders suffixed with a slash. Input
// order does not matter: paths are re-sorted into hierarchy order so every
// folder's members render contiguously under it.
func RenderProjectMap(selectedPaths []types.PathEntry) string {
	orderedPaths := make([]types.PathEntry, len(selectedPaths))
	copy(orderedPaths, selectedPaths)
	sort.Slice(orderedPaths, func(firstIndex, secondIndex int) bool {
		return tree.HierarchyLess(orderedPaths[firstIndex], orderedPaths[secondIndex])
	})
	var mapBuilder strings.Builder
	printedFolders := make(map[string]struct{})
	for _, selectedPath := range orderedPaths {
		pathSegments := strings.Split(selectedPath, "/")
		for segmentIndex := 0; segmentIndex < len(pathSegments)-1; segmentIndex++ {
			folderPath := strings.Join(pathSegments[:segmentIndex+1], "/")
			if _, alreadyPrinted := printedFolders[folderPath]; alreadyPrinted {
				continue
			}
			printedFolders[folderPath] = struct{}{}
			mapBuilder.WriteString(strings.Repeat(indentUnit, segmentIndex))
			mapBuilder.WriteString(pathSegments[segmentIndex])
			mapBuilder.WriteString("/\n")
		}
		mapBuilder.WriteString(strings.Repeat(indentUnit, len(pathSegments)-1))
		mapBuilder.WriteString(pathSegments[len(pathSegments)-1])
		mapBuilder.WriteString("\n")
	}
	return mapBuilder.String()
}

// BlobSource reads version-control content used as a fallback when the
// working tree cannot serve a member.
type BlobSource interface {
	ReadBlob(ctx context.Context, refName string, filePath string) string
	DiffText(ctx context.Context, targetRef string, sourceRef string, filePath string) string
}

// CostSource estimates member token counts, keyed by absolute path.
type CostSource interface {
	Estimate(path string) int
}

// Collector gathers diff text, file contents and token counts into a
// renderable document. Collection is best-effort: a member that cannot be
// read anywhere contributes an empty body.
type Collector struct {
	repositoryRoot string
	blobSource     BlobSource
	costSource     CostSource
}

// NewCollector constructs a collector over the given repository root.
func NewCollector(repositoryRoot string, blobSource BlobSource, costSource CostSource) *Collector {
	return &Collector{repositoryRoot: repositoryRoot, blobSource: blobSource, costSource: costSource}
}

// CollectInput names the selections and refs a document is built from.
type CollectInput struct {
	TargetRef     string
	SourceRef     string
	Instructions  string
	CombinedPaths []types.PathEntry
	Changes       []types.ChangeEntry
	Supplementary []types.PathEntry
}

// Collect builds the document: change members carry their diff (blob content
// at the target ref as a fallback for added files), supplementary members
// carry file content read from disk with the target-ref blob as a fallback.
func (collector *Collector) Collect(ctx context.Context, input CollectInput) Document {
	document := Document{
		TargetRef:    input.TargetRef,
		SourceRef:    input.SourceRef,
		Instructions: input.Instructions,
		ProjectMap:   RenderProjectMap(input.CombinedPaths),
	}
	for _, changeEntry := range input.Changes {
		diffText := collector.blobSource.DiffText(ctx, input.TargetRef, input.SourceRef, changeEntry.Path)
		if diffText == "" && changeEntry.Status == types.StatusAdded {
			diffText = collector.blobSource.ReadBlob(ctx, input.TargetRef, changeEntry.Path)
		}
		document.Changes = append(document.Changes, ChangeDocument{
			Path:   changeEntry.Path,
			Status: changeEntry.Status,
			Tokens: collector.estimateTokens(changeEntry.Path),
			Diff:   diffText,
		})
	}
	for _, supplementaryPath := range input.Supplementary {
		content := collector.readContent(ctx, input.TargetRef, supplementaryPath)
		document.Supplementary = append(document.Supplementary, FileDocument{
			Path:    supplementaryPath,
			Tokens:  collector.estimateTokens(supplementaryPath),
			Content: content,
		})
	}
	return document
}

func (collector *Collector) readContent(ctx context.Context, targetRef string, relativePath types.PathEntry) string {
	absolutePath := filepath.Join(collector.repositoryRoot, filepath.FromSlash(relativePath))
	if fileData, readError := os.ReadFile(absolutePath); readError == nil {
		if utils.IsBinary(fileData) {
			return ""
		}
		return string(fileData)
	}
	return collector.blobSource.ReadBlob(ctx, targetRef, relativePath)
}

func (collector *Collector) estimateTokens(relativePath types.PathEntry) int {
	if collector.costSource == nil {
		return 0
	}
	return collector.costSource.Estimate(filepath.Join(collector.repositoryRoot, filepath.FromSlash(relativePath)))
}
