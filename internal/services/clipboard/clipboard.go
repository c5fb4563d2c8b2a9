// Package clipboard places the rendered review-context document on the
// system clipboard.
package clipboard

import (
	"github.com/atotto/clipboard"
)

// Copier hands a rendered document to the system clipboard.
type Copier interface {
	Copy(documentText string) error
}

// Service implements Copier using github.com/atotto/clipboard.
type Service struct{}

// NewService constructs the system-clipboard backed copier.
func NewService() *Service {
	return &Service{}
}

// Copy replaces the clipboard contents with the rendered document text.
func (service *Service) Copy(documentText string) error {
	return clipboard.WriteAll(documentText)
}

var _ Copier = (*Service)(nil)
