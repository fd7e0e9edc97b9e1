package application

import (
	"strings"

	"github.com/jmswint/marginalia/internal/domain/model"
)

// DetectOrphans returns the ids of active root comments whose anchor text no
// longer appears anywhere in the document. These anchors cannot be placed
// and their threads are considered addressed by the edit that removed the
// text.
//
// Only active -> resolved transitions are ever produced; a comment already
// resolved stays resolved regardless of document content.
func DetectOrphans(documentText string, comments []model.Comment) []string {
	var orphaned []string
	for _, c := range comments {
		if c.IsReply() || c.Status != model.CommentStatusActive || c.AnchorText == "" {
			continue
		}
		if !strings.Contains(documentText, c.AnchorText) {
			orphaned = append(orphaned, c.ID)
		}
	}
	return orphaned
}
