package review

import (
	"context"

	"github.com/jomei/notionapi"
)

// NotionService is the subset of the Notion API the review export uses.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryUploadPages(ctx context.Context, databaseID, uploadID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error)
	ArchivePage(ctx context.Context, pageID string) error
}
