package review

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jomei/notionapi"
)

// ErrPageNotFound is returned when Notion no longer knows a page or database,
// typically because it was deleted by hand in the workspace.
var ErrPageNotFound = errors.New("review page not found")

const queryPageSize = 100

// NotionClient is the concrete implementation of NotionService using the Notion SDK.
type NotionClient struct {
	client *notionapi.Client
}

// NewNotionClient creates a new NotionClient with the provided API token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client: notionapi.NewClient(notionapi.Token(token)),
	}
}

// CreatePage creates a review page in the database.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, wrapNotionError("CreatePage", err)
	}
	return page, nil
}

// UpdatePage overwrites the properties of a review page.
// A page deleted in Notion yields ErrPageNotFound.
func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageUpdateRequest{
		Properties: properties,
	}

	page, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), req)
	if err != nil {
		return nil, wrapNotionError("UpdatePage", err)
	}
	return page, nil
}

// QueryUploadPages returns one page of results holding the review pages of uploadID.
func (n *NotionClient) QueryUploadPages(ctx context.Context, databaseID, uploadID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), uploadPagesQuery(uploadID, cursor))
	if err != nil {
		return nil, wrapNotionError("QueryUploadPages", err)
	}
	return resp, nil
}

// ArchivePage archives a review page.
func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	req := &notionapi.PageUpdateRequest{
		Archived: true,
	}

	if _, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), req); err != nil {
		return wrapNotionError("ArchivePage", err)
	}
	return nil
}

// uploadPagesQuery filters on the Upload ID property so a database shared by
// many uploads is not scanned in full.
func uploadPagesQuery(uploadID string, cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
	return &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropUploadID,
			RichText: &notionapi.TextFilterCondition{Equals: uploadID},
		},
		StartCursor: cursor,
		PageSize:    queryPageSize,
	}
}

func wrapNotionError(op string, err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Code == notionapi.ErrorCode("object_not_found")) {
		return fmt.Errorf("%s: %w: %w", op, ErrPageNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ NotionService = (*NotionClient)(nil)
