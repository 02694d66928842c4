package review

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/matching"
)

// MockNotionService records calls and serves pages from memory.
type MockNotionService struct {
	Pages          []notionapi.Page
	PageSize       int
	CreatePageFunc func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePageFunc func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	Created  []notionapi.Properties
	Updated  map[string]notionapi.Properties
	Archived []string
	Queries  int
	Uploads  []string
}

func (m *MockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, databaseID, properties)
	}
	m.Created = append(m.Created, properties)
	return &notionapi.Page{ID: notionapi.ObjectID("new-page")}, nil
}

func (m *MockNotionService) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.UpdatePageFunc != nil {
		return m.UpdatePageFunc(ctx, pageID, properties)
	}
	if m.Updated == nil {
		m.Updated = make(map[string]notionapi.Properties)
	}
	m.Updated[pageID] = properties
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *MockNotionService) QueryUploadPages(ctx context.Context, databaseID, uploadID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error) {
	m.Queries++
	m.Uploads = append(m.Uploads, uploadID)
	size := m.PageSize
	if size <= 0 {
		size = len(m.Pages)
	}
	start := 0
	if cursor != "" {
		for i := range m.Pages {
			if string(m.Pages[i].ID) == string(cursor) {
				start = i
			}
		}
	}
	end := start + size
	if end >= len(m.Pages) {
		return &notionapi.DatabaseQueryResponse{Results: m.Pages[start:]}, nil
	}
	return &notionapi.DatabaseQueryResponse{
		Results:    m.Pages[start:end],
		HasMore:    true,
		NextCursor: notionapi.Cursor(m.Pages[end].ID),
	}, nil
}

func (m *MockNotionService) ArchivePage(ctx context.Context, pageID string) error {
	m.Archived = append(m.Archived, pageID)
	return nil
}

func reviewPage(id, uploadID, key string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(id),
		Properties: notionapi.Properties{
			PropUploadID: &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: uploadID}}},
			PropKey:      &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: key}}},
		},
	}
}

func suggestions() []matching.Suggestion {
	tx := func(desc string, amount float64) domain.ExtractedTransaction {
		return domain.ExtractedTransaction{
			TransactionDate: civil.Date{Year: 2024, Month: 3, Day: 5},
			Description:     desc,
			Amount:          amount,
			Currency:        "USD",
			Type:            domain.TransactionTypeDebit,
		}
	}
	return []matching.Suggestion{
		{
			Transaction: tx("STARBUCKS #123", 12.5),
			Status:      matching.StatusMatched,
			BestMatch:   &matching.MatchCandidate{Target: domain.LedgerTransaction{ID: "led-1"}, Score: 95},
			Confidence:  95,
		},
		{
			Transaction:    tx("AMAZON MKTPLACE", 80),
			Status:         matching.StatusMultipleMatches,
			Candidates:     []matching.MatchCandidate{{Target: domain.LedgerTransaction{ID: "led-2"}, Score: 70}, {Target: domain.LedgerTransaction{ID: "led-3"}, Score: 65}},
			Confidence:     70,
			Reason:         "2 candidates within 10 points",
			RequiresReview: true,
		},
		matching.NewSuggestion(tx("UBER EATS", 23.1), "No matching ledger transaction"),
	}
}

func TestSyncSuggestionsCreatesReviewPages(t *testing.T) {
	notion := &MockNotionService{}

	result, err := SyncSuggestions(context.Background(), notion, "db-1", "up-1", suggestions(), false)
	require.NoError(t, err)

	assert.Equal(t, &SyncResult{Created: 2, Skipped: 1}, result)
	require.Len(t, notion.Created, 2)

	first := notion.Created[0]
	key := first[PropKey].(notionapi.RichTextProperty)
	assert.Equal(t, "up-1:1", key.RichText[0].Text.Content)
	assert.Equal(t, "multiple_matches", first[PropStatus].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, "led-2 (70), led-3 (65)", first[PropCandidates].(notionapi.RichTextProperty).RichText[0].Text.Content)
	assert.True(t, first[PropNeedsReview].(notionapi.CheckboxProperty).Checkbox)

	second := notion.Created[1]
	assert.Equal(t, "up-1:2", second[PropKey].(notionapi.RichTextProperty).RichText[0].Text.Content)
	assert.True(t, second[PropIsNew].(notionapi.CheckboxProperty).Checkbox)
	assert.Equal(t, 23.1, second[PropAmount].(notionapi.NumberProperty).Number)
}

func TestSyncSuggestionsIsIdempotent(t *testing.T) {
	notion := &MockNotionService{
		PageSize: 1,
		Pages: []notionapi.Page{
			reviewPage("p1", "up-1", "up-1:1"),
			reviewPage("p2", "up-1", "up-1:0"),
			reviewPage("p3", "up-2", "up-2:0"),
		},
	}

	result, err := SyncSuggestions(context.Background(), notion, "db-1", "up-1", suggestions(), false)
	require.NoError(t, err)

	assert.Equal(t, 3, notion.Queries, "pagination follows NextCursor")
	assert.Equal(t, []string{"up-1", "up-1", "up-1"}, notion.Uploads)
	assert.Equal(t, &SyncResult{Created: 1, Updated: 1, Archived: 1, Skipped: 1}, result)
	assert.Contains(t, notion.Updated, "p1")
	// p2 holds a suggestion that no longer needs review; other uploads are untouched.
	assert.Equal(t, []string{"p2"}, notion.Archived)
}

func TestSyncSuggestionsDryRun(t *testing.T) {
	notion := &MockNotionService{Pages: []notionapi.Page{reviewPage("p1", "up-1", "up-1:1")}}

	result, err := SyncSuggestions(context.Background(), notion, "db-1", "up-1", suggestions(), true)
	require.NoError(t, err)

	assert.Equal(t, &SyncResult{Created: 1, Updated: 1, Skipped: 1}, result)
	assert.Empty(t, notion.Created)
	assert.Empty(t, notion.Updated)
	assert.Empty(t, notion.Archived)
}

func TestSyncSuggestionsCountsPageFailures(t *testing.T) {
	notion := &MockNotionService{
		CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
			return nil, errors.New("rate limited")
		},
	}

	result, err := SyncSuggestions(context.Background(), notion, "db-1", "up-1", suggestions(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 0, result.Created)
}

type failingQuery struct{ MockNotionService }

func (f *failingQuery) QueryUploadPages(ctx context.Context, databaseID, uploadID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error) {
	return nil, errors.New("unauthorized")
}

func TestSyncSuggestionsQueryFailure(t *testing.T) {
	_, err := SyncSuggestions(context.Background(), &failingQuery{}, "db-1", "up-1", suggestions(), false)
	assert.ErrorContains(t, err, "unauthorized")
}

func TestSyncSuggestionsRecreatesDeletedPage(t *testing.T) {
	notion := &MockNotionService{
		Pages: []notionapi.Page{reviewPage("p1", "up-1", "up-1:1")},
		UpdatePageFunc: func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
			return nil, wrapNotionError("UpdatePage", &notionapi.Error{Status: http.StatusNotFound, Code: "object_not_found"})
		},
	}

	result, err := SyncSuggestions(context.Background(), notion, "db-1", "up-1", suggestions(), false)
	require.NoError(t, err)

	assert.Equal(t, &SyncResult{Created: 2, Skipped: 1}, result)
	require.Len(t, notion.Created, 2)
	assert.Equal(t, "up-1:1", notion.Created[0][PropKey].(notionapi.RichTextProperty).RichText[0].Text.Content)
}

func TestSyncSuggestionsUpdateFailureIsCounted(t *testing.T) {
	notion := &MockNotionService{
		Pages: []notionapi.Page{reviewPage("p1", "up-1", "up-1:1")},
		UpdatePageFunc: func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
			return nil, wrapNotionError("UpdatePage", &notionapi.Error{Status: http.StatusTooManyRequests, Code: "rate_limited"})
		},
	}

	result, err := SyncSuggestions(context.Background(), notion, "db-1", "up-1", suggestions(), false)
	require.NoError(t, err)

	assert.Equal(t, &SyncResult{Created: 1, Failed: 1, Skipped: 1}, result)
}

func TestWrapNotionError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantNotFound bool
	}{
		{"status 404", &notionapi.Error{Status: http.StatusNotFound}, true},
		{"object_not_found code", &notionapi.Error{Status: http.StatusBadRequest, Code: "object_not_found"}, true},
		{"unauthorized", &notionapi.Error{Status: http.StatusUnauthorized, Code: "unauthorized"}, false},
		{"transport error", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapNotionError("UpdatePage", tt.err)
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.wantNotFound, errors.Is(got, ErrPageNotFound))
			assert.ErrorContains(t, got, "UpdatePage: ")
		})
	}
}

func TestUploadPagesQuery(t *testing.T) {
	req := uploadPagesQuery("up-1", notionapi.Cursor("c-2"))

	filter, ok := req.Filter.(notionapi.PropertyFilter)
	require.True(t, ok)
	assert.Equal(t, PropUploadID, filter.Property)
	require.NotNil(t, filter.RichText)
	assert.Equal(t, "up-1", filter.RichText.Equals)
	assert.Equal(t, notionapi.Cursor("c-2"), req.StartCursor)
	assert.Equal(t, 100, req.PageSize)
}

func TestSuggestionToNotionProperties(t *testing.T) {
	s := suggestions()[0]
	props := SuggestionToNotionProperties("up-1", 0, s)

	assert.Equal(t, "STARBUCKS #123", props[PropDescription].(notionapi.TitleProperty).Title[0].Text.Content)
	assert.Equal(t, "led-1", props[PropMatchedID].(notionapi.RichTextProperty).RichText[0].Text.Content)
	assert.Equal(t, "USD", props[PropCurrency].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, float64(95), props[PropConfidence].(notionapi.NumberProperty).Number)
	assert.NotContains(t, props, PropReason)
	assert.NotContains(t, props, PropCandidates)
}
