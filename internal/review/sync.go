// Package review exports reconciliation suggestions that need a human decision
// to a Notion database, one page per statement transaction.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/matching"
)

// SyncResult counts what a sync did, or would do in a dry run.
type SyncResult struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// NeedsReview reports whether a suggestion is exported: anything a human must
// confirm, and transactions that will become new ledger entries.
func NeedsReview(s matching.Suggestion) bool {
	return s.RequiresReview || s.IsNew
}

// SyncSuggestions mirrors an upload's reviewable suggestions into a Notion database.
// Pages are keyed by SuggestionKey, so repeated syncs update pages in place.
// Pages of this upload whose suggestion no longer needs review are archived,
// and a page deleted in Notion is recreated.
// Failures on individual pages are logged and counted, not returned.
func SyncSuggestions(ctx context.Context, notion NotionService, databaseID, uploadID string, suggestions []matching.Suggestion, dryRun bool) (*SyncResult, error) {
	log := logger.FromContext(ctx).With().Str("upload_id", uploadID).Bool("dry_run", dryRun).Logger()

	log.Info().Int("suggestions", len(suggestions)).Msg("Starting review sync to Notion")

	pages, err := queryUploadPages(ctx, notion, databaseID, uploadID)
	if err != nil {
		return nil, fmt.Errorf("SyncSuggestions: %w", err)
	}

	// Existing pages of this upload by suggestion key.
	existing := make(map[string]string)
	for _, page := range pages {
		if plainText(page, PropUploadID) != uploadID {
			continue
		}
		if key := plainText(page, PropKey); key != "" {
			existing[key] = string(page.ID)
		}
	}

	log.Info().Int("existing_pages", len(existing)).Msg("Retrieved existing review pages")

	result := &SyncResult{}
	wanted := make(map[string]bool)

	for i, s := range suggestions {
		if !NeedsReview(s) {
			result.Skipped++
			continue
		}

		key := SuggestionKey(uploadID, i)
		wanted[key] = true
		pageID, found := existing[key]

		if dryRun {
			if found {
				log.Info().Str("key", key).Str("page_id", pageID).Msg("[DRY RUN] Would update review page")
				result.Updated++
			} else {
				log.Info().Str("key", key).Msg("[DRY RUN] Would create review page")
				result.Created++
			}
			continue
		}

		props := SuggestionToNotionProperties(uploadID, i, s)

		if found {
			_, err := notion.UpdatePage(ctx, pageID, props)
			switch {
			case err == nil:
				log.Debug().Str("key", key).Str("page_id", pageID).Msg("Updated review page")
				result.Updated++
				continue
			case !errors.Is(err, ErrPageNotFound):
				log.Warn().Err(err).Str("key", key).Str("page_id", pageID).Msg("Failed to update review page")
				result.Failed++
				continue
			}
			log.Info().Str("key", key).Str("page_id", pageID).Msg("Review page deleted in Notion, recreating")
		}

		page, err := notion.CreatePage(ctx, databaseID, props)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to create review page")
			result.Failed++
			continue
		}
		log.Debug().Str("key", key).Str("page_id", string(page.ID)).Msg("Created review page")
		result.Created++
	}

	for key, pageID := range existing {
		if wanted[key] {
			continue
		}
		if dryRun {
			log.Info().Str("key", key).Str("page_id", pageID).Msg("[DRY RUN] Would archive stale review page")
			result.Archived++
			continue
		}
		if err := notion.ArchivePage(ctx, pageID); err != nil {
			log.Warn().Err(err).Str("key", key).Str("page_id", pageID).Msg("Failed to archive stale review page")
			result.Failed++
			continue
		}
		result.Archived++
	}

	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("archived", result.Archived).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Review sync completed")

	return result, nil
}

// queryUploadPages queries the review pages of one upload, following pagination.
func queryUploadPages(ctx context.Context, notion NotionService, databaseID, uploadID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		resp, err := notion.QueryUploadPages(ctx, databaseID, uploadID, cursor)
		if err != nil {
			return nil, fmt.Errorf("queryUploadPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
