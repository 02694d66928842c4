package review

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/statement-reconciler/internal/matching"
)

// Notion property names of the review database.
const (
	PropDescription = "Description"
	PropKey         = "Suggestion Key"
	PropUploadID    = "Upload ID"
	PropDate        = "Date"
	PropAmount      = "Amount"
	PropCurrency    = "Currency"
	PropStatus      = "Status"
	PropConfidence  = "Confidence"
	PropReason      = "Reason"
	PropMatchedID   = "Matched Transaction"
	PropCandidates  = "Candidates"
	PropNeedsReview = "Requires Review"
	PropIsNew       = "Is New"
)

// SuggestionKey identifies the suggestion at index within an upload.
func SuggestionKey(uploadID string, index int) string {
	return uploadID + ":" + strconv.Itoa(index)
}

// SuggestionToNotionProperties converts one suggestion to review page properties.
func SuggestionToNotionProperties(uploadID string, index int, s matching.Suggestion) notionapi.Properties {
	tx := s.Transaction

	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(tx.Description),
		},
		PropKey: notionapi.RichTextProperty{
			RichText: richText(SuggestionKey(uploadID, index)),
		},
		PropUploadID: notionapi.RichTextProperty{
			RichText: richText(uploadID),
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(time.Date(
						tx.TransactionDate.Year,
						tx.TransactionDate.Month,
						tx.TransactionDate.Day,
						0, 0, 0, 0, time.UTC,
					))
					return &d
				}(),
			},
		},
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount,
		},
		PropStatus: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(s.Status)},
		},
		PropConfidence: notionapi.NumberProperty{
			Number: float64(s.Confidence),
		},
		PropNeedsReview: notionapi.CheckboxProperty{
			Checkbox: s.RequiresReview,
		},
		PropIsNew: notionapi.CheckboxProperty{
			Checkbox: s.IsNew,
		},
	}

	if tx.Currency != "" {
		props[PropCurrency] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Currency},
		}
	}

	if s.Reason != "" {
		props[PropReason] = notionapi.RichTextProperty{
			RichText: richText(s.Reason),
		}
	}

	if id := s.MatchedTransactionID(); id != "" {
		props[PropMatchedID] = notionapi.RichTextProperty{
			RichText: richText(id),
		}
	}

	if len(s.Candidates) > 0 {
		props[PropCandidates] = notionapi.RichTextProperty{
			RichText: richText(formatCandidates(s.Candidates)),
		}
	}

	return props
}

// formatCandidates renders "id (score)" for each candidate, best first.
func formatCandidates(candidates []matching.MatchCandidate) string {
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, fmt.Sprintf("%s (%d)", c.Target.ID, c.Score))
	}
	return strings.Join(parts, ", ")
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

// plainText reads a title or rich text property from a queried page.
func plainText(page notionapi.Page, name string) string {
	switch prop := page.Properties[name].(type) {
	case *notionapi.RichTextProperty:
		if len(prop.RichText) > 0 {
			return prop.RichText[0].PlainText
		}
	case *notionapi.TitleProperty:
		if len(prop.Title) > 0 {
			return prop.Title[0].PlainText
		}
	}
	return ""
}
