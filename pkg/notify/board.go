package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Card is the reviewer-facing projection of a review task.
type Card struct {
	RecordID   string
	Title      string
	Reason     string
	Priority   string
	Status     string
	Confidence float64
	Deadline   time.Time
	Assignee   string
}

// Board publishes review cards into a single Notion database.
type Board struct {
	client Client
	dbID   string
}

// NewBoard creates a Board backed by the given client and database ID.
func NewBoard(client Client, dbID string) *Board {
	return &Board{client: client, dbID: dbID}
}

const maxTitleLen = 120

func truncateTitle(s string) string {
	if len(s) <= maxTitleLen {
		return s
	}
	return s[:maxTitleLen-3] + "..."
}

// Publish creates a new card page and returns its Notion page ID.
func (b *Board) Publish(ctx context.Context, card Card) (string, error) {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: truncateTitle(card.Title)}},
			},
		},
		"Record ID": notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: card.RecordID}},
			},
		},
		"Reason": notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: card.Reason}},
			},
		},
		"Priority": notionapi.SelectProperty{
			Select: notionapi.Option{Name: card.Priority},
		},
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{Name: card.Status},
		},
		"Confidence": notionapi.NumberProperty{
			Number: card.Confidence,
		},
	}

	if !card.Deadline.IsZero() {
		deadline := notionapi.Date(card.Deadline)
		props["Deadline"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &deadline},
		}
	}
	if card.Assignee != "" {
		props["Assignee"] = notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: card.Assignee}},
			},
		}
	}

	page, err := b.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(b.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", eris.Wrap(err, "notify: publish card")
	}
	return string(page.ID), nil
}

// SetStatus updates a card's status, optionally appending reviewer notes.
func (b *Board) SetStatus(ctx context.Context, pageID, status, notes string) error {
	props := notionapi.Properties{
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{Name: status},
		},
	}
	if notes != "" {
		props["Notes"] = notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: notes}},
			},
		}
	}

	if _, err := b.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return eris.Wrap(err, fmt.Sprintf("notify: set status on page %s", pageID))
	}
	return nil
}

// FindByRecord returns the page ID of the card for the given record, or ""
// if no card exists.
func (b *Board) FindByRecord(ctx context.Context, recordID string) (string, error) {
	resp, err := b.client.QueryDatabase(ctx, b.dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Record ID",
			RichText: &notionapi.TextFilterCondition{
				Equals: recordID,
			},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "notify: find card by record")
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}
