package notify

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*MockClient)(nil)
}

func TestPublish(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	var captured *notionapi.PageCreateRequest
	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*notionapi.PageCreateRequest)
		}).
		Return(&notionapi.Page{ID: "page-1"}, nil)

	board := NewBoard(mc, "db-123")
	pageID, err := board.Publish(ctx, Card{
		RecordID:   "rec-abc",
		Title:      "Review: statute of limitations answer",
		Reason:     "confidence 42 below threshold 75",
		Priority:   "high",
		Status:     "Pending Review",
		Confidence: 42,
		Deadline:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Assignee:   "reviewer@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "page-1", pageID)

	require.NotNil(t, captured)
	assert.Equal(t, notionapi.DatabaseID("db-123"), captured.Parent.DatabaseID)

	title := captured.Properties["Name"].(notionapi.TitleProperty)
	require.Len(t, title.Title, 1)
	assert.Equal(t, "Review: statute of limitations answer", title.Title[0].Text.Content)

	record := captured.Properties["Record ID"].(notionapi.RichTextProperty)
	assert.Equal(t, "rec-abc", record.RichText[0].Text.Content)

	priority := captured.Properties["Priority"].(notionapi.SelectProperty)
	assert.Equal(t, "high", priority.Select.Name)

	status := captured.Properties["Status"].(notionapi.StatusProperty)
	assert.Equal(t, "Pending Review", status.Status.Name)

	confidence := captured.Properties["Confidence"].(notionapi.NumberProperty)
	assert.Equal(t, 42.0, confidence.Number)

	_, hasDeadline := captured.Properties["Deadline"]
	assert.True(t, hasDeadline)
	_, hasAssignee := captured.Properties["Assignee"]
	assert.True(t, hasAssignee)

	mc.AssertExpectations(t)
}

func TestPublish_OmitsEmptyOptionalFields(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	var captured *notionapi.PageCreateRequest
	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*notionapi.PageCreateRequest)
		}).
		Return(&notionapi.Page{ID: "page-2"}, nil)

	board := NewBoard(mc, "db-123")
	_, err := board.Publish(ctx, Card{
		RecordID: "rec-xyz",
		Title:    "Review",
		Priority: "normal",
		Status:   "Pending Review",
	})
	require.NoError(t, err)

	_, hasDeadline := captured.Properties["Deadline"]
	assert.False(t, hasDeadline)
	_, hasAssignee := captured.Properties["Assignee"]
	assert.False(t, hasAssignee)

	mc.AssertExpectations(t)
}

func TestPublish_TruncatesLongTitle(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	long := ""
	for i := 0; i < 40; i++ {
		long += "statute "
	}

	var captured *notionapi.PageCreateRequest
	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*notionapi.PageCreateRequest)
		}).
		Return(&notionapi.Page{ID: "page-3"}, nil)

	board := NewBoard(mc, "db-123")
	_, err := board.Publish(ctx, Card{RecordID: "r", Title: long, Priority: "low", Status: "Pending Review"})
	require.NoError(t, err)

	title := captured.Properties["Name"].(notionapi.TitleProperty)
	got := title.Title[0].Text.Content
	assert.Len(t, got, maxTitleLen)
	assert.Contains(t, got, "...")

	mc.AssertExpectations(t)
}

func TestPublishError(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Return(nil, assert.AnError)

	board := NewBoard(mc, "db-123")
	pageID, err := board.Publish(ctx, Card{RecordID: "rec-1", Title: "t"})
	assert.Error(t, err)
	assert.Empty(t, pageID)
	mc.AssertExpectations(t)
}

func TestSetStatus(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	var captured *notionapi.PageUpdateRequest
	mc.On("UpdatePage", ctx, "page-1", mock.AnythingOfType("*notionapi.PageUpdateRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(*notionapi.PageUpdateRequest)
		}).
		Return(&notionapi.Page{ID: "page-1"}, nil)

	board := NewBoard(mc, "db-123")
	err := board.SetStatus(ctx, "page-1", "Completed", "approved as written")
	require.NoError(t, err)

	status := captured.Properties["Status"].(notionapi.StatusProperty)
	assert.Equal(t, "Completed", status.Status.Name)
	notes := captured.Properties["Notes"].(notionapi.RichTextProperty)
	assert.Equal(t, "approved as written", notes.RichText[0].Text.Content)

	mc.AssertExpectations(t)
}

func TestSetStatus_NoNotes(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	var captured *notionapi.PageUpdateRequest
	mc.On("UpdatePage", ctx, "page-1", mock.AnythingOfType("*notionapi.PageUpdateRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(*notionapi.PageUpdateRequest)
		}).
		Return(&notionapi.Page{ID: "page-1"}, nil)

	board := NewBoard(mc, "db-123")
	err := board.SetStatus(ctx, "page-1", "Escalated", "")
	require.NoError(t, err)

	_, hasNotes := captured.Properties["Notes"]
	assert.False(t, hasNotes)

	mc.AssertExpectations(t)
}

func TestFindByRecord(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-123", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "page-9"}},
		}, nil)

	board := NewBoard(mc, "db-123")
	pageID, err := board.FindByRecord(ctx, "rec-abc")
	require.NoError(t, err)
	assert.Equal(t, "page-9", pageID)
	mc.AssertExpectations(t)
}

func TestFindByRecord_NotFound(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-123", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{}, nil)

	board := NewBoard(mc, "db-123")
	pageID, err := board.FindByRecord(ctx, "rec-missing")
	require.NoError(t, err)
	assert.Empty(t, pageID)
	mc.AssertExpectations(t)
}

func TestNewClientReturnsClient(t *testing.T) {
	c := NewClient("test-token")
	assert.NotNil(t, c)
	var _ Client = c //nolint:staticcheck // interface compliance check
}
