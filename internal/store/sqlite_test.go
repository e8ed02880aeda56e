package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func createTestIssue(t *testing.T, s *SQLiteStore, title string) *models.Issue {
	t.Helper()
	issue := &models.Issue{
		Title:       title,
		Description: "description of " + title,
		Status:      models.IssueStatusOpen,
		Priority:    models.IssuePriorityMedium,
		AuthorID:    "alice",
	}
	require.NoError(t, s.CreateIssue(context.Background(), issue, models.SyntheticUser("alice", models.DefaultUserDomain)))
	return issue
}

func strPtr(s string) *string { return &s }

func statusPtr(s models.IssueStatus) *models.IssueStatus { return &s }

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

// --- Users ---

func TestEnsureUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.EnsureUser(ctx, models.SyntheticUser("bob", models.DefaultUserDomain))
	require.NoError(t, err)
	assert.True(t, created)

	// Second call leaves the existing row alone
	created, err = s.EnsureUser(ctx, &models.User{ID: "bob", Username: "other", Email: "other@x"})
	require.NoError(t, err)
	assert.False(t, created)

	u, err := s.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "user_bob", u.Username)
	assert.Equal(t, "bob@example.com", u.Email)

	_, err = s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Issues ---

func TestIssueCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := createTestIssue(t, s, "Login broken")
	assert.NotEmpty(t, issue.ID)
	assert.Equal(t, 1, issue.Version)
	assert.Nil(t, issue.ClosedAt)

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Login broken", got.Title)
	assert.Equal(t, models.IssueStatusOpen, got.Status)
	assert.Equal(t, models.IssuePriorityMedium, got.Priority)
	assert.Equal(t, 1, got.Version)
	assert.Nil(t, got.AssigneeID)
	assert.Nil(t, got.Assignee)
	require.NotNil(t, got.Author)
	assert.Equal(t, "user_alice", got.Author.Username)

	_, err = s.GetIssue(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateIssue_Closed_SetsClosedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := &models.Issue{
		Title: "Done", Description: "already", Status: models.IssueStatusClosed,
		Priority: models.IssuePriorityLow, AuthorID: "alice",
	}
	require.NoError(t, s.CreateIssue(ctx, issue, models.SyntheticUser("alice", models.DefaultUserDomain)))

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClosedAt)
}

func TestCreateIssue_UnknownAssignee(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := &models.Issue{
		Title: "T", Description: "D", Status: models.IssueStatusOpen,
		Priority: models.IssuePriorityMedium, AuthorID: "alice", AssigneeID: strPtr("ghost"),
	}
	err := s.CreateIssue(ctx, issue, models.SyntheticUser("alice", models.DefaultUserDomain))
	assert.ErrorIs(t, err, ErrConstraint)

	// The author insert was rolled back with the issue
	_, err = s.GetUser(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListIssues_FilterAndPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c", "d"} {
		createTestIssue(t, s, title)
	}
	all, err := s.ListIssues(ctx, IssueListFilter{}, Page{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	page, err := s.ListIssues(ctx, IssueListFilter{}, Page{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[1].ID, page[0].ID)
	assert.Equal(t, all[2].ID, page[1].ID)

	n, err := s.CountIssues(ctx, IssueListFilter{Status: models.IssueStatusOpen})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = s.CountIssues(ctx, IssueListFilter{Priority: models.IssuePriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFindIssueIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := createTestIssue(t, s, "prefix")

	ids, err := s.FindIssueIDs(ctx, issue.ID[:10], 2)
	require.NoError(t, err)
	assert.Contains(t, ids, issue.ID)

	ids, err = s.FindIssueIDs(ctx, "%", 2)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// --- Conditional update ---

func TestConditionalUpdateIssue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	issue := createTestIssue(t, s, "cas")

	n, err := s.ConditionalUpdateIssue(ctx, issue.ID, 1, models.IssuePatch{
		Title:  strPtr("renamed"),
		Status: statusPtr(models.IssueStatusClosed),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, models.IssueStatusClosed, got.Status)
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.ClosedAt)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	// Stale version matches nothing and changes nothing
	n, err = s.ConditionalUpdateIssue(ctx, issue.ID, 1, models.IssuePatch{Title: strPtr("stale")})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err = s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, 2, got.Version)

	// Reopening clears closed_at
	n, err = s.ConditionalUpdateIssue(ctx, issue.ID, 2, models.IssuePatch{Status: statusPtr(models.IssueStatusOpen)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err = s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ClosedAt)
	assert.Equal(t, 3, got.Version)
}

func TestConditionalUpdateIssue_EmptyPatchBumpsVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	issue := createTestIssue(t, s, "touch")

	n, err := s.ConditionalUpdateIssue(ctx, issue.ID, 1, models.IssuePatch{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestConditionalUpdateIssue_Assignee(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	issue := createTestIssue(t, s, "assign")

	_, err := s.ConditionalUpdateIssue(ctx, issue.ID, 1, models.IssuePatch{AssigneeSet: true, AssigneeID: strPtr("ghost")})
	assert.ErrorIs(t, err, ErrConstraint)

	_, err = s.EnsureUser(ctx, models.SyntheticUser("bob", models.DefaultUserDomain))
	require.NoError(t, err)

	n, err := s.ConditionalUpdateIssue(ctx, issue.ID, 1, models.IssuePatch{AssigneeSet: true, AssigneeID: strPtr("bob")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssigneeID)
	assert.Equal(t, "bob", *got.AssigneeID)
	assert.Equal(t, "user_bob", got.Assignee.Username)

	// Explicit nil clears the assignee
	n, err = s.ConditionalUpdateIssue(ctx, issue.ID, 2, models.IssuePatch{AssigneeSet: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AssigneeID)
}

func TestConditionalUpdateIssue_ConcurrentSameVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	issue := createTestIssue(t, s, "race")

	const writers = 8
	var wg sync.WaitGroup
	results := make([]int64, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := s.ConditionalUpdateIssue(ctx, issue.ID, 1, models.IssuePatch{Title: strPtr("writer")})
			assert.NoError(t, err)
			results[i] = n
		}(i)
	}
	wg.Wait()

	var wins int64
	for _, n := range results {
		wins += n
	}
	assert.Equal(t, int64(1), wins, "exactly one writer should win")

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

// --- Bulk status ---

func TestBulkUpdateIssueStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createTestIssue(t, s, "a")
	b := createTestIssue(t, s, "b")

	n, err := s.BulkUpdateIssueStatus(ctx, []string{a.ID, b.ID}, models.IssueStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, id := range []string{a.ID, b.ID} {
		got, err := s.GetIssue(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.IssueStatusClosed, got.Status)
		assert.Equal(t, 2, got.Version)
		assert.NotNil(t, got.ClosedAt)
	}
}

func TestBulkUpdateIssueStatus_AllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createTestIssue(t, s, "a")

	n, err := s.BulkUpdateIssueStatus(ctx, []string{a.ID, "missing"}, models.IssueStatusClosed)
	assert.ErrorIs(t, err, ErrIncompleteSet)
	assert.Contains(t, err.Error(), "found 1/2")
	assert.Equal(t, int64(0), n)

	got, err := s.GetIssue(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusOpen, got.Status)
	assert.Equal(t, 1, got.Version)
}

// --- Comments ---

func TestComments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	issue := createTestIssue(t, s, "discuss")

	c := &models.Comment{IssueID: issue.ID, AuthorID: "carol", Content: "first"}
	require.NoError(t, s.CreateComment(ctx, c, models.SyntheticUser("carol", models.DefaultUserDomain)))
	assert.NotEmpty(t, c.ID)

	comments, err := s.ListComments(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "first", comments[0].Content)
	assert.Equal(t, "user_carol", comments[0].Author.Username)

	err = s.CreateComment(ctx, &models.Comment{IssueID: "missing", AuthorID: "carol", Content: "x"}, nil)
	assert.ErrorIs(t, err, ErrConstraint)

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Len(t, got.Comments, 1)
}

// --- Labels ---

func TestLabels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bug := &models.Label{Name: "bug", Color: "#ff0000"}
	require.NoError(t, s.CreateLabel(ctx, bug))
	ui := &models.Label{Name: "ui", Color: "#00ff00"}
	require.NoError(t, s.CreateLabel(ctx, ui))

	err := s.CreateLabel(ctx, &models.Label{Name: "bug", Color: "#000000"})
	assert.ErrorIs(t, err, ErrDuplicate)

	labels, err := s.ListLabels(ctx)
	require.NoError(t, err)
	assert.Len(t, labels, 2)

	got, err := s.GetLabelByName(ctx, "ui")
	require.NoError(t, err)
	assert.Equal(t, ui.ID, got.ID)

	_, err = s.GetLabelByName(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceIssueLabels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	issue := createTestIssue(t, s, "labelled")

	bug := &models.Label{Name: "bug", Color: "red"}
	ui := &models.Label{Name: "ui", Color: "green"}
	require.NoError(t, s.CreateLabel(ctx, bug))
	require.NoError(t, s.CreateLabel(ctx, ui))

	require.NoError(t, s.ReplaceIssueLabels(ctx, issue.ID, []string{bug.ID, ui.ID}))
	labels, err := s.GetIssueLabels(ctx, issue.ID)
	require.NoError(t, err)
	assert.Len(t, labels, 2)

	require.NoError(t, s.ReplaceIssueLabels(ctx, issue.ID, []string{ui.ID}))
	labels, err = s.GetIssueLabels(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "ui", labels[0].Name)

	// An unknown label rolls back the whole replacement
	err = s.ReplaceIssueLabels(ctx, issue.ID, []string{bug.ID, "missing"})
	assert.ErrorIs(t, err, ErrConstraint)
	labels, err = s.GetIssueLabels(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "ui", labels[0].Name)

	// Labels are attached in list results too
	list, err := s.ListIssues(ctx, IssueListFilter{}, Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Labels, 1)

	// Replacing labels does not touch the version
	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
}

// --- Reports ---

func TestClosedIssueSpans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createTestIssue(t, s, "a")
	createTestIssue(t, s, "b")

	spans, err := s.ClosedIssueSpans(ctx)
	require.NoError(t, err)
	assert.Empty(t, spans)

	time.Sleep(5 * time.Millisecond)
	_, err = s.ConditionalUpdateIssue(ctx, a.ID, 1, models.IssuePatch{Status: statusPtr(models.IssueStatusClosed)})
	require.NoError(t, err)

	spans, err = s.ClosedIssueSpans(ctx)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.True(t, spans[0].ClosedAt.After(spans[0].CreatedAt))
}

func TestCountUnresolvedByAssignee(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2", "u3", "u4"} {
		_, err := s.EnsureUser(ctx, models.SyntheticUser(id, models.DefaultUserDomain))
		require.NoError(t, err)
	}

	assign := func(assignee string, n int, status models.IssueStatus) {
		for range n {
			issue := &models.Issue{
				Title: "t", Description: "d", Status: status, Priority: models.IssuePriorityLow,
				AuthorID: "u1", AssigneeID: strPtr(assignee),
			}
			require.NoError(t, s.CreateIssue(ctx, issue, nil))
		}
	}
	assign("u1", 1, models.IssueStatusOpen)
	assign("u2", 3, models.IssueStatusInProgress)
	assign("u3", 2, models.IssueStatusOpen)
	assign("u4", 5, models.IssueStatusClosed)
	createTestIssue(t, s, "unassigned")

	counts, err := s.CountUnresolvedByAssignee(ctx, 3)
	require.NoError(t, err)
	require.Len(t, counts, 3)
	assert.Equal(t, "u2", counts[0].AssigneeID)
	assert.Equal(t, 3, counts[0].Count)
	assert.Equal(t, "user_u2", counts[0].Username)
	assert.Equal(t, "u3", counts[1].AssigneeID)
	assert.Equal(t, "u1", counts[2].AssigneeID)
}
