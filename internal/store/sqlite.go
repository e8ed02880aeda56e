package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/tracker/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Pragmas in the DSN apply to every connection the pool opens.
	// _txlock=immediate takes the write lock at BEGIN so a transaction's
	// reads and writes see one consistent snapshot.
	dsn := dbPath + "?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Ping verifies the database answers queries.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a transaction, retrying the whole transaction while
// the database is busy.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// --- Users ---

func ensureUser(ctx context.Context, ex execer, u *models.User) (bool, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	result, err := ex.ExecContext(ctx,
		`INSERT INTO users (id, username, email, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		u.ID, u.Username, u.Email, u.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("ensure user: %w", classify(err))
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// EnsureUser inserts u unless a user with the same ID already exists.
// It reports whether a row was created.
func (s *SQLiteStore) EnsureUser(ctx context.Context, u *models.User) (bool, error) {
	var created bool
	err := withRetry(ctx, func() error {
		var err error
		created, err = ensureUser(ctx, s.db, u)
		return err
	})
	return created, err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, created_at FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// --- Issues ---

const issueColumns = `i.id, i.title, i.description, i.status, i.priority, i.author_id, i.assignee_id,
	i.version, i.created_at, i.updated_at, i.closed_at,
	a.username, a.email, a.created_at,
	u.username, u.email, u.created_at`

const issueFrom = ` FROM issues i
	JOIN users a ON a.id = i.author_id
	LEFT JOIN users u ON u.id = i.assignee_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{Author: &models.User{}}
	var status, priority string
	var assigneeID, assigneeName, assigneeEmail sql.NullString
	var closedAt, assigneeCreated sql.NullTime

	if err := row.Scan(&issue.ID, &issue.Title, &issue.Description, &status, &priority,
		&issue.AuthorID, &assigneeID, &issue.Version, &issue.CreatedAt, &issue.UpdatedAt, &closedAt,
		&issue.Author.Username, &issue.Author.Email, &issue.Author.CreatedAt,
		&assigneeName, &assigneeEmail, &assigneeCreated); err != nil {
		return nil, err
	}

	issue.Status = models.IssueStatus(status)
	issue.Priority = models.IssuePriority(priority)
	issue.Author.ID = issue.AuthorID
	if closedAt.Valid {
		issue.ClosedAt = &closedAt.Time
	}
	if assigneeID.Valid {
		id := assigneeID.String
		issue.AssigneeID = &id
		issue.Assignee = &models.User{
			ID:        id,
			Username:  assigneeName.String,
			Email:     assigneeEmail.String,
			CreatedAt: assigneeCreated.Time,
		}
	}
	return issue, nil
}

// CreateIssue inserts issue. When author is non-nil it is created first if
// absent, in the same transaction.
func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue, author *models.User) error {
	if issue.ID == "" {
		issue.ID = newULID()
	}
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	issue.Version = models.InitialVersion
	issue.ClosedAt = nil
	if issue.Status == models.IssueStatusClosed {
		issue.ClosedAt = &now
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if author != nil {
			if _, err := ensureUser(ctx, tx, author); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO issues (id, title, description, status, priority, author_id, assignee_id, version, created_at, updated_at, closed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			issue.ID, issue.Title, issue.Description, string(issue.Status), string(issue.Priority),
			issue.AuthorID, issue.AssigneeID, issue.Version, issue.CreatedAt, issue.UpdatedAt, issue.ClosedAt,
		)
		if err != nil {
			return fmt.Errorf("create issue: %w", classify(err))
		}
		return nil
	})
}

// GetIssue returns the issue with its author, assignee, labels and comments.
func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := scanIssue(s.db.QueryRowContext(ctx, "SELECT "+issueColumns+issueFrom+" WHERE i.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}

	if issue.Labels, err = s.GetIssueLabels(ctx, issue.ID); err != nil {
		return nil, err
	}
	if issue.Comments, err = s.ListComments(ctx, issue.ID); err != nil {
		return nil, err
	}
	return issue, nil
}

func issueConditions(filter IssueListFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "i.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		conditions = append(conditions, "i.priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.AssigneeID != "" {
		conditions = append(conditions, "i.assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// ListIssues returns issues matching filter, newest first, with author,
// assignee and labels populated.
func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueListFilter, page Page) ([]*models.Issue, error) {
	where, args := issueConditions(filter)
	query := "SELECT " + issueColumns + issueFrom + where + " ORDER BY i.created_at DESC, i.id DESC"
	if page.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, page.Limit, page.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	_ = rows.Close()

	if err := s.attachLabels(ctx, issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// attachLabels loads labels for a page of issues with a single query.
func (s *SQLiteStore) attachLabels(ctx context.Context, issues []*models.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	byID := make(map[string]*models.Issue, len(issues))
	args := make([]any, len(issues))
	for i, issue := range issues {
		byID[issue.ID] = issue
		args[i] = issue.ID
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT il.issue_id, l.id, l.name, l.color, l.created_at FROM issue_labels il
		JOIN labels l ON l.id = il.label_id
		WHERE il.issue_id IN (`+placeholders(len(args))+`) ORDER BY l.name`, args...)
	if err != nil {
		return fmt.Errorf("list issue labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var issueID string
		l := &models.Label{}
		if err := rows.Scan(&issueID, &l.ID, &l.Name, &l.Color, &l.CreatedAt); err != nil {
			return fmt.Errorf("scan label: %w", err)
		}
		if issue := byID[issueID]; issue != nil {
			issue.Labels = append(issue.Labels, l)
		}
	}
	return rows.Err()
}

// CountIssues returns the number of issues matching filter.
func (s *SQLiteStore) CountIssues(ctx context.Context, filter IssueListFilter) (int, error) {
	where, args := issueConditions(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues i"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}
	return n, nil
}

// FindIssueIDs returns up to limit issue IDs that start with prefix.
func (s *SQLiteStore) FindIssueIDs(ctx context.Context, prefix string, limit int) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM issues WHERE id LIKE ? ESCAPE '\' ORDER BY id LIMIT ?`, escaped+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("find issue ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan issue id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// closedAtExpr keeps closed_at in step with status: set on entering CLOSED,
// preserved while CLOSED, cleared otherwise. It takes the status and the
// current time as arguments.
const closedAtExpr = "closed_at = CASE WHEN ? = 'CLOSED' THEN COALESCE(closed_at, ?) ELSE NULL END"

// ConditionalUpdateIssue applies patch and increments the version in a single
// statement that only matches the row when its version equals
// expectedVersion. It returns the number of rows changed (0 or 1).
func (s *SQLiteStore) ConditionalUpdateIssue(ctx context.Context, id string, expectedVersion int, patch models.IssuePatch) (int64, error) {
	now := time.Now().UTC()
	var sets []string
	var args []any

	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?", closedAtExpr)
		args = append(args, string(*patch.Status), string(*patch.Status), now)
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*patch.Priority))
	}
	if patch.AssigneeSet {
		sets = append(sets, "assignee_id = ?")
		args = append(args, patch.AssigneeID)
	}
	sets = append(sets, "version = version + 1", "updated_at = ?")
	args = append(args, now, id, expectedVersion)

	query := "UPDATE issues SET " + strings.Join(sets, ", ") + " WHERE id = ? AND version = ?"

	var n int64
	err := withRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update issue: %w", classify(err))
	}
	return n, nil
}

// BulkUpdateIssueStatus sets status on every issue in ids and increments
// each version. If any id does not exist nothing is written and the error
// wraps ErrIncompleteSet.
func (s *SQLiteStore) BulkUpdateIssueStatus(ctx context.Context, ids []string, status models.IssueStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	idArgs := make([]any, len(ids))
	for i, id := range ids {
		idArgs[i] = id
	}
	in := placeholders(len(ids))

	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var found int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM issues WHERE id IN ("+in+")", idArgs...).Scan(&found); err != nil {
			return fmt.Errorf("count issues: %w", err)
		}
		if found < len(ids) {
			return fmt.Errorf("%w: found %d/%d", ErrIncompleteSet, found, len(ids))
		}

		now := time.Now().UTC()
		args := append([]any{string(status), string(status), now, now}, idArgs...)
		result, err := tx.ExecContext(ctx,
			"UPDATE issues SET status = ?, "+closedAtExpr+", version = version + 1, updated_at = ? WHERE id IN ("+in+")",
			args...)
		if err != nil {
			return fmt.Errorf("bulk update issue status: %w", classify(err))
		}
		n, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// --- Comments ---

// CreateComment inserts c. When author is non-nil it is created first if
// absent, in the same transaction.
func (s *SQLiteStore) CreateComment(ctx context.Context, c *models.Comment, author *models.User) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	c.CreatedAt = time.Now().UTC()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if author != nil {
			if _, err := ensureUser(ctx, tx, author); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO comments (id, issue_id, author_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.IssueID, c.AuthorID, c.Content, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create comment: %w", classify(err))
		}
		return nil
	})
}

// ListComments returns an issue's comments, oldest first.
func (s *SQLiteStore) ListComments(ctx context.Context, issueID string) ([]*models.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.issue_id, c.author_id, c.content, c.created_at, u.username, u.email, u.created_at
		FROM comments c JOIN users u ON u.id = c.author_id
		WHERE c.issue_id = ? ORDER BY c.created_at, c.id`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []*models.Comment
	for rows.Next() {
		c := &models.Comment{Author: &models.User{}}
		if err := rows.Scan(&c.ID, &c.IssueID, &c.AuthorID, &c.Content, &c.CreatedAt,
			&c.Author.Username, &c.Author.Email, &c.Author.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.Author.ID = c.AuthorID
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// --- Labels ---

func (s *SQLiteStore) CreateLabel(ctx context.Context, label *models.Label) error {
	if label.ID == "" {
		label.ID = newULID()
	}
	label.CreatedAt = time.Now().UTC()

	err := withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO labels (id, name, color, created_at) VALUES (?, ?, ?, ?)`,
			label.ID, label.Name, label.Color, label.CreatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("create label: %w", classify(err))
	}
	return nil
}

func (s *SQLiteStore) ListLabels(ctx context.Context) ([]*models.Label, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, color, created_at FROM labels ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanLabels(rows)
}

func (s *SQLiteStore) GetLabelByName(ctx context.Context, name string) (*models.Label, error) {
	l := &models.Label{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, color, created_at FROM labels WHERE name = ?", name,
	).Scan(&l.ID, &l.Name, &l.Color, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("label %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get label: %w", err)
	}
	return l, nil
}

// ReplaceIssueLabels swaps the issue's label set for labelIDs in one
// transaction: every existing association is deleted, then the new ones are
// inserted.
func (s *SQLiteStore) ReplaceIssueLabels(ctx context.Context, issueID string, labelIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM issue_labels WHERE issue_id = ?", issueID); err != nil {
			return fmt.Errorf("clear issue labels: %w", err)
		}
		for _, labelID := range labelIDs {
			_, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO issue_labels (issue_id, label_id) VALUES (?, ?)", issueID, labelID)
			if err != nil {
				return fmt.Errorf("label issue: %w", classify(err))
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetIssueLabels(ctx context.Context, issueID string) ([]*models.Label, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id, l.name, l.color, l.created_at FROM labels l
		JOIN issue_labels il ON il.label_id = l.id
		WHERE il.issue_id = ? ORDER BY l.name`, issueID)
	if err != nil {
		return nil, fmt.Errorf("get issue labels: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanLabels(rows)
}

func scanLabels(rows *sql.Rows) ([]*models.Label, error) {
	var labels []*models.Label
	for rows.Next() {
		l := &models.Label{}
		if err := rows.Scan(&l.ID, &l.Name, &l.Color, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// --- Reports ---

// ClosedIssueSpans returns creation and close times of every closed issue.
func (s *SQLiteStore) ClosedIssueSpans(ctx context.Context) ([]IssueSpan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT created_at, updated_at, closed_at FROM issues WHERE status = 'CLOSED'`)
	if err != nil {
		return nil, fmt.Errorf("list closed issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var spans []IssueSpan
	for rows.Next() {
		var sp IssueSpan
		var closedAt sql.NullTime
		if err := rows.Scan(&sp.CreatedAt, &sp.ClosedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scan closed issue: %w", err)
		}
		if closedAt.Valid {
			sp.ClosedAt = closedAt.Time
		}
		spans = append(spans, sp)
	}
	return spans, rows.Err()
}

// CountUnresolvedByAssignee groups issues that are not CLOSED by assignee
// and returns the limit largest groups. Unassigned issues are excluded.
func (s *SQLiteStore) CountUnresolvedByAssignee(ctx context.Context, limit int) ([]AssigneeCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.assignee_id, COALESCE(u.username, ''), COUNT(*) AS n
		FROM issues i LEFT JOIN users u ON u.id = i.assignee_id
		WHERE i.assignee_id IS NOT NULL AND i.status <> 'CLOSED'
		GROUP BY i.assignee_id
		ORDER BY n DESC, i.assignee_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("count issues by assignee: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []AssigneeCount
	for rows.Next() {
		var c AssigneeCount
		if err := rows.Scan(&c.AssigneeID, &c.Username, &c.Count); err != nil {
			return nil, fmt.Errorf("scan assignee count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
