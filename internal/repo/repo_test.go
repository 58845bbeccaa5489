package repo

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/migrate"
)

func openTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(conn)
	require.NoError(t, err)
	return Repo{DB: conn}
}

func inTx(t *testing.T, r Repo, fn func(tx *sqlx.Tx)) {
	t.Helper()
	tx, err := r.DB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()
	fn(tx)
	require.NoError(t, tx.Commit())
}

func seedRequest(t *testing.T, r Repo) domain.TaskRequest {
	t.Helper()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cat := domain.Category{ID: "cat-1", Name: "General", Color: "grey", IsDefault: true, CreatedAt: now}
	req := domain.TaskRequest{
		ID: "req-1", Title: "t", Description: "d", CategoryID: cat.ID, Priority: domain.PriorityLow,
		Status: domain.StatusSubmitted, RequesterID: "alice", RequestDate: now, UpdatedAt: now,
	}
	ctx := context.Background()
	inTx(t, r, func(tx *sqlx.Tx) {
		require.NoError(t, r.InsertCategory(ctx, tx, cat))
		require.NoError(t, r.InsertRequest(ctx, tx, req))
	})
	return req
}

func TestConditionalUpdateWritesWhenStatusUnchanged(t *testing.T) {
	r := openTestRepo(t)
	seedRequest(t, r)
	ctx := context.Background()

	inTx(t, r, func(tx *sqlx.Tx) {
		next, err := r.ConditionalUpdate(ctx, tx, "req-1", func(cur domain.TaskRequest) (domain.TaskRequest, error) {
			cur.Status = domain.StatusAssigned
			who := "ann"
			cur.AssignerID = &who
			return cur, nil
		})
		require.NoError(t, err)
		require.Equal(t, domain.StatusAssigned, next.Status)
	})

	got, err := r.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusAssigned, got.Status)
	require.Equal(t, "ann", *got.AssignerID)
}

func TestConditionalUpdateDetectsConcurrentChange(t *testing.T) {
	r := openTestRepo(t)
	seedRequest(t, r)
	ctx := context.Background()

	tx, err := r.DB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()
	_, err = r.ConditionalUpdate(ctx, tx, "req-1", func(cur domain.TaskRequest) (domain.TaskRequest, error) {
		// a writer sharing this transaction moves the row first
		_, err := tx.ExecContext(ctx, `UPDATE task_requests SET status='CANCELLED' WHERE id=?`, cur.ID)
		require.NoError(t, err)
		cur.Status = domain.StatusAssigned
		return cur, nil
	})
	require.ErrorIs(t, err, ErrStatusMismatch)
}

func TestConditionalUpdateMissingRow(t *testing.T) {
	r := openTestRepo(t)
	tx, err := r.DB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()
	_, err = r.ConditionalUpdate(context.Background(), tx, "nope", func(cur domain.TaskRequest) (domain.TaskRequest, error) {
		t.Fatal("mutate must not run")
		return cur, nil
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSingleDefaultIndex(t *testing.T) {
	r := openTestRepo(t)
	seedRequest(t, r)
	ctx := context.Background()

	tx, err := r.DB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()
	err = r.InsertCategory(ctx, tx, domain.Category{ID: "cat-2", Name: "Other", Color: "red", IsDefault: true, CreatedAt: time.Now()})
	require.Error(t, err)
}

func TestLedgerSequence(t *testing.T) {
	r := openTestRepo(t)
	seedRequest(t, r)
	ctx := context.Background()
	now := time.Now()

	inTx(t, r, func(tx *sqlx.Tx) {
		for i, id := range []string{"c-1", "c-2"} {
			c, err := r.AppendCommentTx(ctx, tx, domain.Comment{ID: id, RequestID: "req-1", AuthorID: "bob", Content: id, CreatedAt: now})
			require.NoError(t, err)
			require.Equal(t, int64(i+1), c.Seq)
		}
		a, err := r.AppendAttachmentTx(ctx, tx, domain.Attachment{ID: "a-1", RequestID: "req-1", UploaderID: "bob", FileName: "f.txt", UploadedAt: now})
		require.NoError(t, err)
		require.Equal(t, int64(1), a.Seq)
	})

	got, err := r.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, got.Comments, 2)
	require.Equal(t, "c-1", got.Comments[0].ID)
	require.Len(t, got.Attachments, 1)
}

func TestFormatTimeSortsLexically(t *testing.T) {
	a := time.Date(2025, 1, 1, 0, 0, 5, 0, time.UTC)
	b := a.Add(100 * time.Millisecond)
	require.Less(t, formatTime(a), formatTime(b))
	parsed, err := parseTime(formatTime(b))
	require.NoError(t, err)
	require.True(t, parsed.Equal(b))
}

func TestCorruptRowsSurfaceDecodeErrors(t *testing.T) {
	r := openTestRepo(t)
	seedRequest(t, r)
	ctx := context.Background()

	inTx(t, r, func(tx *sqlx.Tx) {
		_, err := r.AppendAttachmentTx(ctx, tx, domain.Attachment{ID: "a-1", RequestID: "req-1", UploaderID: "bob", FileName: "f.txt", UploadedAt: time.Now()})
		require.NoError(t, err)
	})
	_, err := r.DB.ExecContext(ctx, `UPDATE attachments SET metadata_json='{not json' WHERE id='a-1'`)
	require.NoError(t, err)
	_, err = r.GetRequest(ctx, "req-1")
	require.ErrorContains(t, err, "attachment a-1 metadata")

	_, err = r.DB.ExecContext(ctx, `UPDATE categories SET created_at='yesterday' WHERE id='cat-1'`)
	require.NoError(t, err)
	_, err = r.ListCategories(ctx)
	require.ErrorContains(t, err, "category cat-1 created_at")
	_, err = r.GetCategory(ctx, "cat-1")
	require.Error(t, err)
}
