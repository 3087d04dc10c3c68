package targets

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreateMany(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+post_targets\s*\(post_id,\s*account_id,\s*status\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*RETURNING\s+id$`
	mock.ExpectQuery(q).WithArgs("p1", "fb", "SCHEDULED").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))
	mock.ExpectQuery(q).WithArgs("p1", "li", "SCHEDULED").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t2"))

	got, err := repo.CreateMany(context.Background(), "p1", []string{"fb", "li"}, models.StatusScheduled)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.Target{ID: "t1", PostID: "p1", AccountID: "fb", Status: models.StatusScheduled}, got[0])
	assert.Equal(t, "t2", got[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMany_StopsOnError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+post_targets`).WillReturnError(errors.New("fk violation"))

	_, err := repo.CreateMany(context.Background(), "p1", []string{"x", "y"}, models.StatusDraft)
	if err == nil || !regexp.MustCompile(`db error: .*fk violation`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByPost(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "post_id", "account_id", "status", "platform_post_id", "error_message", "published_at"}).
		AddRow("t1", "p1", "fb", "PUBLISHED", "fb_1", nil, at).
		AddRow("t2", "p1", "li", "FAILED", nil, "token expired", nil)
	mock.ExpectQuery(`(?s)FROM\s+post_targets\s+WHERE\s+post_id\s*=\s*\$1`).WithArgs("p1").WillReturnRows(rows)

	got, err := repo.ListByPost(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fb_1", *got[0].PlatformPostID)
	assert.Nil(t, got[0].ErrorMessage)
	assert.Equal(t, models.StatusFailed, got[1].Status)
	assert.Equal(t, "token expired", *got[1].ErrorMessage)
	assert.Nil(t, got[1].PublishedAt)
}

func TestMarkPublishedAndFailed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)^UPDATE\s+post_targets\s+SET\s+status\s*=\s*'PUBLISHED',\s*platform_post_id\s*=\s*\$2,\s*published_at\s*=\s*\$3.*WHERE\s+id\s*=\s*\$1\s+AND\s+status\s*=\s*'SCHEDULED'$`).
		WithArgs("t1", "fb_1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^UPDATE\s+post_targets\s+SET\s+status\s*=\s*'FAILED',\s*error_message\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+status\s*=\s*'SCHEDULED'$`).
		WithArgs("t2", "token expired").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET\s+status\s*=\s*'FAILED'`).
		WithArgs("t3", "late").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkPublished(context.Background(), "t1", "fb_1", at))
	require.NoError(t, repo.MarkFailed(context.Background(), "t2", "token expired"))
	assert.ErrorIs(t, repo.MarkFailed(context.Background(), "t3", "late"), common.ErrStatusConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetFailed_OnlyFailedTargets(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+post_targets\s+SET\s+status\s*=\s*'SCHEDULED',\s*error_message\s*=\s*NULL\s+WHERE\s+post_id\s*=\s*\$1\s+AND\s+status\s*=\s*'FAILED'$`).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.ResetFailed(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSetStatusByPost(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^UPDATE\s+post_targets\s+SET\s+status\s*=\s*\$2`).WithArgs("p1", "PENDING_REVIEW").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.SetStatusByPost(context.Background(), "p1", models.StatusPendingReview))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+post_targets\s+WHERE\s+id\s*=\s*\$1$`).WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^DELETE\s+FROM\s+post_targets`).WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^DELETE\s+FROM\s+post_targets`).WillReturnError(errors.New("down"))

	require.NoError(t, repo.Delete(context.Background(), "t1"))
	require.ErrorIs(t, repo.Delete(context.Background(), "gone"), common.ErrStatusConflict)
	require.ErrorContains(t, repo.Delete(context.Background(), "t2"), "db error")
}

func TestListPublished(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "post_id", "account_id", "platform", "platform_post_id", "access_token", "published_at"}
	mock.ExpectQuery(`(?s)JOIN\s+social_accounts\s+a\s+ON\s+a\.id\s*=\s*t\.account_id\s+WHERE\s+t\.status\s*=\s*'PUBLISHED'.*ORDER\s+BY\s+t\.published_at\s+DESC$`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("t1", "p1", "fb", "facebook", "fb_1", "enc:v1:xyz", at))

	got, err := repo.ListPublished(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.PlatformFacebook, got[0].Platform)
	assert.Equal(t, "enc:v1:xyz", got[0].AccessToken)

	missing := "5c4b3a29-1807-4f6e-9d5c-4b3a29180706"
	mock.ExpectQuery(`AND\s+t\.id\s*=\s*\$1$`).WithArgs(missing).WillReturnError(sql.ErrNoRows)
	_, err = repo.GetPublished(context.Background(), missing)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.GetPublished(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
