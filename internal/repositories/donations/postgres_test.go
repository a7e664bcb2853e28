package donations

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/esimrouter/internal/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

const (
	pendingQuery   = `(?s)^\s*SELECT\s+d\.id,.*FROM\s+donations\s+d\s+LEFT\s+JOIN\s+attachments\s+a.*WHERE\s+NOT\s+d\.ingested`
	statusQuery    = `(?s)^\s*UPDATE\s+donations\s+SET\s+ingested\s*=\s*\$2.*WHERE\s+id\s*=\s*\$1`
	duplicateQuery = `(?s)^\s*UPDATE\s+donations\s+SET\s+is_duplicate\s*=\s*TRUE.*COALESCE\(\$3,\s*original_donation_id\).*WHERE\s+id\s*=\s*\$1`
)

func TestFetchPending_GroupsAttachments(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cols := []string{"id", "provider_id", "contact_email", "id", "type", "filename", "url"}
	mock.ExpectQuery(pendingQuery).WillReturnRows(sqlmock.NewRows(cols).
		AddRow("D1", "P", "a@example.org", "a1", "image/png", "a.png", "https://f/a1").
		AddRow("D1", "P", "a@example.org", "a2", "application/pdf", "b.pdf", "https://f/a2").
		AddRow("D2", "P", "", nil, nil, nil, nil).
		AddRow("D3", "Q", "c@example.org", "c1", "image/jpeg", "c.jpg", "https://f/c1"))

	got, err := repo.FetchPending(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []models.Donation{
		{ID: "D1", ProviderID: "P", ContactEmail: "a@example.org", Attachments: []models.Attachment{
			{ID: "a1", Type: "image/png", Filename: "a.png", URL: "https://f/a1"},
			{ID: "a2", Type: "application/pdf", Filename: "b.pdf", URL: "https://f/a2"},
		}},
		{ID: "D2", ProviderID: "P"},
		{ID: "D3", ProviderID: "Q", ContactEmail: "c@example.org", Attachments: []models.Attachment{
			{ID: "c1", Type: "image/jpeg", Filename: "c.jpg", URL: "https://f/c1"},
		}},
	}, got)
}

func TestFetchPending_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(pendingQuery).WillReturnError(errors.New("conn refused"))
	_, err := repo.FetchPending(context.Background())
	assert.ErrorContains(t, err, "db error: conn refused")
}

func TestSaveStatuses_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(statusQuery).
		WithArgs("D1", true, false, true, false, false, false, false, false, false, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(statusQuery).
		WithArgs("D2", true, false, false, false, false, false, false, true, true, "D1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(statusQuery).
		WithArgs("D3", true, false, false, false, false, false, false, true, false, "D3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveStatuses(context.Background(), []models.DonationStatus{
		{DonationID: "D1", Flags: models.Flags{Ingested: true, InvalidType: true}},
		{DonationID: "D2", Flags: models.Flags{Ingested: true, Duplicate: true, DifferentEmail: true}, Original: models.OriginalOf("D1")},
		{DonationID: "D3", Flags: models.Flags{Ingested: true, Duplicate: true}, Original: models.SelfOriginal()},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveStatuses_NoRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(statusQuery).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.SaveStatuses(context.Background(), []models.DonationStatus{{DonationID: "missing"}})
	assert.ErrorContains(t, err, "unexpected rows affected: 0")
}

func TestSaveStatuses_RowsAffectedError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(statusQuery).WillReturnResult(sqlmock.NewErrorResult(errors.New("driver")))
	err := repo.SaveStatuses(context.Background(), []models.DonationStatus{{DonationID: "D1"}})
	assert.ErrorContains(t, err, "rows affected error")
}

func TestMarkDuplicates(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(duplicateQuery).WithArgs("D2", true, "D1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(duplicateQuery).WithArgs("D4", false, nil).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkDuplicates(context.Background(), []models.DuplicateUpdate{
		{DonationID: "D2", Original: models.OriginalOf("D1"), DifferentEmail: true},
		{DonationID: "D4", Original: models.NoOriginal()},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDuplicates_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(duplicateQuery).WillReturnError(errors.New("deadlock"))
	err := repo.MarkDuplicates(context.Background(), []models.DuplicateUpdate{{DonationID: "D2"}})
	assert.ErrorContains(t, err, "db error: deadlock")
}
