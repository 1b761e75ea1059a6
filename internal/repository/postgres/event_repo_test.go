package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"calendarshare/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

var (
	ts        = time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC)
	eventDate = time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	eventCols = []string{"id", "user_id", "title", "location", "date", "created_at", "updated_at"}
)

func TestEventRepository_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantID  string
		wantErr bool
		errIs   error
	}{
		{
			name: "success",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO events \(user_id, title, location, date, created_at, updated_at\)`).
					WithArgs("user-1", "Dentist", "Main St", eventDate, ts, ts).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev-uuid-1"))
			},
			wantID: "ev-uuid-1",
		},
		{
			name: "conflict returns no row",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`ON CONFLICT \(user_id, date\) DO NOTHING`).
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
			},
			wantErr: true,
			errIs:   domain.ErrDateConflict,
		},
		{
			name: "db error",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO events`).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
			errIs:   sql.ErrConnDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewEventRepository(db)
			e := domain.NewEvent("user-1", "Dentist", "Main St", eventDate, ts, ts)
			err = repo.Create(ctx, e)
			if tt.wantErr {
				require.ErrorIs(t, err, tt.errIs)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, e.ID)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		id      string
		mock    func(mock sqlmock.Sqlmock)
		want    *domain.Event
		wantErr error
	}{
		{
			name: "success",
			id:   "ev-1",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, user_id, title, location, date, created_at, updated_at FROM events WHERE id = \$1`).
					WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows(eventCols).
						AddRow("ev-1", "user-1", "Dentist", "Main St", eventDate, ts, ts))
			},
			want: &domain.Event{
				ID:        "ev-1",
				OwnerID:   "user-1",
				Title:     "Dentist",
				Location:  "Main St",
				Date:      eventDate,
				CreatedAt: ts,
				UpdatedAt: ts,
			},
		},
		{
			name: "not found",
			id:   "ev-missing",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM events WHERE id`).
					WithArgs("ev-missing").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "malformed id is not found",
			id:   "abc",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM events WHERE id`).
					WithArgs("abc").
					WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewEventRepository(db)
			got, err := repo.GetByID(ctx, tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_ListByOwnerID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	later := eventDate.Add(24 * time.Hour)
	mock.ExpectQuery(`FROM events WHERE user_id = \$1 ORDER BY date DESC`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow("ev-2", "user-1", "B", "", later, ts, ts).
			AddRow("ev-1", "user-1", "A", "", eventDate, ts, ts))

	list, err := NewEventRepository(db).ListByOwnerID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "ev-2", list[0].ID)
	require.Equal(t, "ev-1", list[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_CountByOwnerAndDate(t *testing.T) {
	ctx := context.Background()

	t.Run("without exclusion", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE user_id = \$1 AND date = \$2$`).
			WithArgs("user-1", eventDate).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		n, err := NewEventRepository(db).CountByOwnerAndDate(ctx, "user-1", eventDate, "")
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("excluding the event itself", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`AND id <> \$3`).
			WithArgs("user-1", eventDate, "ev-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		n, err := NewEventRepository(db).CountByOwnerAndDate(ctx, "user-1", eventDate, "ev-1")
		require.NoError(t, err)
		require.Equal(t, 0, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEventRepository_Save(t *testing.T) {
	ctx := context.Background()
	e := &domain.Event{ID: "ev-1", OwnerID: "user-1", Title: "Dentist", Location: "Main St", Date: eventDate, UpdatedAt: ts}

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "success",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events`).
					WithArgs("Dentist", "Main St", eventDate, ts, "ev-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "not found zero rows affected",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events`).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "unique violation returns ErrDateConflict",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events`).
					WillReturnError(&pq.Error{Code: "23505"})
			},
			wantErr: domain.ErrDateConflict,
		},
		{
			name: "malformed id returns ErrNotFound",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events`).
					WillReturnError(&pq.Error{Code: "22P02"})
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			err = NewEventRepository(db).Save(ctx, e)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_Delete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		rows    int64
		dbErr   error
		wantErr error
	}{
		{name: "success", rows: 1},
		{name: "not found", rows: 0, wantErr: domain.ErrNotFound},
		{name: "malformed id", dbErr: &pq.Error{Code: "22P02"}, wantErr: domain.ErrNotFound},
		{name: "db error", dbErr: sql.ErrConnDone, wantErr: sql.ErrConnDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			exp := mock.ExpectExec(`DELETE FROM events WHERE id = \$1`).WithArgs("ev-1")
			if tt.dbErr != nil {
				exp.WillReturnError(tt.dbErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.rows))
			}

			err = NewEventRepository(db).Delete(ctx, "ev-1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
