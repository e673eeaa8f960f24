package adapter

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseSQLAdapter_Close(t *testing.T) {
	tests := []struct {
		name    string
		setupDB bool
	}{
		{name: "close with nil DB", setupDB: false},
		{name: "close with open DB", setupDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectClose()
				base.DB = db
			}

			assert.NoError(t, base.Close())
			assert.False(t, base.IsConnected())
		})
	}
}

func TestBaseSQLAdapter_Exec(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		wantRows  int64
		expectErr bool
		errMsg    string
	}{
		{
			name:      "exec without connection",
			setupDB:   false,
			sql:       "SELECT 1",
			expectErr: true,
			errMsg:    "database connection not established",
		},
		{
			name:    "exec commits",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 3))
				mock.ExpectCommit()
			},
			sql:      "INSERT INTO users SELECT * FROM staging_events",
			wantRows: 3,
		},
		{
			name:    "exec error rolls back",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
			sql:       "INVALID SQL",
			expectErr: true,
			errMsg:    "failed to execute SQL",
		},
		{
			name:    "commit failure is reported",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("CREATE TABLE songs").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit().WillReturnError(assert.AnError)
			},
			sql:       "CREATE TABLE songs (song_id VARCHAR)",
			expectErr: true,
			errMsg:    "failed to commit transaction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			base := &BaseSQLAdapter{}

			var mock sqlmock.Sqlmock
			if tt.setupDB {
				db, m, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()
				mock = m

				if tt.setupMock != nil {
					tt.setupMock(mock)
				}
				base.DB = db
			}

			rows, err := base.Exec(ctx, tt.sql)
			if tt.expectErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantRows, rows)
			}

			if mock != nil {
				assert.NoError(t, mock.ExpectationsWereMet())
			}
		})
	}
}

func TestBaseSQLAdapter_InTx(t *testing.T) {
	t.Run("all statements share one transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectBegin()
		mock.ExpectExec("DROP TABLE IF EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DROP TABLE IF EXISTS songs").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		base := &BaseSQLAdapter{DB: db}
		err = base.InTx(context.Background(), func(tx Execer) error {
			if _, err := tx.Exec(context.Background(), "DROP TABLE IF EXISTS users"); err != nil {
				return err
			}
			_, err := tx.Exec(context.Background(), "DROP TABLE IF EXISTS songs")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("callback error rolls back and is returned unchanged", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectBegin()
		mock.ExpectRollback()

		base := &BaseSQLAdapter{DB: db}
		err = base.InTx(context.Background(), func(Execer) error {
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBaseSQLAdapter_Query(t *testing.T) {
	t.Run("query without connection", func(t *testing.T) {
		base := &BaseSQLAdapter{}
		_, err := base.Query(context.Background(), "SELECT 1")
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("query success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery("SELECT user_id").WillReturnRows(
			sqlmock.NewRows([]string{"user_id", "level"}).AddRow("7", "paid").AddRow("9", "free"),
		)

		base := &BaseSQLAdapter{DB: db}
		rows, err := base.Query(context.Background(), "SELECT user_id, level FROM users")
		require.NoError(t, err)
		defer func() { _ = rows.Close() }()

		count := 0
		for rows.Next() {
			count++
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, 2, count)
	})

	t.Run("query with error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery("INVALID").WillReturnError(assert.AnError)

		base := &BaseSQLAdapter{DB: db}
		_, err = base.Query(context.Background(), "INVALID")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to execute query")
	})
}

func TestBaseSQLAdapter_CountRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM staging_events`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM staging_songs`).WillReturnError(assert.AnError)

	base := &BaseSQLAdapter{DB: db}

	n, err := base.CountRows(context.Background(), "staging_events")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = base.CountRows(context.Background(), "staging_songs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging_songs")
}

func TestBaseSQLAdapter_Ping(t *testing.T) {
	base := &BaseSQLAdapter{}
	assert.ErrorIs(t, base.Ping(context.Background()), ErrNotConnected)
}
