package permission

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestRepositoryInsertIgnoresConflicts(t *testing.T) {
	repo, mock := newMockRepo(t)
	tuple := Tuple{Namespace: "system", ObjectID: "global", Relation: "admin", SubjectType: "user", SubjectID: "u1"}

	mock.ExpectExec(`INSERT INTO relation_tuples .* ON CONFLICT DO NOTHING`).
		WithArgs("system", "global", "admin", "user", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Insert(context.Background(), tuple))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryExistsAny(t *testing.T) {
	repo, mock := newMockRepo(t)
	relations := []string{"viewer", "editor", "owner"}

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("presentation", "p1", pq.StringArray(relations), "user", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.ExistsAny(context.Background(), "presentation", "p1", relations, "user", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryFilterSubjectsSingleQuery(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT subject_id FROM relation_tuples .* subject_id = ANY\(\$5\)`).
		WithArgs("system", "global", "admin", "user", pq.StringArray{"a", "b", "c"}).
		WillReturnRows(sqlmock.NewRows([]string{"subject_id"}).AddRow("b"))

	found, err := repo.FilterSubjects(context.Background(), "system", "global", "admin", "user", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryWrapsErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`DELETE FROM relation_tuples`).WillReturnError(assert.AnError)

	err := repo.Delete(context.Background(), Tuple{Namespace: "a", ObjectID: "b", Relation: "c", SubjectType: "d", SubjectID: "e"})
	assert.ErrorIs(t, err, ErrInternal)
}

func TestRepositoryDeleteUnlessLast(t *testing.T) {
	tuple := Tuple{Namespace: "system", ObjectID: "global", Relation: "admin", SubjectType: "user", SubjectID: "u1"}

	cases := []struct {
		name     string
		subjects []string
		want     error
	}{
		{"deletes when others remain", []string{"u1", "u2"}, nil},
		{"keeps the last subject", []string{"u1"}, ErrLastSubject},
		{"missing tuple", []string{"u2", "u3"}, ErrTupleNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			rows := sqlmock.NewRows([]string{"subject_id"})
			for _, id := range tc.subjects {
				rows.AddRow(id)
			}

			mock.ExpectBegin()
			mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
				WithArgs("system:global#admin").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`SELECT subject_id FROM relation_tuples`).
				WithArgs("system", "global", "admin", "user").
				WillReturnRows(rows)
			if tc.want == nil {
				mock.ExpectExec(`DELETE FROM relation_tuples`).
					WithArgs("system", "global", "admin", "user", "u1").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			err := repo.DeleteUnlessLast(context.Background(), tuple)
			if tc.want == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.want)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
