package permission

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Repository stores relation tuples.
type Repository interface {
	Insert(ctx context.Context, t Tuple) error
	InsertTx(ctx context.Context, tx *sqlx.Tx, t Tuple) error
	Delete(ctx context.Context, t Tuple) error
	DeleteUnlessLast(ctx context.Context, t Tuple) error
	DeleteObject(ctx context.Context, tx *sqlx.Tx, namespace, objectID string) error
	ExistsAny(ctx context.Context, namespace, objectID string, relations []string, subjectType, subjectID string) (bool, error)
	FilterSubjects(ctx context.Context, namespace, objectID, relation, subjectType string, subjectIDs []string) ([]string, error)
	ListByObject(ctx context.Context, namespace, objectID string) ([]Tuple, error)
	ListObjects(ctx context.Context, namespace string, relations []string, subjectType, subjectID string) ([]string, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the Postgres tuple store
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const insertTuple = `
	INSERT INTO relation_tuples (namespace, object_id, relation, subject_type, subject_id)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT DO NOTHING
`

func (r *repository) Insert(ctx context.Context, t Tuple) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, insertTuple, t.Namespace, t.ObjectID, t.Relation, t.SubjectType, t.SubjectID); err != nil {
		return fmt.Errorf("%w: insert tuple: %v", ErrInternal, err)
	}
	return nil
}

func (r *repository) InsertTx(ctx context.Context, tx *sqlx.Tx, t Tuple) error {
	if _, err := tx.ExecContext(ctx, insertTuple, t.Namespace, t.ObjectID, t.Relation, t.SubjectType, t.SubjectID); err != nil {
		return fmt.Errorf("%w: insert tuple: %v", ErrInternal, err)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, t Tuple) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		DELETE FROM relation_tuples
		WHERE namespace = $1 AND object_id = $2 AND relation = $3 AND subject_type = $4 AND subject_id = $5
	`
	if _, err := r.db.ExecContext(ctx, query, t.Namespace, t.ObjectID, t.Relation, t.SubjectType, t.SubjectID); err != nil {
		return fmt.Errorf("%w: delete tuple: %v", ErrInternal, err)
	}
	return nil
}

// DeleteUnlessLast removes t unless it is the only subject of its type left
// on the object's relation. Callers on the same relation are serialized by a
// transaction-scoped advisory lock.
func (r *repository) DeleteUnlessLast(ctx context.Context, t Tuple) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	defer tx.Rollback()

	lockKey := t.Namespace + ":" + t.ObjectID + "#" + t.Relation
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return fmt.Errorf("%w: lock relation: %v", ErrInternal, err)
	}

	var subjects []string
	err = tx.SelectContext(ctx, &subjects, `
		SELECT subject_id FROM relation_tuples
		WHERE namespace = $1 AND object_id = $2 AND relation = $3 AND subject_type = $4
	`, t.Namespace, t.ObjectID, t.Relation, t.SubjectType)
	if err != nil {
		return fmt.Errorf("%w: list subjects: %v", ErrInternal, err)
	}

	found := false
	for _, id := range subjects {
		if id == t.SubjectID {
			found = true
			break
		}
	}
	if !found {
		return ErrTupleNotFound
	}
	if len(subjects) <= 1 {
		return ErrLastSubject
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM relation_tuples
		WHERE namespace = $1 AND object_id = $2 AND relation = $3 AND subject_type = $4 AND subject_id = $5
	`, t.Namespace, t.ObjectID, t.Relation, t.SubjectType, t.SubjectID)
	if err != nil {
		return fmt.Errorf("%w: delete tuple: %v", ErrInternal, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrInternal, err)
	}
	return nil
}

func (r *repository) DeleteObject(ctx context.Context, tx *sqlx.Tx, namespace, objectID string) error {
	query := `DELETE FROM relation_tuples WHERE namespace = $1 AND object_id = $2`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, namespace, objectID)
	} else {
		_, err = r.db.ExecContext(ctx, query, namespace, objectID)
	}
	if err != nil {
		return fmt.Errorf("%w: delete object tuples: %v", ErrInternal, err)
	}
	return nil
}

func (r *repository) ExistsAny(ctx context.Context, namespace, objectID string, relations []string, subjectType, subjectID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT EXISTS(
			SELECT 1 FROM relation_tuples
			WHERE namespace = $1 AND object_id = $2 AND relation = ANY($3)
			  AND subject_type = $4 AND subject_id = $5
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, namespace, objectID, pq.StringArray(relations), subjectType, subjectID); err != nil {
		return false, fmt.Errorf("%w: check tuple: %v", ErrInternal, err)
	}
	return exists, nil
}

func (r *repository) FilterSubjects(ctx context.Context, namespace, objectID, relation, subjectType string, subjectIDs []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT subject_id FROM relation_tuples
		WHERE namespace = $1 AND object_id = $2 AND relation = $3
		  AND subject_type = $4 AND subject_id = ANY($5)
	`
	var found []string
	if err := r.db.SelectContext(ctx, &found, query, namespace, objectID, relation, subjectType, pq.StringArray(subjectIDs)); err != nil {
		return nil, fmt.Errorf("%w: filter subjects: %v", ErrInternal, err)
	}
	return found, nil
}

func (r *repository) ListByObject(ctx context.Context, namespace, objectID string) ([]Tuple, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT namespace, object_id, relation, subject_type, subject_id, created_at
		FROM relation_tuples
		WHERE namespace = $1 AND object_id = $2
		ORDER BY created_at, relation, subject_id
	`
	tuples := []Tuple{}
	if err := r.db.SelectContext(ctx, &tuples, query, namespace, objectID); err != nil {
		return nil, fmt.Errorf("%w: list tuples: %v", ErrInternal, err)
	}
	return tuples, nil
}

func (r *repository) ListObjects(ctx context.Context, namespace string, relations []string, subjectType, subjectID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT DISTINCT object_id FROM relation_tuples
		WHERE namespace = $1 AND relation = ANY($2) AND subject_type = $3 AND subject_id = $4
	`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, namespace, pq.StringArray(relations), subjectType, subjectID); err != nil {
		return nil, fmt.Errorf("%w: list objects: %v", ErrInternal, err)
	}
	return ids, nil
}
