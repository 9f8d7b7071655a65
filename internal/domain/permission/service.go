package permission

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pptmaker/pptmaker-api/internal/pkg/metrics"
)

// Service answers relationship checks over the tuple store.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Grant writes the tuple. Granting an existing tuple is a no-op.
func (s *Service) Grant(ctx context.Context, t Tuple) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.repo.Insert(ctx, t)
}

// GrantTx writes the tuple inside a caller-owned transaction.
func (s *Service) GrantTx(ctx context.Context, tx *sqlx.Tx, t Tuple) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.repo.InsertTx(ctx, tx, t)
}

// Revoke removes the tuple. Revoking a missing tuple is a no-op.
func (s *Service) Revoke(ctx context.Context, t Tuple) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.repo.Delete(ctx, t)
}

// RevokeAdmin removes userID's global admin tuple. The last admin cannot be
// revoked, even under concurrent revocations.
func (s *Service) RevokeAdmin(ctx context.Context, userID uuid.UUID) error {
	err := s.repo.DeleteUnlessLast(ctx, AdminTuple(userID))
	switch {
	case errors.Is(err, ErrTupleNotFound):
		return ErrNotAdmin
	case errors.Is(err, ErrLastSubject):
		return ErrLastAdmin
	}
	return err
}

// RemoveObject drops every tuple on an object, e.g. when it is deleted.
func (s *Service) RemoveObject(ctx context.Context, tx *sqlx.Tx, namespace, objectID string) error {
	return s.repo.DeleteObject(ctx, tx, namespace, objectID)
}

// Check reports whether exactly this tuple exists.
func (s *Service) Check(ctx context.Context, t Tuple) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}
	ok, err := s.repo.ExistsAny(ctx, t.Namespace, t.ObjectID, []string{t.Relation}, t.SubjectType, t.SubjectID)
	record(t.Namespace, ok, err)
	return ok, err
}

// CheckPresentation reports whether userID holds relation on the presentation,
// directly or through a stronger relation.
func (s *Service) CheckPresentation(ctx context.Context, userID, presentationID uuid.UUID, relation string) (bool, error) {
	relations := Satisfying(relation)
	if relations == nil {
		return false, ErrInvalidRelation
	}
	if userID == uuid.Nil {
		return false, nil
	}
	ok, err := s.repo.ExistsAny(ctx, NamespacePresentation, presentationID.String(), relations, SubjectUser, userID.String())
	record(NamespacePresentation, ok, err)
	return ok, err
}

// IsAdmin reports whether userID holds the global admin relation.
func (s *Service) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	return s.Check(ctx, AdminTuple(userID))
}

// RequireAdmin returns ErrUnauthorized for anonymous callers and ErrForbidden
// for authenticated non-admins.
func (s *Service) RequireAdmin(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return ErrUnauthorized
	}
	ok, err := s.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// CheckAdmins resolves the admin flag of many users with one query. Every
// requested id is present in the result.
func (s *Service) CheckAdmins(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	result := make(map[uuid.UUID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	subjects := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		result[id] = false
		subjects = append(subjects, id.String())
	}

	found, err := s.repo.FilterSubjects(ctx, NamespaceSystem, ObjectGlobal, RelationAdmin, SubjectUser, subjects)
	if err != nil {
		return nil, err
	}
	for _, sid := range found {
		if id, err := uuid.Parse(sid); err == nil {
			if _, requested := result[id]; requested {
				result[id] = true
			}
		}
	}
	return result, nil
}

// ListSubjects returns every tuple on an object.
func (s *Service) ListSubjects(ctx context.Context, namespace, objectID string) ([]Tuple, error) {
	return s.repo.ListByObject(ctx, namespace, objectID)
}

// ListAdmins returns the ids of all global admins.
func (s *Service) ListAdmins(ctx context.Context) ([]uuid.UUID, error) {
	tuples, err := s.repo.ListByObject(ctx, NamespaceSystem, ObjectGlobal)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(tuples))
	for _, t := range tuples {
		if t.Relation != RelationAdmin || t.SubjectType != SubjectUser {
			continue
		}
		if id, err := uuid.Parse(t.SubjectID); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// AccessiblePresentations returns the presentations userID can at least view.
func (s *Service) AccessiblePresentations(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	objects, err := s.repo.ListObjects(ctx, NamespacePresentation, Satisfying(RelationViewer), SubjectUser, userID.String())
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(objects))
	for _, o := range objects {
		if id, err := uuid.Parse(o); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func record(namespace string, allowed bool, err error) {
	result := "denied"
	switch {
	case err != nil:
		result = "error"
	case allowed:
		result = "allowed"
	}
	metrics.PermissionChecksTotal.WithLabelValues(namespace, result).Inc()
}
