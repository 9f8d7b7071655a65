package permission

import (
	"time"

	"github.com/google/uuid"
)

// Well-known namespaces, objects, relations and subject types.
const (
	NamespaceSystem       = "system"
	NamespacePresentation = "presentation"

	ObjectGlobal = "global"

	RelationAdmin  = "admin"
	RelationOwner  = "owner"
	RelationEditor = "editor"
	RelationViewer = "viewer"

	SubjectUser = "user"
)

// Tuple states that subject has relation on object.
type Tuple struct {
	Namespace   string    `json:"namespace" db:"namespace"`
	ObjectID    string    `json:"object_id" db:"object_id"`
	Relation    string    `json:"relation" db:"relation"`
	SubjectType string    `json:"subject_type" db:"subject_type"`
	SubjectID   string    `json:"subject_id" db:"subject_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// AdminTuple is the tuple that makes userID a global admin.
func AdminTuple(userID uuid.UUID) Tuple {
	return Tuple{
		Namespace:   NamespaceSystem,
		ObjectID:    ObjectGlobal,
		Relation:    RelationAdmin,
		SubjectType: SubjectUser,
		SubjectID:   userID.String(),
	}
}

// PresentationTuple grants userID relation on a presentation.
func PresentationTuple(presentationID uuid.UUID, relation string, userID uuid.UUID) Tuple {
	return Tuple{
		Namespace:   NamespacePresentation,
		ObjectID:    presentationID.String(),
		Relation:    relation,
		SubjectType: SubjectUser,
		SubjectID:   userID.String(),
	}
}

// Validate checks that every key column is set and that presentation tuples
// use a known relation.
func (t Tuple) Validate() error {
	if t.Namespace == "" || t.ObjectID == "" || t.Relation == "" || t.SubjectType == "" || t.SubjectID == "" {
		return ErrInvalidTuple
	}
	if t.Namespace == NamespacePresentation {
		if _, ok := impliedBy[t.Relation]; !ok {
			return ErrInvalidRelation
		}
	}
	return nil
}

// impliedBy lists, for each presentation relation, the relations that satisfy it.
var impliedBy = map[string][]string{
	RelationViewer: {RelationViewer, RelationEditor, RelationOwner},
	RelationEditor: {RelationEditor, RelationOwner},
	RelationOwner:  {RelationOwner},
}

// Satisfying returns the relations that grant relation under the
// owner > editor > viewer hierarchy.
func Satisfying(relation string) []string {
	return impliedBy[relation]
}
