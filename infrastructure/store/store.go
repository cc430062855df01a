package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidPath = errors.New("invalid document path")
)

// Snapshot is a point-in-time view of a document as delivered by a
// subscription or a one-shot read. A missing document is a valid
// snapshot with Exists=false, never an error.
type Snapshot struct {
	Path   string
	Exists bool
	Data   bson.M
}

// Decode unmarshals the snapshot data into v. Decoding a missing
// snapshot returns ErrNotFound.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return ErrNotFound
	}
	raw, err := bson.Marshal(s.Data)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, v)
}

// FieldValue is a single field filter used in collection queries.
type FieldValue struct {
	Field string
	Value any
}

// Query shapes a collection watch: Equals is an equality filter,
// Contains matches documents whose array field holds the value, and
// OrderBy/Descending fix the delivery order of the result set.
type Query struct {
	Equals     *FieldValue
	Contains   *FieldValue
	OrderBy    string
	Descending bool
}

// Store is a subscription-capable document store. Watch channels get an
// initial snapshot immediately and one snapshot per subsequent change;
// delivery is ordered per path but carries no ordering guarantee across
// independent paths. The returned func unsubscribes and closes the
// channel; a snapshot arriving after unsubscribe is dropped, never
// delivered.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set writes a document. With merge=true the write upserts and
	// merges field by field (dotted keys address nested fields, and
	// ArrayUnion/ArrayRemove values keep set semantics); with
	// merge=false it replaces the document.
	Set(ctx context.Context, path string, data bson.M, merge bool) error

	// Update applies a merge patch to an existing document and fails
	// with ErrNotFound when the document is absent.
	Update(ctx context.Context, path string, patch bson.M) error

	WatchDoc(ctx context.Context, path string) (<-chan Snapshot, func(), error)
	WatchCollection(ctx context.Context, path string, query Query) (<-chan []Snapshot, func(), error)
}

type arrayUnion struct{ values []any }

type arrayRemove struct{ values []any }

// ArrayUnion marks a patch value as a set-union append: each value is
// added only if not already present.
func ArrayUnion(values ...any) any { return arrayUnion{values: values} }

// ArrayRemove marks a patch value as a set removal.
func ArrayRemove(values ...any) any { return arrayRemove{values: values} }

// docPath splits "collection/id" into its parts.
func docPath(path string) (collection, id string, err error) {
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return parts[0], parts[1], nil
}

// collectionPath validates a bare collection path.
func collectionPath(path string) (string, error) {
	if path == "" || strings.Contains(path, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return path, nil
}

// collectionOf returns the collection a document path belongs to.
func collectionOf(path string) string {
	if i := strings.IndexByte(path, '/'); i > 0 {
		return path[:i]
	}
	return path
}

// DocPath joins a collection and id into a document path.
func DocPath(collection, id string) string {
	return collection + "/" + id
}
