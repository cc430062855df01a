package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const watchBuffer = 64

// MemStore is the in-memory Store adapter. It backs the test suite and
// the single-server mode, the same way the websocket hub falls back to
// its in-memory variant when Redis is not configured.
type MemStore struct {
	mu       sync.Mutex
	docs     map[string]bson.M
	docSubs  map[string]map[int]chan Snapshot
	collSubs map[string]map[int]*memCollSub
	nextSub  int
}

type memCollSub struct {
	ch    chan []Snapshot
	query Query
}

func NewMemStore() *MemStore {
	return &MemStore{
		docs:     make(map[string]bson.M),
		docSubs:  make(map[string]map[int]chan Snapshot),
		collSubs: make(map[string]map[int]*memCollSub),
	}
}

func (s *MemStore) Get(_ context.Context, path string) (Snapshot, error) {
	if _, _, err := docPath(path); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(path), nil
}

func (s *MemStore) Set(_ context.Context, path string, data bson.M, merge bool) error {
	if _, _, err := docPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[path]
	if !merge || !exists {
		doc = bson.M{}
	}
	if merge {
		for key, value := range data {
			if err := applyField(doc, key, value); err != nil {
				return err
			}
		}
	} else {
		for key, value := range data {
			doc[key] = value
		}
	}
	s.docs[path] = doc
	s.notifyLocked(path)
	return nil
}

func (s *MemStore) Update(_ context.Context, path string, patch bson.M) error {
	if _, _, err := docPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[path]
	if !exists {
		return ErrNotFound
	}
	for key, value := range patch {
		if err := applyField(doc, key, value); err != nil {
			return err
		}
	}
	s.notifyLocked(path)
	return nil
}

func (s *MemStore) WatchDoc(_ context.Context, path string) (<-chan Snapshot, func(), error) {
	if _, _, err := docPath(path); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, watchBuffer)
	if s.docSubs[path] == nil {
		s.docSubs[path] = make(map[int]chan Snapshot)
	}
	s.docSubs[path][id] = ch
	ch <- s.snapshotLocked(path)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.docSubs[path][id]; ok {
			delete(s.docSubs[path], id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

func (s *MemStore) WatchCollection(_ context.Context, path string, query Query) (<-chan []Snapshot, func(), error) {
	collection, err := collectionPath(path)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	sub := &memCollSub{ch: make(chan []Snapshot, watchBuffer), query: query}
	if s.collSubs[collection] == nil {
		s.collSubs[collection] = make(map[int]*memCollSub)
	}
	s.collSubs[collection][id] = sub
	sub.ch <- s.queryLocked(collection, query)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cs, ok := s.collSubs[collection][id]; ok {
			delete(s.collSubs[collection], id)
			close(cs.ch)
		}
	}
	return sub.ch, cancel, nil
}

func (s *MemStore) snapshotLocked(path string) Snapshot {
	doc, exists := s.docs[path]
	snap := Snapshot{Path: path, Exists: exists}
	if exists {
		snap.Data = withId(deepCopy(doc), path)
	}
	return snap
}

// withId mirrors the database behavior of keying documents by id: a
// document that was written without an explicit _id still decodes with
// one.
func withId(doc bson.M, path string) bson.M {
	if _, ok := doc["_id"]; !ok {
		if i := strings.IndexByte(path, '/'); i > 0 {
			doc["_id"] = path[i+1:]
		}
	}
	return doc
}

// notifyLocked fans the changed document out to its doc watchers and to
// every watcher of the enclosing collection. Sends never block: a
// watcher that has fallen watchBuffer snapshots behind misses
// intermediate states, which is fine since every snapshot is complete.
func (s *MemStore) notifyLocked(path string) {
	for _, ch := range s.docSubs[path] {
		select {
		case ch <- s.snapshotLocked(path):
		default:
		}
	}
	collection := collectionOf(path)
	for _, sub := range s.collSubs[collection] {
		select {
		case sub.ch <- s.queryLocked(collection, sub.query):
		default:
		}
	}
}

func (s *MemStore) queryLocked(collection string, query Query) []Snapshot {
	prefix := collection + "/"
	var result []Snapshot
	for path, doc := range s.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if query.Equals != nil && !reflect.DeepEqual(doc[query.Equals.Field], query.Equals.Value) {
			continue
		}
		if query.Contains != nil && !sliceContains(doc[query.Contains.Field], query.Contains.Value) {
			continue
		}
		result = append(result, Snapshot{Path: path, Exists: true, Data: withId(deepCopy(doc), path)})
	}
	if query.OrderBy != "" {
		sort.SliceStable(result, func(i, j int) bool {
			less := compareValues(result[i].Data[query.OrderBy], result[j].Data[query.OrderBy]) < 0
			if query.Descending {
				return !less
			}
			return less
		})
	}
	return result
}

// applyField applies one merge-patch entry. Dotted keys address nested
// fields; ArrayUnion/ArrayRemove values keep set semantics.
func applyField(doc bson.M, key string, value any) error {
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := doc[part].(bson.M)
		if !ok {
			next = bson.M{}
			doc[part] = next
		}
		doc = next
	}
	field := parts[len(parts)-1]

	switch op := value.(type) {
	case arrayUnion:
		existing := toAnySlice(doc[field])
		for _, v := range op.values {
			if !containsValue(existing, v) {
				existing = append(existing, v)
			}
		}
		doc[field] = bson.A(existing)
	case arrayRemove:
		existing := toAnySlice(doc[field])
		kept := make(bson.A, 0, len(existing))
		for _, v := range existing {
			if !containsValue(op.values, v) {
				kept = append(kept, v)
			}
		}
		doc[field] = kept
	default:
		doc[field] = value
	}
	return nil
}

func toAnySlice(v any) []any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func containsValue(values []any, v any) bool {
	for _, existing := range values {
		if reflect.DeepEqual(existing, v) {
			return true
		}
	}
	return false
}

func sliceContains(field any, value any) bool {
	return containsValue(toAnySlice(field), value)
}

// compareValues orders the field types the engine sorts on: timestamps,
// strings and numbers.
func compareValues(a, b any) int {
	if at, ok := asTime(a); ok {
		bt, _ := asTime(b)
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	}
	if af, ok := asFloat(a); ok {
		bf, _ := asFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	default:
		return time.Time{}, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func deepCopy(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		switch typed := v.(type) {
		case bson.M:
			out[k] = deepCopy(typed)
		case bson.A:
			cp := make(bson.A, len(typed))
			copy(cp, typed)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
