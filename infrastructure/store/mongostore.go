package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const changeChannel = "store:changes"

// MongoStore persists documents in MongoDB and signals changes across
// servers over a Redis pub/sub channel: every successful write
// publishes the touched path, and each server re-reads the document and
// pushes fresh snapshots to its local watchers.
type MongoStore struct {
	db       *mongo.Database
	rdb      *redis.Client
	serverID string
	log      *zap.Logger

	mu       sync.Mutex
	docSubs  map[string]map[int]chan Snapshot
	collSubs map[string]map[int]*mongoCollSub
	nextSub  int
	pubsub   *redis.PubSub
}

type mongoCollSub struct {
	ch    chan []Snapshot
	path  string
	query Query
}

type changeNotice struct {
	FromServerId string `json:"fromServerId"`
	Path         string `json:"path"`
}

func NewMongoStore(db *mongo.Database, rdb *redis.Client, serverID string, log *zap.Logger) *MongoStore {
	return &MongoStore{
		db:       db,
		rdb:      rdb,
		serverID: serverID,
		log:      log,
		docSubs:  make(map[string]map[int]chan Snapshot),
		collSubs: make(map[string]map[int]*mongoCollSub),
	}
}

// Run consumes change notices published by other servers. Own notices
// are skipped; local watchers were already refreshed at write time.
func (s *MongoStore) Run(ctx context.Context) {
	s.pubsub = s.rdb.Subscribe(ctx, changeChannel)
	ch := s.pubsub.Channel()

	s.log.Info("store change subscriber started", zap.String("serverId", s.serverID))

	for msg := range ch {
		var notice changeNotice
		if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
			s.log.Error("bad change notice", zap.Error(err))
			continue
		}
		if notice.FromServerId == s.serverID {
			continue
		}
		s.refresh(ctx, notice.Path)
	}
}

func (s *MongoStore) Close() error {
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, path string) (Snapshot, error) {
	if _, _, err := docPath(path); err != nil {
		return Snapshot{}, err
	}
	return s.fetch(ctx, path)
}

func (s *MongoStore) Set(ctx context.Context, path string, data bson.M, merge bool) error {
	collection, id, err := docPath(path)
	if err != nil {
		return err
	}

	if merge {
		update := buildUpdate(data)
		if len(update) == 0 {
			return nil
		}
		opts := options.Update().SetUpsert(true)
		if _, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update, opts); err != nil {
			return err
		}
	} else {
		replacement := make(bson.M, len(data))
		for k, v := range data {
			if k == "_id" {
				continue
			}
			replacement[k] = v
		}
		opts := options.Replace().SetUpsert(true)
		if _, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, replacement, opts); err != nil {
			return err
		}
	}

	s.announce(ctx, path)
	return nil
}

func (s *MongoStore) Update(ctx context.Context, path string, patch bson.M) error {
	collection, id, err := docPath(path)
	if err != nil {
		return err
	}

	update := buildUpdate(patch)
	if len(update) == 0 {
		return nil
	}
	result, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	s.announce(ctx, path)
	return nil
}

func (s *MongoStore) WatchDoc(ctx context.Context, path string) (<-chan Snapshot, func(), error) {
	if _, _, err := docPath(path); err != nil {
		return nil, nil, err
	}

	initial, err := s.fetch(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, watchBuffer)
	if s.docSubs[path] == nil {
		s.docSubs[path] = make(map[int]chan Snapshot)
	}
	s.docSubs[path][id] = ch
	ch <- initial
	s.mu.Unlock()

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

func (s *MongoStore) WatchCollection(ctx context.Context, path string, query Query) (<-chan []Snapshot, func(), error) {
	if _, err := collectionPath(path); err != nil {
		return nil, nil, err
	}

	initial, err := s.runQuery(ctx, path, query)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	sub := &mongoCollSub{ch: make(chan []Snapshot, watchBuffer), path: path, query: query}
	if s.collSubs[path] == nil {
		s.collSubs[path] = make(map[int]*mongoCollSub)
	}
	s.collSubs[path][id] = sub
	sub.ch <- initial
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cs, ok := s.collSubs[path][id]; ok {
			delete(s.collSubs[path], id)
			close(cs.ch)
		}
	}
	return sub.ch, cancel, nil
}

// announce refreshes local watchers and tells other servers. The
// publish is fire-and-forget: a lost notice only delays remote watchers
// until the next write on the same path.
func (s *MongoStore) announce(ctx context.Context, path string) {
	s.refresh(ctx, path)

	payload, err := json.Marshal(changeNotice{FromServerId: s.serverID, Path: path})
	if err != nil {
		s.log.Error("marshal change notice", zap.Error(err))
		return
	}
	if err := s.rdb.Publish(ctx, changeChannel, payload).Err(); err != nil {
		s.log.Error("publish change notice", zap.String("path", path), zap.Error(err))
	}
}

func (s *MongoStore) refresh(ctx context.Context, path string) {
	snap, err := s.fetch(ctx, path)
	if err != nil {
		s.log.Error("refresh document", zap.String("path", path), zap.Error(err))
		return
	}

	s.mu.Lock()
	for _, ch := range s.docSubs[path] {
		select {
		case ch <- snap:
		default:
		}
	}
	collection := collectionOf(path)
	subs := make([]int, 0, len(s.collSubs[collection]))
	for id := range s.collSubs[collection] {
		subs = append(subs, id)
	}
	s.mu.Unlock()

	for _, id := range subs {
		s.mu.Lock()
		sub, ok := s.collSubs[collection][id]
		s.mu.Unlock()
		if !ok {
			continue
		}

		result, err := s.runQuery(ctx, sub.path, sub.query)
		if err != nil {
			s.log.Error("refresh collection", zap.String("path", sub.path), zap.Error(err))
			continue
		}

		s.mu.Lock()
		if _, still := s.collSubs[collection][id]; still {
			select {
			case sub.ch <- result:
			default:
			}
		}
		s.mu.Unlock()
	}
}

func (s *MongoStore) fetch(ctx context.Context, path string) (Snapshot, error) {
	collection, id, err := docPath(path)
	if err != nil {
		return Snapshot{}, err
	}

	var data bson.M
	err = s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&data)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Snapshot{Path: path, Exists: false}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: path, Exists: true, Data: data}, nil
}

func (s *MongoStore) runQuery(ctx context.Context, path string, query Query) ([]Snapshot, error) {
	filter := bson.M{}
	if query.Equals != nil {
		filter[query.Equals.Field] = query.Equals.Value
	}
	if query.Contains != nil {
		// Equality on an array field matches documents containing the value.
		filter[query.Contains.Field] = query.Contains.Value
	}

	opts := options.Find()
	if query.OrderBy != "" {
		direction := 1
		if query.Descending {
			direction = -1
		}
		opts.SetSort(bson.D{{Key: query.OrderBy, Value: direction}})
	}

	cursor, err := s.db.Collection(path).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	snapshots := make([]Snapshot, 0, len(docs))
	for _, doc := range docs {
		snapshots = append(snapshots, Snapshot{
			Path:   DocPath(path, fmt.Sprint(doc["_id"])),
			Exists: true,
			Data:   doc,
		})
	}
	return snapshots, nil
}

// buildUpdate translates a merge patch into mongo update operators:
// plain values become $set, ArrayUnion becomes $addToSet and
// ArrayRemove becomes $pull.
func buildUpdate(patch bson.M) bson.M {
	set := bson.M{}
	addToSet := bson.M{}
	pull := bson.M{}

	for key, value := range patch {
		if key == "_id" {
			continue
		}
		switch op := value.(type) {
		case arrayUnion:
			addToSet[key] = bson.M{"$each": op.values}
		case arrayRemove:
			pull[key] = bson.M{"$in": op.values}
		default:
			set[key] = value
		}
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	if len(pull) > 0 {
		update["$pull"] = pull
	}
	return update
}
