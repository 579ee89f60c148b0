package store

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	teamsCollection  = "teams"
	globalCollection = "global"
)

type globalDoc struct {
	ID         string     `bson:"_id"`
	StartTime  *time.Time `bson:"start_time"`
	DurationMs int64      `bson:"duration_ms"`
	IsEnded    bool       `bson:"is_ended"`
}

// MongoStore keeps one document per team plus a singleton global document.
// A multi-team save runs in a transaction when the deployment is a replica
// set or sharded cluster. A standalone server has no transactions, so there
// a multi-team save is a sequence of single-document writes and a failure
// part way can leave the earlier records written.
type MongoStore struct {
	client       *mongo.Client
	teams        *mongo.Collection
	global       *mongo.Collection
	transactions bool
}

// helloReply is the part of the hello command reply that tells a replica
// set member or mongos apart from a standalone server.
type helloReply struct {
	SetName string `bson:"setName"`
	Msg     string `bson:"msg"`
}

func (h helloReply) supportsTransactions() bool {
	return h.SetName != "" || h.Msg == "isdbgrid"
}

func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, unavailable("connect mongo", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, unavailable("ping mongo", err)
	}
	s := NewMongoStore(client, database)

	var hello helloReply
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, unavailable("hello mongo", err)
	}
	s.transactions = hello.supportsTransactions()
	return s, nil
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client: client,
		teams:  db.Collection(teamsCollection),
		global: db.Collection(globalCollection),
	}
}

func (s *MongoStore) GetTeam(ctx context.Context, teamID string) (engine.TeamRecord, error) {
	var rec engine.TeamRecord
	err := s.teams.FindOne(ctx, bson.M{"_id": teamID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return engine.TeamRecord{}, ErrNotFound
	}
	if err != nil {
		return engine.TeamRecord{}, unavailable("find team "+teamID, err)
	}
	return rec.Clone(), nil
}

func (s *MongoStore) ListTeams(ctx context.Context) ([]engine.TeamRecord, error) {
	cursor, err := s.teams.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, unavailable("find teams", err)
	}
	defer cursor.Close(ctx)

	var recs []engine.TeamRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, unavailable("decode teams", err)
	}
	for i := range recs {
		recs[i] = recs[i].Clone()
	}
	return recs, nil
}

func (s *MongoStore) SaveTeams(ctx context.Context, recs ...engine.TeamRecord) error {
	if len(recs) < 2 || !s.transactions {
		return s.replaceTeams(ctx, recs)
	}
	err := s.client.UseSession(ctx, func(sc mongo.SessionContext) error {
		_, err := sc.WithTransaction(sc, func(tc mongo.SessionContext) (interface{}, error) {
			return nil, s.replaceTeams(tc, recs)
		})
		return err
	})
	if err != nil {
		return unavailable("save teams", err)
	}
	return nil
}

func (s *MongoStore) replaceTeams(ctx context.Context, recs []engine.TeamRecord) error {
	opts := options.Replace().SetUpsert(true)
	for _, rec := range recs {
		rec = rec.Clone()
		if _, err := s.teams.ReplaceOne(ctx, bson.M{"_id": rec.TeamID}, rec, opts); err != nil {
			return unavailable("replace team "+rec.TeamID, err)
		}
	}
	return nil
}

func (s *MongoStore) GetGlobal(ctx context.Context) (engine.GlobalState, error) {
	var doc globalDoc
	err := s.global.FindOne(ctx, bson.M{"_id": engine.GlobalID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return engine.GlobalState{}, ErrNotFound
	}
	if err != nil {
		return engine.GlobalState{}, unavailable("find global", err)
	}
	return engine.GlobalState{
		StartTime: doc.StartTime,
		Duration:  time.Duration(doc.DurationMs) * time.Millisecond,
		IsEnded:   doc.IsEnded,
	}, nil
}

func (s *MongoStore) SaveGlobal(ctx context.Context, g engine.GlobalState) error {
	doc := globalDoc{
		ID:         engine.GlobalID,
		StartTime:  g.StartTime,
		DurationMs: g.Duration.Milliseconds(),
		IsEnded:    g.IsEnded,
	}
	_, err := s.global.ReplaceOne(ctx, bson.M{"_id": engine.GlobalID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return unavailable("replace global", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
