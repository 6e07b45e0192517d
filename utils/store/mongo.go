package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/tsinghua-fib-lab/signal-scheduler/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// mongoRecord MongoDB中的相位状态文档，每个路口一条，以路口ID为_id
type mongoRecord struct {
	JunctionID    int32     `bson:"_id"`
	Epoch         string    `bson:"epoch"`
	Version       int64     `bson:"version"`
	ActiveIndex   int32     `bson:"active_index"`
	PhaseStart    time.Time `bson:"phase_start"`
	PhaseDuration int32     `bson:"phase_duration"`
}

func toMongo(rec Record) mongoRecord {
	return mongoRecord{
		JunctionID:    rec.JunctionID,
		Epoch:         rec.Epoch,
		Version:       rec.Version,
		ActiveIndex:   rec.ActiveIndex,
		PhaseStart:    rec.PhaseStart,
		PhaseDuration: rec.PhaseDuration,
	}
}

func (d mongoRecord) record() Record {
	return Record{
		JunctionID:    d.JunctionID,
		Epoch:         d.Epoch,
		Version:       d.Version,
		ActiveIndex:   d.ActiveIndex,
		PhaseStart:    d.PhaseStart,
		PhaseDuration: d.PhaseDuration,
	}
}

// Mongo MongoDB存储
// 功能：多个进程共享的相位状态存储，CAS通过带(epoch, version)条件的UpdateOne实现
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongo 连接MongoDB并获取集合
// 参数：ctx-上下文，c-存储配置（uri/db/col）
func NewMongo(ctx context.Context, c config.Storage) (*Mongo, error) {
	client := mongoutil.NewClient(c.URI)
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo %s: %w", c.URI, err)
	}
	log.Infof("use mongo storage %s.%s", c.GetDb(), c.GetColl())
	return &Mongo{
		client: client,
		coll:   client.Database(c.GetDb()).Collection(c.GetColl()),
	}, nil
}

func (m *Mongo) Load(ctx context.Context, junctionID int32) (Record, error) {
	res := m.coll.FindOne(ctx, bson.M{"_id": junctionID})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	var doc mongoRecord
	if err := res.Decode(&doc); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	rec := doc.record()
	if err := rec.Check(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (m *Mongo) Create(ctx context.Context, rec Record) error {
	_, err := m.coll.InsertOne(ctx, toMongo(rec))
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}

func (m *Mongo) CompareAndSwap(ctx context.Context, prev, next Record) error {
	doc := toMongo(next)
	res, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": prev.JunctionID, "epoch": prev.Epoch, "version": prev.Version},
		bson.M{"$set": bson.M{
			"epoch":          doc.Epoch,
			"version":        doc.Version,
			"active_index":   doc.ActiveIndex,
			"phase_start":    doc.PhaseStart,
			"phase_duration": doc.PhaseDuration,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, junctionID int32) error {
	_, err := m.coll.DeleteOne(ctx, bson.M{"_id": junctionID})
	return err
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
