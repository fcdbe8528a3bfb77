package reports

import (
	"context"
	"fmt"
	"time"

	"cinema_booking/database"
	"cinema_booking/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists append-only financial report rows.
type Store interface {
	Record(ctx context.Context, report *model.FinancialReport) error
	List(ctx context.Context, bookingID uint) ([]model.FinancialReport, error)
}

// RepositoryStore keeps reports in the booking database.
type RepositoryStore struct {
	repo database.Repository
}

func NewRepositoryStore(repo database.Repository) *RepositoryStore {
	return &RepositoryStore{repo: repo}
}

func (s *RepositoryStore) Record(ctx context.Context, report *model.FinancialReport) error {
	return s.repo.CreateReport(ctx, report)
}

func (s *RepositoryStore) List(ctx context.Context, bookingID uint) ([]model.FinancialReport, error) {
	return s.repo.ListReports(ctx, bookingID)
}

const collectionName = "financial_reports"

// MongoStore writes reports to a document collection for the finance team.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo is not available: %w", err)
	}

	coll := client.Database(dbName).Collection(collectionName)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "bookingId", Value: 1}, {Key: "occurredAt", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create report index: %w", err)
	}
	return &MongoStore{client: client, coll: coll}, nil
}

func (s *MongoStore) Record(ctx context.Context, report *model.FinancialReport) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	_, err := s.coll.InsertOne(ctx, report)
	return err
}

func (s *MongoStore) List(ctx context.Context, bookingID uint) ([]model.FinancialReport, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurredAt", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.D{{Key: "bookingId", Value: bookingID}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.FinancialReport
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
