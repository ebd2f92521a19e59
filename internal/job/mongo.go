package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/maauso/thumbnailer/internal/extract"
	"github.com/maauso/thumbnailer/internal/media"
)

// CollectionName is the collection jobs are stored in.
const CollectionName = "jobs"

// Compile-time check that MongoRepository implements Repository.
var _ Repository = (*MongoRepository)(nil)

// MongoConfig holds configuration for connecting to MongoDB.
type MongoConfig struct {
	// URI is the MongoDB connection string.
	URI string
	// Database is the name of the database to use.
	Database string
}

// MongoRepository stores jobs in a MongoDB collection, one document per job.
type MongoRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoRepository connects to MongoDB, pings the primary and returns a
// repository over the jobs collection.
func NewMongoRepository(ctx context.Context, cfg MongoConfig) (*MongoRepository, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongo database name is required")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("create mongo client: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoRepository{
		client: client,
		coll:   client.Database(cfg.Database).Collection(CollectionName),
	}, nil
}

// Close disconnects the client.
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Save upserts the job document.
func (r *MongoRepository) Save(ctx context.Context, job *Job) error {
	doc := toDocument(job)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save job %s: %w", doc.ID, err)
	}
	return nil
}

// FindByID retrieves a job by its ID.
func (r *MongoRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	var doc jobDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return doc.toJob(), nil
}

// List returns all jobs, oldest first.
func (r *MongoRepository) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	query := bson.D{}
	if filter.Status != "" {
		query = append(query, bson.E{Key: "status", Value: string(filter.Status)})
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var docs []jobDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(docs))
	for i := range docs {
		jobs = append(jobs, docs[i].toJob())
	}
	return jobs, nil
}

// Delete removes a job document.
func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

// jobDocument is the stored form of a Job.
type jobDocument struct {
	ID          string           `bson:"_id"`
	Status      Status           `bson:"status"`
	Locator     string           `bson:"locator"`
	DisplayName string           `bson:"display_name,omitempty"`
	PreviewURL  string           `bson:"preview_url,omitempty"`
	Hint        *media.Metadata  `bson:"hint,omitempty"`
	SizeBytes   int64            `bson:"size_bytes,omitempty"`
	Candidates  []extract.Result `bson:"candidates"`
	Selected    *Selection       `bson:"selected,omitempty"`
	Error       string           `bson:"error,omitempty"`
	CreatedAt   time.Time        `bson:"created_at"`
	UpdatedAt   time.Time        `bson:"updated_at"`
	CompletedAt time.Time        `bson:"completed_at,omitempty"`
}

func toDocument(j *Job) jobDocument {
	c := j.Clone()
	return jobDocument{
		ID:          c.ID,
		Status:      c.Status,
		Locator:     c.Locator,
		DisplayName: c.DisplayName,
		PreviewURL:  c.PreviewURL,
		Hint:        c.Hint,
		SizeBytes:   c.SizeBytes,
		Candidates:  c.Candidates,
		Selected:    c.Selected,
		Error:       c.Error,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		CompletedAt: c.CompletedAt,
	}
}

func (d *jobDocument) toJob() *Job {
	candidates := d.Candidates
	if candidates == nil {
		candidates = make([]extract.Result, 0)
	}
	return &Job{
		ID:          d.ID,
		Status:      d.Status,
		Locator:     d.Locator,
		DisplayName: d.DisplayName,
		PreviewURL:  d.PreviewURL,
		Hint:        d.Hint,
		SizeBytes:   d.SizeBytes,
		Candidates:  candidates,
		Selected:    d.Selected,
		Error:       d.Error,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		CompletedAt: d.CompletedAt,
	}
}
