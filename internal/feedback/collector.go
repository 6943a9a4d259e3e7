package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Sentinel errors for feedback collection.
var (
	// ErrQueryNotFound indicates the referenced query log entry does not exist.
	ErrQueryNotFound = errors.New("query not found")

	// ErrInvalidFeedback indicates malformed feedback input.
	ErrInvalidFeedback = errors.New("invalid feedback")
)

// Entry is one collected feedback record.
type Entry struct {
	ID        int64
	QueryID   int64
	Type      string
	Rating    *int
	Text      string
	Sentiment Sentiment
	CreatedAt time.Time
}

// Store persists feedback entries. The postgres implementation lives in
// store.go; tests use an in-memory fake.
type Store interface {
	// QueryExists reports whether a query log entry with the id exists.
	QueryExists(ctx context.Context, queryID int64) (bool, error)

	// Insert persists the entry and returns it with ID and CreatedAt set.
	Insert(ctx context.Context, e Entry) (Entry, error)
}

// Collector validates and records user feedback, classifying sentiment on
// the way in.
type Collector struct {
	store      Store
	classifier SentimentClassifier
	logger     *slog.Logger
}

// NewCollector creates a Collector.
func NewCollector(store Store, classifier SentimentClassifier, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{store: store, classifier: classifier, logger: logger}
}

// Collect validates and stores one feedback entry. The referenced query
// must exist; ratings must be 1-5 when present.
func (c *Collector) Collect(ctx context.Context, e Entry) (Entry, error) {
	if e.Type == "" {
		return Entry{}, fmt.Errorf("%w: feedback type is required", ErrInvalidFeedback)
	}
	if e.Rating != nil && (*e.Rating < 1 || *e.Rating > 5) {
		return Entry{}, fmt.Errorf("%w: rating %d out of range 1-5", ErrInvalidFeedback, *e.Rating)
	}

	exists, err := c.store.QueryExists(ctx, e.QueryID)
	if err != nil {
		return Entry{}, fmt.Errorf("checking query %d: %w", e.QueryID, err)
	}
	if !exists {
		return Entry{}, fmt.Errorf("%w: id %d", ErrQueryNotFound, e.QueryID)
	}

	e.Sentiment = SentimentNeutral
	if e.Text != "" {
		e.Sentiment = c.classifier.Classify(e.Text)
	}

	stored, err := c.store.Insert(ctx, e)
	if err != nil {
		return Entry{}, fmt.Errorf("storing feedback: %w", err)
	}

	c.logger.Info("collected feedback",
		"query_id", stored.QueryID, "type", stored.Type, "sentiment", stored.Sentiment)
	return stored, nil
}
