package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/log"
)

func TestKeywordSentimentClassifier(t *testing.T) {
	c := NewKeywordSentimentClassifier()

	tests := []struct {
		name string
		text string
		want Sentiment
	}{
		{"positive", "Very helpful and clear answer", SentimentPositive},
		{"negative", "Unhelpful and confusing", SentimentNegative},
		{"mixed balances to neutral", "good but also wrong", SentimentNeutral},
		{"no keywords", "the pump is on the left", SentimentNeutral},
		{"case insensitive", "EXCELLENT response", SentimentPositive},
		{"empty", "", SentimentNeutral},
		{"more negatives win", "good answer but poor, wrong and useless", SentimentNegative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestKeywordSuggester(t *testing.T) {
	s := NewKeywordSuggester()

	got := s.Suggest("pump vibration noise")
	if len(got) != maxSuggestions {
		t.Fatalf("got %d suggestions, want %d", len(got), maxSuggestions)
	}
	if got[0] != "How to troubleshoot noise?" {
		t.Errorf("suggestion[0] = %q", got[0])
	}
	if got[1] != "Best practices for pump" {
		t.Errorf("suggestion[1] = %q", got[1])
	}

	// Empty query still yields generic suggestions.
	got = s.Suggest("  ")
	if len(got) != maxSuggestions {
		t.Fatalf("got %d suggestions for empty query", len(got))
	}
}

// memStore is an in-memory feedback Store for collector tests.
type memStore struct {
	queries map[int64]bool
	entries []Entry
	nextID  int64
}

func newMemStore(queryIDs ...int64) *memStore {
	m := &memStore{queries: make(map[int64]bool), nextID: 1}
	for _, id := range queryIDs {
		m.queries[id] = true
	}
	return m
}

func (m *memStore) QueryExists(_ context.Context, queryID int64) (bool, error) {
	return m.queries[queryID], nil
}

func (m *memStore) Insert(_ context.Context, e Entry) (Entry, error) {
	e.ID = m.nextID
	e.CreatedAt = time.Now()
	m.nextID++
	m.entries = append(m.entries, e)
	return e, nil
}

func TestCollectorClassifiesAndStores(t *testing.T) {
	store := newMemStore(7)
	c := NewCollector(store, NewKeywordSentimentClassifier(), log.NewNop())

	rating := 5
	entry, err := c.Collect(context.Background(), Entry{
		QueryID: 7,
		Type:    "rating",
		Rating:  &rating,
		Text:    "very helpful answer",
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if entry.ID == 0 {
		t.Error("stored entry has no id")
	}
	if entry.Sentiment != SentimentPositive {
		t.Errorf("Sentiment = %v, want positive", entry.Sentiment)
	}
}

func TestCollectorUnknownQuery(t *testing.T) {
	c := NewCollector(newMemStore(), NewKeywordSentimentClassifier(), log.NewNop())

	_, err := c.Collect(context.Background(), Entry{QueryID: 99, Type: "rating"})
	if !errors.Is(err, ErrQueryNotFound) {
		t.Errorf("err = %v, want ErrQueryNotFound", err)
	}
}

func TestCollectorValidation(t *testing.T) {
	c := NewCollector(newMemStore(1), NewKeywordSentimentClassifier(), log.NewNop())

	_, err := c.Collect(context.Background(), Entry{QueryID: 1})
	if !errors.Is(err, ErrInvalidFeedback) {
		t.Errorf("missing type: err = %v, want ErrInvalidFeedback", err)
	}

	bad := 9
	_, err = c.Collect(context.Background(), Entry{QueryID: 1, Type: "rating", Rating: &bad})
	if !errors.Is(err, ErrInvalidFeedback) {
		t.Errorf("bad rating: err = %v, want ErrInvalidFeedback", err)
	}
}
