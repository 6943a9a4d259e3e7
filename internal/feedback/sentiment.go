// Package feedback provides the feedback heuristics around the query
// pipeline: sentiment classification of free-text feedback, related-query
// suggestions, and durable feedback collection.
//
// The classifiers are deliberately simple keyword heuristics, kept behind
// interfaces so a statistical implementation can replace them without
// touching the orchestration code.
package feedback

import "strings"

// Sentiment is the classification outcome for feedback text.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// SentimentClassifier classifies free-text feedback.
type SentimentClassifier interface {
	Classify(text string) Sentiment
}

// KeywordSentimentClassifier counts positive and negative keywords and
// reports whichever dominates; ties are neutral.
type KeywordSentimentClassifier struct {
	positive []string
	negative []string
}

// NewKeywordSentimentClassifier creates the classifier with its default
// keyword lists.
func NewKeywordSentimentClassifier() *KeywordSentimentClassifier {
	return &KeywordSentimentClassifier{
		positive: []string{"good", "great", "excellent", "helpful", "useful", "accurate", "clear"},
		negative: []string{"bad", "poor", "terrible", "unhelpful", "useless", "wrong", "confusing"},
	}
}

// Classify returns the dominant sentiment of text.
func (c *KeywordSentimentClassifier) Classify(text string) Sentiment {
	lower := strings.ToLower(text)

	var pos, neg int
	for _, w := range c.positive {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range c.negative {
		if strings.Contains(lower, w) {
			neg++
		}
	}

	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}
