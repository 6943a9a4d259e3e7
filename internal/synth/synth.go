// Package synth produces the natural-language answer for a query from
// retrieved context snippets.
//
// The production implementation calls a Gemini model through Genkit with a
// persona-specific system prompt. A deterministic Static implementation
// answers offline; the pipeline also uses its text when generation fails,
// so query answering never hard-fails on model trouble.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
)

// Confidence levels reported with each response. These are fixed
// heuristics, not model-derived probabilities.
const (
	// ConfidenceGrounded is reported for a successful model response.
	ConfidenceGrounded = 0.8

	// ConfidenceUnavailable is reported when the model is not configured.
	ConfidenceUnavailable = 0.3

	// ConfidenceError is reported when generation failed mid-call.
	ConfidenceError = 0.1
)

const generateTimeout = 25 * time.Second

// Chunk is one retrieved context snippet handed to the synthesizer.
type Chunk struct {
	DocID   int64
	Title   string
	Content string
}

// Request carries everything needed to synthesize one answer.
type Request struct {
	Query   string
	Chunks  []Chunk
	Persona tier.Persona
}

// Response is the synthesized answer.
type Response struct {
	Text       string
	Confidence float64
	ModelUsed  string
}

// Synthesizer generates an answer for a query given context snippets.
type Synthesizer interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// personaPrompts maps each persona to its system prompt. The persona set
// is closed; unknown values fall back to the base persona.
var personaPrompts = map[tier.Persona]string{
	tier.PersonaBase:     "You are a helpful maintenance assistant. Provide clear, simple answers suitable for equipment operators.",
	tier.PersonaExtended: "You are a technical maintenance expert. Provide detailed technical information and troubleshooting steps.",
	tier.PersonaFull:     "You are a comprehensive maintenance expert with access to all technical documentation.",
}

// PersonaPrompt returns the system prompt for a persona.
func PersonaPrompt(p tier.Persona) string {
	if prompt, ok := personaPrompts[p]; ok {
		return prompt
	}
	return personaPrompts[tier.PersonaBase]
}

// BuildPrompt assembles the full generation prompt from the request.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(PersonaPrompt(req.Persona))
	b.WriteString("\n\nContext Information:\n")
	for _, c := range req.Chunks {
		fmt.Fprintf(&b, "Document: %s\nContent: %s\n\n", c.Title, c.Content)
	}
	fmt.Fprintf(&b, "User Query: %s\n\n", req.Query)
	b.WriteString("Please provide a helpful response based on the context information. " +
		"If the context doesn't contain relevant information, provide general guidance " +
		"and suggest consulting additional resources.")
	return b.String()
}

// Gemini is the Genkit-backed Synthesizer.
type Gemini struct {
	g         *genkit.Genkit
	modelName string
	logger    *slog.Logger
}

// NewGemini creates a Synthesizer that generates through the given Genkit
// instance. modelName is provider-qualified (e.g. "googleai/gemini-2.5-flash").
func NewGemini(g *genkit.Genkit, modelName string, logger *slog.Logger) *Gemini {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{g: g, modelName: modelName, logger: logger}
}

// Generate produces an answer via the model. On generation failure it
// returns the error apology text with ConfidenceError alongside the error,
// so callers can both log the cause and still serve a degraded answer.
func (s *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithPrompt(BuildPrompt(req)),
	}
	if s.modelName != "" {
		opts = append(opts, ai.WithModelName(s.modelName))
	}

	resp, err := genkit.Generate(ctx, s.g, opts...)
	if err != nil {
		s.logger.Warn("generation failed", "error", err)
		return Response{
			Text: fmt.Sprintf("I encountered an error while processing your query: %q. "+
				"Please try rephrasing your question or contact support if the issue persists.", req.Query),
			Confidence: ConfidenceError,
			ModelUsed:  s.modelName,
		}, fmt.Errorf("generate: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Response{
			Text:       Static{}.unavailableText(req.Query),
			Confidence: ConfidenceUnavailable,
			ModelUsed:  s.modelName,
		}, nil
	}

	return Response{
		Text:       text,
		Confidence: ConfidenceGrounded,
		ModelUsed:  s.modelName,
	}, nil
}

// Static is the deterministic offline Synthesizer. It never calls a model
// and never fails.
type Static struct{}

// NewStatic creates the offline Synthesizer.
func NewStatic() Static {
	return Static{}
}

func (Static) unavailableText(query string) string {
	return fmt.Sprintf("I understand your query: %q. However, the AI service is "+
		"currently unavailable. Please try again later or contact support.", query)
}

// Generate returns the fixed low-confidence apology for the query.
func (s Static) Generate(_ context.Context, req Request) (Response, error) {
	return Response{
		Text:       s.unavailableText(req.Query),
		Confidence: ConfidenceUnavailable,
	}, nil
}
