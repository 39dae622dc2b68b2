package domain

import (
	"fmt"
	"strings"
	"time"
)

// Provider names a generation backend. Only the declared values are valid.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

func ParseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderGemini:
		return ProviderGemini, nil
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse provider", fmt.Errorf("unknown provider %q", raw))
	}
}

// Answer strategies, in the order they are attempted.
const (
	StrategyPrimary      = "primary"
	StrategyAlternate    = "alternate_model"
	StrategyExtractive   = "extractive"
	StrategyUnanswerable = "unanswerable"
)

type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

type GenerationParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// Permissive relaxes provider-side safety filtering where the provider supports it.
	Permissive bool
}

type AskRequest struct {
	Query       string
	Provider    string
	Model       string
	TopK        int
	Temperature float64
	MaxTokens   int
	Hybrid      bool
	FilterLaw   string
	Debug       bool
}

// Evidence is a retrieved chunk as presented to the answerer, numbered from 1.
type Evidence struct {
	Index   int          `json:"index"`
	ChunkID string       `json:"chunk_id"`
	Score   float64      `json:"score"`
	Payload ChunkPayload `json:"payload"`
	Text    string       `json:"text"`
	Trail   *Trail       `json:"trail"`
}

type Reference struct {
	Index   int    `json:"index"`
	ChunkID string `json:"chunk_id"`
	LawID   string `json:"law_id"`
	Trail   string `json:"trail"`
}

// StrategyAttempt records one step of the answer fallback chain.
type StrategyAttempt struct {
	Strategy string        `json:"strategy"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type Answer struct {
	Text       string            `json:"text"`
	Strategy   string            `json:"strategy"`
	Provider   Provider          `json:"provider"`
	References []Reference       `json:"references"`
	Attempts   []StrategyAttempt `json:"attempts,omitempty"`
	Degraded   []string          `json:"degraded,omitempty"`
	Evidence   []Evidence        `json:"evidence,omitempty"`
	Prompt     *Prompt           `json:"prompt,omitempty"`
}

func ReferencesFor(evidence []Evidence) []Reference {
	out := make([]Reference, 0, len(evidence))
	for _, ev := range evidence {
		out = append(out, Reference{
			Index:   ev.Index,
			ChunkID: ev.ChunkID,
			LawID:   ev.Payload.LawID,
			Trail:   ev.Trail.String(),
		})
	}
	return out
}

// LawRecord is the registry entry written after a law is ingested.
type LawRecord struct {
	Law           Law       `json:"law"`
	SourcePath    string    `json:"source_path"`
	ContentSHA256 string    `json:"content_sha256"`
	ChunkCount    int       `json:"chunk_count"`
	NodeCount     int       `json:"node_count"`
	IngestedAt    time.Time `json:"ingested_at"`
}

type IngestStats struct {
	LawID    string        `json:"law_id"`
	Nodes    int           `json:"nodes"`
	Chunks   int           `json:"chunks"`
	Skipped  bool          `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration"`
}
