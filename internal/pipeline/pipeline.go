// Package pipeline runs one chat turn end to end: log the question, retrieve
// context from the vector store, log retrieval metrics, generate an answer
// and log it. The steps are strictly sequential; each insert is independent
// and failures propagate to the caller without retries or compensation.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ragline/ragline/internal/metrics"
	"github.com/ragline/ragline/internal/store"
	"github.com/ragline/ragline/internal/vector"
	"github.com/ragline/ragline/provider"
)

// Searcher is the hybrid search capability consumed by the pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]vector.ScoredPoint, error)
}

// Pipeline wires the store, the vector search boundary and the LLM boundary.
type Pipeline struct {
	Store      *store.Store
	Search     Searcher
	LLM        provider.Provider
	Collection string
	Model      string
	TopK       int
	Threshold  float64
	Logger     *log.Logger
}

// Result is what one chat turn produces.
type Result struct {
	QuestionID     string  `json:"question_id"`
	AnswerID       string  `json:"answer_id"`
	Answer         string  `json:"answer"`
	Confidence     float64 `json:"confidence"`
	RetrievedDocs  int     `json:"retrieved_docs"`
	RetrievalMs    int     `json:"retrieval_time_ms"`
	GenerationMs   int     `json:"generation_time_ms"`
	TotalMs        int     `json:"total_time_ms"`
	TotalTokens    int     `json:"total_tokens"`
	ContextMissing bool    `json:"context_missing"`
}

func New(st *store.Store, search Searcher, llm provider.Provider, collection, model string, topK int, threshold float64) *Pipeline {
	return &Pipeline{
		Store:      st,
		Search:     search,
		LLM:        llm,
		Collection: collection,
		Model:      model,
		TopK:       topK,
		Threshold:  threshold,
		Logger:     log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
	}
}

// Ask answers one question. An unreachable vector store or an empty result
// set is treated as "no context found": the reply says no answer is
// available and no generation call is made. A generation failure is returned
// to the caller; the question row stays behind with no answer, which the
// analytics views tolerate.
func (p *Pipeline) Ask(ctx context.Context, question, userID, sessionID string) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, fmt.Errorf("question required")
	}
	started := time.Now()

	questionID, err := p.Store.LogQuestion(ctx, question, userID, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("log question: %w", err)
	}

	retrievalStart := time.Now()
	results, searchErr := p.Search.Search(ctx, question, p.TopK)
	retrievalMs := int(time.Since(retrievalStart).Milliseconds())
	if searchErr != nil {
		// Treated as "no context found" rather than a hard failure.
		p.Logger.Printf("vector search failed for question %s: %v", questionID, searchErr)
		results = nil
	}
	metrics.RetrievedDocs.Observe(float64(len(results)))

	scores := make([]float64, 0, len(results))
	for _, r := range results {
		scores = append(scores, r.Score)
	}
	if _, err := p.Store.LogRetrievalMetric(ctx, store.RetrievalMetricRecord{
		QuestionID:          questionID,
		QueryTimeMs:         retrievalMs,
		TopK:                p.TopK,
		SimilarityThreshold: p.Threshold,
		SimilarityScores:    scores,
	}); err != nil {
		return Result{}, fmt.Errorf("log retrieval metrics: %w", err)
	}

	res := Result{
		QuestionID:    questionID,
		RetrievedDocs: len(results),
		RetrievalMs:   retrievalMs,
	}

	var answerText string
	var generationMs int
	var usage provider.Usage
	if len(results) == 0 {
		res.ContextMissing = true
		answerText = NoContextAnswer
	} else {
		generationStart := time.Now()
		answerText, usage, err = p.LLM.Generate(ctx, buildPrompt(question, results))
		generationMs = int(time.Since(generationStart).Milliseconds())
		if err != nil {
			// Answer is not logged on generation failure.
			return Result{}, fmt.Errorf("generate answer: %w", err)
		}
		res.Confidence = confidence(results)
	}

	res.Answer = answerText
	res.GenerationMs = generationMs
	res.TotalMs = int(time.Since(started).Milliseconds())
	res.TotalTokens = usage.TotalTokens

	answerID, err := p.Store.LogAnswer(ctx, store.AnswerRecord{
		QuestionID:         questionID,
		AnswerText:         answerText,
		ContextUsed:        formatContext(results),
		ModelUsed:          p.Model,
		ConfidenceScore:    res.Confidence,
		RetrievalTimeMs:    retrievalMs,
		GenerationTimeMs:   generationMs,
		TotalTimeMs:        res.TotalMs,
		QdrantCollection:   p.Collection,
		RetrievedDocsCount: len(results),
		TotalTokens:        usage.TotalTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("log answer: %w", err)
	}
	res.AnswerID = answerID

	metrics.PipelineDuration.WithLabelValues("retrieval").Observe(float64(retrievalMs) / 1000)
	metrics.PipelineDuration.WithLabelValues("generation").Observe(float64(generationMs) / 1000)
	metrics.PipelineDuration.WithLabelValues("total").Observe(float64(res.TotalMs) / 1000)
	metrics.TokensUsed.WithLabelValues(p.Model).Add(float64(usage.TotalTokens))
	metrics.ConfidenceScore.Observe(res.Confidence)

	return res, nil
}

// confidence estimates answer reliability in [0,1] from the fused score of
// the best retrieved document. Zero when nothing was retrieved.
func confidence(results []vector.ScoredPoint) float64 {
	if len(results) == 0 {
		return 0
	}
	best := results[0].Score
	for _, r := range results[1:] {
		if r.Score > best {
			best = r.Score
		}
	}
	if best < 0 {
		return 0
	}
	if best > 1 {
		return 1
	}
	return best
}
