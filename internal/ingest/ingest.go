// Package ingest bulk-loads a question answering corpus into the vector
// store and records the run in ingestion_logs.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/metrics"
	"github.com/ragline/ragline/internal/store"
	"github.com/ragline/ragline/internal/vector"
)

// Document is one corpus record: a context passage with the question it was
// paired with and the reference answer, if any.
type Document struct {
	Title     string `json:"title"`
	Context   string `json:"context"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	HasAnswer bool   `json:"has_answer"`
}

// Ingestor drives one bulk load.
type Ingestor struct {
	Vector      *vector.Client
	Store       *store.Store
	DenseModel  string
	SparseModel string
	BatchSize   int
	Logger      *log.Logger
}

func New(vc *vector.Client, st *store.Store, denseModel, sparseModel string, batchSize int) *Ingestor {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Ingestor{
		Vector:      vc,
		Store:       st,
		DenseModel:  denseModel,
		SparseModel: sparseModel,
		BatchSize:   batchSize,
		Logger:      log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
}

// Run loads documents from path (JSON array or JSONL), cleans them, ensures
// the collection exists and upserts everything in batches. The outcome is
// recorded in ingestion_logs either way; the returned error mirrors what was
// logged.
func (i *Ingestor) Run(ctx context.Context, path string) error {
	started := time.Now()
	collection := i.Vector.Collection()

	docs, err := LoadDocuments(path)
	if err == nil {
		err = i.upsertAll(ctx, docs)
	}

	rec := store.IngestionRecord{
		CollectionName: collection,
		DocumentsCount: len(docs),
		DurationMs:     int(time.Since(started).Milliseconds()),
		DenseModel:     i.DenseModel,
		SparseModel:    i.SparseModel,
		Status:         store.IngestionStatusCompleted,
	}
	if err != nil {
		rec.Status = store.IngestionStatusFailed
		rec.ErrorMessage = err.Error()
		metrics.IngestedDocuments.WithLabelValues(collection, rec.Status).Add(0)
	} else {
		metrics.IngestedDocuments.WithLabelValues(collection, rec.Status).Add(float64(len(docs)))
	}
	if _, logErr := i.Store.LogIngestion(ctx, rec); logErr != nil {
		i.Logger.Printf("failed to record ingestion run: %v", logErr)
	}
	if err != nil {
		return err
	}
	i.Logger.Printf("ingested %d documents into collection %q in %dms", len(docs), collection, rec.DurationMs)
	return nil
}

func (i *Ingestor) upsertAll(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return fmt.Errorf("no documents to ingest")
	}
	if err := i.Vector.EnsureCollection(ctx); err != nil {
		return err
	}

	batch := make([]vector.PointStruct, 0, i.BatchSize)
	for _, doc := range docs {
		doc = cleanDocument(doc)
		text := fmt.Sprintf("Question: %s Context: %s", doc.Question, doc.Context)
		batch = append(batch, i.Vector.NewPoint(uuid.NewString(), text, vector.Metadata{
			Title:     doc.Title,
			Context:   doc.Context,
			Question:  doc.Question,
			Answer:    doc.Answer,
			HasAnswer: doc.HasAnswer,
		}))
		if len(batch) >= i.BatchSize {
			if err := i.Vector.Upsert(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return i.Vector.Upsert(ctx, batch)
}

// LoadDocuments reads a corpus file. A leading '[' means one JSON array;
// anything else is parsed as JSON lines.
func LoadDocuments(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	head, err := r.Peek(1)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	var docs []Document
	if head[0] == '[' {
		if err := json.NewDecoder(r).Decode(&docs); err != nil {
			return nil, fmt.Errorf("parse corpus: %w", err)
		}
		return docs, nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("parse corpus line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return docs, nil
}
