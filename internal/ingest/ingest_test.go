package ingest

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/ragline/ragline/internal/store"
	"github.com/ragline/ragline/internal/vector"
)

func TestCleanText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Normandy", "Normandy"},
		{"University_of_Notre_Dame", "University of Notre Dame"},
		{"Sino-Tibetan%20relations", "Sino-Tibetan relations"},
		{"100%_guaranteed", "100% guaranteed"}, // bad escape keeps the raw text
		{"", ""},
	}
	for _, tc := range cases {
		if got := CleanText(tc.in); got != tc.want {
			t.Errorf("CleanText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadDocumentsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.json")
	content := `[{"title":"t1","context":"c1","question":"q1","answer":"a1","has_answer":true},
		{"title":"t2","context":"c2","question":"q2","answer":"","has_answer":false}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	docs, err := LoadDocuments(path)
	if err != nil {
		t.Fatalf("LoadDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Title != "t1" || !docs[0].HasAnswer {
		t.Fatalf("unexpected first document: %+v", docs[0])
	}
	if docs[1].HasAnswer {
		t.Fatalf("expected has_answer false on second document")
	}
}

func TestLoadDocumentsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.jsonl")
	content := `{"title":"t1","context":"c1","question":"q1","answer":"a1","has_answer":true}

{"title":"t2","context":"c2","question":"q2","answer":"a2","has_answer":true}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	docs, err := LoadDocuments(path)
	if err != nil {
		t.Fatalf("LoadDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
}

func TestLoadDocumentsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.jsonl")
	if err := os.WriteFile(path, []byte("{\"title\":\"ok\"}\nnot json\n"), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	_, err := LoadDocuments(path)
	if err == nil {
		t.Fatalf("expected error for malformed line")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line number in error, got %v", err)
	}
}

func newVectorClient(t *testing.T, srv *httptest.Server) *vector.Client {
	t.Helper()
	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	return vector.NewClient(vector.Config{
		Host:        host,
		Port:        port,
		Collection:  "rag_docs",
		DenseModel:  "jinaai/jina-embeddings-v2-small-en",
		SparseModel: "Qdrant/bm25",
	})
}

func TestRunIngestsAndLogs(t *testing.T) {
	var upserted int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/collections/rag_docs/exists":
			_, _ = w.Write([]byte(`{"result":{"exists":true}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/rag_docs/points":
			var body struct {
				Points []json.RawMessage `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode upsert: %v", err)
			}
			upserted += len(body.Points)
			_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO ingestion_logs").
		WithArgs("rag_docs", 3, sqlmock.AnyArg(),
			"jinaai/jina-embeddings-v2-small-en", "Qdrant/bm25",
			store.IngestionStatusCompleted, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("i-id"))

	path := filepath.Join(t.TempDir(), "docs.jsonl")
	content := `{"title":"University_of_Notre_Dame","context":"c1","question":"q1","answer":"a1","has_answer":true}
{"title":"t2","context":"c2","question":"q2","answer":"a2","has_answer":true}
{"title":"t3","context":"c3","question":"q3","answer":"","has_answer":false}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	ing := New(newVectorClient(t, srv), &store.Store{DB: db},
		"jinaai/jina-embeddings-v2-small-en", "Qdrant/bm25", 2)
	if err := ing.Run(context.Background(), path); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if upserted != 3 {
		t.Fatalf("expected 3 points upserted, got %d", upserted)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunRecordsFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO ingestion_logs").
		WithArgs("rag_docs", 0, sqlmock.AnyArg(),
			"dm", "sm", store.IngestionStatusFailed, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("i-id"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()

	ing := New(newVectorClient(t, srv), &store.Store{DB: db}, "dm", "sm", 2)
	err = ing.Run(context.Background(), filepath.Join(t.TempDir(), "missing.jsonl"))
	if err == nil {
		t.Fatalf("expected error for missing corpus file")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
