package schema

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const todoDoc = `name: Todos
types:
  - struct: Todo
    description: A single item.
    fields:
      - { name: id, type: Uuid }
      - { name: due, type: Date, optional: true }
      - { name: tags, type: "[String]" }
  - enum: Job
    variants:
      - developer
      - { tag: other, payload: "String?" }
endpoints:
  - { name: GetTodos, method: GET, path: /_fen_/get-todos, output: "[Todo]", auth: true }
  - { name: CreateTodo, input: Todo, output: Todo }
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_BlocksFileURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, err := Load(ctx, "file:///etc/hosts")
	if err == nil {
		t.Fatalf("expected error for file:// URL")
	}
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %T", err)
	}
	if le.Code != InputError {
		t.Fatalf("expected InputError, got %v", le.Code)
	}
}

func TestLoad_UnsupportedScheme(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, err := Load(ctx, "ftp://example.com/schema.yaml")
	if err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
	var le *LoadError
	if !errors.As(err, &le) || le.Code != InputError {
		t.Fatalf("expected InputError, got %v (%T)", err, err)
	}
}

func TestLoad_NetworkError(t *testing.T) {
	t.Parallel()
	// Unused port to provoke a quick network failure.
	url := "http://127.0.0.1:1/schema.yaml"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Load(ctx, url, WithHTTPTimeout(200*time.Millisecond), WithMaxRetries(2), WithBackoffBase(time.Millisecond))
	if err == nil {
		t.Fatalf("expected network error")
	}
	var le *LoadError
	if !errors.As(err, &le) || le.Code != NetworkError {
		t.Fatalf("expected NetworkError, got %v (%T)", err, err)
	}
}

func TestLoad_RetriesTransientHTTP(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(todoDoc))
	}))
	defer srv.Close()

	doc, err := Load(context.Background(), srv.URL+"/schema.yaml", WithBackoffBase(time.Millisecond))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", hits.Load())
	}
	if doc.Name != "Todos" {
		t.Fatalf("unexpected name %q", doc.Name)
	}
}

func TestLoad_HTTPClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), srv.URL, WithBackoffBase(time.Millisecond))
	var le *LoadError
	if !errors.As(err, &le) || le.Code != NetworkError {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single request, got %d", hits.Load())
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "schema.yaml", todoDoc)
	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := &Document{
		Name: "Todos",
		Types: []TypeDef{
			&Struct{Name: "Todo", Description: "A single item.", Fields: []FieldDef{
				{Name: "id", Type: Uuid},
				{Name: "due", Type: Date, Optional: true},
				{Name: "tags", Type: Array{Elem: String}},
			}},
			&Enum{Name: "Job", Variants: []VariantDef{
				{Tag: "developer"},
				{Tag: "other", Payload: Optional{Elem: String}},
			}},
		},
		Endpoints: []EndpointDef{
			{Name: "GetTodos", Method: GET, Path: "/_fen_/get-todos", Output: Array{Elem: Named{Name: "Todo"}}, RequiresAuth: true},
			{Name: "CreateTodo", Method: POST, Path: "/_fen_/create-todo", Input: Named{Name: "Todo"}, Output: Named{Name: "Todo"}},
		},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_JSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "schema.json", `{"name":"Mini","types":[{"struct":"Ping","fields":[{"name":"at","type":"Date"}]}],
        "endpoints":[{"name":"Ping","output":"Ping"}]}`)
	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(doc.Endpoints) != 1 || doc.Endpoints[0].Method != GET || doc.Endpoints[0].Path != "/_fen_/ping" {
		t.Fatalf("unexpected endpoint: %+v", doc.Endpoints)
	}
}

func TestLoad_ParseErrors(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		content  string
		location string
	}{
		"empty":        {content: "  \n", location: ""},
		"unknown key":  {content: "name: X\ncolour: blue\n", location: ""},
		"bad type":     {content: "types:\n  - struct: A\n    fields:\n      - { name: a, type: \"[Int\" }\n", location: "#types[0].fields[0].type"},
		"both kinds":   {content: "types:\n  - struct: A\n    enum: B\n", location: "#types[0]"},
		"neither kind":  {content: "types:\n  - description: hi\n", location: "#types[0]"},
		"bad output":   {content: "endpoints:\n  - { name: A, output: \"Response<\" }\n", location: "#endpoints[0].output"},
		"variant key":  {content: "types:\n  - enum: E\n    variants:\n      - { tag: a, colour: red }\n", location: ""},
	}
	for name, tc := range cases {
		path := writeFile(t, "schema.yaml", tc.content)
		_, err := Load(context.Background(), path)
		var le *LoadError
		if !errors.As(err, &le) || le.Code != ParseError {
			t.Fatalf("%s: expected ParseError, got %v", name, err)
		}
		if !strings.HasSuffix(le.Location, tc.location) {
			t.Fatalf("%s: location %q does not end in %q", name, le.Location, tc.location)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	var le *LoadError
	if !errors.As(err, &le) || le.Code != InputError {
		t.Fatalf("expected InputError, got %v", err)
	}
	if le.Location == "" {
		t.Fatalf("expected location to be set")
	}
}

func TestLoad_SizeLimit(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "schema.yaml", todoDoc)
	_, err := Load(context.Background(), path, WithMaxBytes(16))
	var le *LoadError
	if !errors.As(err, &le) || le.Code != InputError {
		t.Fatalf("expected InputError, got %v", err)
	}
}
