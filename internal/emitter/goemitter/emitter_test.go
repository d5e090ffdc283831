package goemitter

import (
	"context"
	"errors"
	"go/parser"
	"go/token"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fenlang/fen/internal/emitter"
	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
)

const todosYAML = `
name: Todos
types:
  - struct: Todo
    fields:
      - { name: id, type: Uuid }
      - { name: name, type: String }
      - { name: is_completed, type: Bool }
      - { name: due, type: Date, optional: true }
      - { name: job, type: Job }
  - enum: Job
    description: What a todo is about.
    variants:
      - developer
      - { tag: other, payload: "String?" }
      - { tag: nested, payload: "[Todo]" }
endpoints:
  - { name: GetTodos, method: GET, output: "[Todo]", auth: true }
  - { name: CreateTodo, method: POST, input: Todo, output: Todo }
  - { name: CountTodos, method: POST, input: "[Uuid]", output: Int }
  - { name: Ping, method: POST, output: "Response<Bool>" }
`

func resolve(t *testing.T, src string) *resolver.ResolvedSchema {
	t.Helper()
	doc, err := schema.Parse([]byte(src), "test.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rs, err := resolver.Resolve(doc)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return rs
}

func options() emitter.Options {
	return emitter.Options{
		PackageName: "todos",
		Endpoint:    "http://localhost:8080",
		Stamp:       emitter.Stamp{Generator: "Fen", Version: "0.6.0", Time: time.Date(2025, 3, 5, 13, 10, 9, 0, time.UTC)},
	}
}

func emit(t *testing.T, src string) *emitter.Tree {
	t.Helper()
	tree, err := New().Emit(context.Background(), resolve(t, src), options())
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	return tree
}

func unit(t *testing.T, tree *emitter.Tree, path string) string {
	t.Helper()
	b, ok := tree.Lookup(path)
	if !ok {
		t.Fatalf("unit %s not emitted", path)
	}
	return string(b)
}

func TestEmit_Units(t *testing.T) {
	t.Parallel()
	tree := emit(t, todosYAML)
	var got []string
	for _, u := range tree.Sorted() {
		got = append(got, u.Path)
	}
	want := []string{
		"endpoint_count_todos.go",
		"endpoint_create_todo.go",
		"endpoint_get_todos.go",
		"endpoint_ping.go",
		"fen_runtime.go",
		"type_job.go",
		"type_todo.go",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("units (-want +got):\n%s", diff)
	}
}

func TestEmit_UnitsParse(t *testing.T) {
	t.Parallel()
	tree := emit(t, todosYAML)
	fset := token.NewFileSet()
	for _, u := range tree.Units {
		f, err := parser.ParseFile(fset, u.Path, u.Content, parser.ParseComments)
		if err != nil {
			t.Fatalf("%s does not parse: %v", u.Path, err)
		}
		if f.Name.Name != "todos" {
			t.Fatalf("%s: package %s", u.Path, f.Name.Name)
		}
		if !strings.HasPrefix(string(u.Content), "// Code generated by Fen v0.6.0. DO NOT EDIT.\n// Created at 13:10:09 on 2025-03-05.\n") {
			t.Fatalf("%s: missing header:\n%s", u.Path, u.Content)
		}
	}
}

func TestEmit_Struct(t *testing.T) {
	t.Parallel()
	src := unit(t, emit(t, todosYAML), "type_todo.go")
	for _, want := range []string{
		"\"github.com/google/uuid\"",
		"ID          uuid.UUID",
		"IsCompleted bool",
		"Due         *Date",
		"Job         Job",
		`fenWriteField(o, "isCompleted", v.IsCompleted, fenEncodeBool)`,
		`fenWriteField(o, "due", v.Due, fenEncodeOptional(fenEncodeDate))`,
		`v.Due = fenReadOptionalField(r, "due", fenDecodeOptional(fenDecodeDate))`,
		`v.Job = fenReadField(r, "job", decodeJob)`,
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("type_todo.go missing %q:\n%s", want, src)
		}
	}
}

func TestEmit_OptionalEnumIsNilInterface(t *testing.T) {
	t.Parallel()
	src := `
types:
  - struct: Task
    fields:
      - { name: mood, type: Mood, optional: true }
  - enum: Mood
    variants: [happy, sad]
`
	got := unit(t, emit(t, src), "type_task.go")
	for _, want := range []string{
		"Mood Mood\n",
		`fenWriteField(o, "mood", v.Mood, fenEncodeNilable(encodeMood))`,
		`v.Mood = fenReadOptionalField(r, "mood", fenDecodeNilable(decodeMood))`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("type_task.go missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "*Mood") {
		t.Fatalf("optional enum rendered as a pointer:\n%s", got)
	}
}

func TestEmit_Enum(t *testing.T) {
	t.Parallel()
	src := unit(t, emit(t, todosYAML), "type_job.go")
	for _, want := range []string{
		"// What a todo is about.\n//\n// A Job is one of JobDeveloper, JobOther, JobNested.\ntype Job interface {",
		"type JobDeveloper struct{}",
		"Value *string",
		"Value []Todo",
		`return "other", func() (json.RawMessage, error) { return fenEncodeOptional(fenEncodeString)(v.Value) }`,
		`{payload: true, optional: true, decode:`,
		`{payload: true, optional: false, decode:`,
		"func DecodeJob(data []byte) (Job, error)",
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("type_job.go missing %q:\n%s", want, src)
		}
	}
	if strings.Contains(src, "uuid") {
		t.Fatalf("type_job.go imports uuid without using it")
	}
}

func TestEmit_Endpoints(t *testing.T) {
	t.Parallel()
	tree := emit(t, todosYAML)
	cases := map[string][]string{
		"endpoint_get_todos.go": {
			"func (c *Client) GetTodos(ctx context.Context, sessionToken string) (Response[[]Todo], error) {",
			`return fenCall(ctx, c, "GET", "/_fen_/get-todos", nil, sessionToken, fenDecodeArray(decodeTodo))`,
		},
		"endpoint_create_todo.go": {
			"func (c *Client) CreateTodo(ctx context.Context, id uuid.UUID, name string, isCompleted bool, due *Date, job Job) (Response[Todo], error) {",
			"body, err := encodeTodo(Todo{ID: id, Name: name, IsCompleted: isCompleted, Due: due, Job: job})",
			`return fenCall(ctx, c, "POST", "/_fen_/create-todo", body, "", decodeTodo)`,
		},
		"endpoint_count_todos.go": {
			"CountTodos(ctx context.Context, input []uuid.UUID) (Response[int64], error)",
			"body, err := fenEncodeArray(fenEncodeUUID)(input)",
		},
		"endpoint_ping.go": {
			"Ping(ctx context.Context) (Response[Response[bool]], error)",
			"fenDecodeResponse(fenDecodeBool)",
		},
	}
	for path, wants := range cases {
		src := unit(t, tree, path)
		for _, want := range wants {
			if !strings.Contains(src, want) {
				t.Fatalf("%s missing %q:\n%s", path, want, src)
			}
		}
	}
}

func TestEmit_Runtime(t *testing.T) {
	t.Parallel()
	opts := options()
	opts.PayloadKey = "data"
	opts.EndpointProd = "https://api.example.com"
	tree, err := New().Emit(context.Background(), resolve(t, todosYAML), opts)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	src := unit(t, tree, RuntimeFile)
	for _, want := range []string{
		`"http://localhost:8080"`,
		`"https://api.example.com"`,
		`const fenPayloadKey = "data"`,
		`req.Header.Set("Authorization", "Bearer "+token)`,
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("runtime missing %q", want)
		}
	}
}

func TestEmit_Deterministic(t *testing.T) {
	t.Parallel()
	a, b := emit(t, todosYAML), emit(t, todosYAML)
	if diff := cmp.Diff(a.Sorted(), b.Sorted()); diff != "" {
		t.Fatalf("two runs differ:\n%s", diff)
	}
}

func TestEmit_TargetErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		src       string
		construct string
	}{
		{
			name: "value cycle",
			src: `
types:
  - struct: A
    fields: [{ name: b, type: B }]
  - struct: B
    fields: [{ name: a, type: A }]
`,
			construct: "A -> B -> A",
		},
		{
			name: "variant type collides with struct",
			src: `
types:
  - enum: Job
    variants: [other]
  - struct: JobOther
`,
			construct: "JobOther",
		},
		{
			name: "runtime name",
			src: `
types:
  - struct: Client
`,
			construct: "runtime Client",
		},
		{
			name: "field names collide",
			src: `
types:
  - struct: User
    fields:
      - { name: user_id, type: Int }
      - { name: userID, type: Int }
`,
			construct: "User.userID",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New().Emit(context.Background(), resolve(t, tc.src), options())
			var te *emitter.TargetError
			if !errors.As(err, &te) {
				t.Fatalf("want TargetError, got %v", err)
			}
			if te.Target != TargetName || te.Construct != tc.construct {
				t.Fatalf("got %+v, want construct %q", te, tc.construct)
			}
		})
	}
}

func TestEmit_OptionalRecursionIsAllowed(t *testing.T) {
	t.Parallel()
	emit(t, `
types:
  - struct: Node
    fields:
      - { name: next, type: Node, optional: true }
      - { name: children, type: "[Node]" }
`)
}

func TestNames(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"user_id":      "UserID",
		"userId":       "UserID",
		"is_completed": "IsCompleted",
		"api_url":      "APIURL",
		"Todo":         "Todo",
	}
	for in, want := range cases {
		if got := exportName(in); got != want {
			t.Fatalf("exportName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := paramName("type"); got != "typeArg" {
		t.Fatalf("paramName(type) = %q", got)
	}
	if got := paramName("user_id"); got != "userID" {
		t.Fatalf("paramName(user_id) = %q", got)
	}
	if got := PackageName("", "My Todos!"); got != "mytodos" {
		t.Fatalf("PackageName = %q", got)
	}
	if got := PackageName("", ""); got != "fenclient" {
		t.Fatalf("PackageName fallback = %q", got)
	}
}
