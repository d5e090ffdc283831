package npmemitter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/fenlang/fen/internal/emitter"
	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
)

const todosYAML = `
name: Todo Service
version: 1.2.0
types:
  - struct: Todo
    description: A thing to do.
    fields:
      - { name: id, type: Uuid }
      - { name: is_completed, type: Bool }
      - { name: due, type: Date, optional: true }
      - { name: default, type: String }
      - { name: job, type: Job }
  - enum: Job
    variants:
      - developer
      - { tag: other, payload: "String?" }
endpoints:
  - { name: GetTodos, output: "[Todo]", auth: true }
  - { name: CreateTodo, input: Todo, output: Todo }
  - { name: Stats, method: POST, input: "[Int?]", output: "Response<Float>" }
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
		Endpoint: "http://localhost:8080",
		Stamp:    emitter.Stamp{Generator: "Fen", Version: "0.6.0", Time: time.Date(2025, 3, 5, 13, 10, 9, 0, time.UTC)},
	}
}

func emit(t *testing.T, src string, opts emitter.Options) *emitter.Tree {
	t.Helper()
	tree, err := New().Emit(context.Background(), resolve(t, src), opts)
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

func contains(t *testing.T, path, src string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(src, want) {
			t.Fatalf("%s missing %q:\n%s", path, want, src)
		}
	}
}

func TestEmit_Units(t *testing.T) {
	t.Parallel()
	tree := emit(t, todosYAML, options())
	var got []string
	for _, u := range tree.Sorted() {
		got = append(got, u.Path)
	}
	want := []string{
		"endpoints/createTodo.ts",
		"endpoints/getTodos.ts",
		"endpoints/stats.ts",
		"index.ts",
		"package.json",
		"runtime.ts",
		"types/Job.ts",
		"types/Todo.ts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("units (-want +got):\n%s", diff)
	}
	for _, u := range tree.Units {
		if u.Path == "package.json" {
			continue
		}
		if !strings.HasPrefix(string(u.Content), "// Created by Fen v0.6.0 at 13:10:09 on 2025-03-05\n// Do not manually modify this file as it is automatically generated\n\n") {
			t.Fatalf("%s: missing header", u.Path)
		}
	}
}

func TestEmit_Types(t *testing.T) {
	t.Parallel()
	tree := emit(t, todosYAML, options())
	contains(t, "types/Todo.ts", unit(t, tree, "types/Todo.ts"),
		`import * as fen from "../runtime";`,
		`import { type Job, JobCodec } from "./Job";`,
		"/** A thing to do. */\nexport interface Todo {",
		"  isCompleted: boolean;",
		"  due: Date | null;",
		"  default: string;",
		`export const TodoCodec: fen.Codec<Todo> = fen.struct<Todo>("Todo", [`,
		`  ["due", fen.optional(fen.date), true],`,
		`  ["job", fen.lazy(() => JobCodec), false],`,
	)
	contains(t, "types/Job.ts", unit(t, tree, "types/Job.ts"),
		"export type Job =\n  | { type: \"developer\" }\n  | { type: \"other\"; value: string | null };\n",
		"  developer: null,\n",
		"  other: { codec: fen.optional(fen.string), optional: true },\n",
	)
}

func TestEmit_Endpoints(t *testing.T) {
	t.Parallel()
	tree := emit(t, todosYAML, options())
	contains(t, "getTodos", unit(t, tree, "endpoints/getTodos.ts"),
		`import { type Todo, TodoCodec } from "../types/Todo";`,
		"export async function getTodos(client: fen.ApiClient, sessionToken?: string): Promise<fen.Response<Array<Todo>>> {",
		`return client.call("GET", "/_fen_/get-todos", undefined, fen.array(fen.lazy(() => TodoCodec)), sessionToken);`,
	)
	create := unit(t, tree, "endpoints/createTodo.ts")
	contains(t, "createTodo", create,
		`import { type Job } from "../types/Job";`,
		`import { type Todo, TodoCodec } from "../types/Todo";`,
		"createTodo(client: fen.ApiClient, id: string, isCompleted: boolean, due: Date | null, default_: string, job: Job)",
		"const body = TodoCodec.encode({ id, isCompleted, due, default: default_, job });",
		`return client.call("POST", "/_fen_/create-todo", body, fen.lazy(() => TodoCodec));`,
	)
	contains(t, "stats", unit(t, tree, "endpoints/stats.ts"),
		"stats(client: fen.ApiClient, input: Array<number | null>): Promise<fen.Response<fen.Response<number>>>",
		"const body = fen.array(fen.optional(fen.int)).encode(input);",
		"fen.response(fen.float)",
	)
	if strings.Contains(unit(t, tree, "endpoints/stats.ts"), "../types/") {
		t.Fatalf("stats imports type modules it does not use")
	}
}

func TestEmit_RuntimeAndIndex(t *testing.T) {
	t.Parallel()
	opts := options()
	opts.PayloadKey = "data"
	opts.EndpointProd = "https://api.example.com"
	tree := emit(t, todosYAML, opts)
	contains(t, "runtime.ts", unit(t, tree, "runtime.ts"),
		`export const PAYLOAD_KEY = "data";`,
		`development: "http://localhost:8080",`,
		`production: "https://api.example.com",`,
		"headers[\"Authorization\"] = `Bearer ${sessionToken}`;",
	)
	contains(t, "index.ts", unit(t, tree, "index.ts"),
		`export * from "./types/Todo";`,
		`export { createTodo } from "./endpoints/createTodo";`,
	)

	var pkg map[string]any
	if err := json.Unmarshal([]byte(unit(t, tree, "package.json")), &pkg); err != nil {
		t.Fatalf("package.json: %v", err)
	}
	if pkg["name"] != "todo-service" || pkg["version"] != "1.2.0" {
		t.Fatalf("package.json: %v", pkg)
	}
}

func TestEmit_Deterministic(t *testing.T) {
	t.Parallel()
	a, b := emit(t, todosYAML, options()), emit(t, todosYAML, options())
	if diff := cmp.Diff(a.Sorted(), b.Sorted()); diff != "" {
		t.Fatalf("two runs differ:\n%s", diff)
	}
}

func TestEmit_NameCollision(t *testing.T) {
	t.Parallel()
	_, err := New().Emit(context.Background(), resolve(t, `
types:
  - struct: Todo
  - struct: TodoCodec
`), options())
	var te *emitter.TargetError
	if !errors.As(err, &te) || te.Construct != "TodoCodec" {
		t.Fatalf("want TargetError on TodoCodec, got %v", err)
	}
}

func TestSanitizePackageName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"My Client":        "my-client",
		"@Acme/Todo Api":   "@acme/todo-api",
		"  ":               "",
		"bad/name!":        "bad-name",
		"-.leading.dots.-": "leading.dots",
	}
	for in, want := range cases {
		if got := sanitizePackageName(in); got != want {
			t.Fatalf("sanitizePackageName(%q) = %q, want %q", in, got, want)
		}
	}
}
