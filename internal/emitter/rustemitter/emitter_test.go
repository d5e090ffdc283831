package rustemitter

import (
	"context"
	"errors"
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
    description: A thing to do.
    fields:
      - { name: id, type: Uuid }
      - { name: is_completed, type: Bool }
      - { name: due, type: Date, optional: true }
      - { name: owner_ID, type: String }
      - { name: match, type: Int }
      - { name: job, type: Job }
  - enum: Job
    variants:
      - developer
      - { tag: first_option, payload: Int }
      - { tag: other, payload: "String?" }
      - { tag: delegated, payload: Todo }
      - { tag: nested, payload: "[Todo]" }
endpoints:
  - { name: GetTodos, output: "[Todo]", auth: true }
  - { name: CreateTodo, input: Todo, output: "Response<Todo>" }
  - { name: CountTodos, method: POST, input: "[Uuid]", output: Int }
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
		Stamp: emitter.Stamp{Generator: "Fen", Version: "0.6.0", Time: time.Date(2025, 3, 5, 13, 10, 9, 0, time.UTC)},
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
		if !strings.HasPrefix(string(u.Content), "// Created by Fen v0.6.0 at 13:10:09 on 2025-03-05\n") {
			t.Fatalf("%s: missing header", u.Path)
		}
	}
	want := []string{"count_todos.rs", "create_todo.rs", "get_todos.rs", "mod.rs", "types.rs"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("units (-want +got):\n%s", diff)
	}
	contains(t, "mod.rs", unit(t, tree, "mod.rs"),
		"pub mod types;\npub mod get_todos;\npub mod create_todo;\npub mod count_todos;\n\npub use types::*;\n",
	)
}

func TestEmit_Struct(t *testing.T) {
	t.Parallel()
	src := unit(t, emit(t, todosYAML, options()), "types.rs")
	contains(t, "types.rs", src,
		"/// A thing to do.\n#[derive(Serialize, Deserialize, Debug, Clone, PartialEq)]\n#[serde(rename_all = \"camelCase\")]\npub struct Todo {\n",
		"    pub id: Uuid,\n",
		"    pub is_completed: bool,\n",
		"    pub due: Option<FenDate>,\n",
		"    #[serde(rename = \"ownerID\")]\n    pub owner_id: String,\n",
		"    pub r#match: i64,\n",
		"    pub job: Job,\n",
	)
	if strings.Contains(src, "#[serde(rename = \"isCompleted\")]") {
		t.Fatalf("rename emitted where rename_all already matches:\n%s", src)
	}
}

func TestEmit_Enum(t *testing.T) {
	t.Parallel()
	opts := options()
	opts.PayloadKey = "data"
	src := unit(t, emit(t, todosYAML, opts), "types.rs")
	contains(t, "types.rs", src,
		"#[serde(tag = \"type\", content = \"data\", rename_all = \"camelCase\")]\npub enum Job {\n",
		"    Developer,\n",
		"    FirstOption(i64),\n",
		"    Other(Option<String>),\n",
		"    Delegated(Box<Todo>),\n",
		"    Nested(Vec<Todo>),\n",
	)
}

func TestEmit_Endpoints(t *testing.T) {
	t.Parallel()
	tree := emit(t, todosYAML, options())
	contains(t, "get_todos.rs", unit(t, tree, "get_todos.rs"),
		"use super::*;\n",
		"pub const PATH: &str = \"/_fen_/get-todos\";\n",
		"pub const METHOD: &str = \"GET\";\n",
		"pub const REQUIRES_AUTH: bool = true;\n",
		"pub type Output = Vec<Todo>;\n",
	)
	create := unit(t, tree, "create_todo.rs")
	contains(t, "create_todo.rs", create,
		"pub type Input = Todo;\n",
		"pub type Output = Response<Todo>;\n",
	)
	contains(t, "count_todos.rs", unit(t, tree, "count_todos.rs"),
		"pub const METHOD: &str = \"POST\";\n",
		"pub type Input = Vec<Uuid>;\n",
	)
	if strings.Contains(unit(t, tree, "get_todos.rs"), "pub type Input") {
		t.Fatalf("endpoint without input declares Input")
	}
}

func TestEmit_Runtime(t *testing.T) {
	t.Parallel()
	opts := options()
	opts.PayloadKey = "data"
	contains(t, "mod.rs", unit(t, emit(t, todosYAML, opts), "mod.rs"),
		"pub const PAYLOAD_KEY: &str = \"data\";\n",
		"#[serde(tag = \"type\", rename_all = \"camelCase\")]\npub enum Response<T> {\n",
		"        #[serde(rename = \"data\")]\n        value: T,\n",
		"serializer.collect_str(&self.0.format(\"%Y-%m-%dT%H:%M:%SZ\"))",
		"pub fn fen_path(path: &str) -> String {\n    format!(\"/_fen_{path}\")\n}\n",
	)
}

func TestEmit_Deterministic(t *testing.T) {
	t.Parallel()
	a := emit(t, todosYAML, options())
	b := emit(t, todosYAML, options())
	if diff := cmp.Diff(a.Sorted(), b.Sorted()); diff != "" {
		t.Fatalf("outputs differ (-first +second):\n%s", diff)
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
			name: "optional self reference",
			src: `
types:
  - struct: Node
    fields: [{ name: next, type: Node, optional: true }]
`,
			construct: "Node -> Node",
		},
		{
			name: "shadows a runtime name",
			src: `
types:
  - struct: Vec
`,
			construct: "runtime Vec",
		},
		{
			name: "fields collide in snake case",
			src: `
types:
  - struct: Pair
    fields:
      - { name: userID, type: Int }
      - { name: user_id, type: Int }
`,
			construct: "Pair.user_id",
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

func TestEmit_EnumsBreakCycles(t *testing.T) {
	t.Parallel()
	src := unit(t, emit(t, `
types:
  - struct: Node
    fields: [{ name: next, type: Link }]
  - enum: Link
    variants:
      - end
      - { tag: more, payload: "Node?" }
`, options()), "types.rs")
	contains(t, "types.rs", src, "    More(Option<Box<Node>>),\n")
}
