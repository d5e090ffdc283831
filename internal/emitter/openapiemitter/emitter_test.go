package openapiemitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/go-cmp/cmp"

	"github.com/fenlang/fen/internal/emitter"
	"github.com/fenlang/fen/internal/resolver"
	"github.com/fenlang/fen/internal/schema"
)

const todosYAML = `
name: Todos
version: 2.0.0
types:
  - struct: Todo
    description: A thing to do.
    fields:
      - { name: id, type: Uuid }
      - { name: is_completed, type: Bool }
      - { name: due, type: Date, optional: true }
      - { name: job, type: Job }
      - { name: subtasks, type: "[Todo]" }
  - enum: Job
    variants:
      - developer
      - { tag: other, payload: "String?" }
      - { tag: owner, payload: Todo }
endpoints:
  - { name: GetTodos, output: "[Todo]", auth: true }
  - { name: CreateTodo, input: Todo, output: Todo }
  - { name: Batch, method: POST, output: "[Response<Int>]" }
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
		Endpoint:     "http://localhost:8080",
		EndpointProd: "https://api.example.com",
		Stamp:        emitter.Stamp{Generator: "Fen", Version: "0.6.0", Time: time.Date(2025, 3, 5, 13, 10, 9, 0, time.UTC)},
	}
}

// load emits the document and reads it back with the kin-openapi loader.
func load(t *testing.T, src string, opts emitter.Options) *openapi3.T {
	t.Helper()
	tree, err := New().Emit(context.Background(), resolve(t, src), opts)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(tree.Units) != 1 || tree.Units[0].Path != DocumentFile {
		t.Fatalf("units: %+v", tree.Units)
	}
	doc, err := openapi3.NewLoader().LoadFromData(tree.Units[0].Content)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return doc
}

func TestEmit_Document(t *testing.T) {
	t.Parallel()
	doc := load(t, todosYAML, options())
	if doc.Info.Title != "Todos" || doc.Info.Version != "2.0.0" {
		t.Fatalf("info: %+v", doc.Info)
	}
	if want := "Created by Fen v0.6.0 at 13:10:09 on 2025-03-05\nDo not manually modify this file as it is automatically generated"; doc.Info.Description != want {
		t.Fatalf("description = %q", doc.Info.Description)
	}
	var servers []string
	for _, s := range doc.Servers {
		servers = append(servers, s.URL)
	}
	if diff := cmp.Diff([]string{"http://localhost:8080", "https://api.example.com"}, servers); diff != "" {
		t.Fatalf("servers (-want +got):\n%s", diff)
	}
}

func TestEmit_Operations(t *testing.T) {
	t.Parallel()
	doc := load(t, todosYAML, options())
	get := doc.Paths["/_fen_/get-todos"]
	if get == nil || get.Get == nil {
		t.Fatalf("GET /_fen_/get-todos missing")
	}
	if get.Get.OperationID != "getTodos" || get.Get.RequestBody != nil {
		t.Fatalf("getTodos: %+v", get.Get)
	}
	if get.Get.Security == nil || len(*get.Get.Security) != 1 {
		t.Fatalf("getTodos has no security requirement")
	}
	if _, ok := (*get.Get.Security)[0][bearerScheme]; !ok {
		t.Fatalf("getTodos security: %v", *get.Get.Security)
	}
	scheme := doc.Components.SecuritySchemes[bearerScheme]
	if scheme == nil || scheme.Value.Scheme != "bearer" {
		t.Fatalf("bearer scheme missing")
	}

	create := doc.Paths["/_fen_/create-todo"]
	if create == nil || create.Post == nil || create.Post.RequestBody == nil {
		t.Fatalf("POST /_fen_/create-todo missing or without body")
	}
	if create.Post.Security != nil {
		t.Fatalf("createTodo must not require auth")
	}
	body := create.Post.RequestBody.Value.Content.Get("application/json")
	if body == nil || body.Schema.Ref != "#/components/schemas/Todo" {
		t.Fatalf("createTodo body: %+v", body)
	}

	resp := create.Post.Responses["200"].Value.Content.Get("application/json").Schema.Value
	if len(resp.OneOf) != 2 || resp.OneOf[1].Ref != "#/components/schemas/FenFailure" {
		t.Fatalf("envelope: %+v", resp)
	}
	success := resp.OneOf[0].Value
	if diff := cmp.Diff([]string{"type", "value"}, success.Required); diff != "" {
		t.Fatalf("success required (-want +got):\n%s", diff)
	}
}

func TestEmit_Schemas(t *testing.T) {
	t.Parallel()
	doc := load(t, todosYAML, options())
	todo := doc.Components.Schemas["Todo"].Value
	if diff := cmp.Diff([]string{"id", "isCompleted", "job", "subtasks"}, todo.Required); diff != "" {
		t.Fatalf("Todo required (-want +got):\n%s", diff)
	}
	if id := todo.Properties["id"].Value; id.Type != "string" || id.Pattern != uuidPattern {
		t.Fatalf("id: %+v", id)
	}
	if due := todo.Properties["due"].Value; !due.Nullable || due.Format != "date-time" {
		t.Fatalf("due: %+v", due)
	}
	if items := todo.Properties["subtasks"].Value.Items; items.Ref != "#/components/schemas/Todo" {
		t.Fatalf("subtasks items: %+v", items)
	}

	job := doc.Components.Schemas["Job"].Value
	if job.Discriminator == nil || job.Discriminator.PropertyName != "type" {
		t.Fatalf("Job discriminator: %+v", job.Discriminator)
	}
	if diff := cmp.Diff(map[string]string{
		"developer": "#/components/schemas/JobDeveloper",
		"other":     "#/components/schemas/JobOther",
		"owner":     "#/components/schemas/JobOwner",
	}, job.Discriminator.Mapping); diff != "" {
		t.Fatalf("mapping (-want +got):\n%s", diff)
	}
	other := doc.Components.Schemas["JobOther"].Value
	if diff := cmp.Diff([]string{"type"}, other.Required); diff != "" {
		t.Fatalf("optional payload is required (-want +got):\n%s", diff)
	}
	owner := doc.Components.Schemas["JobOwner"].Value
	if diff := cmp.Diff([]string{"type", "value"}, owner.Required); diff != "" {
		t.Fatalf("JobOwner required (-want +got):\n%s", diff)
	}
}

func TestEmit_PayloadKey(t *testing.T) {
	t.Parallel()
	opts := options()
	opts.PayloadKey = "data"
	doc := load(t, todosYAML, opts)
	if _, ok := doc.Components.Schemas["JobOwner"].Value.Properties["data"]; !ok {
		t.Fatalf("variant payload not under data")
	}
	batch := doc.Paths["/_fen_/batch"].Post.Responses["200"].Value.Content.Get("application/json").Schema.Value
	items := batch.OneOf[0].Value.Properties["data"].Value.Items.Value
	if len(items.OneOf) != 2 {
		t.Fatalf("nested envelope: %+v", items)
	}
}

func TestEmit_Deterministic(t *testing.T) {
	t.Parallel()
	rs := resolve(t, todosYAML)
	a, err := New().Emit(context.Background(), rs, options())
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	b, err := New().Emit(context.Background(), rs, options())
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if diff := cmp.Diff(a.Sorted(), b.Sorted()); diff != "" {
		t.Fatalf("two runs differ:\n%s", diff)
	}
}

func TestEmit_VariantSchemaCollides(t *testing.T) {
	t.Parallel()
	_, err := New().Emit(context.Background(), resolve(t, `
types:
  - enum: Job
    variants: [other]
  - struct: JobOther
`), options())
	var te *emitter.TargetError
	if !errors.As(err, &te) || te.Construct != "JobOther" {
		t.Fatalf("want TargetError on JobOther, got %v", err)
	}
}
