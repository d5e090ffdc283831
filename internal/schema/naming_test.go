package schema

import "testing"

func TestNameTransforms(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"snake_to_camel", SnakeToCamel, "hello_world", "helloWorld"},
		{"snake_to_camel", SnakeToCamel, "foo_bar_baz_qux", "fooBarBazQux"},
		{"snake_to_camel", SnakeToCamel, "foo", "foo"},
		{"snake_to_pascal", SnakeToPascal, "hello_world", "HelloWorld"},
		{"snake_to_pascal", SnakeToPascal, "foo", "Foo"},
		{"pascal_to_camel", PascalToCamel, "FooBarBaz", "fooBarBaz"},
		{"pascal_to_camel", PascalToCamel, "", ""},
		{"pascal_to_kebab", PascalToKebab, "HelloWorld", "hello-world"},
		{"pascal_to_kebab", PascalToKebab, "FooBarBazQux", "foo-bar-baz-qux"},
		{"pascal_to_kebab", PascalToKebab, "GetTodos", "get-todos"},
		{"to_snake", ToSnake, "isCompleted", "is_completed"},
		{"to_snake", ToSnake, "HTTPServer", "http_server"},
		{"to_snake", ToSnake, "already_snake", "already_snake"},
		{"wire", WireName, "is_completed", "isCompleted"},
		{"wire", WireName, "first_option", "firstOption"},
		{"wire", WireName, "isCompleted", "isCompleted"},
		{"wire", WireName, "Developer", "developer"},
		{"wire", WireName, "ID", "id"},
		{"wire", WireName, "URLPath", "urlPath"},
		{"wire", WireName, "user_ID", "userID"},
		{"wire", WireName, "HTTP2", "http2"},
	}
	for _, tc := range cases {
		if got := tc.fn(tc.in); got != tc.want {
			t.Fatalf("%s(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Parallel()
	if got := DefaultPath("CreateTodo"); got != "/_fen_/create-todo" {
		t.Fatalf("DefaultPath = %q", got)
	}
}
