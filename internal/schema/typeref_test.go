package schema

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTypeRef(t *testing.T) {
	t.Parallel()
	cases := []struct {
		expr string
		want TypeRef
	}{
		{"Int", Int},
		{"UUID", Uuid},
		{"Todo", Named{Name: "Todo"}},
		{"Date?", Optional{Elem: Date}},
		{"[Todo]", Array{Elem: Named{Name: "Todo"}}},
		{"[[Int]?]", Array{Elem: Optional{Elem: Array{Elem: Int}}}},
		{"[String]?", Optional{Elem: Array{Elem: String}}},
		{"Response<[Todo]>", Generic{Name: "Response", Args: []TypeRef{Array{Elem: Named{Name: "Todo"}}}}},
		{" Map< String , Int > ", Generic{Name: "Map", Args: []TypeRef{String, Int}}},
		{"Int??", Optional{Elem: Optional{Elem: Int}}},
	}
	for _, tc := range cases {
		got, err := ParseTypeRef(tc.expr)
		if err != nil {
			t.Fatalf("ParseTypeRef(%q): %v", tc.expr, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("ParseTypeRef(%q) mismatch (-want +got):\n%s", tc.expr, diff)
		}
	}
}

func TestParseTypeRef_Errors(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{"", "   ", "[Int", "Int]", "?", "Response<>", "Response<Int", "1Int", "Int Float"} {
		_, err := ParseTypeRef(expr)
		if err == nil {
			t.Fatalf("ParseTypeRef(%q): expected error", expr)
		}
		var te *TypeExprError
		if !errors.As(err, &te) {
			t.Fatalf("ParseTypeRef(%q): expected TypeExprError, got %T", expr, err)
		}
	}
}

func TestTypeRefString_RoundTrips(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{"Int", "[Todo]", "Date?", "[[Int]?]?", "Response<[Todo]>", "Map<String, Int>"} {
		ref := MustParseTypeRef(expr)
		if got := ref.String(); got != expr {
			t.Fatalf("String() = %q, want %q", got, expr)
		}
	}
}

func TestWalk_SkipsChildren(t *testing.T) {
	t.Parallel()
	ref := MustParseTypeRef("[Response<Todo?>]")
	var seen []string
	Walk(ref, func(r TypeRef) bool {
		seen = append(seen, r.String())
		_, isGeneric := r.(Generic)
		return !isGeneric
	})
	want := []string{"[Response<Todo?>]", "Response<Todo?>"}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Fatalf("walk order mismatch (-want +got):\n%s", diff)
	}
}

func TestIsResponse(t *testing.T) {
	t.Parallel()
	elem, ok := IsResponse(NewResponse(Int))
	if !ok || elem != Int {
		t.Fatalf("IsResponse(Response<Int>) = %v, %v", elem, ok)
	}
	if _, ok := IsResponse(Generic{Name: "Response", Args: []TypeRef{Int, Bool}}); ok {
		t.Fatalf("two-argument Response must not match")
	}
	if _, ok := IsResponse(Named{Name: "Response"}); ok {
		t.Fatalf("named Response must not match")
	}
}
