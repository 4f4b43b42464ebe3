package permission

import (
	"net/http"
	"testing"
)

func TestTableRegisterLookup(t *testing.T) {
	table := NewTable()
	policy := Policy{
		Roles: []Role{RoleOwner, RoleLeader, RoleManager},
		Scope: &Requirement{Kind: ScopeDepartment, Param: "departmentId"},
	}
	if err := table.Register(http.MethodGet, "/departments/{departmentId}", policy); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := table.Lookup("get", "/departments/{departmentId}")
	if !ok || got.Scope == nil || got.Scope.Param != "departmentId" {
		t.Fatalf("unexpected lookup: %+v %v", got, ok)
	}
	if _, ok := table.Lookup(http.MethodPost, "/departments/{departmentId}"); ok {
		t.Fatal("method must be part of the key")
	}
	if table.Count() != 1 {
		t.Fatalf("expected 1 route, got %d", table.Count())
	}
}

func TestTableRejectsInvalidPolicies(t *testing.T) {
	table := NewTable()
	cases := []Policy{
		{Roles: []Role{"ADMIN"}},
		{Scope: &Requirement{Kind: "REGION", Param: "id"}},
		{Scope: &Requirement{Kind: ScopeBranch}},
	}
	for i, p := range cases {
		if err := table.Register(http.MethodGet, "/x", p); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}

	if err := table.Register(http.MethodGet, "/x", Policy{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := table.Register(http.MethodGet, "/x", Policy{}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestTableFreeze(t *testing.T) {
	table := NewTable()
	table.Freeze()
	if err := table.Register(http.MethodGet, "/x", Policy{}); err == nil {
		t.Fatal("expected frozen table error")
	}
}
