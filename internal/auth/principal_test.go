package auth

import (
	"context"
	"testing"
)

func TestHasBinding(t *testing.T) {
	p := Principal{
		UserID: "user-1",
		Bindings: []Binding{
			{CongregationID: "cong-1", Role: RoleOverseer},
			{CongregationID: "cong-2", Role: RoleVolunteer},
		},
	}

	if !p.CanManage("cong-1") {
		t.Fatal("overseer binding must allow managing its congregation")
	}
	if !p.CanRecord("cong-1") {
		t.Fatal("overseer binding must imply volunteer capability")
	}
	if p.CanManage("cong-2") {
		t.Fatal("volunteer binding must not allow managing")
	}
	if !p.CanRecord("cong-2") {
		t.Fatal("volunteer binding must allow recording")
	}
	if p.CanRecord("cong-3") || p.CanManage("") {
		t.Fatal("unknown or blank congregation must never match")
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	p := Principal{UserID: "user-1", Bindings: []Binding{{CongregationID: "cong-1", Role: RoleVolunteer}}}

	ctx := ContextWithPrincipal(context.Background(), p)
	got, ok := PrincipalFromContext(ctx)
	if !ok {
		t.Fatal("expected principal in context")
	}
	if got.UserID != "user-1" || len(got.Bindings) != 1 {
		t.Fatalf("unexpected principal %+v", got)
	}

	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("empty context must not produce a principal")
	}
}
