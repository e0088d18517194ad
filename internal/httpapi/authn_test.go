package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"notathome.app/internal/auth"
)

func newBoundRequest(bindings ...auth.Binding) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	principal := auth.Principal{UserID: "user-1", Bindings: bindings}
	return req.WithContext(auth.ContextWithPrincipal(req.Context(), principal))
}

func TestRequireManageAllowsOverseer(t *testing.T) {
	a := &API{}
	req := newBoundRequest(auth.Binding{CongregationID: "cong-1", Role: auth.RoleOverseer})

	rr := httptest.NewRecorder()
	principal, ok := a.requireManage(rr, req, "cong-1")
	if !ok {
		t.Fatalf("expected overseer to pass, got %d", rr.Code)
	}
	if principal.UserID != "user-1" {
		t.Fatalf("unexpected principal: %+v", principal)
	}
}

func TestRequireManageRejectsVolunteer(t *testing.T) {
	a := &API{}
	req := newBoundRequest(auth.Binding{CongregationID: "cong-1", Role: auth.RoleVolunteer})

	rr := httptest.NewRecorder()
	if _, ok := a.requireManage(rr, req, "cong-1"); ok {
		t.Fatal("expected volunteer to be rejected")
	}
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestRequireManageRejectsForeignCongregation(t *testing.T) {
	a := &API{}
	req := newBoundRequest(auth.Binding{CongregationID: "cong-2", Role: auth.RoleOverseer})

	rr := httptest.NewRecorder()
	if _, ok := a.requireManage(rr, req, "cong-1"); ok {
		t.Fatal("expected foreign overseer to be rejected")
	}
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRequireManageRejectsMissingPrincipal(t *testing.T) {
	a := &API{}
	req := httptest.NewRequest(http.MethodGet, "/internal", nil)

	rr := httptest.NewRecorder()
	if _, ok := a.requireManage(rr, req, "cong-1"); ok {
		t.Fatal("expected anonymous caller to be rejected")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestRequireMemberAcceptsOverseer(t *testing.T) {
	a := &API{}
	req := newBoundRequest(auth.Binding{CongregationID: "cong-1", Role: auth.RoleOverseer})

	rr := httptest.NewRecorder()
	if _, ok := a.requireMember(rr, req, "cong-1"); !ok {
		t.Fatalf("expected overseer to satisfy member check, got %d", rr.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc123", "abc123", false},
		{"bearer abc123", "abc123", false},
		{"  Bearer   abc123  ", "abc123", false},
		{"Basic dXNlcg==", "", true},
		{"", "", true},
		{"Bearer   ", "", true},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("header %q: expected error", tc.header)
			}
			continue
		}
		if err != nil {
			t.Fatalf("header %q: unexpected error: %v", tc.header, err)
		}
		if got != tc.want {
			t.Fatalf("header %q: expected %q, got %q", tc.header, tc.want, got)
		}
	}
}

func TestIsCodeCapabilityPath(t *testing.T) {
	public := []string{
		"/v1/sessions/by-code/4821",
		"/v1/sessions/01ABC",
		"/v1/sessions/01ABC/addresses",
		"/v1/sessions/01ABC/stream",
	}
	for _, p := range public {
		if !isCodeCapabilityPath(p) {
			t.Fatalf("expected %q to be a capability path", p)
		}
	}
	protected := []string{
		"/v1/sessions",
		"/v1/sessions/01ABC/close",
		"/v1/sessions/01ABC/export",
		"/v1/other/addresses",
	}
	for _, p := range protected {
		if isCodeCapabilityPath(p) {
			t.Fatalf("expected %q to require a token", p)
		}
	}
}
