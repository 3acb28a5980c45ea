package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequireAdmin_AllowsAdminKey_BlocksPublicKey(t *testing.T) {
	keys := Keys{
		Public: []string{"pub_key"},
		Admin:  []string{"adm_key"},
	}

	// Admin key -> 200
	reqAdm := httptest.NewRequest(http.MethodGet, "/admin", nil)
	reqAdm.Header.Set("X-API-Key", "adm_key")
	recAdm := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler).ServeHTTP(recAdm, reqAdm)
	if recAdm.Code != http.StatusOK {
		t.Fatalf("admin key should pass; got %d", recAdm.Code)
	}

	// Public key -> 403
	reqPub := httptest.NewRequest(http.MethodGet, "/admin", nil)
	reqPub.Header.Set("X-API-Key", "pub_key")
	recPub := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler).ServeHTTP(recPub, reqPub)
	if recPub.Code != http.StatusForbidden {
		t.Fatalf("public key should be forbidden; got %d", recPub.Code)
	}

	// Missing key -> 403
	reqNone := httptest.NewRequest(http.MethodGet, "/admin", nil)
	recNone := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler).ServeHTTP(recNone, reqNone)
	if recNone.Code != http.StatusForbidden {
		t.Fatalf("missing key should be 403; got %d", recNone.Code)
	}
}

func TestRequireAdmin_BasicCredentials(t *testing.T) {
	keys := Keys{AdminUser: "admin", AdminPassword: "s3cret"}

	req := httptest.NewRequest(http.MethodDelete, "/checkdefinitions/1", nil)
	req.SetBasicAuth("admin", "s3cret")
	rec := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("basic admin should pass; got %d", rec.Code)
	}

	bad := httptest.NewRequest(http.MethodDelete, "/checkdefinitions/1", nil)
	bad.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	RequireAdmin(keys)(okHandler).ServeHTTP(rec, bad)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong password should be forbidden; got %d", rec.Code)
	}
}

func TestRequireAny_KeySources(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, AdminUser: "admin", AdminPassword: "pw"}
	h := RequireAny(keys)(okHandler)

	cases := map[string]func(r *http.Request){
		"bearer": func(r *http.Request) { r.Header.Set("Authorization", "Bearer pub_key") },
		"x-api":  func(r *http.Request) { r.Header.Set("X-API-Key", "pub_key") },
		"header": func(r *http.Request) { r.Header.Set("api_key", "pub_key") },
		"query":  func(r *http.Request) { r.URL.RawQuery = "api_key=pub_key" },
		"cookie": func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "api_key", Value: "pub_key"}) },
		"basic":  func(r *http.Request) { r.SetBasicAuth("admin", "pw") },
	}
	for name, set := range cases {
		req := httptest.NewRequest(http.MethodGet, "/latestresults", nil)
		set(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: want 200, got %d", name, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/latestresults", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no credentials: want 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("basic challenge header missing")
	}
}

func TestRequireAny_OpenWhenUnconfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireAny(Keys{})(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 with no keys configured, got %d", rec.Code)
	}
}
