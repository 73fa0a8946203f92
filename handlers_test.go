package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kwv/claimmesh/claims"
	"github.com/paulmach/orb/geojson"
)

// newTestServer returns a handler over a world holding two overlapping
// equivalent claims and one named claim on its own.
func newTestServer(t *testing.T) (http.Handler, *claims.MemoryWorld) {
	t.Helper()
	spawn := testClaim("spawn", 100, 100, 110, 110)
	spawn.Flags[claims.FlagName] = claims.StringFlag("Spawn")
	app, w, _ := newTestApp(t,
		testClaim("a", 0, 0, 4, 4),
		testClaim("b", 3, 0, 7, 4),
		spawn,
	)
	if err := app.setup(); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	return newHTTPServer(app.Host, app.Merger, app.Names), w
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	rec := serve(h, http.MethodGet, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
		Worlds int    `json:"worlds"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Worlds != 1 {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestWorldsEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	rec := serve(h, http.MethodGet, "/worlds")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body []worldSummary
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 || body[0].Name != "world" || body[0].Regions != 3 {
		t.Errorf("unexpected worlds body: %+v", body)
	}
}

func TestGroupsEndpoint(t *testing.T) {
	h, w := newTestServer(t)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantGroups int
	}{
		{"known world", "/worlds/world/groups", http.StatusOK, 1},
		{"unknown world", "/worlds/world_nether/groups", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodGet, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body groupsResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Groups) != tt.wantGroups {
				t.Errorf("got %d groups, want %d", len(body.Groups), tt.wantGroups)
			}
			if len(body.Groups) == 1 && len(body.Groups[0].Members) != 2 {
				t.Errorf("unexpected members: %v", body.Groups[0].Members)
			}
		})
	}

	if n := len(w.Regions()); n != 3 {
		t.Errorf("preview changed the world: %d regions", n)
	}
}

func TestRegionsGeoJSONEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	rec := serve(h, http.MethodGet, "/worlds/world/regions.geojson")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q, want application/geo+json", ct)
	}
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(fc.Features) != 3 {
		t.Errorf("got %d features, want 3", len(fc.Features))
	}

	rec = serve(h, http.MethodGet, "/worlds/world_nether/regions.geojson")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown world status = %d, want 404", rec.Code)
	}
}

func TestNamesEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	rec := serve(h, http.MethodGet, "/names/world/Spawn")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body namesResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Regions) != 1 || body.Regions[0] != "spawn" {
		t.Errorf("unexpected regions: %v", body.Regions)
	}

	if rec := serve(h, http.MethodGet, "/names/world/Nowhere"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown name status = %d, want 404", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/names/world_nether/Spawn"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown world status = %d, want 404", rec.Code)
	}
}

func TestForceMergeEndpoint(t *testing.T) {
	h, w := newTestServer(t)

	if rec := serve(h, http.MethodPost, "/admin/forcemerge"); rec.Code != http.StatusBadRequest {
		t.Errorf("missing world status = %d, want 400", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/admin/forcemerge?world=world_nether"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown world status = %d, want 404", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/admin/forcemerge?world=world"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}

	rec := serve(h, http.MethodPost, "/admin/forcemerge?world=world")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var report claims.Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.World != "world" || report.Merged() != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if n := len(w.Regions()); n != 2 {
		t.Errorf("expected 2 regions after merge, got %d", n)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid world", &claims.InvalidWorldError{World: "x"}, http.StatusNotFound},
		{"other", claims.ErrRegionNotFound, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
