package wayback_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"staleview/internal/adapters/wayback"
	"staleview/internal/core/domain"
)

const identifyAnswer = `{
	"features": [
		{
			"attributes": {
				"OBJECTID": 101,
				"SRC_DATE": 20220205,
				"NICE_NAME": "Maxar Vivid",
				"SRC_DESC": "WV03",
				"SRC_RES": 0.5,
				"SRC_ACC": 5.0
			},
			"geometry": {
				"rings": [[[1.0, 1.0], [2.0, 1.0], [2.0, 2.0], [1.0, 2.0], [1.0, 1.0]]]
			}
		}
	]
}`

func TestFetchFootprints_ParsesAndDedups(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		if r.URL.Query().Get("f") != "json" {
			t.Errorf("expected f=json, got %s", r.URL.Query().Get("f"))
		}
		// Every sample point answers with the same footprint
		fmt.Fprint(w, identifyAnswer)
	}))
	defer server.Close()

	client := wayback.New(wayback.Config{BaseURL: server.URL})

	bbox := domain.BBox{MinLon: 0, MinLat: 0, MaxLon: 10, MaxLat: 10}
	feats, err := client.FetchFootprints(context.Background(), bbox, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Zoom 12 samples a 4x4 grid, but identical answers collapse to one.
	if got := atomic.LoadInt64(&calls); got != 16 {
		t.Errorf("expected 16 identify calls, got %d", got)
	}
	if len(feats) != 1 {
		t.Fatalf("expected 1 deduplicated feature, got %d", len(feats))
	}

	f := feats[0]
	if f.SourceID != "101" {
		t.Errorf("source id = %s, want 101", f.SourceID)
	}
	if f.Provider != domain.ProviderWayback {
		t.Errorf("provider = %s", f.Provider)
	}
	want := time.Date(2022, 2, 5, 0, 0, 0, 0, time.UTC)
	if f.CaptureDate == nil || !f.CaptureDate.Equal(want) {
		t.Errorf("capture date = %v, want %v", f.CaptureDate, want)
	}
	if f.BBox.MinLon != 1 || f.BBox.MaxLat != 2 {
		t.Errorf("bbox from rings = %+v", f.BBox)
	}
	if f.ProviderFields["nice_name"] != "Maxar Vivid" {
		t.Errorf("provider fields = %v", f.ProviderFields)
	}
}

func TestFetchFootprints_ZeroDateIsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"features": [{
				"attributes": {"OBJECTID": 7, "SRC_DATE": 0, "NICE_NAME": "n/a"},
				"geometry": {"rings": [[[1, 1], [2, 1], [2, 2], [1, 1]]]}
			}]
		}`)
	}))
	defer server.Close()

	client := wayback.New(wayback.Config{BaseURL: server.URL})
	feats, err := client.FetchFootprints(context.Background(),
		domain.BBox{MinLon: 0, MinLat: 0, MaxLon: 4, MaxLat: 4}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(feats) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(feats))
	}
	if feats[0].CaptureDate != nil {
		t.Errorf("zero SRC_DATE should give nil capture date, got %v", feats[0].CaptureDate)
	}
}

func TestFetchFootprints_FailedSamplesTolerated(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Half the samples fail outright
		if atomic.AddInt64(&calls, 1)%2 == 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, identifyAnswer)
	}))
	defer server.Close()

	client := wayback.New(wayback.Config{BaseURL: server.URL})
	feats, err := client.FetchFootprints(context.Background(),
		domain.BBox{MinLon: 0, MinLat: 0, MaxLon: 10, MaxLat: 10}, 12)
	if err != nil {
		t.Fatalf("partial sample failure must not fail the fetch: %v", err)
	}
	if len(feats) != 1 {
		t.Errorf("expected the surviving samples to contribute, got %d features", len(feats))
	}
}

func TestFetchFootprints_AllSamplesFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := wayback.New(wayback.Config{BaseURL: server.URL})
	feats, err := client.FetchFootprints(context.Background(),
		domain.BBox{MinLon: 0, MinLat: 0, MaxLon: 10, MaxLat: 10}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(feats) != 0 {
		t.Errorf("expected empty result, got %d", len(feats))
	}
}

func TestFetchFootprints_PointOnlyAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features": [{"attributes": {"OBJECTID": 3, "SRC_DATE": 20250101}}]}`)
	}))
	defer server.Close()

	client := wayback.New(wayback.Config{BaseURL: server.URL})
	bbox := domain.BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}
	feats, err := client.FetchFootprints(context.Background(), bbox, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(feats) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(feats))
	}
	// Degenerate box sits around a sample point inside the viewport
	if !feats[0].BBox.Valid() || !feats[0].BBox.Intersects(bbox) {
		t.Errorf("degenerate bbox %+v should intersect the viewport", feats[0].BBox)
	}
}

func TestFetchFootprints_SampleTimeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client := wayback.New(wayback.Config{
		BaseURL:       server.URL,
		SampleTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	feats, err := client.FetchFootprints(context.Background(),
		domain.BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(feats) != 0 {
		t.Errorf("expected no features from timed-out samples, got %d", len(feats))
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("fetch did not respect sample timeout, took %v", elapsed)
	}
}
