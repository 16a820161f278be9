package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReverseResolvesCityAndCountry(t *testing.T) {
	var gotPath string
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Query().Get("format") != "jsonv2" {
			t.Errorf("format = %q, want jsonv2", r.URL.Query().Get("format"))
		}
		w.Write([]byte(`{
			"display_name": "Paris, Île-de-France, France",
			"address": {"city": "Paris", "country": "France"}
		}`))
	}))
	defer srv.Close()

	loc, err := NewClient(srv.URL).Reverse(context.Background(), 48.8566, 2.3522)
	if err != nil {
		t.Fatalf("Reverse failed: %v", err)
	}
	if loc == nil {
		t.Fatal("expected a location")
	}
	if loc.City != "Paris" || loc.Country != "France" {
		t.Errorf("got %q/%q, want Paris/France", loc.City, loc.Country)
	}
	if loc.DisplayName == "" {
		t.Error("expected display name")
	}
	if gotPath != "/reverse" {
		t.Errorf("path = %q, want /reverse", gotPath)
	}
	if gotUA == "" {
		t.Error("User-Agent header must be set")
	}
}

func TestReverseCityFallback(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"town", `{"display_name": "x", "address": {"town": "Gruyères", "country": "Switzerland"}}`, "Gruyères"},
		{"village", `{"display_name": "x", "address": {"village": "Lauterbrunnen", "country": "Switzerland"}}`, "Lauterbrunnen"},
		{"county only", `{"display_name": "x", "address": {"county": "Inyo County", "country": "United States"}}`, "Inyo County"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			loc, err := NewClient(srv.URL).Reverse(context.Background(), 46.0, 7.0)
			if err != nil {
				t.Fatalf("Reverse failed: %v", err)
			}
			if loc.City != tt.want {
				t.Errorf("City = %q, want %q", loc.City, tt.want)
			}
		})
	}
}

func TestReverseNoPlaceFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "Unable to geocode"}`))
	}))
	defer srv.Close()

	loc, err := NewClient(srv.URL).Reverse(context.Background(), 0, -160)
	if err != nil {
		t.Fatalf("Reverse failed: %v", err)
	}
	if loc != nil {
		t.Errorf("expected nil location for open water, got %+v", loc)
	}
}

func TestReverseHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Reverse(context.Background(), 1, 1); err == nil {
		t.Fatal("expected error for HTTP 429")
	}
}
