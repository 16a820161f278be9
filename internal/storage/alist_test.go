package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

func alistOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"code": 200, "message": "success", "data": data})
}

func newTestAListProvider(t *testing.T, cfg AListConfig) *alistProvider {
	t.Helper()
	p, err := newAListProvider(KindAList, &cfg)
	if err != nil {
		t.Fatalf("newAListProvider: %v", err)
	}
	return p
}

func TestAListStaticTokenAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/login" {
			t.Error("login called despite static token")
		}
		gotAuth = r.Header.Get("Authorization")
		alistOK(w, map[string]any{"name": "img.jpg", "size": 42})
	}))
	defer srv.Close()

	p := newTestAListProvider(t, AListConfig{
		BaseURL: srv.URL, RootPath: "photos", Token: "static-token",
	})

	obj, err := p.FileMeta(context.Background(), "img.jpg")
	if err != nil {
		t.Fatalf("FileMeta: %v", err)
	}
	if gotAuth != "static-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "static-token")
	}
	if obj == nil || obj.Key != "photos/img.jpg" || obj.Size != 42 {
		t.Errorf("FileMeta = %+v, want key photos/img.jpg size 42", obj)
	}
}

func TestAListPasswordLoginAndRetryOnce(t *testing.T) {
	var logins, metaCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var body struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if body.Username != "admin" || body.Password != "secret" {
				t.Errorf("login body = %+v", body)
			}
			alistOK(w, map[string]string{"token": fmt.Sprintf("session-%d", logins.Add(1))})
		case "/api/fs/get":
			// First session token is rejected once to force a re-login.
			if metaCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if auth := r.Header.Get("Authorization"); auth != "session-2" {
				t.Errorf("retry Authorization = %q, want session-2", auth)
			}
			alistOK(w, map[string]any{"name": "img.jpg", "size": 7})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p := newTestAListProvider(t, AListConfig{
		BaseURL: srv.URL, RootPath: "photos", Username: "admin", Password: "secret",
	})

	obj, err := p.FileMeta(context.Background(), "img.jpg")
	if err != nil {
		t.Fatalf("FileMeta: %v", err)
	}
	if obj == nil || obj.Size != 7 {
		t.Errorf("FileMeta = %+v, want size 7", obj)
	}
	if logins.Load() != 2 {
		t.Errorf("login called %d times, want 2", logins.Load())
	}
	if metaCalls.Load() != 2 {
		t.Errorf("meta called %d times, want 2", metaCalls.Load())
	}
}

func TestAListStaticToken401IsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newTestAListProvider(t, AListConfig{
		BaseURL: srv.URL, RootPath: "photos", Token: "revoked",
	})

	if _, err := p.FileMeta(context.Background(), "img.jpg"); err == nil {
		t.Fatal("FileMeta with revoked static token succeeded, want error")
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1 (no retry for static token)", calls.Load())
	}
}

func TestAListUploadSendsFilePathHeader(t *testing.T) {
	var gotFilePath, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/fs/put":
			gotFilePath = r.Header.Get("File-Path")
			gotContentType = r.Header.Get("Content-Type")
			alistOK(w, nil)
		case "/api/fs/get":
			alistOK(w, map[string]any{"name": "img.jpg", "size": 3})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p := newTestAListProvider(t, AListConfig{
		BaseURL: srv.URL, RootPath: "photos", Token: "tok",
	})

	obj, err := p.Create(context.Background(), "2024/my img.jpg", []byte("abc"), "image/jpeg")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := url.QueryEscape("/photos/2024/my img.jpg")
	if gotFilePath != want {
		t.Errorf("File-Path header = %q, want %q", gotFilePath, want)
	}
	if gotContentType != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", gotContentType)
	}
	if obj.Key != "photos/2024/my img.jpg" {
		t.Errorf("Create key = %q", obj.Key)
	}
}

func TestAListMetaRefreshFlag(t *testing.T) {
	var refreshValues []bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/fs/get":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			refresh, _ := body["refresh"].(bool)
			refreshValues = append(refreshValues, refresh)
			alistOK(w, map[string]any{
				"name": "img.jpg", "size": 3,
				"raw_url": "", "sign": "",
			})
		default:
			// Download fallback path.
			w.Write([]byte("abc"))
		}
	}))
	defer srv.Close()

	p := newTestAListProvider(t, AListConfig{
		BaseURL: srv.URL, RootPath: "photos", Token: "tok",
	})
	ctx := context.Background()

	if _, err := p.FileMeta(ctx, "img.jpg"); err != nil {
		t.Fatalf("FileMeta: %v", err)
	}
	data, err := p.Get(ctx, "img.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("Get = %q, want abc", data)
	}

	if len(refreshValues) != 2 || refreshValues[0] != false || refreshValues[1] != true {
		t.Errorf("refresh flags = %v, want [false true]", refreshValues)
	}
}

func TestAListDelete(t *testing.T) {
	var gotDir string
	var gotNames []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/fs/remove" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Dir   string   `json:"dir"`
			Names []string `json:"names"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotDir, gotNames = body.Dir, body.Names
		alistOK(w, nil)
	}))
	defer srv.Close()

	p := newTestAListProvider(t, AListConfig{
		BaseURL: srv.URL, RootPath: "photos", Token: "tok",
	})

	if err := p.Delete(context.Background(), "2024/img.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotDir != "/photos/2024" {
		t.Errorf("dir = %q, want /photos/2024", gotDir)
	}
	if len(gotNames) != 1 || gotNames[0] != "img.jpg" {
		t.Errorf("names = %v, want [img.jpg]", gotNames)
	}
}

func TestAListListAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/fs/list" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		alistOK(w, map[string]any{
			"content": []map[string]any{
				{"name": "a.jpg", "path": "/photos/a.jpg", "size": 1},
				{"name": "b.jpg", "size": 2}, // no path: derived from root + name
			},
		})
	}))
	defer srv.Close()

	p := newTestAListProvider(t, AListConfig{
		BaseURL: srv.URL, RootPath: "photos", Token: "tok",
	})

	objects, err := p.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("ListAll returned %d objects, want 2", len(objects))
	}
	if objects[0].Key != "photos/a.jpg" || objects[1].Key != "photos/b.jpg" {
		t.Errorf("keys = %q, %q", objects[0].Key, objects[1].Key)
	}
}

func TestAListAPIErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// HTTP 200 with a failing envelope code.
		json.NewEncoder(w).Encode(map[string]any{"code": 500, "message": "object not found"})
	}))
	defer srv.Close()

	p := newTestAListProvider(t, AListConfig{
		BaseURL: srv.URL, RootPath: "photos", Token: "tok",
	})

	_, err := p.FileMeta(context.Background(), "img.jpg")
	if err == nil {
		t.Fatal("FileMeta with envelope code 500 succeeded, want error")
	}
	if !strings.Contains(err.Error(), "[500]") {
		t.Errorf("error = %v, want envelope code in message", err)
	}
}
