package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photoframe/internal/storage"

	"github.com/gorilla/mux"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue string
		want         string
	}{
		{
			name:         "returns value when set",
			key:          "STARTUP_TEST_VAR",
			value:        "custom",
			defaultValue: "default",
			want:         "custom",
		},
		{
			name:         "returns default when unset",
			key:          "STARTUP_TEST_UNSET",
			value:        "",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}
			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{name: "true", value: "true", defaultValue: false, want: true},
		{name: "false", value: "false", defaultValue: true, want: false},
		{name: "one", value: "1", defaultValue: false, want: true},
		{name: "zero", value: "0", defaultValue: true, want: false},
		{name: "empty uses default", value: "", defaultValue: true, want: true},
		{name: "garbage uses default", value: "maybe", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("STARTUP_TEST_BOOL", tt.value)
			}
			if got := getEnvBool("STARTUP_TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue int
		want         int
	}{
		{name: "valid", value: "8", defaultValue: 4, want: 8},
		{name: "empty uses default", value: "", defaultValue: 4, want: 4},
		{name: "zero uses default", value: "0", defaultValue: 4, want: 4},
		{name: "negative uses default", value: "-2", defaultValue: 4, want: 4},
		{name: "garbage uses default", value: "many", defaultValue: 4, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("STARTUP_TEST_INT", tt.value)
			}
			if got := getEnvInt("STARTUP_TEST_INT", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvInt(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestEnsureDirectory(t *testing.T) {
	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "data")
		if err := ensureDirectory(dir, "test"); err != nil {
			t.Fatalf("ensureDirectory() error = %v", err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("directory was not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("created path is not a directory")
		}
	})

	t.Run("accepts existing directory", func(t *testing.T) {
		if err := ensureDirectory(t.TempDir(), "test"); err != nil {
			t.Errorf("ensureDirectory() error = %v", err)
		}
	})

	t.Run("rejects file at path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := ensureDirectory(path, "test"); err == nil {
			t.Error("expected error for file at directory path")
		}
	})
}

func TestTestWriteAccess(t *testing.T) {
	if err := testWriteAccess(t.TempDir()); err != nil {
		t.Errorf("testWriteAccess() error = %v", err)
	}

	if err := testWriteAccess(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestLoadConfig(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("PORT", "9090")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("QUEUE_POLL_INTERVAL", "500ms")
	t.Setenv("QUEUE_WORKER_LIMIT", "2")
	t.Setenv("GEOCODE_BASE_URL", "http://geocode.local")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.MetricsEnabled {
		t.Error("MetricsEnabled = true, want false")
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", cfg.PollInterval)
	}
	if cfg.WorkerLimit != 2 {
		t.Errorf("WorkerLimit = %d, want 2", cfg.WorkerLimit)
	}
	if cfg.GeocodeBaseURL != "http://geocode.local" {
		t.Errorf("GeocodeBaseURL = %q", cfg.GeocodeBaseURL)
	}
	if cfg.DatabasePath != filepath.Join(dataDir, "photoframe.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.LocalStorageDir != filepath.Join(dataDir, "storage") {
		t.Errorf("LocalStorageDir = %q", cfg.LocalStorageDir)
	}
}

func TestLoadConfigInvalidPollInterval(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("QUEUE_POLL_INTERVAL", "soonish")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v, want default 3s", cfg.PollInterval)
	}
}

func TestBootstrapStorageConfig(t *testing.T) {
	cfg := &Config{
		LocalStorageDir: "/var/photoframe/storage",
		LocalBaseURL:    "http://localhost:8080/image",
	}

	sc := cfg.BootstrapStorageConfig()
	if sc.Provider != storage.KindLocal {
		t.Errorf("Provider = %q, want %q", sc.Provider, storage.KindLocal)
	}
	if sc.Local == nil || sc.Local.BasePath != "/var/photoframe/storage" {
		t.Errorf("Local config not populated: %+v", sc.Local)
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/queue/tasks", "api/queue"},
		{"/api/photos", "api/photos"},
		{"/image/{key:.*}", "image"},
		{"/health", "health"},
		{"/metrics", "metrics"},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := getRouteGroup(tt.path); got != tt.want {
				t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetRoutes(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(http.ResponseWriter, *http.Request) {}).Methods("GET")
	router.HandleFunc("/api/queue/tasks", func(http.ResponseWriter, *http.Request) {}).Methods("POST")

	routes, err := GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("got %d routes, want 2", len(routes))
	}

	found := false
	for _, r := range routes {
		if r.Method == "POST" && r.Path == "/api/queue/tasks" {
			found = true
		}
	}
	if !found {
		t.Error("POST /api/queue/tasks not found in route list")
	}
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	if info.Version == "" {
		t.Error("Version is empty")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("OS/Arch not populated")
	}
}
