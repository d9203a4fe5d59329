package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/ram-browser/pkg/client"
	"github.com/spf13/viper"
)

func load(t *testing.T, configFile string) (Config, error) {
	t.Helper()
	v := viper.New()
	if err := Setup(v, configFile); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	return Load(v)
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := load(t, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Config{
		Port:             "8080",
		BaseURL:          client.DefaultBaseURL,
		UserAgent:        "ram-proxy/0.1.0",
		PageSize:         10,
		PrefetchDistance: 15,
		Timeout:          15 * time.Second,
		CacheTTL:         5 * time.Minute,
		LogLevel:         "info",
	}
	if cfg != want {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RAM_PORT", "9090")
	t.Setenv("RAM_PAGE_SIZE", "20")
	t.Setenv("RAM_TIMEOUT", "3s")
	t.Setenv("RAM_LOG_LEVEL", "debug")
	t.Setenv("RAM_LOG_PRETTY", "true")

	cfg, err := load(t, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "9090" || cfg.PageSize != 20 || cfg.Timeout != 3*time.Second {
		t.Errorf("Load() = %+v, environment not applied", cfg)
	}
	if cfg.LogLevel != "debug" || !cfg.LogPretty {
		t.Errorf("log settings = %q/%v, want debug/true", cfg.LogLevel, cfg.LogPretty)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ram-proxy.yaml")
	content := "port: \"7070\"\nprefetch_distance: 5\nredis_url: redis://localhost:6379/2\nlog:\n  level: warn\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("explicit path", func(t *testing.T) {
		cfg, err := load(t, path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Port != "7070" || cfg.PrefetchDistance != 5 || cfg.LogLevel != "warn" {
			t.Errorf("Load() = %+v, file not applied", cfg)
		}
	})

	t.Run("working directory", func(t *testing.T) {
		t.Chdir(dir)
		cfg, err := load(t, "")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Port != "7070" {
			t.Errorf("Port = %q, want 7070", cfg.Port)
		}
	})

	t.Run("environment wins over file", func(t *testing.T) {
		t.Setenv("RAM_PORT", "6060")
		cfg, err := load(t, path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Port != "6060" {
			t.Errorf("Port = %q, want 6060", cfg.Port)
		}
	})
}

func TestSetup_MissingExplicitFile(t *testing.T) {
	v := viper.New()
	if err := Setup(v, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Setup() with a missing explicit file should fail")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:             "8080",
		PageSize:         10,
		PrefetchDistance: 15,
		Timeout:          time.Second,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no port", func(c *Config) { c.Port = "" }, true},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, true},
		{"negative prefetch", func(c *Config) { c.PrefetchDistance = -1 }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"negative cache ttl", func(c *Config) { c.CacheTTL = -time.Second }, true},
		{"bad redis url", func(c *Config) { c.RedisURL = "redis://:bad:port:x/abc" }, true},
		{"bare redis address", func(c *Config) { c.RedisURL = "localhost:6379" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		url      string
		wantNil  bool
		wantAddr string
		wantDB   int
	}{
		{"", true, "", 0},
		{"localhost:6379", false, "localhost:6379", 0},
		{"redis://cache:6380/3", false, "cache:6380", 3},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			opts, err := Config{RedisURL: tt.url}.RedisOptions()
			if err != nil {
				t.Fatalf("RedisOptions() error = %v", err)
			}
			if tt.wantNil {
				if opts != nil {
					t.Errorf("RedisOptions() = %+v, want nil", opts)
				}
				return
			}
			if opts.Addr != tt.wantAddr || opts.DB != tt.wantDB {
				t.Errorf("RedisOptions() = %s db %d, want %s db %d", opts.Addr, opts.DB, tt.wantAddr, tt.wantDB)
			}
		})
	}
}

func TestConfig_Conversions(t *testing.T) {
	cfg := Config{
		BaseURL:          "http://localhost:1234/api",
		UserAgent:        "test/1.0",
		PageSize:         5,
		PrefetchDistance: 3,
		Timeout:          2 * time.Second,
		CacheTTL:         time.Minute,
		LogLevel:         "debug",
		LogPretty:        true,
	}

	cc := cfg.Client(nil)
	if cc.BaseURL != cfg.BaseURL || cc.UserAgent != cfg.UserAgent || cc.Timeout != cfg.Timeout || cc.CacheTTL != cfg.CacheTTL {
		t.Errorf("Client() = %+v", cc)
	}

	bc := cfg.Browser()
	if bc.Pagination.PageSize != 5 || bc.Pagination.PrefetchDistance != 3 || bc.Episodes.Timeout != 2*time.Second {
		t.Errorf("Browser() = %+v", bc)
	}

	lc := cfg.Logging()
	if lc.Level != "debug" || !lc.Pretty {
		t.Errorf("Logging() = %+v", lc)
	}
}
