package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Postgres.TableName != "admission_results" {
		t.Errorf("table = %q", cfg.Postgres.TableName)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("redis addr = %q, want disabled by default", cfg.Redis.Addr)
	}
	if cfg.Elasticsearch.Addresses != nil {
		t.Errorf("es addresses = %v, want disabled by default", cfg.Elasticsearch.Addresses)
	}
	if cfg.Scraper.PerPage != 100 || cfg.Scraper.MaxPages != 50 {
		t.Errorf("scraper paging = %d/%d", cfg.Scraper.PerPage, cfg.Scraper.MaxPages)
	}
	if cfg.Scraper.TargetEntries != 5000 {
		t.Errorf("target = %d", cfg.Scraper.TargetEntries)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.SyncPull {
		t.Errorf("server = %+v", cfg.Server)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SCRAPER_PER_PAGE", "25")
	t.Setenv("SCRAPER_DELAY_MS", "250")
	t.Setenv("SYNC_PULL_DATA", "true")
	t.Setenv("ELASTICSEARCH_URL", "http://es1:9200, http://es2:9200")

	cfg := Load()

	if cfg.Scraper.PerPage != 25 {
		t.Errorf("per_page = %d", cfg.Scraper.PerPage)
	}
	if cfg.Scraper.RequestDelay != 250*time.Millisecond {
		t.Errorf("delay = %v", cfg.Scraper.RequestDelay)
	}
	if !cfg.Server.SyncPull {
		t.Error("sync_pull not picked up")
	}
	want := []string{"http://es1:9200", "http://es2:9200"}
	if len(cfg.Elasticsearch.Addresses) != 2 ||
		cfg.Elasticsearch.Addresses[0] != want[0] ||
		cfg.Elasticsearch.Addresses[1] != want[1] {
		t.Errorf("es addresses = %v, want %v", cfg.Elasticsearch.Addresses, want)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SCRAPER_MAX_RETRIES", "lots")
	t.Setenv("SYNC_PULL_DATA", "yep")

	cfg := Load()

	if cfg.Scraper.MaxRetries != 3 {
		t.Errorf("max_retries = %d, want default 3", cfg.Scraper.MaxRetries)
	}
	if cfg.Server.SyncPull {
		t.Error("sync_pull = true, want default false")
	}
}
