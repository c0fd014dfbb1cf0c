package config

import "testing"

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	t.Setenv("VECTOR_TOP_K", "")
	t.Setenv("VECTOR_TIMEOUT_SECONDS", "")
	t.Setenv("LOOKUP_CONCURRENCY", "")
	t.Setenv("CACHE_TTL_SECONDS", "")
	t.Setenv("QDRANT_COLLECTION", "")

	cfg := Load()
	if cfg.VectorTopK != 10 {
		t.Fatalf("expected default vector top k 10, got %d", cfg.VectorTopK)
	}
	if cfg.VectorTimeoutSeconds != 8 {
		t.Fatalf("expected default vector timeout 8s, got %d", cfg.VectorTimeoutSeconds)
	}
	if cfg.LookupConcurrency != 4 {
		t.Fatalf("expected default lookup concurrency 4, got %d", cfg.LookupConcurrency)
	}
	if cfg.CacheTTLSeconds != 600 {
		t.Fatalf("expected default cache ttl 600s, got %d", cfg.CacheTTLSeconds)
	}
	if cfg.QdrantCollection != "plan_articles" {
		t.Fatalf("expected default collection plan_articles, got %q", cfg.QdrantCollection)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("VECTOR_TOP_K", "25")
	t.Setenv("LOOKUP_CONCURRENCY", "8")
	t.Setenv("API_RATE_LIMIT_RPS", "5")
	t.Setenv("API_RATE_LIMIT_BURST", "not-a-number")

	cfg := Load()
	if cfg.VectorTopK != 25 {
		t.Fatalf("expected vector top k override, got %d", cfg.VectorTopK)
	}
	if cfg.LookupConcurrency != 8 {
		t.Fatalf("expected lookup concurrency 8, got %d", cfg.LookupConcurrency)
	}
	if cfg.APIRateLimitRPS != 5 {
		t.Fatalf("expected rate limit rps 5, got %d", cfg.APIRateLimitRPS)
	}
	if cfg.APIRateLimitBurst != 40 {
		t.Fatalf("expected malformed burst to fall back to 40, got %d", cfg.APIRateLimitBurst)
	}
}
