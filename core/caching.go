package core

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/schema"
)

// currentCacheVersion defines the version of the cache schema
const currentCacheVersion = 1

// cacheTTL is how long a cached yields result stays valid
const cacheTTL = 7 * 24 * time.Hour

// cachedComputeYields returns cached yields when the analysis and its inputs are unchanged
func cachedComputeYields(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) (*schema.YieldsOutput, error) {
	var store contract.CacheStore
	if mgr != nil {
		store = mgr.GetCacheStore()
	}
	if store == nil {
		// Fallback to direct computation
		return computeYields(ctx, cfg)
	}

	key, err := generateCacheKey(cfg)
	if err != nil {
		// Inputs cannot be fingerprinted, let the computation report the problem
		return computeYields(ctx, cfg)
	}

	// Check for cache hit
	if result := checkCacheHit(store, key); result != nil {
		result.Cached = true
		return result, nil
	}

	// Cache miss: compute and store
	return computeAndStore(ctx, cfg, store, key)
}

// checkCacheHit attempts to retrieve and validate a cached result
func checkCacheHit(store contract.CacheStore, key string) *schema.YieldsOutput {
	data, version, ts, err := store.Get(key)
	if err != nil {
		return nil // Cache miss
	}

	if version != currentCacheVersion || time.Since(time.Unix(ts, 0)) > cacheTTL {
		return nil // Stale or version mismatch
	}

	var result schema.YieldsOutput
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return &result
}

// computeAndStore computes the result and stores it in cache
func computeAndStore(ctx context.Context, cfg *contract.Config, store contract.CacheStore, key string) (*schema.YieldsOutput, error) {
	result, err := computeYields(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(result); err == nil {
		if err := store.Set(key, data, currentCacheVersion, time.Now().Unix()); err != nil {
			contract.LogWarn("Failed to store yields in cache", err)
		}
	}
	return result, nil
}

// generateCacheKey fingerprints everything a yields result depends on: the
// analysis definition, the run options and the size and mtime of every input file.
func generateCacheKey(cfg *contract.Config) (string, error) {
	analysis := cfg.Analysis
	var b strings.Builder
	b.Write(analysis.Digest)
	fmt.Fprintf(&b, "\x00chunk=%d:nominal-only=%t:permissive=%t", cfg.ChunkSize, cfg.NominalOnly, analysis.Permissive)

	files := []string{}
	if analysis.Params.CorrectionFile != "" {
		files = append(files, analysis.Params.CorrectionFile)
	}
	for _, s := range analysis.Samples {
		fmt.Fprintf(&b, "\x00sample=%s", s.Name)
		files = append(files, s.Files...)
	}
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\x00%s:%d:%d", path, info.Size(), info.ModTime().UnixNano())
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(b.String()))), nil
}
