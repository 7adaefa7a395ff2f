package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/huangsam/weightflow/core/correction"
	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/schema"
)

// ComputeYields performs run tracking, caching and composition for every
// configured sample and returns the yields without printing them.
func ComputeYields(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) (*schema.YieldsOutput, error) {
	if cfg.Analysis == nil || len(cfg.Analysis.Samples) == 0 {
		return nil, errors.New("no samples to process")
	}
	if !shouldSuppressHeader(ctx) {
		logYieldsHeader(cfg)
	}

	// --- 0. Begin Run Tracking (if configured) ---
	var runStore contract.RunStore
	if mgr != nil {
		runStore = mgr.GetRunStore()
	}
	if runStore != nil {
		configParams := map[string]any{
			"analysis":     cfg.AnalysisPath,
			"samples":      sampleNames(cfg.Analysis),
			"workers":      cfg.Workers,
			"chunk_size":   cfg.ChunkSize,
			"nominal_only": cfg.NominalOnly,
			"permissive":   cfg.Analysis.Permissive,
		}
		runID, err := runStore.BeginRun(time.Now(), configParams)
		if err != nil {
			contract.LogWarn("Run tracking initialization failed", err)
		} else if runID > 0 {
			ctx = withRunID(ctx, runID)
		}
	}

	// --- 1. Composition (with caching) ---
	output, err := cachedComputeYields(ctx, cfg, mgr)
	if err != nil {
		return nil, err
	}

	// --- 2. End Run Tracking ---
	if runID, ok := getRunID(ctx); ok && runStore != nil {
		if err := runStore.RecordYields(runID, output.Yields); err != nil {
			contract.LogWarn("Failed to record yields", err)
		}
		if err := runStore.EndRun(runID, time.Now(), len(output.Samples), output.TotalChunks(), output.TotalEvents()); err != nil {
			contract.LogWarn("Failed to finalize run tracking", err)
		}
	}
	return output, nil
}

// computeYields composes the weights of every sample, one sample at a time.
func computeYields(ctx context.Context, cfg *contract.Config) (*schema.YieldsOutput, error) {
	loader, err := correction.NewLoader(correction.DefaultCacheSize)
	if err != nil {
		return nil, err
	}

	output := &schema.YieldsOutput{}
	for _, sample := range cfg.Analysis.Samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run, err := newSampleRun(cfg, sample, loader)
		if err != nil {
			return nil, err
		}
		yields, summary, err := run.run(ctx)
		if err != nil {
			return nil, err
		}
		if !shouldSuppressHeader(ctx) {
			logSampleDone(cfg, summary)
		}
		output.Yields = append(output.Yields, yields...)
		output.Samples = append(output.Samples, summary)
	}
	return output, nil
}

// logYieldsHeader prints a concise header for a yields run.
func logYieldsHeader(cfg *contract.Config) {
	samples := sampleNames(cfg.Analysis)
	if cfg.UseEmojis {
		fmt.Fprintf(os.Stderr, "🔎 Analysis: %s (%d samples: %s)\n", cfg.AnalysisPath, len(samples), strings.Join(samples, ", "))
		fmt.Fprintf(os.Stderr, "⚙️  Workers: %d, chunk size: %d\n", cfg.Workers, cfg.ChunkSize)
		return
	}
	fmt.Fprintf(os.Stderr, "Analysis: %s (%d samples: %s)\n", cfg.AnalysisPath, len(samples), strings.Join(samples, ", "))
	fmt.Fprintf(os.Stderr, "Workers: %d, chunk size: %d\n", cfg.Workers, cfg.ChunkSize)
}

// logSampleDone prints one progress line per finished sample.
func logSampleDone(cfg *contract.Config, s schema.SampleSummary) {
	if cfg.UseEmojis {
		fmt.Fprintf(os.Stderr, "✅ %s: %d events in %d chunks\n", s.Sample, s.Events, s.Chunks)
		return
	}
	fmt.Fprintf(os.Stderr, "Done %s: %d events in %d chunks\n", s.Sample, s.Events, s.Chunks)
}

func sampleNames(a *contract.Analysis) []string {
	names := make([]string, len(a.Samples))
	for i, s := range a.Samples {
		names[i] = s.Name
	}
	return names
}
