// Package core has the orchestration logic that turns event files into weighted yields.
package core

import (
	"context"
	"time"

	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/internal/outwriter"
)

// ExecutorFunc defines the function signature for executing different commands.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error

// ExecuteYields composes the weights of every configured sample, fills the
// yields of each category, subsample and variation, and prints them.
// It serves as the main entry point for the 'yields' command.
func ExecuteYields(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	output, err := ComputeYields(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	duration := time.Since(start)
	return outwriter.WriteYields(output, cfg, duration)
}

// ExecuteModifiers prints the modifiers every sample scope can produce.
// This is a static display that does not read any events.
func ExecuteModifiers(_ context.Context, cfg *contract.Config, _ contract.CacheManager) error {
	output, err := BuildModifiers(cfg)
	if err != nil {
		return err
	}
	return outwriter.WriteModifiers(output, cfg)
}
