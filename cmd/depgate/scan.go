package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"depgate/internal/advisory"
	"depgate/internal/cache"
	"depgate/internal/config"
	"depgate/internal/git"
	"depgate/internal/metrics"
	"depgate/internal/model"
	"depgate/internal/policy"
	"depgate/internal/reach"
	"depgate/internal/scan"
)

var (
	scanGraph    string
	scanPolicies []string
	scanAdvDir   string
	scanReach    string
	scanSince    string
	scanDir      string
	scanJSON     bool
	scanForce    bool
	scanNoCache  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Evaluate a dependency graph and decide pass, warn or block",
	Long: `Reads an extractor-produced dependency graph, normalizes the advisory
catalogue against it, scores every finding and applies the merged policy
layers. Exits 0 on pass, 1 on block, 2 on pass with warnings.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVarP(&scanGraph, "graph", "g", "", "Dependency graph file (required)")
	scanCmd.Flags().StringSliceVarP(&scanPolicies, "policy", "p", nil, "Policy file, repeatable; layers merge organization > team > project")
	scanCmd.Flags().StringVar(&scanAdvDir, "advisories", "", "Advisory catalogue directory (overrides config)")
	scanCmd.Flags().StringVar(&scanReach, "reach", "", "Reachability analyzer report file")
	scanCmd.Flags().StringVar(&scanSince, "since", "", "Git ref of the last scan point for the incremental gate")
	scanCmd.Flags().StringVar(&scanDir, "dir", ".", "Repository directory for the incremental gate")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Output the report as JSON")
	scanCmd.Flags().BoolVar(&scanForce, "force", false, "Recompute even when a cached snapshot exists")
	scanCmd.Flags().BoolVar(&scanNoCache, "no-cache", false, "Disable the snapshot cache for this run")
	scanCmd.MarkFlagRequired("graph")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := config.ValidateConfig(); err != nil {
		return err
	}

	graph, err := model.LoadGraph(scanGraph)
	if err != nil {
		return err
	}

	advDir := scanAdvDir
	if advDir == "" {
		advDir = viper.GetString("advisories.dir")
	}
	catalogue, err := advisory.LoadDir(advDir)
	if err != nil {
		return err
	}

	policyFiles := scanPolicies
	if len(policyFiles) == 0 {
		policyFiles = viper.GetStringSlice("policy.files")
	}
	if len(policyFiles) == 0 {
		return fmt.Errorf("no policy files given; use --policy or set policy.files")
	}
	set, err := policy.LoadFiles(policyFiles...)
	if err != nil {
		return err
	}

	scoring, err := config.Scoring()
	if err != nil {
		return err
	}
	if err := scoring.Validate(); err != nil {
		return err
	}

	reachPath := scanReach
	if reachPath == "" {
		reachPath = viper.GetString("reachability.report")
	}
	reachReport, reachWarns, err := reach.Load(reachPath)
	if err != nil {
		return err
	}

	pipeline := &scan.Pipeline{
		Catalogue: catalogue,
		Policies:  set,
		Scoring:   scoring,
		Reach:     reachReport,
		Git:       git.NewClient(),
		Logger:    slog.Default(),
	}

	if !scanNoCache {
		store, err := cache.NewStore(cache.StoreConfig{
			Type: viper.GetString("cache.backend"),
			Path: viper.GetString("cache.path"),
		})
		if err != nil {
			return err
		}
		manager := cache.NewManager(store, cache.Options{
			TTL:        viper.GetDuration("cache.ttl"),
			MaxEntries: viper.GetInt("cache.max_entries"),
		})
		defer manager.Close()
		pipeline.Cache = manager
	}

	if viper.GetBool("metrics_enabled") {
		m := metrics.NewMetrics()
		pipeline.Metrics = m
		addr := fmt.Sprintf(":%d", viper.GetInt("metrics_port"))
		go func() {
			if err := m.Serve(addr); err != nil {
				slog.Error("metrics listener failed", "addr", addr, "error", err)
			}
		}()
	}

	rep, err := pipeline.Run(graph, scan.Options{
		Force:    scanForce,
		Dir:      scanDir,
		SinceRef: scanSince,
		Warnings: reachWarns,
	})
	if err != nil {
		return err
	}

	if rep.FromCache {
		slog.Info("reusing cached snapshot", "generated_at", rep.GeneratedAt.Format(time.RFC3339))
	}

	if scanJSON {
		if err := rep.WriteJSON(cmd.OutOrStdout()); err != nil {
			return err
		}
	} else if err := rep.WriteTable(cmd.OutOrStdout()); err != nil {
		return err
	}

	if code := rep.ExitCode(); code != 0 {
		exit(code)
	}
	return nil
}
