package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"depgate/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the scan snapshot cache",
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached snapshots, least recently used first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCacheStore()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Entries()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "cache is empty")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tCREATED\tLAST ACCESS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				e.Key,
				e.CreatedAt.Format(time.RFC3339),
				e.LastAccess.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var cacheRmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Delete one cached snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCacheStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all cached snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCacheStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Count()
		if err != nil {
			return err
		}
		if err := store.Purge(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d snapshots\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cacheRmCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}

func openCacheStore() (cache.Store, error) {
	return cache.NewStore(cache.StoreConfig{
		Type: viper.GetString("cache.backend"),
		Path: viper.GetString("cache.path"),
	})
}
