// Package main implements the brandwise CLI commands.
// This file contains cache maintenance commands.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"brandwise/internal/cache"
	"brandwise/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Signature cache maintenance",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry count, bytes and hits",
	RunE:  runCacheStats,
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evict entries past the TTL",
	RunE:  runCacheSweep,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
}

func openCacheStore() (*cache.SQLiteStore, error) {
	return cache.NewSQLiteStore(resolveUnder(cfg.Cache.Path))
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	store, err := openCacheStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runCacheSweep(cmd *cobra.Command, args []string) error {
	store, err := openCacheStore()
	if err != nil {
		return err
	}
	defer store.Close()

	c := cache.New(store, nil, config.Duration(cfg.Cache.TTL, cache.DefaultTTL), nil)
	n, err := c.Maintain(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("swept %d entries\n", n)
	return nil
}
