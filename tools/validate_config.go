//go:build tools
// +build tools

// Package main provides a configuration validation tool for the mining
// supervisor. It loads and validates a supervisor.yaml file without starting
// any watchdog or scheduler.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"minesup/config"
)

func main() {
	configPath := flag.String("config", "", "Path to supervisor config file (default: search paths)")
	flag.Parse()

	if !validateConfig(*configPath) {
		os.Exit(1)
	}
}

func validateConfig(configPath string) bool {
	fmt.Println("Validating Supervisor Configuration")
	fmt.Println("====================================")
	fmt.Println()

	if configPath == "" {
		configPath = findConfigFile("supervisor.yaml")
		if configPath == "" {
			fmt.Println("Status: no config file found (will use defaults)")
			fmt.Println("Search paths:")
			fmt.Println("  - ./supervisor.yaml")
			fmt.Println("  - ~/.minesup/supervisor.yaml")
			fmt.Println("  - /etc/minesup/supervisor.yaml")
			fmt.Println()
		}
	}
	if configPath != "" {
		fmt.Printf("File: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Println("Status: INVALID")
		fmt.Printf("Error: %v\n", err)
		return false
	}

	fmt.Println("Status: VALID")
	fmt.Println()
	fmt.Println("Pool:")
	fmt.Printf("  Binary:          %s\n", cfg.Pool.Binary)
	fmt.Printf("  Wallet:          %s\n", cfg.Pool.Wallet)
	fmt.Printf("  Host:            %s\n", cfg.Pool.Host)
	fmt.Printf("  RPC Port:        %d\n", cfg.Pool.RPCPort)
	fmt.Printf("  ZMQ Port:        %d\n", cfg.Pool.ZMQPort)
	fmt.Printf("  Data API:        %s\n", cfg.Pool.DataAPI)
	fmt.Printf("  Mini:            %t\n", cfg.Pool.Mini)
	fmt.Printf("  Watchdog Epoch:  %v\n", cfg.Pool.WatchdogEpoch)
	fmt.Println()
	fmt.Println("Miner:")
	fmt.Printf("  Binary:          %s\n", cfg.Miner.Binary)
	fmt.Printf("  Pool URL:        %s\n", cfg.Miner.PoolURL)
	fmt.Printf("  Rig ID:          %s\n", cfg.Miner.RigID)
	fmt.Printf("  Threads:         %d\n", cfg.Miner.Threads)
	fmt.Printf("  HTTP:            %s:%d\n", cfg.Miner.HTTPHost, cfg.Miner.HTTPPort)
	fmt.Printf("  Privileged:      %t\n", cfg.Miner.Privileged)
	fmt.Println()
	fmt.Println("Donor:")
	fmt.Printf("  URL Normal:      %s\n", cfg.Donor.URLNormal)
	fmt.Printf("  URL Fast:        %s\n", cfg.Donor.URLFast)
	fmt.Printf("  Hero Mode:       %t\n", cfg.Donor.HeroMode)
	fmt.Printf("  Thresholds:      donor=%v vip=%v whale=%v mega=%v\n", cfg.Donor.MinDonor, cfg.Donor.MinVIP, cfg.Donor.MinWhale, cfg.Donor.MinMega)
	fmt.Printf("  Epoch:           %v\n", cfg.Donor.Epoch)
	fmt.Println()
	fmt.Println("Reconcile:")
	fmt.Printf("  Interval:        %v\n", cfg.Reconcile.Interval)
	fmt.Println()
	fmt.Println("Logging:")
	fmt.Printf("  Level:           %s\n", cfg.Logging.Level)
	fmt.Printf("  Format:          %s\n", cfg.Logging.Format)

	return true
}

func findConfigFile(filename string) string {
	searchPaths := []string{
		filepath.Join(".", filename),
		filepath.Join(os.Getenv("HOME"), ".minesup", filename),
		filepath.Join("/etc/minesup", filename),
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
