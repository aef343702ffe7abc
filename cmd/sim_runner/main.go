package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/miretskiy/budgetfair/scheduler"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "", "Path to JSON configuration file (omit for the built-in default workload)")
	durationMs := flag.Int64("duration", 0, "Simulation duration in virtual milliseconds (overrides config)")
	outputFile := flag.String("output", "", "Path to output JSON file (optional, prints to stdout if not specified)")
	seed := flag.Int64("seed", 0, "Random seed (overrides config when non-zero)")
	verbose := flag.Bool("verbose", false, "Enable verbose scheduler event logging")
	flag.Parse()

	config := scheduler.DefaultSimConfig()
	if *configFile != "" {
		configData, err := os.ReadFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(configData, &config); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing config JSON: %v\n", err)
			os.Exit(1)
		}
	}

	if *durationMs > 0 {
		config.DurationMs = scheduler.Ticks(*durationMs)
	}
	if *seed != 0 {
		config.Seed = *seed
	}

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	harness, err := scheduler.NewHarness(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating harness: %v\n", err)
		os.Exit(1)
	}

	// Set up LogEvent callback to capture scheduler decisions
	if *verbose {
		harness.LogEvent = func(msg string) {
			fmt.Fprintf(os.Stderr, "[SCHED] %s\n", msg)
		}
		fmt.Fprintf(os.Stderr, "Verbose logging enabled\n")
	}

	fmt.Fprintf(os.Stderr, "Starting simulation for %d virtual milliseconds...\n", config.DurationMs)
	startTime := time.Now()

	results, err := harness.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation failed: %v\n", err)
		os.Exit(1)
	}

	elapsed := time.Since(startTime)
	fmt.Fprintf(os.Stderr, "Simulation completed in %v (%d virtual ms)\n", elapsed, harness.Now())

	report := map[string]interface{}{
		"config":   config,
		"realTime": elapsed.Seconds(),
		"results":  results,
		"state":    harness.Scheduler().State(),
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling results: %v\n", err)
		os.Exit(1)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, output, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Results written to %s\n", *outputFile)
	} else {
		fmt.Println(string(output))
	}
}
