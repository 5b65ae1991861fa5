// cmd/tools/report-runner/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"meeting-intel/internal/common/config"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/validation"
	"meeting-intel/internal/pipeline"

	gr "meeting-intel/internal/workers/research/generate-report"
)

func main() {
	requestPath := flag.String("request", "", "Path to a JSON research request (same shape as the worker's process variables)")
	configPath := flag.String("config", "", "Path to a config file (defaults to configs/config.yaml)")
	outPath := flag.String("out", "", "Write the report to this file instead of stdout")
	flag.Parse()

	if *requestPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -request is required.")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, "console", "stderr")

	input, err := readInput(*requestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading request: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.Build(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building pipeline: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	report, err := p.Generator.GenerateReport(ctx, input.ToRequest())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Report generation failed: %v\n", err)
		os.Exit(1)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
		os.Exit(1)
	}

	if *outPath == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Report %s written to %s\n", report.ID, *outPath)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(path)
}

// readInput applies the worker's input schema so a request that runs here
// is also accepted by the process.
func readInput(path string) (*gr.Input, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var variables map[string]interface{}
	if err := json.Unmarshal(raw, &variables); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	result := validation.ValidateInput(variables, gr.GetInputSchema())
	if !result.Valid {
		return nil, fmt.Errorf("validation errors: %v", result.GetErrorMessages())
	}

	input := &gr.Input{}
	if err := json.Unmarshal(raw, input); err != nil {
		return nil, err
	}
	return input, nil
}
