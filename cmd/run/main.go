package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/internal/engagement"
	"github.com/thep200/github-verifier/internal/runner"
	"github.com/thep200/github-verifier/internal/verifier"
	"github.com/thep200/github-verifier/pkg/log"
)

func main() {
	file := flag.String("file", "", "Path to file containing one username per line")
	repoUrl := flag.String("repo", "", "Target repository url for star/fork check (optional)")
	token := flag.String("token", "", "GitHub access token (optional, falls back to config)")
	method := flag.String("method", "auto", "Verification method: auto, batch or single")
	flag.Parse()

	if *file == "" {
		fmt.Println("Please specify an input file: -file=usernames.txt")
		os.Exit(1)
	}

	ctx := context.Background()
	// loader, _ := cfg.NewMockLoader()
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := log.NewCslLogger()

	values, err := readLines(*file)
	if err != nil {
		logger.Error(ctx, "Failed to read input file: %v", err)
		os.Exit(1)
	}

	opts := verifier.Options{Token: *token}
	switch *method {
	case "auto":
		opts.Method = verifier.MethodAuto
	case "batch":
		opts.Method = verifier.MethodGraphql
	case "single":
		opts.Method = verifier.MethodRest
	default:
		logger.Error(ctx, "Invalid method: %s", *method)
		os.Exit(1)
	}

	vf := verifier.NewVerifier(logger, config)
	checker := engagement.NewChecker(logger, config)
	rn := runner.NewRunner(logger, config, vf, checker)
	rn.Load(values)

	logger.Info(ctx, "Starting verification of %d usernames", len(values))
	if err := rn.Run(ctx, *repoUrl, opts); err != nil {
		logger.Error(ctx, "Verification failed: %v", err)
		os.Exit(1)
	}

	printResults(rn)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func printResults(rn *runner.Runner) {
	for _, record := range rn.Records() {
		line := fmt.Sprintf("%-40s %s", record.OriginalValue, record.Status)
		if record.Error != "" {
			line += " (" + record.Error + ")"
		}
		if record.Engagement != nil {
			line += fmt.Sprintf(" starred=%t forked=%t", record.Engagement.HasStarred, record.Engagement.HasForked)
		}
		fmt.Println(line)
	}

	stats := rn.Stats()
	fmt.Printf("\nvalid=%d deleted=%d invalid=%d duplicate=%d error=%d (took %s)\n",
		stats.Valid, stats.Deleted, stats.Invalid, stats.Duplicate, stats.Error, stats.Duration)
}
