// Package main is the entry point for the JobPilot scoring pipeline server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jobpilot",
	Short: "JobPilot evidence scoring and application artifact pipeline",
	Long:  "JobPilot scores resumes against job descriptions with LLM-extracted requirements, and generates application kits and outreach packs behind a credit gate.",
}

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
