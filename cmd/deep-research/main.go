package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/search"
	"github.com/spf13/cobra"
)

var (
	question   string
	queryCount int
	maxRounds  int
	outputFile string
)

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))

	// Load .env file
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, as long as env vars are set
	}

	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based deep research agent",
		Long:  `deep-research is an autonomous agent that answers a question by planning search queries, researching them in parallel, and iterating until it has enough evidence to write a cited report.`,
		Run: func(cmd *cobra.Command, args []string) {

			// Check if question provided via flags
			questionFlagChanged := cmd.Flags().Changed("question")

			if !questionFlagChanged {
				// Interactive Mode
				reader := bufio.NewReader(os.Stdin)

				fmt.Print("Enter research question: ")
				input, _ := reader.ReadString('\n')
				question = strings.TrimSpace(input)
				if question == "" {
					slog.Error("Question cannot be empty")
					os.Exit(1)
				}
			} else {
				// Non-Interactive Mode (Flag provided)
				if question == "" {
					slog.Error("--question flag provided but empty")
					os.Exit(1)
				}
			}

			slog.Info("Starting research", "question", question)

			ctx := context.Background()

			// Models
			fastLLM, err := clients.GoogleAI(ctx, cfg.GoogleApiKey, cfg.FastModel)
			if err != nil {
				slog.Error("Failed to init fast model", "error", err)
				os.Exit(1)
			}
			reasoningLLM, err := clients.GoogleAI(ctx, cfg.GoogleApiKey, cfg.ReasoningModel)
			if err != nil {
				slog.Error("Failed to init reasoning model", "error", err)
				os.Exit(1)
			}

			// Search backend
			provider, err := search.FromConfig(cfg)
			if err != nil {
				slog.Error("Failed to init search provider", "error", err)
				os.Exit(1)
			}

			// Initialize Engine
			engine := research.NewEngine(research.Config{
				MaxResults:  cfg.MaxResults,
				CallTimeout: time.Duration(cfg.CallTimeoutSecs) * time.Second,
			}, fastLLM, reasoningLLM, provider)

			if queryCount <= 0 {
				queryCount = cfg.InitialQueryCount
			}
			if maxRounds <= 0 {
				maxRounds = cfg.MaxRounds
			}

			// Run Research Loop
			answer, err := engine.Run(ctx, research.Request{
				Question:          question,
				InitialQueryCount: queryCount,
				MaxRounds:         maxRounds,
			})
			if err != nil {
				slog.Error("Error running research", "error", err)
				os.Exit(1)
			}

			report := answer.Text + "\n\n## Sources\n\n" + research.FormatSources(answer.Sources) + "\n"

			if outputFile != "" {
				if err := os.WriteFile(outputFile, []byte(report), 0644); err != nil {
					slog.Error("Failed to write report", "file", outputFile, "error", err)
					os.Exit(1)
				}
				slog.Info("Report written", "file", outputFile)
			} else {
				fmt.Println()
				fmt.Println(report)
			}
		},
	}

	rootCmd.Flags().StringVarP(&question, "question", "q", "", "The research question")
	rootCmd.Flags().IntVar(&queryCount, "queries", 0, "Number of initial search queries (default from env)")
	rootCmd.Flags().IntVar(&maxRounds, "rounds", 0, "Maximum research rounds (default from env)")
	rootCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Write the final report to a file instead of stdout")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
