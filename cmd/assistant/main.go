package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NadavAzoulay124/portfolio.AI/internal/agent"
	"github.com/NadavAzoulay124/portfolio.AI/internal/config"
	"github.com/NadavAzoulay124/portfolio.AI/internal/database"
	"github.com/NadavAzoulay124/portfolio.AI/internal/logger"
	"github.com/NadavAzoulay124/portfolio.AI/internal/search"
)

// turnTimeout bounds one full agent turn, tool calls included.
const turnTimeout = 2 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	searcher := search.NewClient(&cfg.Search, log)
	tools := agent.NewToolset(db, searcher, log)

	// Fails fast when the API key is missing.
	assistant, err := agent.NewOpenAI(&cfg, tools, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize agent: %v\n", err)
		os.Exit(1)
	}

	runREPL(assistant)
}

// runREPL reads one user message per line and prints the agent's answer.
func runREPL(assistant *agent.Agent) {
	fmt.Println("Finsight Assistant - type 'exit' to quit")
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("You> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return // Clean exit on Ctrl+D
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if isQuit(input) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		answer, err := assistant.Turn(ctx, input)
		cancel()
		if err != nil {
			fmt.Printf("Agent error: %v\n", err)
			continue
		}
		fmt.Printf("Agent> %s\n", answer)
	}
}

// isQuit matches the exit commands case-insensitively, so "EXIT" and
// "Quit" end the session too.
func isQuit(input string) bool {
	switch strings.ToLower(input) {
	case "exit", "quit":
		return true
	}
	return false
}
