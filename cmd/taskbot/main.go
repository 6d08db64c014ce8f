package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mreid/taskbot/config"
	"github.com/mreid/taskbot/internal/agent"
	"github.com/mreid/taskbot/internal/chat"
	"github.com/mreid/taskbot/internal/db"
	"github.com/mreid/taskbot/internal/httpapi"
	"github.com/mreid/taskbot/internal/llm"
)

func main() {
	cfg := config.Load()

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	apiKey := cfg.AnthropicKey
	if cfg.LLMProvider == "openai" {
		apiKey = cfg.OpenAIKey
	}

	client, err := llm.NewClient(llm.ProviderConfig{
		Provider:  cfg.LLMProvider,
		APIKey:    apiKey,
		AuthToken: cfg.AnthropicToken,
		Model:     cfg.LLMModel,
		BaseURL:   cfg.OllamaBaseURL,
	})
	if err != nil {
		log.Fatalf("failed to create LLM client: %v", err)
	}

	ag := agent.New(client, cfg.MaxContextTokens)
	chatSvc := chat.NewService(database, ag, cfg.TurnTimeout)

	// Local REPL mode for development: no auth, fixed local user.
	if len(os.Args) > 1 && os.Args[1] == "repl" {
		runREPL(chatSvc)
		return
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required to run the server")
	}

	handler := httpapi.NewServer(database, chatSvc, cfg.JWTSecret)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down.")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func runREPL(chatSvc *chat.Service) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	// Check if stdin is a pipe (non-interactive)
	stat, _ := os.Stdin.Stat()
	isPipe := (stat.Mode() & os.ModeCharDevice) == 0

	if !isPipe {
		fmt.Print("taskbot> ")
	}

	const localUser = "local"
	var conversationID int64

	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			if !isPipe {
				fmt.Print("taskbot> ")
			}
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		var (
			result *chat.TurnResult
			err    error
		)
		if conversationID == 0 {
			result, err = chatSvc.QuickChat(ctx, localUser, input)
		} else {
			result, err = chatSvc.SendMessage(ctx, localUser, conversationID, input)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		} else {
			conversationID = result.ConversationID
			fmt.Println(result.Response)
		}

		if isPipe {
			break // single exchange in pipe mode
		}
		fmt.Print("taskbot> ")
	}
}
