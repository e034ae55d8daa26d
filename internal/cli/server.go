package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizduel-service/internal/app"
	"quizduel-service/internal/config"
	"quizduel-service/internal/domain"
	"quizduel-service/internal/infra/memory"
	pgstore "quizduel-service/internal/infra/postgres"
	redisbank "quizduel-service/internal/infra/redis"
	transport "quizduel-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz-duel server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.BankLoader = memory.NewStaticBankLoader(sampleBanks())
	if pool != nil {
		loader = pgstore.NewBankLoader(pool)
	}

	bankTTL := config.Duration(cfg.Game.BankTTL, 10*time.Minute)
	var banks app.BankRepository
	if redisClient != nil {
		banks = redisbank.NewBankRepository(redisClient, loader, bankTTL)
	} else {
		banks = memory.NewBankRepository(loader, bankTTL)
	}

	var store app.Transactor
	if cfg.Postgres.URL != "" {
		db, err := openBunDB(cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		store = pgstore.NewGameStore(db)
	} else {
		store = memory.NewGameStore()
	}

	grace := config.Duration(cfg.Game.GracePeriod, app.DefaultGracePeriod)
	interval := config.Duration(cfg.Game.CheckInterval, app.DefaultCheckInterval)

	engine := app.NewCompletionEngine(store, grace)
	registry := app.NewJobRegistry(engine, interval)
	engine.AttachJobs(registry)
	defer registry.Close()

	service := app.NewGameService(store, banks, registry)
	wsHandler := transport.NewWSHandler(service)
	gameHandler := transport.NewGameHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/games", gameHandler.CreateGame)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz-duel service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleBanks provides a minimal question bank for config-free demo runs.
func sampleBanks() map[string]domain.QuestionBank {
	questions := make([]domain.Question, 0, domain.QuestionsPerGame)
	for i := 1; i <= domain.QuestionsPerGame; i++ {
		questions = append(questions, domain.Question{
			ID:         fmt.Sprintf("q%d", i),
			Prompt:     fmt.Sprintf("What is %d + %d?", i, i),
			AnswerText: fmt.Sprintf("%d", i+i),
		})
	}
	return map[string]domain.QuestionBank{
		"bank-1": {ID: "bank-1", Questions: questions},
	}
}
