// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/feeddigest/internal/artifact"
	"github.com/hitoshi/feeddigest/internal/config"
	"github.com/hitoshi/feeddigest/internal/database"
	"github.com/hitoshi/feeddigest/internal/feed"
	"github.com/hitoshi/feeddigest/internal/handler"
	"github.com/hitoshi/feeddigest/internal/llm"
	"github.com/hitoshi/feeddigest/internal/metrics"
	"github.com/hitoshi/feeddigest/internal/report"
	"github.com/hitoshi/feeddigest/internal/repository"
	"github.com/hitoshi/feeddigest/internal/security"
	"github.com/hitoshi/feeddigest/internal/stage"

	applogger "github.com/hitoshi/feeddigest/internal/logger"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	applogger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, rest := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("model_id", cfg.LLMModelID),
	)

	switch cmd {
	case CommandScrape:
		return runScrape(cfg, w)
	case CommandSummarize:
		return runSummarize(cfg, w)
	case CommandTag:
		return runTag(cfg, w)
	case CommandCosts:
		return runCosts(cfg, w)
	case CommandPurge:
		return runPurge(cfg, w, rest)
	case CommandPurgeAll:
		return runPurgeAll(cfg, w)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// deps はパイプラインの全コマンドが共有する依存関係。
type deps struct {
	db           *sql.DB
	posts        *repository.PostgresPostRepo
	tags         *repository.PostgresTagRepo
	llmCalls     *repository.PostgresLlmCallRepo
	rawStore     *artifact.Store
	summaryStore *artifact.Store
	registry     *prometheus.Registry
	collector    *metrics.Collector
}

// openDeps はDB接続とアーティファクトストアを開き、共有依存関係を構築する。
// 呼び出し元はClose()を呼ぶこと。
func openDeps(cfg *config.Config) (*deps, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	rawStore, err := artifact.NewStore(filepath.Join(cfg.DataDir, "raw"), ".json")
	if err != nil {
		db.Close()
		return nil, err
	}
	summaryStore, err := artifact.NewStore(filepath.Join(cfg.DataDir, "summarized"), ".md")
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()

	return &deps{
		db:           db,
		posts:        repository.NewPostgresPostRepo(db),
		tags:         repository.NewPostgresTagRepo(db),
		llmCalls:     repository.NewPostgresLlmCallRepo(db),
		rawStore:     rawStore,
		summaryStore: summaryStore,
		registry:     registry,
		collector:    metrics.NewCollector(registry),
	}, nil
}

// Close はDB接続を閉じる。
func (d *deps) Close() {
	d.db.Close()
}

// newGateway はモデル呼び出しゲートウェイを構築する。
func newGateway(cfg *config.Config, d *deps) (*llm.Gateway, error) {
	client := &http.Client{Timeout: 5 * time.Minute}
	return llm.NewGateway(client, cfg.LLMEndpoint, cfg.LLMModelID,
		d.llmCalls, llm.DefaultPriceTable(), slog.Default())
}

// signalContext はSIGINT/SIGTERMでキャンセルされるコンテキストを返す。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runScrape はフィード取り込みステージを実行する。
func runScrape(cfg *config.Config, w io.Writer) error {
	d, err := openDeps(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	ssrfGuard := security.NewSSRFGuard()
	fetcher := feed.NewFetcher(ssrfGuard, cfg.FetchTimeout, cfg.FetchMaxSize)
	sanitizer := security.NewContentSanitizer()
	limiter := rate.NewLimiter(rate.Every(cfg.FeedInterval), 1)

	scraper := stage.NewScraper(fetcher, sanitizer, d.posts, d.rawStore,
		limiter, d.collector, slog.Default())

	ctx, cancel := signalContext()
	defer cancel()

	created, err := scraper.Run(ctx, cfg.FeedURLs)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Scraped %d new posts from %d feeds\n", created, len(cfg.FeedURLs))
	return nil
}

// runSummarize は要約ステージを実行する。
func runSummarize(cfg *config.Config, w io.Writer) error {
	d, err := openDeps(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	gateway, err := newGateway(cfg, d)
	if err != nil {
		return err
	}
	sanitizer := security.NewContentSanitizer()
	limiter := rate.NewLimiter(rate.Every(cfg.LLMCallInterval), 1)

	summarizer := stage.NewSummarizer(gateway, d.posts, d.rawStore, d.summaryStore,
		sanitizer, limiter, cfg.LLMTemperature, cfg.LLMMaxTokens,
		d.collector, slog.Default())

	ctx, cancel := signalContext()
	defer cancel()

	count, err := summarizer.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Summarized %d posts\n", count)
	return nil
}

// runTag はタグ付けステージを実行する。
func runTag(cfg *config.Config, w io.Writer) error {
	d, err := openDeps(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	gateway, err := newGateway(cfg, d)
	if err != nil {
		return err
	}
	limiter := rate.NewLimiter(rate.Every(cfg.LLMCallInterval), 1)

	tagger := stage.NewTagger(gateway, d.posts, d.tags, d.summaryStore,
		limiter, cfg.StopTerms, cfg.LLMTemperature, cfg.LLMMaxTokens,
		d.collector, slog.Default())

	ctx, cancel := signalContext()
	defer cancel()

	count, err := tagger.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Tagged %d posts\n", count)
	return nil
}

// runCosts はLLM呼び出し台帳のコスト内訳を表示する。
func runCosts(cfg *config.Config, w io.Writer) error {
	d, err := openDeps(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	svc := report.NewService(d.posts, d.tags, d.llmCalls, llm.DefaultPriceTable())

	ctx, cancel := signalContext()
	defer cancel()

	costs, err := svc.Costs(ctx)
	if err != nil {
		return err
	}

	for _, call := range costs.Calls {
		if call.Unpriced {
			fmt.Fprintf(w, "%s  %s  in=%d out=%d  (unpriced model)\n",
				call.CreateDate.Format(time.RFC3339), call.ModelID,
				call.InputTokens, call.OutputTokens)
			continue
		}
		fmt.Fprintf(w, "%s  %s  in=%d out=%d  $%.6f\n",
			call.CreateDate.Format(time.RFC3339), call.ModelID,
			call.InputTokens, call.OutputTokens, call.CostUSD)
	}
	fmt.Fprintf(w, "\nGrand Total: $%.6f\n", costs.TotalUSD)
	return nil
}

// runPurge は指定UUIDのPostを削除する。
func runPurge(cfg *config.Config, w io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: purge <uuid>")
	}
	postUUID := args[0]

	d, err := openDeps(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	purger := stage.NewPurger(d.posts, d.llmCalls, d.rawStore, d.summaryStore, slog.Default())

	ctx, cancel := signalContext()
	defer cancel()

	if err := purger.PurgeOne(ctx, postUUID); err != nil {
		return err
	}

	fmt.Fprintf(w, "Purged post %s\n", postUUID)
	return nil
}

// runPurgeAll は全PostとLLM呼び出し台帳を削除する。
func runPurgeAll(cfg *config.Config, w io.Writer) error {
	d, err := openDeps(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	purger := stage.NewPurger(d.posts, d.llmCalls, d.rawStore, d.summaryStore, slog.Default())

	ctx, cancel := signalContext()
	defer cancel()

	deleted, err := purger.PurgeAll(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Purged %d posts\n", deleted)
	return nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、読み取り専用APIのルーターを構成してHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	d, err := openDeps(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	statsService := report.NewService(d.posts, d.tags, d.llmCalls, llm.DefaultPriceTable())

	router := handler.NewRouter(&handler.RouterDeps{
		Posts:        d.posts,
		Tags:         d.tags,
		SummaryStore: d.summaryStore,
		StatsService: statsService,
		Gatherer:     d.registry,
		Logger:       slog.Default(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
