package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/captcha"
	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/dates"
	"github.com/likewindccc/seatgrab/internal/logging"
	"github.com/likewindccc/seatgrab/internal/models"
	"github.com/likewindccc/seatgrab/internal/notifier"
	"github.com/likewindccc/seatgrab/internal/reservation"
	"github.com/likewindccc/seatgrab/internal/seatquery"
)

var (
	configPath string
	verbose    bool
	headless   bool
	dryRun     bool
	timeoutSec int
	token      string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "seatgrab",
	Short: "Automated seat reservation for the study portal",
	Long: `seatgrab drives a real browser through the portal's login, room,
date and seat selection, solves the slide captcha automatically, and
retries across fallback seats until success or the deadline.

Browsers must be installed once before the first run:
  go run github.com/playwright-community/playwright-go/cmd/playwright@latest install chromium`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reserve seats for all configured accounts",
	RunE:  runReservation,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and probe the recognizer service",
	RunE:  runCheck,
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send a test notification to the configured sinks",
	RunE:  runNotifyTest,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE:  runInit,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (auto-discovered when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	runCmd.Flags().BoolVar(&headless, "headless", true, "run browsers headless")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and print the plan without launching browsers")
	runCmd.Flags().IntVar(&timeoutSec, "timeout", 0, "per-account timeout in seconds (overrides config)")

	checkCmd.Flags().StringVar(&token, "token", "", "session JWT for querying live seat availability")

	rootCmd.AddCommand(runCmd, checkCmd, notifyCmd, initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func runReservation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Browser.Headless = headless
	if timeoutSec > 0 {
		cfg.Timeouts.GlobalSec = timeoutSec
	}

	target := dates.Tomorrow(time.Now())
	printBanner(cfg, target)

	if dryRun {
		fmt.Println("🔍 试运行模式：不启动浏览器")
		return probeRecognizer(cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := notifier.FromConfig(cfg.Notify, cfg.Portal.Room, logger)
	var outcomeSink reservation.OutcomeNotifier
	if sinks != nil {
		outcomeSink = sinks
	}

	supervisor := reservation.NewSupervisor(cfg,
		reservation.DefaultFactory(cfg, target, logger), outcomeSink, logger)
	report := supervisor.Run(ctx)

	if sinks != nil && len(report.Outcomes) > 1 {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sinks.NotifyReport(notifyCtx, report); err != nil {
			logger.Warn("run report notification failed", zap.Error(err))
		}
	}

	printReport(report)
	if report.Successful() == 0 {
		return fmt.Errorf("no account reserved a seat")
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	target := dates.Tomorrow(time.Now())
	fmt.Println("========================================")
	fmt.Println("✅ 配置有效")
	fmt.Printf("🏢 房间: %s\n", cfg.Portal.Room)
	fmt.Printf("📅 目标日期: %s\n", target)
	fmt.Printf("👥 账户数: %d\n", len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		fmt.Printf("   - %s: 座位 %v\n", acct.Name, acct.Seats)
	}
	fmt.Println("========================================")

	if err := probeRecognizer(cfg); err != nil {
		return err
	}

	if token != "" && cfg.Portal.SeatQueryURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		client := seatquery.NewClient(cfg.Portal.SeatQueryURL, token, logger)
		available, err := client.QueryAvailable(ctx, cfg.Portal.Room, target.APIDate())
		if err != nil {
			return fmt.Errorf("seat availability query: %w", err)
		}
		fmt.Printf("💺 %s 可用座位: %v\n", target, available)
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = filepath.Join("configs", "config.yaml")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	if err := config.Save(path, config.Example()); err != nil {
		return err
	}
	fmt.Printf("📝 示例配置已写入: %s，请填入账号信息\n", path)
	return nil
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sinks := notifier.FromConfig(cfg.Notify, cfg.Portal.Room, logger)
	if sinks == nil {
		return fmt.Errorf("no notification sinks enabled in config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome := models.Outcome{
		Account:  "notify-test",
		Kind:     models.OutcomeSuccess,
		Seat:     0,
		Date:     dates.Tomorrow(time.Now()).APIDate(),
		Attempts: 0,
	}
	if err := sinks.Notify(ctx, outcome); err != nil {
		return fmt.Errorf("test notification: %w", err)
	}
	fmt.Println("✅ 测试通知已发送")
	return nil
}

func probeRecognizer(cfg *config.Config) error {
	if cfg.Captcha.RecognizerURL == "" {
		fmt.Println("⚠️ 未配置识别服务 (captcha.recognizer_url)")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec := captcha.NewHTTPRecognizer(cfg.Captcha.RecognizerURL)
	if err := rec.HealthCheck(ctx); err != nil {
		return fmt.Errorf("recognizer check: %w", err)
	}
	fmt.Println("🧩 识别服务正常")
	return nil
}

func printBanner(cfg *config.Config, target dates.Target) {
	fmt.Println("========================================")
	fmt.Println("🪑 seatgrab - 自动座位预约")
	fmt.Printf("🏢 房间: %s\n", cfg.Portal.Room)
	fmt.Printf("📅 目标日期: %s\n", target)
	fmt.Printf("👥 账户数: %d\n", len(cfg.Accounts))
	fmt.Printf("⏰ 全局超时: %s\n", cfg.Timeouts.Global())
	fmt.Println("========================================")
}

func printReport(report *models.RunReport) {
	fmt.Println("========================================")
	fmt.Printf("📊 执行结果 (%s)\n", report.Elapsed.Round(time.Second))
	for _, o := range report.Outcomes {
		if o.Succeeded() {
			fmt.Printf("  ✅ %s: %s\n", o.Account, o.Summary())
		} else {
			fmt.Printf("  ❌ %s: %s\n", o.Account, o.Summary())
		}
	}
	fmt.Println("========================================")
}
