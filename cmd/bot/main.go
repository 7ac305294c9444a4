package main

import (
	"fmt"
	"os"
	"time"

	"github.com/romanzh1/mood-diary/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "mood-diary",
	Short:         "mood-diary - Telegram mood diary bot and Mini App API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		return initLogger(cfg.Location)
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the Mini App API and the reminder scheduler",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print a user's diary in the AI analysis format",
	RunE:  runExport,
}

var (
	resetFlag bool
	userFlag  int64
	outFlag   string
	rawFlag   bool
)

func init() {
	migrateCmd.Flags().BoolVar(&resetFlag, "reset", false, "Roll back all migrations before applying them")

	exportCmd.Flags().Int64Var(&userFlag, "user", 0, "Telegram user id")
	exportCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Write to file instead of stdout")
	exportCmd.Flags().BoolVar(&rawFlag, "raw", false, "Dump stored values as they are")
	_ = exportCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(serveCmd, migrateCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zap.S().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogger(location *time.Location) error {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.EncoderConfig.TimeKey = "timestamp"
	logConfig.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(location).Format("2006-01-02T15:04:05-07:00"))
	}

	logger, err := logConfig.Build()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	zap.ReplaceGlobals(logger)
	zap.S().Debug("logger initialized")

	return nil
}
