package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/romanzh1/mood-diary/internal/service"
	"github.com/romanzh1/mood-diary/internal/service/mood"
	"github.com/romanzh1/mood-diary/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runExport(cmd *cobra.Command, args []string) error {
	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	ctx := cmd.Context()

	var output []byte
	if rawFlag {
		svc := service.NewService(repo, nil, cfg.Location)
		now := svc.Now(ctx, userFlag)

		keys := append([]string{storage.SettingsKey}, storage.RecentMonthKeys(now, mood.HistoryMonths)...)

		items, err := repo.GetItems(ctx, userFlag, keys)
		if err != nil {
			return fmt.Errorf("read stored items (telegram_id: %d): %w", userFlag, err)
		}

		if output, err = json.MarshalIndent(items, "", "  "); err != nil {
			return fmt.Errorf("marshal stored items: %w", err)
		}
	} else {
		text, err := service.NewService(repo, nil, cfg.Location).BuildExport(ctx, userFlag)
		if err != nil {
			return err
		}
		output = []byte(text)
	}

	if outFlag == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
		return err
	}

	if err := os.WriteFile(outFlag, output, 0o600); err != nil {
		return fmt.Errorf("write export (path: %s): %w", outFlag, err)
	}

	zap.S().Info("export written", zap.Int64("telegram_id", userFlag), zap.String("path", outFlag))
	return nil
}
