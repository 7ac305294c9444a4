package export

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/romanzh1/mood-diary/internal/models"
	"go.uber.org/zap"
)

const FileName = "mood-data-for-ai.txt"

const Preamble = `Я веду дневник настроения для контроля биполярного расстройства. Ниже приведены данные в формате JSON (Дата, Оценка от -5 до +5, Заметка). Проанализируй эти данные. Найди закономерности, триггеры (основываясь на заметках), длительность фаз и дай рекомендации.

Данные:`

type Entry struct {
	Date      string `json:"date"`
	Score     int    `json:"score"`
	Note      string `json:"note"`
	Timestamp int64  `json:"timestamp"`
}

// Entries flattens a date-keyed mapping into date order. YYYY-MM-DD keys sort lexically.
func Entries(entries models.MonthBucket) []Entry {
	result := make([]Entry, 0, len(entries))
	for date, entry := range entries {
		result = append(result, Entry{
			Date:      date,
			Score:     entry.Score,
			Note:      entry.Note,
			Timestamp: entry.Timestamp,
		})
	}

	slices.SortFunc(result, func(a, b Entry) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return result
}

func Generate(entries models.MonthBucket) (string, error) {
	data, err := json.MarshalIndent(Entries(entries), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export entries (count: %d): %w", len(entries), err)
	}

	return Preamble + "\n\n" + string(data), nil
}

type Clipboard interface {
	Copy(ctx context.Context, text string) error
}

type FileSink interface {
	Save(ctx context.Context, name string, content []byte) error
}

type Delivery string

const (
	DeliveredToClipboard Delivery = "clipboard"
	DeliveredAsFile      Delivery = "file"
)

// Deliver tries the clipboard first and falls back to a file download.
func Deliver(ctx context.Context, text string, clipboard Clipboard, file FileSink) (Delivery, error) {
	if clipboard != nil {
		err := clipboard.Copy(ctx, text)
		if err == nil {
			return DeliveredToClipboard, nil
		}
		zap.S().Infow("clipboard unavailable, falling back to file", "error", err)
	}

	if err := file.Save(ctx, FileName, []byte(text)); err != nil {
		return "", fmt.Errorf("save export file (name: %s): %w", FileName, err)
	}

	return DeliveredAsFile, nil
}
