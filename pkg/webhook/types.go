package webhook

// GASPayload is what the Google Apps Script reminder endpoint expects.
type GASPayload struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
	Time   int64  `json:"time"` // epoch ms
}

// YandexPayload is what the Yandex Cloud Function reminder endpoint expects.
type YandexPayload struct {
	ChatID   int64  `json:"chat_id"`
	RemindAt string `json:"remind_at"` // RFC3339
	Text     string `json:"text"`
}

type Variant string

const (
	VariantGAS    Variant = "gas"
	VariantYandex Variant = "yandex"
)
