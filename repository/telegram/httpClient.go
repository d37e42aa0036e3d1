package telegramrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Liliyakhu/library-service-project/util/httpx"
)

type httpSink struct {
	botToken string
	chatID   string
	client   *http.Client
	log      *slog.Logger
}

func NewHTTP(botToken, chatID string, log *slog.Logger) Sink {
	return &httpSink{botToken: botToken, chatID: chatID, client: httpx.Client(), log: log}
}

func (s *httpSink) Send(ctx context.Context, text string) bool {
	body := map[string]any{
		"chat_id":    s.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	b, _ := json.Marshal(body)

	url := "https://api.telegram.org/bot" + s.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		s.log.Error("telegram request build failed", "err", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error("telegram send failed", "err", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.log.Error("telegram send rejected", "status", resp.Status)
		return false
	}
	return true
}
