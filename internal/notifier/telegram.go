package notifier

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirphl/zeta-trader/internal/utils"
)

type TelegramNotifier struct {
	Token   string
	ChatIDs []string
	Retries int
	Delay   time.Duration

	apiBase string
	client  *http.Client
}

// NewTelegramNotifier returns a notifier that posts HTML messages to every
// chat in chatIDs. proxyURL may be empty.
func NewTelegramNotifier(token string, chatIDs []string, proxyURL string, retries int, delay time.Duration) (*TelegramNotifier, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	if retries < 1 {
		retries = 1
	}
	return &TelegramNotifier{
		Token:   token,
		ChatIDs: chatIDs,
		Retries: retries,
		Delay:   delay,
		apiBase: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second, Transport: transport},
	}, nil
}

func (t *TelegramNotifier) Send(message string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.Token)
	var errs []error
	for _, chatID := range t.ChatIDs {
		resp, err := t.client.PostForm(apiURL, url.Values{
			"chat_id":    {chatID},
			"text":       {message},
			"parse_mode": {"HTML"},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", chatID, err))
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			errs = append(errs, fmt.Errorf("chat %s: telegram send failed: %s", chatID, resp.Status))
		}
	}
	return errors.Join(errs...)
}

func (t *TelegramNotifier) SendWithRetry(message string) error {
	var err error
	for attempt := 1; attempt <= t.Retries; attempt++ {
		if err = t.Send(message); err == nil {
			return nil
		}
		utils.GetLogger().Printf("Notifier | Telegram send failed (attempt %d/%d): %v", attempt, t.Retries, err)
		if attempt < t.Retries {
			time.Sleep(t.Delay * time.Duration(attempt))
		}
	}
	return err
}

// RetryWithNotification runs action up to Retries times and reports the
// final failure to Telegram.
func (t *TelegramNotifier) RetryWithNotification(action func() error, description string) error {
	var err error
	for attempt := 1; attempt <= t.Retries; attempt++ {
		if err = action(); err == nil {
			return nil
		}
		utils.GetLogger().Printf("Notifier | %s failed (attempt %d/%d): %v", description, attempt, t.Retries, err)
		if attempt < t.Retries {
			time.Sleep(t.Delay * time.Duration(attempt))
		}
	}
	_ = t.SendWithRetry(ErrorMessage(description, strings.TrimSpace(err.Error())))
	return err
}
