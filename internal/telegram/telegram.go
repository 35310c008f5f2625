package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"housebot/server/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	ParseModeMarkdown = "Markdown"

	// maxMediaGroup is the largest album the Bot API accepts.
	maxMediaGroup = 10
)

var (
	ErrUnauthorized = errors.New("invalid bot token - please check your token from @BotFather")
	ErrForbidden    = errors.New("bot was blocked by the user or chat")
	ErrNotFound     = errors.New("bot not found - please check your token from @BotFather")
)

type Service struct {
	logger  *logrus.Logger
	client  *http.Client
	baseURL string
}

func NewService(logger *logrus.Logger, apiURL, token string, timeout time.Duration) *Service {
	return &Service{
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
		baseURL: fmt.Sprintf("%s/bot%s", strings.TrimRight(apiURL, "/"), token),
	}
}

// MessageOption customises a sendMessage payload.
type MessageOption func(payload map[string]interface{})

// WithKeyboard attaches a reply keyboard to the message.
func WithKeyboard(kb models.ReplyKeyboardMarkup) MessageOption {
	return func(payload map[string]interface{}) {
		payload["reply_markup"] = kb
	}
}

// PlainText disables Markdown parsing for the message.
func PlainText() MessageOption {
	return func(payload map[string]interface{}) {
		delete(payload, "parse_mode")
	}
}

// SendMessage sends a Markdown text message to a chat.
func (s *Service) SendMessage(ctx context.Context, chatID int64, text string, opts ...MessageOption) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": ParseModeMarkdown,
	}
	for _, opt := range opts {
		opt(payload)
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	_, err = s.call(ctx, "sendMessage", "application/json", bytes.NewReader(jsonData))
	return err
}

// SendPhoto uploads a single local image.
func (s *Service) SendPhoto(ctx context.Context, chatID int64, photo models.Photo) error {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	if err := w.WriteField("chat_id", fmt.Sprint(chatID)); err != nil {
		return err
	}
	if photo.Caption != "" {
		if err := w.WriteField("caption", photo.Caption); err != nil {
			return err
		}
	}
	if err := attachFile(w, "photo", photo.Path); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	_, err := s.call(ctx, "sendPhoto", w.FormDataContentType(), body)
	return err
}

// SendMediaGroup uploads photos as albums. A single photo is sent with
// sendPhoto since the API rejects one-element groups; more than ten photos
// are split over several albums.
func (s *Service) SendMediaGroup(ctx context.Context, chatID int64, photos []models.Photo) error {
	for len(photos) > 0 {
		n := len(photos)
		if n > maxMediaGroup {
			n = maxMediaGroup
		}
		chunk := photos[:n]
		photos = photos[n:]

		if len(chunk) == 1 {
			if err := s.SendPhoto(ctx, chatID, chunk[0]); err != nil {
				return err
			}
			continue
		}
		if err := s.sendAlbum(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) sendAlbum(ctx context.Context, chatID int64, photos []models.Photo) error {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	media := make([]models.InputMediaPhoto, 0, len(photos))
	for i, p := range photos {
		field := fmt.Sprintf("photo%d", i)
		if err := attachFile(w, field, p.Path); err != nil {
			return err
		}
		media = append(media, models.InputMediaPhoto{
			Type:    "photo",
			Media:   "attach://" + field,
			Caption: p.Caption,
		})
	}

	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return fmt.Errorf("failed to marshal media group: %w", err)
	}
	if err := w.WriteField("chat_id", fmt.Sprint(chatID)); err != nil {
		return err
	}
	if err := w.WriteField("media", string(mediaJSON)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	_, err = s.call(ctx, "sendMediaGroup", w.FormDataContentType(), body)
	return err
}

// GetUpdates long-polls for updates after offset.
func (s *Service) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]models.Update, error) {
	payload := map[string]interface{}{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal getUpdates payload: %w", err)
	}

	// The long poll outlives the regular request timeout.
	ctx, cancel := context.WithTimeout(ctx, timeout+s.client.Timeout)
	defer cancel()

	result, err := s.call(ctx, "getUpdates", "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}

	var updates []models.Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("failed to parse updates: %w", err)
	}
	return updates, nil
}

func (s *Service) call(ctx context.Context, method, contentType string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+method, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	client := s.client
	if method == "getUpdates" {
		// Deadline comes from ctx; the client timeout would cut the long poll short.
		client = &http.Client{Transport: s.client.Transport}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Telegram API %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Telegram API response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, raw)
	}

	var envelope models.APIResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse Telegram API response: %w", err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("Telegram API error (code %d): %s", envelope.ErrorCode, envelope.Description)
	}
	return envelope.Result, nil
}

func statusError(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusBadRequest:
		return fmt.Errorf("invalid chat ID or message format: %s", string(body))
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("Telegram API error (status %d): %s", status, string(body))
	}
}

func attachFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to copy %s: %w", path, err)
	}
	return nil
}

// EscapeMarkdown escapes the characters legacy Markdown treats as entities,
// so user-provided text can be embedded in formatted messages.
func EscapeMarkdown(s string) string {
	r := strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)
	return r.Replace(s)
}
