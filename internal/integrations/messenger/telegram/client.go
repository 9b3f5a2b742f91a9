package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/pkg/errors"
)

// Client реализует контракт мессенджера поверх Telegram Bot API: file id ->
// file path -> download URL. Sender здесь — chat id числом.
type Client struct {
	bot   *telego.Bot
	httpc *http.Client
}

func New(token string) (*Client, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}
	return &Client{
		bot: bot,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

func (c *Client) FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: mediaID})
	if err != nil {
		return nil, "", errors.Wrap(err, "telegram get file")
	}
	if file.FilePath == "" {
		return nil, "", errors.New("telegram get file: empty file path")
	}

	url := c.bot.FileDownloadURL(file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "new download request")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "download telegram file")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("telegram file download http %d", resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "read telegram file")
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = guessContentType(file.FilePath)
	}
	return b, ct, nil
}

func (c *Client) SendText(ctx context.Context, to, text string) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid telegram chat id %q", to)
	}
	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		return errors.Wrap(err, "telegram send message")
	}
	return nil
}

func guessContentType(filePath string) string {
	switch filepath.Ext(filePath) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
