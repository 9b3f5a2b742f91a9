package cloudhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const maxMediaBytes = 25 << 20

// Client — интеграция с cloud-API мессенджера (WhatsApp-подобный контракт):
// media id -> подписанный URL -> байты; отправка текста POST-ом.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type mediaResp struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

func (c *Client) FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, "", errors.Wrap(err, "parse base url")
	}
	u.Path = "/v1/media/" + url.PathEscape(mediaID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "resolve media url")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("carrier media lookup http %d", resp.StatusCode)
	}

	var mr mediaResp
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, "", errors.Wrap(err, "decode media lookup")
	}
	if mr.URL == "" {
		return nil, "", errors.New("carrier media lookup: empty url")
	}

	// Второй запрос — по подписанному URL. Авторизация уже зашита в подпись.
	dreq, err := http.NewRequestWithContext(ctx, http.MethodGet, mr.URL, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "new download request")
	}
	dresp, err := c.httpc.Do(dreq)
	if err != nil {
		return nil, "", errors.Wrap(err, "download media")
	}
	defer dresp.Body.Close()
	if dresp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("carrier media download http %d", dresp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(dresp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", errors.Wrap(err, "read media body")
	}
	if len(b) > maxMediaBytes {
		return nil, "", errors.New("media too large")
	}

	ct := dresp.Header.Get("Content-Type")
	if ct == "" {
		ct = mr.MimeType
	}
	return b, ct, nil
}

type sendReq struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (c *Client) SendText(ctx context.Context, to, text string) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = "/v1/messages"

	body, err := json.Marshal(sendReq{To: to, Text: text})
	if err != nil {
		return errors.Wrap(err, "marshal send request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "send message")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("carrier send http %d", resp.StatusCode)
	}
	return nil
}
