package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Store кладёт вложения в media-store по HTTP PUT; ключ объекта — uuid,
// чтобы повторная загрузка тех же байт не затирала чужой объект.
type Store struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string) *Store {
	return &Store{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Store) WithHTTPClient(c *http.Client) *Store {
	s.httpc = c
	return s
}

type uploadResponse struct {
	URL string `json:"url"`
}

func (s *Store) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	key := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/v1/objects/%s", s.baseURL, key), bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "build upload request")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "upload object")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", errors.Errorf("upload object: http status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", errors.Wrap(err, "read upload response")
	}
	var ur uploadResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return "", errors.Wrap(err, "decode upload response")
	}
	if ur.URL == "" {
		return "", errors.New("upload response without url")
	}
	return ur.URL, nil
}
