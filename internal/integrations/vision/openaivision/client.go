package openaivision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/BearBump/ParcelDesk/internal/integrations/vision"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkg/errors"
)

const extractionPrompt = `You are reading a screenshot of an online purchase (order confirmation or package label).
Return ONLY a JSON object, no prose, with this exact shape:
{
  "tracking_number": string or null,
  "order_number": string or null,
  "seller": string or null,
  "total_value_usd": number or null,
  "items": [
    {"description": string, "hs_code": string, "quantity": integer, "unit_value_usd": number, "total_value_usd": number}
  ]
}
Use null for anything you cannot read. hs_code may be an empty string.`

type Client struct {
	c     openai.Client
	model string
}

func New(apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		c:     openai.NewClient(opts...),
		model: model,
	}
}

func (c *Client) Extract(ctx context.Context, imageBytes []byte, contentType string) (vision.Fields, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(imageBytes))

	resp, err := c.c.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(extractionPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		return vision.Fields{}, errors.Wrap(err, "vision completion")
	}
	if len(resp.Choices) == 0 {
		return vision.Fields{}, errors.New("vision completion: no choices")
	}

	return parseFields(resp.Choices[0].Message.Content)
}

type wireItem struct {
	Description   string   `json:"description"`
	HSCode        string   `json:"hs_code"`
	Quantity      int32    `json:"quantity"`
	UnitValueUSD  *float64 `json:"unit_value_usd"`
	TotalValueUSD *float64 `json:"total_value_usd"`
}

type wireFields struct {
	TrackingNumber *string    `json:"tracking_number"`
	OrderNumber    *string    `json:"order_number"`
	Seller         *string    `json:"seller"`
	TotalValueUSD  *float64   `json:"total_value_usd"`
	Items          []wireItem `json:"items"`
}

// parseFields принимает ответ модели как есть: JSON, возможно завёрнутый в
// markdown-заборы, — и валидирует его в типизированные поля.
func parseFields(content string) (vision.Fields, error) {
	raw := stripFences(content)

	var w wireFields
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return vision.Fields{}, errors.Wrap(err, "parse extraction json")
	}

	out := vision.Fields{
		TrackingNumber: cleanString(w.TrackingNumber),
		OrderNumber:    cleanString(w.OrderNumber),
		Seller:         cleanString(w.Seller),
	}
	if w.TotalValueUSD != nil && *w.TotalValueUSD >= 0 {
		cents := usdToCents(*w.TotalValueUSD)
		out.DeclaredValueCents = &cents
	}
	for _, it := range w.Items {
		if strings.TrimSpace(it.Description) == "" {
			continue
		}
		q := it.Quantity
		if q <= 0 {
			q = 1
		}
		item := vision.Item{
			Description: strings.TrimSpace(it.Description),
			HSCode:      strings.TrimSpace(it.HSCode),
			Quantity:    q,
		}
		if it.UnitValueUSD != nil && *it.UnitValueUSD >= 0 {
			item.UnitValueCents = usdToCents(*it.UnitValueUSD)
		}
		if it.TotalValueUSD != nil && *it.TotalValueUSD >= 0 {
			item.TotalValueCents = usdToCents(*it.TotalValueUSD)
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func cleanString(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func usdToCents(v float64) int64 {
	return int64(math.Round(v * 100))
}
