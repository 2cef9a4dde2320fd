package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPClient はJSONエンドポイント経由で審査と検閲を行う
type HTTPClient struct {
	judgeURL      string
	moderationURL string
	apiKey        string
	http          *http.Client
	limiter       *rate.Limiter
}

// NewHTTPClient は rps 件/秒に制限されたクライアントを返す。rps が0以下なら無制限
func NewHTTPClient(judgeURL, moderationURL, apiKey string, rps float64) *HTTPClient {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HTTPClient{
		judgeURL:      judgeURL,
		moderationURL: moderationURL,
		apiKey:        apiKey,
		http:          &http.Client{Timeout: 60 * time.Second},
		limiter:       rate.NewLimiter(limit, 1),
	}
}

type rankRequest struct {
	Topic        string `json:"topic"`
	ProArguments string `json:"proArguments"`
	ConArguments string `json:"conArguments"`
}

// 欠けた項目を区別するためポインタで受ける
type rankResponse struct {
	Winner    *string  `json:"winner"`
	ProScore  *float64 `json:"proScore"`
	ConScore  *float64 `json:"conScore"`
	Reasoning *string  `json:"reasoning"`
}

func (c *HTTPClient) Rank(ctx context.Context, topic, proText, conText string) (Verdict, error) {
	if proText == "" {
		proText = "No arguments submitted"
	}
	if conText == "" {
		conText = "No arguments submitted"
	}

	var resp rankResponse
	if err := c.post(ctx, c.judgeURL, rankRequest{Topic: topic, ProArguments: proText, ConArguments: conText}, &resp); err != nil {
		return Verdict{}, err
	}

	v := Verdict{Winner: "draw", ProScore: 50, ConScore: 50, Reasoning: DefaultReasoning}
	if resp.Winner != nil {
		v.Winner = *resp.Winner
	}
	if resp.ProScore != nil {
		v.ProScore = int(math.Round(*resp.ProScore))
	}
	if resp.ConScore != nil {
		v.ConScore = int(math.Round(*resp.ConScore))
	}
	if resp.Reasoning != nil && *resp.Reasoning != "" {
		v.Reasoning = *resp.Reasoning
	}
	return v, nil
}

func (c *HTTPClient) Check(ctx context.Context, text string) (Moderation, error) {
	var m Moderation
	if err := c.post(ctx, c.moderationURL, map[string]string{"text": text}, &m); err != nil {
		return Moderation{}, err
	}
	return m, nil
}

func (c *HTTPClient) post(ctx context.Context, url string, body, out interface{}) error {
	if url == "" {
		return ErrUnavailable
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("judge: rate limiter: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("judge: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("judge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("judge: request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("judge: unexpected status %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("judge: decode response: %w", err)
	}
	return nil
}
