package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// postForAudio sends one JSON synthesis request and returns the response
// body. Non-2xx responses become an APIError carrying the raw body.
func postForAudio(ctx context.Context, client *http.Client, provider, url string, header http.Header, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(provider, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(provider, fmt.Errorf("create request: %w", err))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, WrapError(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseError(provider, resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(provider, fmt.Errorf("read response: %w", err))
	}
	return audio, nil
}

// parseError keeps the body verbatim and lifts a vendor error code when
// one of the known shapes is present.
func parseError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Code any `json:"code"`
		} `json:"error"`
		Detail struct {
			Status string `json:"status"`
		} `json:"detail"`
	}

	code := ""
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Error.Code != nil:
			code = fmt.Sprint(errResp.Error.Code)
		case errResp.Detail.Status != "":
			code = errResp.Detail.Status
		}
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   provider,
	}
}
