package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatline/callcore/internal/domain"
)

// Client talks to the call record service. It implements
// domain.CallDirectory.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a call record client for the given base URL.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("component", "api").Logger(),
	}
}

type createCallRequest struct {
	CallerID  string `json:"callerId"`
	CalleeID  string `json:"calleeId"`
	RequestID string `json:"requestId"`
}

type apiResponse struct {
	Result int             `json:"result"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

// CreateCall persists a new call record with status INITIATED.
func (c *Client) CreateCall(ctx context.Context, callerID, calleeID string) (*domain.CallRecord, error) {
	req := createCallRequest{
		CallerID:  callerID,
		CalleeID:  calleeID,
		RequestID: uuid.NewString(),
	}

	var record domain.CallRecord
	if err := c.post(ctx, "/calls", req, &record); err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}
	c.log.Debug().Str("callId", record.ID).Str("callee", calleeID).Msg("call record created")
	return &record, nil
}

// EndCall marks the call record as ended. Also used to roll back a record
// whose media probe failed.
func (c *Client) EndCall(ctx context.Context, callID string) error {
	if err := c.post(ctx, "/calls/"+callID+"/end", struct{}{}, nil); err != nil {
		return fmt.Errorf("end call %s: %w", callID, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if envelope.Result != 0 {
		return fmt.Errorf("API error (result=%d): %s", envelope.Result, envelope.Msg)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return nil
}
