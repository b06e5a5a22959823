package perplexica

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

// maxStreamLineBytes bounds a single NDJSON line.
const maxStreamLineBytes = 1024 * 1024

// StreamHandler receives one decoded stream message. Returning an error
// stops the stream and is propagated to the SearchStream caller.
type StreamHandler func(msg *types.StreamMessage) error

// SearchStream runs a search with streaming enabled and feeds each NDJSON
// message to handler as it arrives. Lines that fail to decode are skipped.
// The stream ends at the first done or error message, or at EOF. The
// configured request timeout covers the whole stream.
func (c *Client) SearchStream(ctx context.Context, req *types.SearchRequest, handler StreamHandler) error {
	if handler == nil {
		return fmt.Errorf("stream handler cannot be nil")
	}
	if err := validateRequest(req); err != nil {
		return err
	}

	c.applyDefaults(req)
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal search request: %w", err)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return ClassifyConnectionError(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	requestID := uuid.NewString()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.BaseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	c.logger.Printf("stream request %s: focus=%s", requestID, req.FocusMode)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ClassifyConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return ClassifyHTTPError(resp.StatusCode, string(errBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg types.StreamMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}

		if err := handler(&msg); err != nil {
			return err
		}

		if msg.Type == types.StreamMessageDone || msg.Type == types.StreamMessageError {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return ClassifyConnectionError(err)
	}

	return nil
}

// CollectStream runs a streaming search and assembles the final answer and
// sources from the message sequence, mirroring what a non-streaming search
// would have returned.
func (c *Client) CollectStream(ctx context.Context, req *types.SearchRequest) (*types.SearchResult, error) {
	var (
		answer  bytes.Buffer
		sources []types.Source
	)

	err := c.SearchStream(ctx, req, func(msg *types.StreamMessage) error {
		switch msg.Type {
		case types.StreamMessageResponse:
			var chunk string
			if err := json.Unmarshal(msg.Data, &chunk); err == nil {
				answer.WriteString(chunk)
			}
		case types.StreamMessageSources:
			var batch []types.Source
			if err := json.Unmarshal(msg.Data, &batch); err == nil {
				sources = append(sources, batch...)
			}
		case types.StreamMessageError:
			var detail string
			if err := json.Unmarshal(msg.Data, &detail); err != nil {
				detail = string(msg.Data)
			}
			return types.NewUpstreamError(0, detail).
				WithMessage(fmt.Sprintf("stream error from Perplexica: %s", detail))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &types.SearchResult{
		Message: answer.String(),
		Sources: sources,
	}, nil
}
