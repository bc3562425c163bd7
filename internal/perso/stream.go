// ABOUTME: Streaming chat call against the platform's SSE endpoint
// ABOUTME: Producer goroutine parses data: lines into a bounded event channel

package perso

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// streamBufferSize is the event channel capacity between the SSE reader and
// the consumer. Bounded so a slow consumer backpressures the read loop.
const streamBufferSize = 16

// doneSentinel terminates a chat stream. It is a control line, not a fragment.
const doneSentinel = "[DONE]"

// StreamEventType discriminates events on a chat stream.
type StreamEventType string

const (
	StreamText  StreamEventType = "text"  // one text fragment
	StreamError StreamEventType = "error" // terminal failure; stream is over
)

// StreamEvent is one event from a chat stream. After an error event, or after
// the channel closes, no further events arrive.
type StreamEvent struct {
	Type StreamEventType
	Text string
	Err  error
}

// ChatStream sends the full conversation history for one turn and returns a
// channel of incremental text fragments. The stream is lazy and not
// restartable; fragments arrive as the platform generates them. The channel
// is closed on completion, on error (after one error event), and on context
// cancellation. Payload lines matching no known shape are logged and skipped.
func (c *Client) ChatStream(ctx context.Context, sessionID string, history []ChatTurn) (<-chan *StreamEvent, error) {
	payload := map[string]interface{}{"messages": history}

	path := fmt.Sprintf("/api/v1/session/%s/chat", sessionID)
	req, err := c.newRequest(ctx, http.MethodPost, path, jsonBody(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout here: the connection stays open for the whole turn.
	// Cancellation comes from ctx.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening chat stream: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	events := make(chan *StreamEvent, streamBufferSize)
	go c.readStream(ctx, sessionID, resp, events)
	return events, nil
}

// readStream parses SSE lines from the response body into events.
// Runs until the stream ends, errors, or ctx is cancelled.
func (c *Client) readStream(ctx context.Context, sessionID string, resp *http.Response, events chan<- *StreamEvent) {
	defer close(events)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == doneSentinel {
			// Terminal marker, not a fragment
			return
		}

		text, ok := ExtractFragment([]byte(data))
		if !ok {
			c.logger.Warn("unrecognized stream payload, skipping",
				"session_id", sessionID,
				"payload", truncate(data, 200))
			continue
		}
		if text == "" {
			continue
		}

		select {
		case events <- &StreamEvent{Type: StreamText, Text: text}:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		select {
		case events <- &StreamEvent{
			Type: StreamError,
			Err:  fmt.Errorf("%w: reading chat stream: %v", ErrUpstream, err),
		}:
		case <-ctx.Done():
		}
	}
}

// truncate shortens s for log output
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
