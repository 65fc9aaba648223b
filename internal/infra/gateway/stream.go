package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/arenastore/checkout-bff-go/internal/domain"

	"go.uber.org/zap"
)

// StreamClient subscribes to the gateway webhook relay's server-sent
// confirmation stream, keyed by charge and buyer.
type StreamClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

// NewStreamClient creates a confirmation-stream subscriber. The HTTP client
// must have no overall timeout: the stream is long-lived and cancelled via
// context instead.
func NewStreamClient(httpClient *http.Client, baseURL, apiKey string, logger *zap.Logger) *StreamClient {
	return &StreamClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// Subscribe opens the stream for one charge. Events arrive on the returned
// channel; the channel is closed when the server ends the stream, after a
// "timeout" event, or once cancel is called. cancel is idempotent.
func (s *StreamClient) Subscribe(ctx context.Context, chargeID, buyerID string) (<-chan domain.ConfirmationEvent, func(), error) {
	ctx, cancelCtx := context.WithCancel(ctx)

	endpoint := fmt.Sprintf("%s/v3/payments/%s/events?buyerId=%s",
		s.baseURL, url.PathEscape(chargeID), url.QueryEscape(buyerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancelCtx()
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("access_token", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		cancelCtx()
		return nil, nil, &domain.ErrExternalService{Service: "confirmation_stream", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancelCtx()
		return nil, nil, &domain.ErrExternalService{
			Service: "confirmation_stream",
			Err:     fmt.Errorf("stream returned status %d", resp.StatusCode),
		}
	}

	events := make(chan domain.ConfirmationEvent, 4)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}

			var ev domain.ConfirmationEvent
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				s.logger.Warn("confirmation stream: bad event payload",
					zap.String("charge_id", chargeID),
					zap.Error(err),
				)
				continue
			}
			if ev.ChargeID == "" {
				ev.ChargeID = chargeID
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}

			// server-side timeout closes the subscription on our side too
			if ev.Type == domain.ConfirmationTimeout {
				return
			}
		}
	}()

	return events, cancelCtx, nil
}
