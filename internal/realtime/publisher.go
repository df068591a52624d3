package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// DeliveryStatus tracks an event through the fan-out.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryEvent is one payload in flight across all channels.
type DeliveryEvent struct {
	ID           string         `json:"id"`
	EventType    string         `json:"event_type"`
	Payload      []byte         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	AttemptCount int            `json:"attempt_count"`
	Status       DeliveryStatus `json:"status"`
	LastError    string         `json:"last_error,omitempty"`
}

// DeliveryResult is the outcome of one channel's attempt.
type DeliveryResult struct {
	Channel  string `json:"channel"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Duration int64  `json:"duration_ms"`
}

// Publisher delivers events to the websocket hub, an optional downstream
// webhook and an optional message queue. Websocket broadcast is fire-and
// forget; the other channels are retried until maxRetries.
type Publisher struct {
	mu      sync.RWMutex
	pending map[string]*DeliveryEvent

	hub        *Hub
	queue      *Queue
	webhookURL string
	httpClient *resty.Client

	maxRetries   int
	retryBackoff time.Duration
	timeout      time.Duration

	seq int64
}

// NewPublisher wires the fan-out. hub must be non-nil; queue may be nil and
// webhookURL may be empty.
func NewPublisher(hub *Hub, queue *Queue, webhookURL string) (*Publisher, error) {
	if hub == nil {
		return nil, fmt.Errorf("publisher requires a hub")
	}
	p := &Publisher{
		pending:      make(map[string]*DeliveryEvent),
		hub:          hub,
		queue:        queue,
		webhookURL:   webhookURL,
		httpClient:   resty.New().SetTimeout(5 * time.Second),
		maxRetries:   3,
		retryBackoff: 2 * time.Second,
		timeout:      10 * time.Second,
	}
	go p.processRetries()
	log.Info().
		Int("maxRetries", p.maxRetries).
		Dur("timeout", p.timeout).
		Bool("webhook", webhookURL != "").
		Bool("queue", queue != nil).
		Msg("Realtime publisher initialized")
	return p, nil
}

// Publish fans one event out to every channel in the background.
func (p *Publisher) Publish(eventType string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	p.mu.Lock()
	p.seq++
	event := &DeliveryEvent{
		ID:        fmt.Sprintf("%s_%d_%d", eventType, time.Now().UnixNano(), p.seq),
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
		Status:    DeliveryPending,
	}
	p.pending[event.ID] = event
	p.mu.Unlock()

	go p.processDelivery(event)
}

func (p *Publisher) processDelivery(event *DeliveryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	// Hub broadcast cannot fail; it only drops stalled clients.
	p.hub.Broadcast(event.Payload)

	var wg sync.WaitGroup
	results := make(chan DeliveryResult, 2)

	if p.webhookURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- p.deliverToWebhook(ctx, event)
		}()
	}
	if p.queue != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- p.deliverToQueue(event)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	allSuccess := true
	var lastError string
	for result := range results {
		if !result.Success {
			allSuccess = false
			lastError = result.Error
		}
		log.Debug().
			Str("eventID", event.ID).
			Str("channel", result.Channel).
			Bool("success", result.Success).
			Int64("durationMs", result.Duration).
			Msg("Channel delivery result")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if allSuccess {
		event.Status = DeliveryDelivered
		delete(p.pending, event.ID)
		return
	}
	event.AttemptCount++
	event.LastError = lastError
	if event.AttemptCount >= p.maxRetries {
		event.Status = DeliveryFailed
		delete(p.pending, event.ID)
		log.Error().
			Str("eventID", event.ID).
			Int("attemptCount", event.AttemptCount).
			Str("lastError", lastError).
			Msg("Event delivery failed permanently")
		return
	}
	log.Warn().
		Str("eventID", event.ID).
		Int("attemptCount", event.AttemptCount).
		Msg("Event delivery partially failed, will retry")
}

func (p *Publisher) deliverToWebhook(ctx context.Context, event *DeliveryEvent) DeliveryResult {
	start := time.Now()
	result := DeliveryResult{Channel: "webhook"}

	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event.Payload).
		Post(p.webhookURL)
	result.Duration = time.Since(start).Milliseconds()

	if err != nil {
		result.Error = err.Error()
		log.Error().Err(err).Str("eventID", event.ID).Msg("Webhook delivery failed")
		return result
	}
	if resp.IsError() {
		result.Error = fmt.Sprintf("webhook returned %d", resp.StatusCode())
		return result
	}
	result.Success = true
	return result
}

func (p *Publisher) deliverToQueue(event *DeliveryEvent) DeliveryResult {
	start := time.Now()
	result := DeliveryResult{Channel: "rabbitmq"}

	err := p.queue.Publish(event.Payload)
	result.Duration = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		log.Error().Err(err).Str("eventID", event.ID).Msg("Queue delivery failed")
		return result
	}
	result.Success = true
	return result
}

func (p *Publisher) processRetries() {
	ticker := time.NewTicker(p.retryBackoff)
	defer ticker.Stop()
	for range ticker.C {
		p.retryPending()
	}
}

func (p *Publisher) retryPending() {
	p.mu.RLock()
	toRetry := make([]*DeliveryEvent, 0)
	for _, event := range p.pending {
		if event.Status == DeliveryPending &&
			event.AttemptCount > 0 &&
			event.AttemptCount < p.maxRetries &&
			time.Since(event.CreatedAt) > p.retryBackoff {
			toRetry = append(toRetry, event)
		}
	}
	p.mu.RUnlock()

	for _, event := range toRetry {
		log.Info().
			Str("eventID", event.ID).
			Int("attemptCount", event.AttemptCount).
			Msg("Retrying event delivery")
		go p.processDelivery(event)
	}
}

// PendingCount reports events still awaiting full delivery.
func (p *Publisher) PendingCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pending)
}

// EventStatus looks up an in-flight event by ID.
func (p *Publisher) EventStatus(id string) (*DeliveryEvent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	event, ok := p.pending[id]
	return event, ok
}

// RetryEvent re-attempts one pending event, resetting its attempt budget.
func (p *Publisher) RetryEvent(id string) bool {
	p.mu.Lock()
	event, ok := p.pending[id]
	if ok {
		event.AttemptCount = 0
		event.Status = DeliveryPending
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	go p.processDelivery(event)
	return true
}

// RetryNow re-attempts every pending event immediately.
func (p *Publisher) RetryNow() int {
	p.mu.RLock()
	toRetry := make([]*DeliveryEvent, 0, len(p.pending))
	for _, event := range p.pending {
		toRetry = append(toRetry, event)
	}
	p.mu.RUnlock()
	for _, event := range toRetry {
		go p.processDelivery(event)
	}
	return len(toRetry)
}
