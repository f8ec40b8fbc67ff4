package console

import (
	"context"
	"fmt"
	"strings"
	"sync"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/internal/validator"
	"go.uber.org/zap"
)

// WebhookState is a snapshot of the webhook panel. TestResults holds the
// outcome of the last test per webhook id.
type WebhookState struct {
	Webhooks    []v1.Webhook
	TestResults map[int64]string
}

type WebhookPanel struct {
	api       API
	opts      options
	validator *validator.Validator

	mu    sync.Mutex
	state WebhookState
}

func NewWebhookPanel(api API, opts ...Option) *WebhookPanel {
	return &WebhookPanel{
		api:       api,
		opts:      newOptions(opts),
		validator: validator.Default(),
		state:     WebhookState{TestResults: map[int64]string{}},
	}
}

func (p *WebhookPanel) Snapshot() WebhookState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := WebhookState{
		Webhooks:    append([]v1.Webhook(nil), p.state.Webhooks...),
		TestResults: make(map[int64]string, len(p.state.TestResults)),
	}
	for id, r := range p.state.TestResults {
		s.TestResults[id] = r
	}
	return s
}

func (p *WebhookPanel) update(fn func(s *WebhookState)) {
	p.mu.Lock()
	fn(&p.state)
	p.mu.Unlock()
	p.opts.onChange()
}

// Refresh reloads the webhook list. On error the list is left unchanged.
func (p *WebhookPanel) Refresh(ctx context.Context) error {
	hooks, err := p.api.ListWebhooks(ctx)
	if err != nil {
		zap.S().Named("webhook_panel").Errorw("error fetching webhooks", "error", err)
		return err
	}
	p.update(func(s *WebhookState) {
		s.Webhooks = hooks
	})
	return nil
}

// Add subscribes url and reloads the list. An empty or malformed url is
// rejected without calling the API.
func (p *WebhookPanel) Add(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return ErrURLRequired
	}
	body := v1.WebhookCreate{Url: url}
	if err := p.validator.Struct(body); err != nil {
		return err
	}
	if _, err := p.api.CreateWebhook(ctx, body); err != nil {
		zap.S().Named("webhook_panel").Errorw("error adding webhook", "url", url, "error", err)
		return err
	}
	return p.Refresh(ctx)
}

// Update changes a webhook and reloads the list. Nil fields are left as they
// are.
func (p *WebhookPanel) Update(ctx context.Context, id int64, body v1.WebhookUpdate) error {
	if err := p.validator.Struct(body); err != nil {
		return err
	}
	if _, err := p.api.UpdateWebhook(ctx, id, body); err != nil {
		zap.S().Named("webhook_panel").Errorw("error updating webhook", "id", id, "error", err)
		return err
	}
	return p.Refresh(ctx)
}

func (p *WebhookPanel) Delete(ctx context.Context, id int64) error {
	if err := p.api.DeleteWebhook(ctx, id); err != nil {
		zap.S().Named("webhook_panel").Errorw("error deleting webhook", "id", id, "error", err)
		return err
	}
	return p.Refresh(ctx)
}

// Test asks the server to simulate a delivery and returns the result text,
// which is also kept in TestResults.
func (p *WebhookPanel) Test(ctx context.Context, id int64) (string, error) {
	p.update(func(s *WebhookState) {
		s.TestResults[id] = MsgTesting
	})

	res, err := p.api.TestWebhook(ctx, id)
	result := MsgTestFailed
	if err == nil {
		result = fmt.Sprintf("Test OK (Status: %d)", res.DummyResponse.Status)
	} else {
		zap.S().Named("webhook_panel").Warnw("webhook test failed", "id", id, "error", err)
	}
	p.update(func(s *WebhookState) {
		s.TestResults[id] = result
	})
	return result, err
}
