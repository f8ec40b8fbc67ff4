package console_test

import (
	"context"
	"errors"
	"net/http"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/internal/apitest"
	"github.com/acme/catalog-console/internal/client"
	"github.com/acme/catalog-console/internal/console"
	"github.com/acme/catalog-console/internal/validator"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WebhookPanel", func() {
	var (
		ctx    context.Context
		server *apitest.Server
		panel  *console.WebhookPanel
	)

	BeforeEach(func() {
		ctx = context.TODO()
		server = apitest.NewServer(apitest.WithWebhooks(
			v1.Webhook{Url: "http://hooks.example.com/one", EventType: "product_update", Enabled: true},
		))
		api, err := client.New(server.URL)
		Expect(err).To(BeNil())
		panel = console.NewWebhookPanel(api)
		Expect(panel.Refresh(ctx)).To(Succeed())
		server.ResetRequests()
	})

	AfterEach(func() {
		server.Close()
	})

	It("lists webhooks", func() {
		hooks := panel.Snapshot().Webhooks
		Expect(hooks).To(HaveLen(1))
		Expect(hooks[0].Url).To(Equal("http://hooks.example.com/one"))
	})

	Context("add", func() {
		It("creates the webhook and reloads the list", func() {
			Expect(panel.Add(ctx, "https://hooks.example.com/two")).To(Succeed())
			Expect(panel.Snapshot().Webhooks).To(HaveLen(2))

			reqs := server.Requests()
			Expect(reqs).To(HaveLen(2))
			Expect(reqs[0].Method).To(Equal(http.MethodPost))
			Expect(reqs[1].Method).To(Equal(http.MethodGet))
		})

		It("requires a url and makes no call without one", func() {
			err := panel.Add(ctx, "  ")
			Expect(errors.Is(err, console.ErrURLRequired)).To(BeTrue())
			Expect(server.Requests()).To(BeEmpty())
		})

		It("rejects a malformed url before calling the API", func() {
			err := panel.Add(ctx, "not a url")
			var invalid *validator.ErrInvalidInput
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(server.Requests()).To(BeEmpty())
		})

		It("does not reload when the API refuses", func() {
			server.Fail(http.MethodPost, "/api/webhooks", http.StatusBadRequest, "URL is required")
			Expect(panel.Add(ctx, "https://hooks.example.com/two")).NotTo(Succeed())
			Expect(server.Requests()).To(HaveLen(1))
		})
	})

	It("deletes and reloads", func() {
		id := panel.Snapshot().Webhooks[0].Id
		Expect(panel.Delete(ctx, id)).To(Succeed())
		Expect(panel.Snapshot().Webhooks).To(BeEmpty())
	})

	It("updates and reloads", func() {
		id := panel.Snapshot().Webhooks[0].Id
		enabled := false
		Expect(panel.Update(ctx, id, v1.WebhookUpdate{Enabled: &enabled})).To(Succeed())
		Expect(panel.Snapshot().Webhooks[0].Enabled).To(BeFalse())
	})

	It("rejects an invalid event type on update", func() {
		eventType := "Product Update"
		err := panel.Update(ctx, 1, v1.WebhookUpdate{EventType: &eventType})
		Expect(err).To(MatchError(ContainSubstring("eventtype")))
		Expect(server.Requests()).To(BeEmpty())
	})

	Context("test", func() {
		It("shows the simulated status", func() {
			id := panel.Snapshot().Webhooks[0].Id
			result, err := panel.Test(ctx, id)
			Expect(err).To(BeNil())
			Expect(result).To(Equal("Test OK (Status: 200)"))
			Expect(panel.Snapshot().TestResults).To(HaveKeyWithValue(id, "Test OK (Status: 200)"))
		})

		It("overwrites the previous result", func() {
			id := panel.Snapshot().Webhooks[0].Id
			_, err := panel.Test(ctx, id)
			Expect(err).To(BeNil())

			server.Fail(http.MethodPost, "/api/webhooks/test/1", http.StatusInternalServerError, "boom")
			result, err := panel.Test(ctx, id)
			Expect(err).NotTo(BeNil())
			Expect(result).To(Equal("Test Failed"))
			Expect(panel.Snapshot().TestResults).To(HaveKeyWithValue(id, "Test Failed"))
		})

		It("marks the webhook as testing while the call runs", func() {
			var seen []string
			api, err := client.New(server.URL)
			Expect(err).To(BeNil())
			var p *console.WebhookPanel
			p = console.NewWebhookPanel(api, console.WithOnChange(func() {
				seen = append(seen, p.Snapshot().TestResults[1])
			}))

			_, err = p.Test(ctx, 1)
			Expect(err).To(BeNil())
			Expect(seen).To(Equal([]string{"Testing...", "Test OK (Status: 200)"}))
		})
	})
})
