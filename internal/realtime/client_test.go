package realtime_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/acme/catalog-console/internal/apitest"
	"github.com/acme/catalog-console/internal/client"
	"github.com/acme/catalog-console/internal/realtime"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		server *apitest.Server
	)

	AfterEach(func() {
		server.Close()
	})

	dial := func() *realtime.Client {
		c, err := realtime.Dial(ctx, server.URL, realtime.WithHandshakeTimeout(2*time.Second))
		Expect(err).To(BeNil())
		return c
	}

	Context("connected", func() {
		var c *realtime.Client

		BeforeEach(func() {
			ctx = context.TODO()
			server = apitest.NewServer()
			c = dial()
		})

		AfterEach(func() {
			Expect(c.Close()).To(Succeed())
		})

		It("gets a session id", func() {
			Expect(c.Sid()).NotTo(BeEmpty())
			Expect(server.Sockets()).To(Equal(1))
		})

		It("joins a room and receives its events in order", func() {
			rec := &recorder{}
			c.OnProgress(func(p realtime.ProgressUpdate) { rec.add(p.Status) })
			c.OnComplete(func(p realtime.TaskComplete) { rec.add(p.Status) })

			Expect(c.JoinRoom(ctx, "job-1")).To(Succeed())
			Expect(server.WaitForJoin("job-1", 2*time.Second)).To(BeTrue())

			server.Emit("job-1", realtime.EventProgressUpdate, realtime.ProgressUpdate{Status: "Parsing CSV...", Progress: 0})
			server.Emit("job-1", realtime.EventProgressUpdate, realtime.ProgressUpdate{Status: "Importing...", Progress: 50})
			server.Emit("job-1", realtime.EventTaskComplete, realtime.TaskComplete{Status: "Import successful! 2 records processed."})

			Eventually(rec.get, 2*time.Second).Should(Equal([]string{
				"Parsing CSV...",
				"Importing...",
				"Import successful! 2 records processed.",
			}))
		})

		It("does not receive events of rooms it did not join", func() {
			rec := &recorder{}
			c.OnFailed(func(p realtime.TaskFailed) { rec.add(p.Error) })

			Expect(c.JoinRoom(ctx, "mine")).To(Succeed())
			Expect(server.WaitForJoin("mine", 2*time.Second)).To(BeTrue())

			server.Emit("other", realtime.EventTaskFailed, realtime.TaskFailed{Error: "not mine"})
			server.Emit("mine", realtime.EventTaskFailed, realtime.TaskFailed{Error: "boom"})

			Eventually(rec.get, 2*time.Second).Should(Equal([]string{"boom"}))
			Consistently(rec.get, 200*time.Millisecond).Should(Equal([]string{"boom"}))
		})

		It("stops delivering to a handler once it is removed", func() {
			rec := &recorder{}
			off := c.OnComplete(func(p realtime.TaskComplete) { rec.add("first:" + p.Status) })
			c.OnComplete(func(p realtime.TaskComplete) { rec.add("second:" + p.Status) })
			Expect(c.Handlers(realtime.EventTaskComplete)).To(Equal(2))

			off()
			off()
			Expect(c.Handlers(realtime.EventTaskComplete)).To(Equal(1))

			Expect(c.JoinRoom(ctx, "job-2")).To(Succeed())
			Expect(server.WaitForJoin("job-2", 2*time.Second)).To(BeTrue())
			server.Emit("job-2", realtime.EventTaskComplete, realtime.TaskComplete{Status: "ok"})

			Eventually(rec.get, 2*time.Second).Should(Equal([]string{"second:ok"}))
		})

		It("runs handlers in registration order", func() {
			rec := &recorder{}
			for _, name := range []string{"a", "b", "c"} {
				c.On(realtime.EventTaskComplete, func(realtime.Event) { rec.add(name) })
			}

			Expect(c.JoinRoom(ctx, "job-3")).To(Succeed())
			Expect(server.WaitForJoin("job-3", 2*time.Second)).To(BeTrue())
			server.Emit("job-3", realtime.EventTaskComplete, realtime.TaskComplete{Status: "ok"})

			Eventually(rec.get, 2*time.Second).Should(Equal([]string{"a", "b", "c"}))
		})

		It("refuses to join without a job id", func() {
			Expect(c.JoinRoom(ctx, "")).NotTo(Succeed())
		})

		It("reports a server side disconnect", func() {
			server.Disconnect()

			Eventually(c.Done(), 2*time.Second).Should(BeClosed())
			Expect(c.Err()).NotTo(BeNil())
			Expect(c.Emit(ctx, "anything")).To(MatchError(realtime.ErrClosed))
		})
	})

	Context("heartbeat", func() {
		BeforeEach(func() {
			ctx = context.TODO()
		})

		It("answers server pings", func() {
			server = apitest.NewServer(apitest.WithPingInterval(50 * time.Millisecond))
			c := dial()
			defer c.Close()

			Eventually(server.Pongs, 2*time.Second).Should(BeNumerically(">=", 2))
			Expect(c.Err()).To(BeNil())
		})

		It("gives up when the server stops pinging", func() {
			server = apitest.NewServer(apitest.WithPingInterval(50*time.Millisecond), apitest.WithoutPings())
			c := dial()
			defer c.Close()

			Eventually(c.Done(), 2*time.Second).Should(BeClosed())
			Expect(errors.Is(c.Err(), realtime.ErrHeartbeatTimeout)).To(BeTrue())
		})
	})

	Context("jobs", func() {
		It("follows a bulk delete from join to completion", func() {
			ctx = context.TODO()
			server = apitest.NewServer(apitest.WithAutoRun())
			c := dial()
			defer c.Close()

			done := make(chan realtime.TaskComplete, 1)
			c.OnComplete(func(p realtime.TaskComplete) { done <- p })

			api, err := client.New(server.URL)
			Expect(err).To(BeNil())
			job, err := api.DeleteAllProducts(ctx)
			Expect(err).To(BeNil())
			Expect(c.JoinRoom(ctx, job.JobId)).To(Succeed())

			var got realtime.TaskComplete
			Eventually(done, 2*time.Second).Should(Receive(&got))
			Expect(got.Status).To(Equal("Successfully deleted 0 products."))
		})
	})

	It("fails to dial a server without a socket endpoint", func() {
		ctx = context.TODO()
		server = apitest.NewServer()
		_, err := realtime.Dial(ctx, server.URL, realtime.WithPath("/nope/"))
		Expect(err).NotTo(BeNil())
	})

	It("rejects unsupported schemes", func() {
		ctx = context.TODO()
		server = apitest.NewServer()
		_, err := realtime.Dial(ctx, "ftp://localhost")
		Expect(err).To(MatchError(ContainSubstring("unsupported scheme")))
	})
})
