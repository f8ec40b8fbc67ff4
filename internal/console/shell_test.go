package console_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/internal/apitest"
	"github.com/acme/catalog-console/internal/client"
	"github.com/acme/catalog-console/internal/console"
	"github.com/acme/catalog-console/internal/realtime"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
)

var _ = Describe("Shell", func() {
	var (
		ctx    context.Context
		server *apitest.Server
		api    *client.Client
	)

	BeforeEach(func() {
		ctx = context.TODO()
		server = apitest.NewServer(
			apitest.WithAutoRun(),
			apitest.WithProducts(seedProducts(3)...),
			apitest.WithWebhooks(v1.Webhook{Url: "http://hooks.example.com/one", EventType: "product_update", Enabled: true}),
		)
		var err error
		api, err = client.New(server.URL)
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		server.Close()
	})

	It("runs a scripted session", func() {
		script := strings.Join([]string{
			"help",
			"products",
			"filter sku sku-02",
			"filter active maybe",
			"webhook add http://hooks.example.com/two",
			"webhook test 1",
			"delete 1",
			"no",
			"bogus",
			"quit",
			"products",
		}, "\n") + "\n"
		out := gbytes.NewBuffer()
		rt := newFakeRealtime()

		sh := console.NewShell(api, rt, strings.NewReader(script), out)
		Expect(sh.Run(ctx)).To(Succeed())

		Expect(out).To(gbytes.Say(`upload <path>`))
		Expect(out).To(gbytes.Say(`Page 1 of 1`))
		Expect(out).To(gbytes.Say(`sku-02`))
		Expect(out).To(gbytes.Say(`active must be true, false or all`))
		Expect(out).To(gbytes.Say(`hooks.example.com/two`))
		Expect(out).To(gbytes.Say(`Test OK \(Status: 200\)`))
		Expect(out).To(gbytes.Say(`Are you sure you want to delete this product\? \[y/N\]: `))
		Expect(out).To(gbytes.Say(`Cancelled.`))
		Expect(out).To(gbytes.Say(`unknown command "bogus"`))

		Expect(server.Products()).To(HaveLen(3))
		Expect(sh.Products.Snapshot().Filter.Sku).To(Equal("sku-02"))
		// handlers are removed when the shell exits
		Expect(rt.Handlers()).To(BeZero())
	})

	It("prints realtime updates as they arrive", func() {
		in, w := io.Pipe()
		out := gbytes.NewBuffer()
		rt := newFakeRealtime()
		sh := console.NewShell(api, rt, in, out)

		done := make(chan error, 1)
		go func() { done <- sh.Run(ctx) }()
		Eventually(out).Should(gbytes.Say(`Type 'help'`))

		rt.Progress(realtime.ProgressUpdate{Status: "Importing...", Progress: 30})
		Eventually(out).Should(gbytes.Say(`\[job\] Importing... 30%`))
		rt.Failed(realtime.TaskFailed{Error: "boom"})
		Eventually(out).Should(gbytes.Say(`\[job\] Error: boom`))

		_, err := w.Write([]byte("quit\n"))
		Expect(err).To(BeNil())
		Eventually(done).Should(Receive(BeNil()))
	})

	It("follows an import end to end over the realtime channel", func() {
		rt, err := realtime.Dial(ctx, server.URL)
		Expect(err).To(BeNil())
		defer rt.Close()

		path := filepath.Join(GinkgoT().TempDir(), "products.csv")
		Expect(os.WriteFile(path, []byte("SKU,Name,Description\nnew-1,New one,First\nnew-2,New two,\n"), 0600)).To(Succeed())

		in, w := io.Pipe()
		out := gbytes.NewBuffer()
		sh := console.NewShell(api, rt, in, out, console.WithPanelOptions(console.WithPerPage(10)))

		done := make(chan error, 1)
		go func() { done <- sh.Run(ctx) }()

		_, err = w.Write([]byte("upload " + path + "\n"))
		Expect(err).To(BeNil())
		Eventually(out, 5*time.Second).Should(gbytes.Say(`\[job\] Import successful! 2 records processed.`))
		Eventually(func() int { return sh.Products.Snapshot().Total }, 5*time.Second).Should(Equal(5))
		Expect(sh.Upload.Snapshot().JobID).To(BeEmpty())

		_, err = w.Write([]byte("delete-all\ny\n"))
		Expect(err).To(BeNil())
		Eventually(out, 5*time.Second).Should(gbytes.Say(`\[job\] Successfully deleted 5 products.`))
		Eventually(func() string { return sh.Products.Snapshot().DeleteStatus }, 5*time.Second).Should(Equal("Successfully deleted 5 products."))
		Eventually(func() int { return sh.Products.Snapshot().Total }, 5*time.Second).Should(BeZero())

		Expect(w.Close()).To(Succeed())
		Eventually(done).Should(Receive(BeNil()))
	})

	It("stops waiting for input when the context is done", func() {
		in, w := io.Pipe()
		defer w.Close()
		out := gbytes.NewBuffer()
		rt := newFakeRealtime()
		sh := console.NewShell(api, rt, in, out)

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- sh.Run(runCtx) }()
		Eventually(out).Should(gbytes.Say(`> `))

		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
		Expect(rt.Handlers()).To(BeZero())
	})

	It("refreshes the product page in the background", func() {
		in, w := io.Pipe()
		sh := console.NewShell(api, newFakeRealtime(), in, gbytes.NewBuffer(), console.WithRefreshInterval(50*time.Millisecond))

		done := make(chan error, 1)
		go func() { done <- sh.Run(ctx) }()
		Eventually(func() int { return sh.Products.Snapshot().Total }).Should(Equal(3))

		_, err := api.CreateProduct(ctx, v1.ProductCreate{Sku: "late", Name: "Late"})
		Expect(err).To(BeNil())
		Eventually(func() int { return sh.Products.Snapshot().Total }, 2*time.Second).Should(Equal(4))

		Expect(w.Close()).To(Succeed())
		Eventually(done).Should(Receive(BeNil()))
	})
})
