package client_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/acme/catalog-console/internal/client"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("client config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("round trips through the config file", func() {
		path := filepath.Join(dir, "nested", "client.yaml")
		Expect(client.WriteConfig(path, client.Service{Server: "http://catalog.example.com:5000"})).To(Succeed())

		cfg, err := client.ParseConfigFile(path)
		Expect(err).To(BeNil())
		Expect(cfg.Service.Server).To(Equal("http://catalog.example.com:5000"))
		Expect(cfg.Service.Timeout.Duration).To(BeZero())
	})

	It("reads the timeout as a duration string", func() {
		path := filepath.Join(dir, "client.yaml")
		content := "service:\n  server: https://catalog.example.com\n  timeout: 5s\n"
		Expect(os.WriteFile(path, []byte(content), 0600)).To(Succeed())

		cfg, err := client.ParseConfigFile(path)
		Expect(err).To(BeNil())
		Expect(cfg.Service.Timeout.Duration).To(Equal(5 * time.Second))
	})

	It("aggregates validation errors", func() {
		cfg := client.NewDefault()
		cfg.Service = client.Service{Server: "ftp://", Timeout: client.Duration{Duration: -time.Second}}

		err := cfg.Validate()
		Expect(err).NotTo(BeNil())
		Expect(err.Error()).To(ContainSubstring("no hostname"))
		Expect(err.Error()).To(ContainSubstring("scheme must be http or https"))
		Expect(err.Error()).To(ContainSubstring("timeout must not be negative"))
	})

	It("refuses to write an invalid config", func() {
		path := filepath.Join(dir, "client.yaml")
		err := client.WriteConfig(path, client.Service{Server: "ftp://catalog.example.com"})
		Expect(err).To(MatchError(ContainSubstring("scheme must be http or https")))
		_, err = os.Stat(path)
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("requires a server", func() {
		err := client.NewDefault().Validate()
		Expect(err).To(MatchError(ContainSubstring("no server found")))
	})

	It("compares and copies configs", func() {
		cfg := client.NewDefault()
		cfg.Service.Server = "http://localhost:5000"
		cp := cfg.DeepCopy()
		Expect(cp.Equal(cfg)).To(BeTrue())

		cp.Service.Server = "http://localhost:5001"
		Expect(cp.Equal(cfg)).To(BeFalse())
	})

	It("builds a client from config with the configured timeout", func() {
		cfg := client.NewDefault()
		cfg.Service = client.Service{Server: "http://localhost:5000", Timeout: client.Duration{Duration: 3 * time.Second}}

		hc, err := client.NewHTTPClientFromConfig(cfg)
		Expect(err).To(BeNil())
		Expect(hc.Timeout).To(Equal(3 * time.Second))

		// registering twice reuses the collectors
		_, err = client.NewHTTPClientFromConfig(cfg)
		Expect(err).To(BeNil())

		c, err := client.NewFromConfig(cfg)
		Expect(err).To(BeNil())
		Expect(c.Server()).To(Equal("http://localhost:5000"))
	})
})
