package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/acme/catalog-console/internal/client"
	"github.com/acme/catalog-console/internal/config"
	"github.com/acme/catalog-console/pkg/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	defaultServerUrl = "http://localhost:5000"
	timeoutEnvKey    = "CATALOG_HTTP_TIMEOUT"
)

type GlobalOptions struct {
	ServerUrl      string
	ConfigFilePath string
	EnvFilePath    string
	LogLevel       string
	Strict         bool
	Timeout        time.Duration

	out  io.Writer
	conf *config.Config
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ServerUrl:      defaultServerUrl,
		ConfigFilePath: client.DefaultClientConfigPath(),
		EnvFilePath:    config.DefaultEnvFile,
		LogLevel:       "warn",
		Timeout:        client.DefaultTimeout,
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, "Address of the catalog API server")
	fs.StringVar(&o.ConfigFilePath, "config", o.ConfigFilePath, "Path to the client configuration file")
	fs.StringVar(&o.EnvFilePath, "env-file", o.EnvFilePath, "Dotenv file loaded before the environment is read")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level (debug, info, warn, error)")
	fs.BoolVar(&o.Strict, "strict", o.Strict, "Validate every response against the API contract")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Timeout of each API call")
}

// Complete resolves every global setting. A flag set on the command line
// wins over the environment, which wins over the client file, which wins over
// the defaults.
func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	o.out = cmd.OutOrStdout()

	conf, err := config.New(o.EnvFilePath)
	if err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	o.conf = conf

	flags := cmd.Flags()
	if !flags.Changed("log-level") {
		o.LogLevel = conf.Console.LogLevel
	}
	zap.ReplaceGlobals(log.InitLog(log.ParseLevel(o.LogLevel)))

	if !flags.Changed("strict") {
		o.Strict = o.Strict || conf.Service.Strict
	}

	var fileConf *client.Config
	if !flags.Changed("server-url") || !flags.Changed("timeout") {
		fileConf, err = readClientConfig(o.ConfigFilePath)
		if err != nil {
			return err
		}
	}

	if !flags.Changed("server-url") {
		switch {
		case conf.Service.BaseUrl != "":
			o.ServerUrl = conf.Service.BaseUrl
		case fileConf != nil:
			o.ServerUrl = fileConf.Service.Server
		}
	}

	if !flags.Changed("timeout") {
		_, fromEnv := os.LookupEnv(timeoutEnvKey)
		switch {
		case fromEnv:
			o.Timeout = conf.Service.HTTPTimeout
		case fileConf != nil && fileConf.Service.Timeout.Duration > 0:
			o.Timeout = fileConf.Service.Timeout.Duration
		}
	}

	zap.S().Named("cli").Debugw("resolved options", "server", o.ServerUrl, "timeout", o.Timeout, "strict", o.Strict)
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return o.clientConfig().Validate()
}

// Client returns an API client for the resolved server. In strict mode every
// response is checked against the API contract.
func (o *GlobalOptions) Client() (*client.Client, error) {
	var opts []client.Option
	if o.Strict {
		v, err := client.NewContractValidator(o.ServerUrl)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithContractValidation(v))
	}
	return client.NewFromConfig(o.clientConfig(), opts...)
}

// PerPage is the page size configured for product listings.
func (o *GlobalOptions) PerPage() int {
	if o.conf == nil {
		return 20
	}
	return o.conf.Console.PerPage
}

func (o *GlobalOptions) clientConfig() *client.Config {
	c := client.NewDefault()
	c.Service = client.Service{
		Server:  o.ServerUrl,
		Timeout: client.Duration{Duration: o.Timeout},
	}
	return c
}

func (o *GlobalOptions) writer() io.Writer {
	if o.out == nil {
		return os.Stdout
	}
	return o.out
}

func (o *GlobalOptions) printf(format string, args ...any) {
	fmt.Fprintf(o.writer(), format, args...)
}

func readClientConfig(path string) (*client.Config, error) {
	if path == "" {
		return nil, nil
	}
	c, err := client.ParseConfigFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading client config %s: %w", path, err)
	}
	return c, nil
}
