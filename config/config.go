// Package config resolves proxy settings from defaults, the environment and flags, in that order.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
)

type Config struct {
	Listen          string        `env:"PROXY_LISTEN" envDefault:"0.0.0.0:3000"`
	BackendHost     string        `env:"ELECTRUMX_HOST" envDefault:"127.0.0.1"`
	BackendPort     int           `env:"ELECTRUMX_PORT" envDefault:"50001"`
	DialTimeout     time.Duration `env:"ELECTRUMX_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout     time.Duration `env:"ELECTRUMX_READ_TIMEOUT" envDefault:"5s"`
	RefreshSchedule string        `env:"ELECTRUMX_REFRESH_SCHEDULE"`
	Debug           bool          `env:"PROXY_DEBUG"`
	LogFile         string        `env:"PROXY_LOG_FILE"`
}

// Load parses args (without the program name). A --help request returns pflag.ErrHelp.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	flags := pflag.NewFlagSet("electrumx-proxy", pflag.ContinueOnError)
	flags.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	flags.StringVar(&cfg.BackendHost, "backend-host", cfg.BackendHost, "ElectrumX host")
	flags.IntVar(&cfg.BackendPort, "backend-port", cfg.BackendPort, "ElectrumX TCP port")
	flags.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "timeout for connecting to ElectrumX")
	flags.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "timeout for each read of an ElectrumX response")
	flags.StringVar(&cfg.RefreshSchedule, "refresh-schedule", cfg.RefreshSchedule, "cron expression for recycling the ElectrumX connection (empty disables)")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "log every proxied call")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "also write JSON logs to this rotated file")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.BackendHost == "" {
		return fmt.Errorf("backend host is empty")
	}
	if c.BackendPort < 1 || c.BackendPort > 65535 {
		return fmt.Errorf("backend port %d out of range", c.BackendPort)
	}
	if c.DialTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive (dial %s, read %s)", c.DialTimeout, c.ReadTimeout)
	}
	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			return fmt.Errorf("refresh schedule %q: %w", c.RefreshSchedule, err)
		}
	}
	return nil
}

func (c *Config) BackendAddress() string {
	return net.JoinHostPort(c.BackendHost, strconv.Itoa(c.BackendPort))
}
