package trace

import "github.com/ceyewan/harvest/xerrors"

const (
	BatcherBatch  = "batch"
	BatcherSimple = "simple"

	defaultEndpoint = "localhost:4317"
)

// Config 链路追踪配置
//
//	trace:
//	  enabled: true
//	  endpoint: localhost:4317
//	  sampler: 0.2
//	  batcher: batch
//	  insecure: true
//
// ServiceName、Version、Environment 未配置时由 app 按 app 段填充。
type Config struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Version     string  `mapstructure:"version"`
	Environment string  `mapstructure:"environment"`
	Endpoint    string  `mapstructure:"endpoint"`
	Sampler     float64 `mapstructure:"sampler"`
	Batcher     string  `mapstructure:"batcher"`
	Insecure    bool    `mapstructure:"insecure"`
}

// DefaultConfig 返回指向本地 OTLP collector 的配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Endpoint:    defaultEndpoint,
		Sampler:     1.0,
		Batcher:     BatcherBatch,
		Insecure:    true,
	}
}

func (c *Config) setDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.Batcher == "" {
		c.Batcher = BatcherBatch
	}
}

func (c *Config) validate() error {
	if c.ServiceName == "" {
		return xerrors.Config("trace: service_name is required")
	}
	if c.Sampler < 0 || c.Sampler > 1 {
		return xerrors.Config("trace: sampler must be between 0 and 1, got %v", c.Sampler)
	}
	if c.Batcher != BatcherBatch && c.Batcher != BatcherSimple {
		return xerrors.Config("trace: batcher must be %q or %q, got %q", BatcherBatch, BatcherSimple, c.Batcher)
	}
	return nil
}
