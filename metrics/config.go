package metrics

// Config 指标配置
//
//	metrics:
//	  enabled: true
//	  service_name: "harvest"
//	  version: "v0.3.0"
//	  port: 0         # >0 时额外启动独立的 Prometheus 服务；通常由 Admin API 暴露 /metrics
//	  path: "/metrics"
type Config struct {
	// Enabled 为 false 时 New 返回 Discard()
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	Port        int    `mapstructure:"port"`
	Path        string `mapstructure:"path"`
}
