package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPListen         = ":8080"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultIngestPath         = "/ingest"
	defaultMetricsPath        = "/metrics"
	defaultNATSSubject        = "checkengine.raw"
	defaultNATSIngestStream   = "CHECKENGINE_RAW"
	defaultNATSIngestConsumer = "checkengine-ingest"
	defaultNATSIngestGroup    = "checkengine-workers"
	defaultNATSIngestWorkers  = 1
	defaultNATSAckWaitSec     = 30
	defaultNATSNackDelayMS    = 1000
	defaultNATSMaxDeliver     = -1
	defaultNATSMaxAckPending  = 2048
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultValueStoreBucket   = "checkengine_valuestore"
	defaultPredictionBucket   = "checkengine_predictions"
	defaultResultSubject      = "checkengine.results"
	defaultResultStream       = "CHECKENGINE_RESULTS"
	defaultAMQPQueue          = "checkengine.raw"
	defaultAMQPConsumerTag    = "checkengine"
	defaultAMQPPrefetch       = 32
	defaultCheckSeconds       = 60
	defaultCheckTimeout       = 50
	defaultCheckWorkers       = 4
	defaultHistoryDays        = 400
	defaultHistorySamples     = 20000
	defaultMetricsNamespace   = "checkengine"

	// ServiceModeNATS keeps NATS-backed state/ingest settings.
	ServiceModeNATS = "nats"
	// ServiceModeSingle keeps single-instance mode without NATS dependencies.
	ServiceModeSingle = "single"
)

// Config holds service runtime settings and the monitored host model.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service    ServiceConfig    `toml:"service"`
	Log        LogConfig        `toml:"log"`
	Ingest     IngestConfig     `toml:"ingest"`
	Submit     SubmitConfig     `toml:"submit"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Crash      CrashConfig      `toml:"crash"`
	Autochecks AutochecksConfig `toml:"autochecks"`
	Prediction PredictionConfig `toml:"prediction"`
	Host       []HostConfig     `toml:"-"`
	Cluster    []ClusterConfig  `toml:"-"`
}

// rawConfig mirrors TOML model before runtime normalization.
// Params: decoded sections from one TOML source.
// Returns: raw host and cluster maps keyed by name.
type rawConfig struct {
	Service    ServiceConfig               `toml:"service"`
	Log        LogConfig                   `toml:"log"`
	Ingest     IngestConfig                `toml:"ingest"`
	Submit     SubmitConfig                `toml:"submit"`
	Metrics    MetricsConfig               `toml:"metrics"`
	Crash      CrashConfig                 `toml:"crash"`
	Autochecks AutochecksConfig            `toml:"autochecks"`
	Prediction PredictionConfig            `toml:"prediction"`
	Host       map[string]rawHostConfig    `toml:"host"`
	Cluster    map[string]rawClusterConfig `toml:"cluster"`
}

// rawHostConfig stores one host body from `[host.<name>]` table.
// Params: host fields except key-derived name.
// Returns: intermediate host body used for normalization.
type rawHostConfig struct {
	Address      string                `toml:"address"`
	Management   string                `toml:"management"`
	OnlyFrom     []string              `toml:"only_from"`
	ServiceLevel int                   `toml:"service_level"`
	Labels       map[string]string     `toml:"labels"`
	Service      []StaticServiceConfig `toml:"service"`
}

// rawClusterConfig stores one cluster body from `[cluster.<name>]` table.
// Params: node list and clustered service rules.
// Returns: intermediate cluster body used for normalization.
type rawClusterConfig struct {
	Nodes        []string              `toml:"nodes"`
	ServiceLevel int                   `toml:"service_level"`
	Labels       map[string]string     `toml:"labels"`
	Service      []ClusterServiceRule  `toml:"service"`
	Static       []StaticServiceConfig `toml:"static_service"`
}

// ServiceConfig contains process-level settings.
// Params: name, state mode, check cycle cadence and debug switch.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name             string `toml:"name"`
	Mode             string `toml:"mode"`
	CheckIntervalSec int    `toml:"check_interval_sec"`
	CheckTimeoutSec  int    `toml:"check_timeout_sec"`
	Workers          int    `toml:"workers"`
	Debug            bool   `toml:"debug"`
}

// IngestConfig defines inbound raw-data interfaces.
// Params: embedded HTTP, NATS and AMQP controls.
// Returns: ingestion runtime options.
type IngestConfig struct {
	HTTP HTTPIngestConfig `toml:"http"`
	NATS NATSIngestConfig `toml:"nats"`
	AMQP AMQPIngestConfig `toml:"amqp"`
}

// HTTPIngestConfig configures HTTP ingest and probe endpoints.
// Params: enable flag, listen/endpoints, and optional body size limit.
// Returns: HTTP ingest behavior.
type HTTPIngestConfig struct {
	Enabled      bool   `toml:"enabled"`
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	IngestPath   string `toml:"ingest_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSIngestConfig configures JetStream queue-consumer ingestion.
// Params: connection + worker/ack/redelivery policy; stream routing keys are runtime-fixed.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"-"`
	Stream        string   `toml:"-"`
	ConsumerName  string   `toml:"-"`
	DeliverGroup  string   `toml:"-"`
	Workers       int      `toml:"workers"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// AMQPIngestConfig configures RabbitMQ queue consumption.
// Params: broker URL, queue/exchange binding and prefetch.
// Returns: AMQP ingest behavior.
type AMQPIngestConfig struct {
	Enabled     bool   `toml:"enabled"`
	URL         string `toml:"url"`
	Exchange    string `toml:"exchange"`
	RoutingKey  string `toml:"routing_key"`
	Queue       string `toml:"queue"`
	ConsumerTag string `toml:"consumer_tag"`
	Prefetch    int    `toml:"prefetch"`
}

// NATSStateConfig contains JetStream KV settings for one state bucket.
// Params: URL list, bucket name, create permission and entry TTL.
// Returns: NATS state backend options.
type NATSStateConfig struct {
	URL                []string
	Bucket             string
	AllowCreateBuckets bool
	TTLSec             int
}

// DeriveStateNATSConfig builds fixed state-backend settings from runtime config.
// Params: full runtime configuration snapshot and bucket name.
// Returns: non-user-overridable NATS state settings.
func DeriveStateNATSConfig(cfg Config, bucket string) NATSStateConfig {
	urls := normalizeNATSURLs(cfg.Ingest.NATS.URL)
	if len(urls) == 0 {
		urls = []string{defaultNATSURL}
	}
	return NATSStateConfig{
		URL:                urls,
		Bucket:             bucket,
		AllowCreateBuckets: true,
	}
}

// ValueStoreBucket is the KV bucket holding plugin value stores.
func ValueStoreBucket() string { return defaultValueStoreBucket }

// PredictionBucket is the KV bucket holding computed predictions.
func PredictionBucket() string { return defaultPredictionBucket }

// SubmitConfig selects where check results go.
// Params: log switch and NATS publisher settings.
// Returns: submission options.
type SubmitConfig struct {
	Log  bool             `toml:"log"`
	NATS SubmitNATSConfig `toml:"nats"`
}

// SubmitNATSConfig configures JetStream result publishing.
// Params: enable flag; subject/stream are runtime-fixed.
// Returns: publisher options.
type SubmitNATSConfig struct {
	Enabled bool     `toml:"enabled"`
	URL     []string `toml:"-"`
	Subject string   `toml:"-"`
	Stream  string   `toml:"-"`
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Path      string `toml:"path"`
	Namespace string `toml:"namespace"`
}

// CrashConfig sets where crash reports are written (empty keeps them in logs only).
type CrashConfig struct {
	Dir string `toml:"dir"`
}

// AutochecksConfig sets the discovered-services directory.
type AutochecksConfig struct {
	Dir string `toml:"dir"`
}

// PredictionConfig bounds the in-process metric history used for predictions.
type PredictionConfig struct {
	RetentionDays int `toml:"retention_days"`
	MaxSamples    int `toml:"max_samples"`
}

// LogConfig describes console and file sinks.
// Params: one config per sink.
// Returns: logger setup input.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig configures one log sink.
// Params: enable flag, level, format and optional file path.
// Returns: sink options.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// HostConfig describes one monitored host.
// Params: name, address, management board address, agent access list, service level, labels and static services.
// Returns: host model entry.
type HostConfig struct {
	Name         string
	Address      string
	Management   string
	OnlyFrom     []string
	ServiceLevel int
	Labels       map[string]string
	Service      []StaticServiceConfig
}

// StaticServiceConfig is one statically configured service.
// Params: plugin name, optional item, description, raw parameters and labels.
// Returns: service definition independent of discovery.
type StaticServiceConfig struct {
	Plugin      string            `toml:"plugin"`
	Item        string            `toml:"item"`
	Description string            `toml:"description"`
	Parameters  map[string]any    `toml:"parameters"`
	Labels      map[string]string `toml:"labels"`
}

// ClusterConfig describes one cluster host and its nodes.
// Params: name, node names, service level, labels, clustered service rules and static services.
// Returns: cluster model entry.
type ClusterConfig struct {
	Name         string
	Nodes        []string
	ServiceLevel int
	Labels       map[string]string
	Service      []ClusterServiceRule
	Static       []StaticServiceConfig
}

// ClusterServiceRule assigns node services to the cluster and selects aggregation.
// Params: wildcard description pattern, mode and node roles.
// Returns: clustered service rule.
type ClusterServiceRule struct {
	Pattern                    string    `toml:"pattern"`
	Mode                       string    `toml:"mode"`
	PrimaryNode                string    `toml:"primary_node"`
	PreferredNode              string    `toml:"preferred_node"`
	MetricsNode                string    `toml:"metrics_node"`
	LevelsAdditionalNodesCount []float64 `toml:"levels_additional_nodes_count"`
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes one TOML document, applies defaults and validates it.
// Params: TOML document body.
// Returns: validated config or decode/validation error.
func Parse(body []byte) (Config, error) {
	cfg, err := decode(body)
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalizeRawConfig converts raw TOML model to runtime config.
// Params: decoded raw config from file fragment.
// Returns: normalized config snapshot with hosts/clusters sorted by name.
func normalizeRawConfig(raw rawConfig) Config {
	cfg := Config{
		Service:    raw.Service,
		Log:        raw.Log,
		Ingest:     raw.Ingest,
		Submit:     raw.Submit,
		Metrics:    raw.Metrics,
		Crash:      raw.Crash,
		Autochecks: raw.Autochecks,
		Prediction: raw.Prediction,
	}

	for _, name := range sortedKeys(raw.Host) {
		body := raw.Host[name]
		cfg.Host = append(cfg.Host, HostConfig{
			Name:         name,
			Address:      body.Address,
			Management:   body.Management,
			OnlyFrom:     body.OnlyFrom,
			ServiceLevel: body.ServiceLevel,
			Labels:       body.Labels,
			Service:      body.Service,
		})
	}
	for _, name := range sortedKeys(raw.Cluster) {
		body := raw.Cluster[name]
		cfg.Cluster = append(cfg.Cluster, ClusterConfig{
			Name:         name,
			Nodes:        body.Nodes,
			ServiceLevel: body.ServiceLevel,
			Labels:       body.Labels,
			Service:      body.Service,
			Static:       body.Static,
		})
	}
	return cfg
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// decode parses one TOML body into normalized config.
// Params: TOML document body.
// Returns: decoded config or decode error.
func decode(body []byte) (Config, error) {
	var raw rawConfig
	if err := toml.Unmarshal(body, &raw); err != nil {
		return Config{}, err
	}
	return normalizeRawConfig(raw), nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := decode(body)
	if err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays source onto destination.
// Params: destination config and next fragment.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if hasIngestConfig(src.Ingest) {
		dst.Ingest = src.Ingest
	}
	if src.Submit.Log || src.Submit.NATS.Enabled {
		dst.Submit = src.Submit
	}
	if src.Metrics != (MetricsConfig{}) {
		dst.Metrics = src.Metrics
	}
	if src.Crash != (CrashConfig{}) {
		dst.Crash = src.Crash
	}
	if src.Autochecks != (AutochecksConfig{}) {
		dst.Autochecks = src.Autochecks
	}
	if src.Prediction != (PredictionConfig{}) {
		dst.Prediction = src.Prediction
	}
	dst.Host = append(dst.Host, src.Host...)
	dst.Cluster = append(dst.Cluster, src.Cluster...)
}

// applyDefaults fills zero values with runtime defaults.
// Params: config pointer.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = "checkengine"
	}
	cfg.Service.Mode = NormalizeServiceMode(cfg.Service.Mode)
	if cfg.Service.CheckIntervalSec <= 0 {
		cfg.Service.CheckIntervalSec = defaultCheckSeconds
	}
	if cfg.Service.CheckTimeoutSec <= 0 {
		cfg.Service.CheckTimeoutSec = min(defaultCheckTimeout, cfg.Service.CheckIntervalSec)
	}
	if cfg.Service.Workers <= 0 {
		cfg.Service.Workers = defaultCheckWorkers
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if strings.TrimSpace(cfg.Ingest.HTTP.Listen) == "" {
		cfg.Ingest.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.HealthPath) == "" {
		cfg.Ingest.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.ReadyPath) == "" {
		cfg.Ingest.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.IngestPath) == "" {
		cfg.Ingest.HTTP.IngestPath = defaultIngestPath
	}
	if cfg.Ingest.HTTP.MaxBodyBytes <= 0 {
		cfg.Ingest.HTTP.MaxBodyBytes = 8 << 20
	}

	if cfg.Service.Mode == ServiceModeSingle {
		// Single mode always disables NATS-dependent paths regardless of user flags.
		cfg.Ingest.NATS.Enabled = false
		cfg.Submit.NATS.Enabled = false
		if !cfg.Ingest.HTTP.Enabled && !cfg.Ingest.AMQP.Enabled {
			cfg.Ingest.HTTP.Enabled = true
		}
	} else {
		cfg.Ingest.NATS.URL = normalizeNATSURLs(cfg.Ingest.NATS.URL)
		if len(cfg.Ingest.NATS.URL) == 0 {
			cfg.Ingest.NATS.URL = []string{defaultNATSURL}
		}
		cfg.Ingest.NATS.Subject = defaultNATSSubject
		cfg.Ingest.NATS.Stream = defaultNATSIngestStream
		cfg.Ingest.NATS.ConsumerName = defaultNATSIngestConsumer
		cfg.Ingest.NATS.DeliverGroup = defaultNATSIngestGroup
		if cfg.Ingest.NATS.Workers == 0 {
			cfg.Ingest.NATS.Workers = defaultNATSIngestWorkers
		}
		if cfg.Ingest.NATS.AckWaitSec <= 0 {
			cfg.Ingest.NATS.AckWaitSec = defaultNATSAckWaitSec
		}
		if cfg.Ingest.NATS.NackDelayMS <= 0 {
			cfg.Ingest.NATS.NackDelayMS = defaultNATSNackDelayMS
		}
		if cfg.Ingest.NATS.MaxDeliver == 0 {
			cfg.Ingest.NATS.MaxDeliver = defaultNATSMaxDeliver
		}
		if cfg.Ingest.NATS.MaxAckPending <= 0 {
			cfg.Ingest.NATS.MaxAckPending = defaultNATSMaxAckPending
		}
		if !cfg.Ingest.HTTP.Enabled && !cfg.Ingest.NATS.Enabled && !cfg.Ingest.AMQP.Enabled {
			cfg.Ingest.HTTP.Enabled = true
		}
		cfg.Submit.NATS.URL = append([]string(nil), cfg.Ingest.NATS.URL...)
		cfg.Submit.NATS.Subject = defaultResultSubject
		cfg.Submit.NATS.Stream = defaultResultStream
	}

	if cfg.Ingest.AMQP.Queue == "" {
		cfg.Ingest.AMQP.Queue = defaultAMQPQueue
	}
	if cfg.Ingest.AMQP.ConsumerTag == "" {
		cfg.Ingest.AMQP.ConsumerTag = defaultAMQPConsumerTag
	}
	if cfg.Ingest.AMQP.Prefetch <= 0 {
		cfg.Ingest.AMQP.Prefetch = defaultAMQPPrefetch
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultMetricsNamespace
	}
	if cfg.Prediction.RetentionDays <= 0 {
		cfg.Prediction.RetentionDays = defaultHistoryDays
	}
	if cfg.Prediction.MaxSamples <= 0 {
		cfg.Prediction.MaxSamples = defaultHistorySamples
	}
	if !cfg.Submit.Log && !cfg.Submit.NATS.Enabled {
		cfg.Submit.Log = true
	}
}

// validateConfig validates normalized config snapshot.
// Params: config with defaults applied.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	mode := NormalizeServiceMode(cfg.Service.Mode)
	if !IsSupportedServiceMode(mode) {
		return fmt.Errorf("service.mode has unsupported value %q", cfg.Service.Mode)
	}
	if cfg.Service.CheckTimeoutSec > cfg.Service.CheckIntervalSec {
		return errors.New("service.check_timeout_sec must not exceed service.check_interval_sec")
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.Listen) == "" {
		return errors.New("ingest.http.listen is required")
	}
	if mode == ServiceModeNATS {
		for i, url := range cfg.Ingest.NATS.URL {
			if strings.TrimSpace(url) == "" {
				return fmt.Errorf("ingest.nats.url[%d] is empty", i)
			}
		}
		if cfg.Ingest.NATS.Enabled {
			if cfg.Ingest.NATS.Workers <= 0 {
				return errors.New("ingest.nats.workers must be >0 when ingest.nats.enabled=true")
			}
			if cfg.Ingest.NATS.MaxDeliver == 0 || cfg.Ingest.NATS.MaxDeliver < -1 {
				return errors.New("ingest.nats.max_deliver must be -1 or >0")
			}
		}
	}
	if cfg.Ingest.AMQP.Enabled && strings.TrimSpace(cfg.Ingest.AMQP.URL) == "" {
		return errors.New("ingest.amqp.url is required when ingest.amqp.enabled=true")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}

	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}

	names := make(map[string]string, len(cfg.Host)+len(cfg.Cluster))
	for _, host := range cfg.Host {
		if _, exists := names[host.Name]; exists {
			return fmt.Errorf("duplicate host name %q", host.Name)
		}
		names[host.Name] = "host"
		for i, svc := range host.Service {
			if err := validateStaticService(svc); err != nil {
				return fmt.Errorf("host.%s.service[%d]: %w", host.Name, i, err)
			}
		}
	}
	for _, cluster := range cfg.Cluster {
		if _, exists := names[cluster.Name]; exists {
			return fmt.Errorf("duplicate host name %q", cluster.Name)
		}
		names[cluster.Name] = "cluster"
	}
	for _, cluster := range cfg.Cluster {
		if len(cluster.Nodes) == 0 {
			return fmt.Errorf("cluster.%s.nodes must not be empty", cluster.Name)
		}
		for _, node := range cluster.Nodes {
			kind, ok := names[node]
			if !ok {
				return fmt.Errorf("cluster.%s node %q is not a configured host", cluster.Name, node)
			}
			if kind == "cluster" {
				return fmt.Errorf("cluster.%s node %q is a cluster", cluster.Name, node)
			}
		}
		for i, rule := range cluster.Service {
			if err := validateClusterRule(cluster, rule); err != nil {
				return fmt.Errorf("cluster.%s.service[%d]: %w", cluster.Name, i, err)
			}
		}
		for i, svc := range cluster.Static {
			if err := validateStaticService(svc); err != nil {
				return fmt.Errorf("cluster.%s.static_service[%d]: %w", cluster.Name, i, err)
			}
		}
	}
	return nil
}

// validateStaticService validates one static service definition.
// Params: service config.
// Returns: validation error.
func validateStaticService(svc StaticServiceConfig) error {
	if strings.TrimSpace(svc.Plugin) == "" {
		return errors.New("plugin is required")
	}
	if strings.TrimSpace(svc.Description) == "" {
		return errors.New("description is required")
	}
	return nil
}

// validateClusterRule validates one clustered service rule against its cluster.
// Params: cluster and rule.
// Returns: validation error.
func validateClusterRule(cluster ClusterConfig, rule ClusterServiceRule) error {
	if strings.TrimSpace(rule.Pattern) == "" {
		return errors.New("pattern is required")
	}
	switch strings.ToLower(strings.TrimSpace(rule.Mode)) {
	case "", "native", "failover", "worst", "best":
	default:
		return fmt.Errorf("mode has unsupported value %q", rule.Mode)
	}
	for field, node := range map[string]string{
		"primary_node":   rule.PrimaryNode,
		"preferred_node": rule.PreferredNode,
		"metrics_node":   rule.MetricsNode,
	} {
		if node == "" {
			continue
		}
		found := false
		for _, candidate := range cluster.Nodes {
			if candidate == node {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s %q is not a node of the cluster", field, node)
		}
	}
	if n := len(rule.LevelsAdditionalNodesCount); n != 0 && n != 2 {
		return errors.New("levels_additional_nodes_count must be [warn, crit]")
	}
	return nil
}

// hasIngestConfig reports whether ingest fragment has explicit values.
// Params: ingest configuration fragment.
// Returns: true when section should be merged.
func hasIngestConfig(cfg IngestConfig) bool {
	return hasHTTPIngestConfig(cfg.HTTP) || hasNATSIngestConfig(cfg.NATS) || cfg.AMQP != (AMQPIngestConfig{})
}

// hasHTTPIngestConfig reports whether HTTP ingest section has explicit values.
// Params: HTTP ingest configuration fragment.
// Returns: true when section should be merged.
func hasHTTPIngestConfig(cfg HTTPIngestConfig) bool {
	return cfg.Enabled ||
		strings.TrimSpace(cfg.Listen) != "" ||
		strings.TrimSpace(cfg.HealthPath) != "" ||
		strings.TrimSpace(cfg.ReadyPath) != "" ||
		strings.TrimSpace(cfg.IngestPath) != "" ||
		cfg.MaxBodyBytes != 0
}

// hasNATSIngestConfig reports whether NATS ingest section has explicit values.
// Params: NATS ingest configuration fragment.
// Returns: true when section should be merged.
func hasNATSIngestConfig(cfg NATSIngestConfig) bool {
	return cfg.Enabled ||
		len(cfg.URL) > 0 ||
		cfg.Workers != 0 ||
		cfg.AckWaitSec != 0 ||
		cfg.NackDelayMS != 0 ||
		cfg.MaxDeliver != 0 ||
		cfg.MaxAckPending != 0
}

// normalizeNATSURLs trims spaces around each configured NATS URL.
// Params: raw URL list from config.
// Returns: normalized URL list preserving element count for validation.
func normalizeNATSURLs(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	out := make([]string, len(urls))
	for i := range urls {
		out[i] = strings.TrimSpace(urls[i])
	}
	return out
}

// CompileWildcardPattern converts wildcard syntax (*, ?) into regex and compiles it.
// Params: wildcard expression from cluster service rule.
// Returns: compiled regex matching lower-cased input.
func CompileWildcardPattern(pattern string) (*regexp.Regexp, error) {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		".", "\\.",
		"+", "\\+",
		"(", "\\(",
		")", "\\)",
		"[", "\\[",
		"]", "\\]",
		"{", "\\{",
		"}", "\\}",
		"^", "\\^",
		"$", "\\$",
		"|", "\\|",
	)
	normalized := replacer.Replace(strings.ToLower(pattern))
	normalized = strings.ReplaceAll(normalized, "*", ".*")
	normalized = strings.ReplaceAll(normalized, "?", ".")
	return regexp.Compile("^" + normalized + "$")
}

// NormalizeServiceMode canonicalizes service mode and applies default.
// Params: raw mode value from config.
// Returns: normalized mode (`single` by default).
func NormalizeServiceMode(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ServiceModeSingle
	}
	return normalized
}

// IsSupportedServiceMode reports whether mode value is supported.
// Params: normalized mode value.
// Returns: true for known modes.
func IsSupportedServiceMode(mode string) bool {
	switch NormalizeServiceMode(mode) {
	case ServiceModeNATS, ServiceModeSingle:
		return true
	default:
		return false
	}
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error", "panic":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}

	return nil
}
