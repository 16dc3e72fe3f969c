package ops

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"sor/internal/audit"
	"sor/internal/chaos"
	"sor/internal/og"
	"sor/internal/order"
	"sor/internal/risk"
	"sor/internal/schema"
	"sor/internal/venue"
	"sor/pkg/conn"
	"sor/pkg/exception"
)

// FileConfig mirrors the JSON/YAML config layout.
type FileConfig struct {
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Venues    []VenueConfig   `json:"venues" yaml:"venues"`
	Selector  SelectorConfig  `json:"selector" yaml:"selector"`
	Simulator SimulatorConfig `json:"simulator" yaml:"simulator"`
	Chaos     ChaosConfig     `json:"chaos" yaml:"chaos"`
	Router    RouterConfig    `json:"router" yaml:"router"`
	Audit     AuditConfig     `json:"audit" yaml:"audit"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Orders    []OrderConfig   `json:"orders" yaml:"orders"`
}

// RiskConfig holds the session risk limits.
type RiskConfig struct {
	MaxPositionSize     float64 `json:"maxPositionSize" yaml:"maxPositionSize"`
	MaxDailyLoss        float64 `json:"maxDailyLoss" yaml:"maxDailyLoss"`
	MarginRequirement   float64 `json:"marginRequirement" yaml:"marginRequirement"`
	VolatilityThreshold float64 `json:"volatilityThreshold" yaml:"volatilityThreshold"`
}

// VenueConfig describes a venue entry. A venue with instruments serves only
// those. An empty list means the venue serves instruments no venue lists.
type VenueConfig struct {
	ID          string   `json:"id" yaml:"id"`
	Liquidity   float64  `json:"liquidity" yaml:"liquidity"`
	Latency     string   `json:"latency" yaml:"latency"`
	CostBps     float64  `json:"costBps" yaml:"costBps"`
	Instruments []string `json:"instruments" yaml:"instruments"`
}

// SelectorConfig picks the venue scoring strategy.
type SelectorConfig struct {
	Strategy string `json:"strategy" yaml:"strategy"`
	Seed     int64  `json:"seed" yaml:"seed"`
	Jitter   string `json:"jitter" yaml:"jitter"`
}

// SimulatorConfig tunes the simulated gateway.
type SimulatorConfig struct {
	Seed               int64    `json:"seed" yaml:"seed"`
	FillProbability    *float64 `json:"fillProbability" yaml:"fillProbability"`
	PartialProbability float64  `json:"partialProbability" yaml:"partialProbability"`
	Slippage           *float64 `json:"slippage" yaml:"slippage"`
	Latency            string   `json:"latency" yaml:"latency"`
}

// ChaosConfig enables fault injection in front of the gateway.
type ChaosConfig struct {
	Seed      int64   `json:"seed" yaml:"seed"`
	DropRate  float64 `json:"dropRate" yaml:"dropRate"`
	ErrorRate float64 `json:"errorRate" yaml:"errorRate"`
	MaxDelay  string  `json:"maxDelay" yaml:"maxDelay"`
}

// RouterConfig tunes routing.
type RouterConfig struct {
	Timeout        string `json:"timeout" yaml:"timeout"`
	RetryRemainder bool   `json:"retryRemainder" yaml:"retryRemainder"`
	Workers        int    `json:"workers" yaml:"workers"`
	QueueSize      int    `json:"queueSize" yaml:"queueSize"`
}

// AuditConfig selects the audit sinks.
type AuditConfig struct {
	QueueSize int             `json:"queueSize" yaml:"queueSize"`
	Log       *bool           `json:"log" yaml:"log"`
	Verbose   bool            `json:"verbose" yaml:"verbose"`
	File      *AuditFile      `json:"file" yaml:"file"`
	Postgres  *PostgresConfig `json:"postgres" yaml:"postgres"`
}

// AuditFile configures the rotating JSON lines file.
type AuditFile struct {
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays" yaml:"maxAgeDays"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// PostgresConfig configures the audit store.
type PostgresConfig struct {
	Host            string `json:"host" yaml:"host"`
	Port            int    `json:"port" yaml:"port"`
	User            string `json:"user" yaml:"user"`
	Password        string `json:"password" yaml:"password"`
	Database        string `json:"database" yaml:"database"`
	SSLMode         string `json:"sslMode" yaml:"sslMode"`
	ConnString      string `json:"connString" yaml:"connString"`
	MaxOpenConns    int    `json:"maxOpenConns" yaml:"maxOpenConns"`
	ConnMaxLifetime string `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}

// SessionConfig controls session boundaries.
type SessionConfig struct {
	ResetInterval string `json:"resetInterval" yaml:"resetInterval"`
}

// OrderConfig describes orders to submit at startup.
type OrderConfig struct {
	Instrument string  `json:"instrument" yaml:"instrument"`
	Quantity   float64 `json:"quantity" yaml:"quantity"`
	Price      float64 `json:"price" yaml:"price"`
	Type       string  `json:"type" yaml:"type"`
	Repeat     int     `json:"repeat" yaml:"repeat"`
}

// AuditSettings are the resolved audit sinks.
type AuditSettings struct {
	QueueSize int
	Log       bool
	Verbose   bool
	File      *audit.FileConfig
	Postgres  *conn.Option
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Risk         risk.Parameters
	Registry     *schema.Registry
	Strategy     string
	Scorer       venue.Scorer
	Simulator    og.SimulatorConfig
	Chaos        chaos.Config
	Router       order.Config
	Audit        AuditSettings
	SessionReset time.Duration
	Orders       []schema.Order
}

const defaultAuditQueueSize = 1024

// Default returns the built-in session: the reference risk limits, three
// exchanges and a single AAPL market order.
func Default() FileConfig {
	return FileConfig{
		Risk: RiskConfig{
			MaxPositionSize:     10_000,
			MaxDailyLoss:        50_000,
			MarginRequirement:   100_000,
			VolatilityThreshold: 0.05,
		},
		Venues: []VenueConfig{
			{ID: "NYSE", Liquidity: 10, Latency: "2ms", CostBps: 0.5},
			{ID: "NASDAQ", Liquidity: 9, Latency: "1ms", CostBps: 0.4},
			{ID: "LSE", Liquidity: 6, Latency: "8ms", CostBps: 0.6},
		},
		Selector: SelectorConfig{Strategy: venue.StrategyWeighted},
		Orders: []OrderConfig{
			{Instrument: "AAPL", Quantity: 100, Price: 150, Type: "market"},
		},
	}
}

// Load reads a JSON or YAML config file, chosen by extension, and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config").With("path", path)
	}
	cfg, err := Decode(filepath.Ext(path), data)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "decode config").With("path", path)
	}
	return Resolve(cfg)
}

// Decode parses raw config bytes. ext is a file extension such as ".yaml".
func Decode(ext string, data []byte) (FileConfig, error) {
	var cfg FileConfig
	switch strings.ToLower(ext) {
	case ".json":
		if err := sonic.Unmarshal(data, &cfg); err != nil {
			return FileConfig{}, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return FileConfig{}, err
		}
	default:
		return FileConfig{}, errors.Wrapf(exception.ErrConfigUnsupportedFormat, "extension %q", ext)
	}
	return cfg, nil
}

// Resolve validates a FileConfig and builds the runtime objects.
func Resolve(cfg FileConfig) (Loaded, error) {
	params := risk.Parameters{
		MaxPositionSize:     decimal.NewFromFloat(cfg.Risk.MaxPositionSize),
		MaxDailyLoss:        decimal.NewFromFloat(cfg.Risk.MaxDailyLoss),
		MarginRequirement:   decimal.NewFromFloat(cfg.Risk.MarginRequirement),
		VolatilityThreshold: decimal.NewFromFloat(cfg.Risk.VolatilityThreshold),
	}
	if err := params.Validate(); err != nil {
		return Loaded{}, err
	}

	registry, err := buildRegistry(cfg.Venues)
	if err != nil {
		return Loaded{}, err
	}

	strategy, scorer, err := resolveSelector(cfg.Selector)
	if err != nil {
		return Loaded{}, err
	}

	simulator, err := resolveSimulator(cfg.Simulator)
	if err != nil {
		return Loaded{}, err
	}

	chaosCfg, err := resolveChaos(cfg.Chaos)
	if err != nil {
		return Loaded{}, err
	}

	routerCfg, err := resolveRouter(cfg.Router)
	if err != nil {
		return Loaded{}, err
	}

	auditSettings, err := resolveAudit(cfg.Audit)
	if err != nil {
		return Loaded{}, err
	}

	reset, err := parseDuration("session.resetInterval", cfg.Session.ResetInterval)
	if err != nil {
		return Loaded{}, err
	}

	orders, err := resolveOrders(cfg.Orders)
	if err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Risk:         params,
		Registry:     registry,
		Strategy:     strategy,
		Scorer:       scorer,
		Simulator:    simulator,
		Chaos:        chaosCfg,
		Router:       routerCfg,
		Audit:        auditSettings,
		SessionReset: reset,
		Orders:       orders,
	}, nil
}

func buildRegistry(venues []VenueConfig) (*schema.Registry, error) {
	if len(venues) == 0 {
		return nil, errors.Wrap(exception.ErrConfigInvalid, "no venues configured")
	}
	reg := schema.NewRegistry()
	for _, v := range venues {
		latency, err := parseDuration("venue "+v.ID+" latency", v.Latency)
		if err != nil {
			return nil, err
		}
		if v.Liquidity < 0 || v.CostBps < 0 {
			return nil, errors.Wrapf(exception.ErrConfigInvalid, "venue %s has negative liquidity or cost", v.ID)
		}
		if err := reg.AddVenue(schema.Venue{ID: v.ID, Liquidity: v.Liquidity, Latency: latency, CostBps: v.CostBps}); err != nil {
			return nil, errors.Wrap(exception.ErrConfigInvalid, err.Error())
		}
		for _, instrument := range v.Instruments {
			if err := reg.AddInstrument(instrument, v.ID); err != nil {
				return nil, errors.Wrap(exception.ErrConfigInvalid, err.Error())
			}
		}
	}
	return reg, nil
}

func resolveSelector(cfg SelectorConfig) (string, venue.Scorer, error) {
	jitter, err := parseDuration("selector.jitter", cfg.Jitter)
	if err != nil {
		return "", nil, err
	}
	name := cfg.Strategy
	if name == "" {
		name = venue.StrategyWeighted
	}
	scorer, ok := venue.New(name, cfg.Seed, jitter)
	if !ok {
		return "", nil, errors.Wrapf(exception.ErrConfigInvalid, "unknown selector strategy %q", cfg.Strategy)
	}
	return name, scorer, nil
}

func resolveSimulator(cfg SimulatorConfig) (og.SimulatorConfig, error) {
	sim := og.DefaultSimulatorConfig()
	sim.Seed = cfg.Seed
	sim.PartialProbability = cfg.PartialProbability
	if cfg.FillProbability != nil {
		sim.FillProbability = *cfg.FillProbability
	}
	if cfg.Slippage != nil {
		sim.Slippage = *cfg.Slippage
	}
	latency, err := parseDuration("simulator.latency", cfg.Latency)
	if err != nil {
		return og.SimulatorConfig{}, err
	}
	sim.Latency = latency
	if err := sim.Validate(); err != nil {
		return og.SimulatorConfig{}, errors.Wrap(exception.ErrConfigInvalid, err.Error())
	}
	return sim, nil
}

func resolveChaos(cfg ChaosConfig) (chaos.Config, error) {
	delay, err := parseDuration("chaos.maxDelay", cfg.MaxDelay)
	if err != nil {
		return chaos.Config{}, err
	}
	c := chaos.Config{
		Seed:      cfg.Seed,
		DropRate:  cfg.DropRate,
		ErrorRate: cfg.ErrorRate,
		MaxDelay:  delay,
	}
	if err := c.Validate(); err != nil {
		return chaos.Config{}, errors.Wrap(exception.ErrConfigInvalid, err.Error())
	}
	return c, nil
}

func resolveRouter(cfg RouterConfig) (order.Config, error) {
	timeout, err := parseDuration("router.timeout", cfg.Timeout)
	if err != nil {
		return order.Config{}, err
	}
	c := order.Config{
		Timeout:        timeout,
		RetryRemainder: cfg.RetryRemainder,
		Workers:        cfg.Workers,
		QueueSize:      cfg.QueueSize,
	}
	if err := c.Validate(); err != nil {
		return order.Config{}, errors.Wrap(exception.ErrConfigInvalid, err.Error())
	}
	return c, nil
}

func resolveAudit(cfg AuditConfig) (AuditSettings, error) {
	settings := AuditSettings{
		QueueSize: cfg.QueueSize,
		Log:       true,
		Verbose:   cfg.Verbose,
	}
	if settings.QueueSize <= 0 {
		settings.QueueSize = defaultAuditQueueSize
	}
	if cfg.Log != nil {
		settings.Log = *cfg.Log
	}
	if cfg.File != nil {
		if cfg.File.Path == "" {
			return AuditSettings{}, errors.Wrap(exception.ErrConfigInvalid, "audit.file.path is empty")
		}
		settings.File = &audit.FileConfig{
			Path:       cfg.File.Path,
			MaxSizeMB:  cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAgeDays: cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
	}
	if pg := cfg.Postgres; pg != nil {
		lifetime, err := parseDuration("audit.postgres.connMaxLifetime", pg.ConnMaxLifetime)
		if err != nil {
			return AuditSettings{}, err
		}
		settings.Postgres = &conn.Option{
			Host:            pg.Host,
			Port:            pg.Port,
			User:            pg.User,
			Password:        pg.Password,
			Database:        pg.Database,
			SSLMode:         pg.SSLMode,
			ConnString:      pg.ConnString,
			MaxOpenConns:    pg.MaxOpenConns,
			ConnMaxLifetime: lifetime,
		}
	}
	return settings, nil
}

func resolveOrders(cfgs []OrderConfig) ([]schema.Order, error) {
	orders := make([]schema.Order, 0, len(cfgs))
	for i, c := range cfgs {
		if c.Instrument == "" {
			return nil, errors.Wrapf(exception.ErrConfigInvalid, "order %d instrument is empty", i)
		}
		if c.Quantity == 0 {
			return nil, errors.Wrapf(exception.ErrConfigInvalid, "order %d quantity is zero", i)
		}
		if c.Price < 0 {
			return nil, errors.Wrapf(exception.ErrConfigInvalid, "order %d price is negative", i)
		}
		typ := schema.ParseOrderType(c.Type)
		if c.Type == "" {
			typ = schema.OrderTypeMarket
		}
		if typ == schema.OrderTypeUnknown {
			return nil, errors.Wrapf(exception.ErrConfigInvalid, "order %d type %q is unknown", i, c.Type)
		}
		repeat := max(c.Repeat, 1)
		for range repeat {
			orders = append(orders, schema.Order{
				Instrument:     c.Instrument,
				Quantity:       decimal.NewFromFloat(c.Quantity),
				Price:          decimal.NewFromFloat(c.Price),
				Type:           typ,
				Status:         schema.OrderStatusPending,
				FilledQuantity: decimal.Zero,
			})
		}
	}
	return orders, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(exception.ErrConfigInvalid, "%s: %v", field, err)
	}
	if d < 0 {
		return 0, errors.Wrapf(exception.ErrConfigInvalid, "%s is negative", field)
	}
	return d, nil
}
