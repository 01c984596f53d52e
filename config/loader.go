package config

import (
	"strings"
	"sync"
	"sync/atomic"

	core "github.com/DomeLiquid/paycore"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "PAYCORE"

func setDefaults(v *viper.Viper) {
	d := core.DefaultSettings()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.submit_rate_per_sec", 5.0)
	v.SetDefault("server.submit_burst", 10)
	v.SetDefault("server.shutdown_timeout_ms", 35_000)
	v.SetDefault("database.dsn", "file:paycore.db?cache=shared")
	v.SetDefault("log.level", "info")

	v.SetDefault("chain.kind", ChainTron)
	v.SetDefault("chain.wallet", "")
	v.SetDefault("chain.tronscan.endpoint", "https://apilist.tronscanapi.com")
	v.SetDefault("chain.tronscan.api_key", "")
	v.SetDefault("chain.tronscan.contract", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	v.SetDefault("chain.tronscan.decimals", core.USDT_DECIMALS)
	v.SetDefault("chain.tronscan.timeout_seconds", 15)
	v.SetDefault("chain.evm.rpc_url", "")
	v.SetDefault("chain.evm.token", "")
	v.SetDefault("chain.evm.decimals", core.USDT_DECIMALS)
	v.SetDefault("chain.evm.block_time_seconds", 12)

	v.SetDefault("activation.endpoint", "")
	v.SetDefault("activation.api_key", "")
	v.SetDefault("activation.timeout_seconds", 10)
	v.SetDefault("audit.log_path", "logs/payment_audit.log")
	v.SetDefault("audit.webhook_url", "")
	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("mixin.keystore_path", "")

	v.SetDefault("verification.max_tx_age_hours", d.MaxTxAge.Hours())
	v.SetDefault("verification.amount_tolerance_percent", d.AmountTolerancePercent.InexactFloat64())
	v.SetDefault("verification.min_confirmations", d.MinConfirmations)
	v.SetDefault("verification.rate_limit_per_user_per_day", d.RateLimitPerUserPerDay)
	v.SetDefault("verification.scheduler_interval_seconds", int(d.SchedulerInterval.Seconds()))
	v.SetDefault("verification.per_request_verification_timeout_seconds", int(d.VerificationTimeout.Seconds()))
	v.SetDefault("verification.scheduler_backoff_seconds", int(d.SchedulerBackoff.Seconds()))
	v.SetDefault("verification.scheduler_request_delay_seconds", int(d.SchedulerRequestDelay.Seconds()))
	v.SetDefault("verification.search_lookback_skew_minutes", int(d.LookbackSkew.Minutes()))
	v.SetDefault("verification.search_page_size", d.SearchPageSize)
	v.SetDefault("verification.payment_timeout_minutes", int(d.PaymentTimeout.Minutes()))
	v.SetDefault("verification.suspicious_amounts", []string{"0.001", "0.01", "0.1"})
	v.SetDefault("verification.blacklisted_hashes", []string{})

	v.SetDefault("verification.confidence.base", d.Confidence.Base.InexactFloat64())
	v.SetDefault("verification.confidence.confirmations_bonus", d.Confidence.ConfirmationsBonus.InexactFloat64())
	v.SetDefault("verification.confidence.confirmations_penalty", d.Confidence.ConfirmationsPenalty.InexactFloat64())
	v.SetDefault("verification.confidence.amount_match_bonus", d.Confidence.AmountMatchBonus.InexactFloat64())
	v.SetDefault("verification.confidence.amount_mismatch_penalty", d.Confidence.AmountMismatchPenalty.InexactFloat64())
	v.SetDefault("verification.confidence.fresh_bonus", d.Confidence.FreshBonus.InexactFloat64())
	v.SetDefault("verification.confidence.fresh_horizon_minutes", int(d.Confidence.FreshHorizon.Minutes()))
	v.SetDefault("verification.confidence.suspicious_amount_penalty", d.Confidence.SuspiciousAmountPenalty.InexactFloat64())

	v.SetDefault("verification.window.amount_weight", d.Window.AmountWeight.InexactFloat64())
	v.SetDefault("verification.window.recency_weight", d.Window.RecencyWeight.InexactFloat64())
	v.SetDefault("verification.window.min_closeness", d.Window.MinCloseness.InexactFloat64())
	v.SetDefault("verification.window.acceptance_floor", d.Window.AcceptanceFloor.InexactFloat64())
	v.SetDefault("verification.window.recency_horizon_minutes", int(d.Window.RecencyHorizon.Minutes()))
}

// Manager owns the parsed configuration. Static sections are fixed at load; the
// verification section is swapped atomically on every valid change of the file.
type Manager struct {
	v        *viper.Viper
	validate *validator.Validate
	log      core.Log

	mu       sync.Mutex
	config   Config
	settings atomic.Pointer[core.Settings]
	onChange []func(core.Settings)
}

var _ core.SettingsProvider = (*Manager)(nil)

// Load reads path (any format viper understands) with PAYCORE_* environment overrides.
// An empty path uses defaults and environment only.
func Load(path string, log core.Log) (*Manager, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	m := &Manager{
		v:        v,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
	cfg, settings, err := m.decode()
	if err != nil {
		return nil, err
	}
	m.config = cfg
	m.settings.Store(&settings)
	return m, nil
}

func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

func (m *Manager) Settings() core.Settings {
	return *m.settings.Load()
}

// OnChange registers fn to run after a reload has been accepted.
func (m *Manager) OnChange(fn func(core.Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Watch reloads the verification section whenever the config file changes.
func (m *Manager) Watch() {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if err := m.apply(); err != nil {
			m.log.Error().Err(err).Str("file", e.Name).Msg("config reload rejected")
		}
	})
	m.v.WatchConfig()
}

// Reload re-reads the config file. An invalid file is rejected and the active settings stay.
func (m *Manager) Reload() error {
	if m.v.ConfigFileUsed() != "" {
		if err := m.v.ReadInConfig(); err != nil {
			return errors.Wrap(err, "re-read config")
		}
	}
	return m.apply()
}

func (m *Manager) apply() error {
	cfg, settings, err := m.decode()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.config.Verification = cfg.Verification
	listeners := append([]func(core.Settings){}, m.onChange...)
	m.mu.Unlock()

	m.settings.Store(&settings)
	m.log.Info().
		Float64("max_tx_age_hours", cfg.Verification.MaxTxAgeHours).
		Float64("amount_tolerance_percent", cfg.Verification.AmountTolerancePercent).
		Int64("min_confirmations", cfg.Verification.MinConfirmations).
		Int64("rate_limit_per_user_per_day", cfg.Verification.RateLimitPerUserPerDay).
		Msg("verification settings reloaded")
	for _, fn := range listeners {
		fn(settings)
	}
	return nil
}

func (m *Manager) decode() (Config, core.Settings, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return Config{}, core.Settings{}, errors.Wrap(err, "decode config")
	}
	if err := m.validate.Struct(cfg); err != nil {
		return Config{}, core.Settings{}, errors.Wrap(err, "validate config")
	}
	if cfg.Chain.Kind == ChainEVM && (cfg.Chain.EVM.RPCURL == "" || cfg.Chain.EVM.Token == "") {
		return Config{}, core.Settings{}, errors.New("validate config: evm chain requires rpc_url and token")
	}
	settings, err := cfg.Verification.Settings()
	if err != nil {
		return Config{}, core.Settings{}, err
	}
	return cfg, settings, nil
}
