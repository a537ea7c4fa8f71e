package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Optional struct {
	Enabled TypeBool `json:"enabled"`
}

// LimitConfig is one named bucket's quota.
type LimitConfig struct {
	Limit  TypeLimit    `json:"limit"`
	Window TypeDuration `json:"window"`
}

type Config struct {
	Debug TypeBool `json:"debug"`

	// Salts — секреты Hasher'а. Ротация инвалидирует все хэшированные
	// identity: это privacy-токены, не стабильные ID.
	Salts struct {
		IP TypeSalt `json:"ip"`
		UA TypeSalt `json:"ua"`
	} `json:"salts"`

	// Limits maps logical bucket names (e.g. "eventsPerIpPerMin") to
	// quotas.
	Limits map[string]LimitConfig `json:"limits"`

	CircuitBreaker struct {
		// IPQPSMax — порог запросов в секунду на IP.
		// Default: 25
		IPQPSMax TypeLimit `json:"ipQpsMax"`

		// Ban — длительность бана после открытия circuit'а.
		// Default: 10m
		Ban TypeDuration `json:"ban"`

		// ViolationThreshold — сколько нарушений внутри
		// ViolationWindow открывают circuit.
		// Default: 5
		ViolationThreshold TypeLimit `json:"violationThreshold"`

		// ViolationWindow — скользящий интервал наблюдения нарушений.
		// Default: 1m
		ViolationWindow TypeDuration `json:"violationWindow"`
	} `json:"circuitBreaker"`

	Burst struct {
		// MaxIdenticalEventsPerMin — порог одинаковых событий в
		// минуту для одного (type, target, identity).
		// Default: 10
		MaxIdenticalEventsPerMin TypeLimit `json:"maxIdenticalEventsPerMin"`

		// FilterSize и FilterErrorRate настраивают bloom-фильтр
		// дубликатов.
		// Defaults: 1MiB, 0.01
		FilterSize      TypeBytes     `json:"filterSize"`
		FilterErrorRate TypeErrorRate `json:"filterErrorRate"`
	} `json:"burst"`

	// Anomaly — веса и пороги композитного скоринга. Все значения —
	// эмпирика исходной платформы, калибруются продуктом.
	Anomaly struct {
		BurstWeight       float64 `json:"burstWeight"`
		DuplicationWeight float64 `json:"duplicationWeight"`
		EntropyWeight     float64 `json:"entropyWeight"`
		VelocityWeight    float64 `json:"velocityWeight"`

		// BaselinePerMinute — дефолтный baseline для ключей без
		// истории. Default: 5
		BaselinePerMinute float64 `json:"baselinePerMinute"`

		// EMAAlpha — сглаживание скользящего среднего. Default: 0.1
		EMAAlpha float64 `json:"emaAlpha"`

		// AlertThreshold — composite score, с которого шлётся alert.
		// Default: 0.7
		AlertThreshold float64 `json:"alertThreshold"`

		// AlertInterval — троттлинг алёртов. Default: 30s
		AlertInterval TypeDuration `json:"alertInterval"`
	} `json:"anomaly"`

	Trending struct {
		ViewWeight    float64 `json:"viewWeight"`
		VoteWeight    float64 `json:"voteWeight"`
		CommentWeight float64 `json:"commentWeight"`
		CopyWeight    float64 `json:"copyWeight"`
		SaveWeight    float64 `json:"saveWeight"`
		ForkWeight    float64 `json:"forkWeight"`

		// HalfLife — период полураспада score. Default: 48h
		HalfLife TypeDuration `json:"halfLife"`

		// DecayFloor — нижняя граница decay-множителя. Default: 0.01
		DecayFloor float64 `json:"decayFloor"`
	} `json:"trending"`

	ShadowBan struct {
		Optional

		UserIDs []string `json:"userIds"`
	} `json:"shadowBan"`

	Challenge struct {
		Optional

		// Provider — имя провайдера challenge'а; для этого слоя это
		// непрозрачная строка, рендерит HTTP-слой.
		Provider string `json:"provider"`

		// ScoreThreshold — anomaly score, с которого требуется
		// challenge. Default: 0.5
		ScoreThreshold float64 `json:"scoreThreshold"`
	} `json:"challenge"`

	// TrustedNetworks — CIDR-список сетей, обходящих защитный
	// pipeline (health checks, office egress).
	TrustedNetworks []string `json:"trustedNetworks"`

	Stats struct {
		StatsD struct {
			Optional

			Address      TypeHostPort        `json:"address"`
			MetricPrefix TypeMetricPrefix    `json:"metricPrefix"`
			TagFormat    TypeStatsdTagFormat `json:"tagFormat"`
		} `json:"statsd"`
		Prometheus struct {
			Optional

			BindTo       TypeHostPort     `json:"bindTo"`
			HTTPPath     TypeHTTPPath     `json:"httpPath"`
			MetricPrefix TypeMetricPrefix `json:"metricPrefix"`
		} `json:"prometheus"`
	} `json:"stats"`
}

func (c *Config) Validate() error {
	if c.Salts.IP.Value == "" {
		return fmt.Errorf("salts.ip is required")
	}

	if c.Salts.UA.Value == "" {
		return fmt.Errorf("salts.ua is required")
	}

	for name, limit := range c.Limits {
		if limit.Limit.Value == 0 {
			return fmt.Errorf("limits.%s.limit must be > 0", name)
		}

		if limit.Window.Value == 0 {
			return fmt.Errorf("limits.%s.window must be > 0", name)
		}
	}

	// Prometheus: bindTo обязателен если включён
	if c.Stats.Prometheus.Enabled.Get(false) {
		if c.Stats.Prometheus.BindTo.Get("") == "" {
			return fmt.Errorf("prometheus.bindTo is required when prometheus is enabled")
		}
	}

	// StatsD: address обязателен если включён
	if c.Stats.StatsD.Enabled.Get(false) {
		if c.Stats.StatsD.Address.Get("") == "" {
			return fmt.Errorf("statsd.address is required when statsd is enabled")
		}
	}

	if c.Challenge.Enabled.Get(false) && c.Challenge.Provider == "" {
		return fmt.Errorf("challenge.provider is required when challenge is enabled")
	}

	return nil
}

func (c *Config) String() string {
	// TypeSalt маскирует себя при сериализации, дополнительно чистить
	// нечего.
	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)

	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(c); err != nil {
		return "{}"
	}

	return buf.String()
}
