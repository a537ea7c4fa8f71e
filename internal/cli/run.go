package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/promptdeck/bastion/bastionlib"
	"github.com/promptdeck/bastion/events"
	"github.com/promptdeck/bastion/internal/config"
	"github.com/promptdeck/bastion/internal/logger"
	"github.com/promptdeck/bastion/internal/utils"
	"github.com/promptdeck/bastion/ipset"
	"github.com/promptdeck/bastion/stats"
)

type Run struct {
	ConfigPath string `kong:"arg,required,type='existingfile',help='Path to config file.',name='config-path'"` //nolint: lll
}

func (r Run) Run(cli *CLI, version string) error {
	conf, err := utils.ReadConfig(r.ConfigPath)
	if err != nil {
		return fmt.Errorf("cannot parse config: %w", err)
	}

	return runService(conf, version)
}

func runService(conf *config.Config, version string) error { //nolint: funlen
	log := logger.NewZeroLogger(conf.Debug.Get(false)).Named("bastion")

	log.BindStr("version", version).Info("starting")

	trusted, err := ipset.New(conf.TrustedNetworks)
	if err != nil {
		return fmt.Errorf("cannot build trusted networks: %w", err)
	}

	eventStream, closeStats, err := makeEventStream(conf, log)
	if err != nil {
		return fmt.Errorf("cannot build event stream: %w", err)
	}

	// Порядок остановки: guard (producer) — stream (processors) —
	// stats backend'ы.
	defer closeStats()
	defer eventStream.Shutdown()

	limits := make(map[string]bastionlib.Limit, len(conf.Limits))
	for name, lim := range conf.Limits {
		limits[name] = bastionlib.Limit{
			Max:    int(lim.Limit.Value),
			Window: lim.Window.Value,
		}
	}

	guard, err := bastionlib.NewGuard(bastionlib.GuardOpts{
		IPSalt:      conf.Salts.IP.Value,
		UASalt:      conf.Salts.UA.Value,
		EventStream: eventStream,
		Logger:      log,
		Limits:      limits,
		Breaker: bastionlib.BreakerSettings{
			IPQPSMax: int(conf.CircuitBreaker.IPQPSMax.Get(
				bastionlib.DefaultBreakerIPQPSMax)),
			Ban: conf.CircuitBreaker.Ban.Get(bastionlib.DefaultBreakerBan),
			ViolationThreshold: int(conf.CircuitBreaker.ViolationThreshold.Get(
				bastionlib.DefaultBreakerViolationThreshold)),
			ViolationWindow: conf.CircuitBreaker.ViolationWindow.Get(
				bastionlib.DefaultBreakerViolationWindow),
		},
		MaxIdenticalEventsPerMin: int(conf.Burst.MaxIdenticalEventsPerMin.Get(0)),
		Collector: bastionlib.CollectorOpts{
			DuplicateFilterSize:      conf.Burst.FilterSize.Get(0),
			DuplicateFilterErrorRate: conf.Burst.FilterErrorRate.Get(0),
		},
		Detector: bastionlib.DetectorOpts{
			Weights: bastionlib.ScoringWeights{
				Burst:       conf.Anomaly.BurstWeight,
				Duplication: conf.Anomaly.DuplicationWeight,
				Entropy:     conf.Anomaly.EntropyWeight,
				Velocity:    conf.Anomaly.VelocityWeight,
			},
			BaselineDefault: conf.Anomaly.BaselinePerMinute,
			EMAAlpha:        conf.Anomaly.EMAAlpha,
		},
		Trending: bastionlib.ScorerOpts{
			Weights: bastionlib.TrendingWeights{
				Views:    conf.Trending.ViewWeight,
				Votes:    conf.Trending.VoteWeight,
				Comments: conf.Trending.CommentWeight,
				Copies:   conf.Trending.CopyWeight,
				Saves:    conf.Trending.SaveWeight,
				Forks:    conf.Trending.ForkWeight,
			},
			HalfLife:   conf.Trending.HalfLife.Get(0),
			DecayFloor: conf.Trending.DecayFloor,
		},
		TrustedNets:             trusted,
		ShadowBanEnabled:        conf.ShadowBan.Enabled.Get(false),
		ShadowBannedUserIDs:     conf.ShadowBan.UserIDs,
		ChallengeEnabled:        conf.Challenge.Enabled.Get(false),
		ChallengeProvider:       conf.Challenge.Provider,
		ChallengeScoreThreshold: conf.Challenge.ScoreThreshold,
		AlertScoreThreshold:     conf.Anomaly.AlertThreshold,
		AlertInterval:           conf.Anomaly.AlertInterval.Get(0),
	})
	if err != nil {
		return fmt.Errorf("cannot build guard: %w", err)
	}
	defer guard.Close()

	log.Info("guard has been started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")

	return nil
}

func makeEventStream(conf *config.Config,
	log bastionlib.Logger,
) (events.EventStream, func(), error) {
	factories := []events.ObserverFactory{}
	closers := []func() error{}

	if conf.Stats.Prometheus.Enabled.Get(false) {
		prometheus := stats.NewPrometheus(
			conf.Stats.Prometheus.MetricPrefix.Get(stats.DefaultMetricPrefix),
			conf.Stats.Prometheus.HTTPPath.Get("/metrics"),
		)

		listener, err := utils.NewListener(conf.Stats.Prometheus.BindTo.Value)
		if err != nil {
			return events.EventStream{}, nil,
				fmt.Errorf("cannot build prometheus listener: %w", err)
		}

		go prometheus.Serve(listener) //nolint: errcheck

		factories = append(factories, prometheus.Make)
		closers = append(closers, prometheus.Close)
	}

	if conf.Stats.StatsD.Enabled.Get(false) {
		statsd, err := stats.NewStatsd(
			conf.Stats.StatsD.Address.Value,
			conf.Stats.StatsD.MetricPrefix.Get(stats.DefaultMetricPrefix),
			conf.Stats.StatsD.TagFormat.Get(""))
		if err != nil {
			return events.EventStream{}, nil,
				fmt.Errorf("cannot build statsd client: %w", err)
		}

		factories = append(factories, statsd.Make)
		closers = append(closers, statsd.Close)
	}

	closeAll := func() {
		for _, closeOne := range closers {
			if err := closeOne(); err != nil {
				log.WarningError("cannot close stats backend", err)
			}
		}
	}

	if len(factories) == 0 {
		factories = append(factories, events.NewNoopObserver)
	}

	return events.NewEventStream(factories), closeAll, nil
}
