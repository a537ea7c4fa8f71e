package cli

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/promptdeck/bastion/internal/utils"
)

// healthCheckTimeout — максимальное время ожидания ответа от metrics
// endpoint. 5 секунд достаточно для проверки доступности, при этом
// docker не считает контейнер unhealthy из-за случайных задержек.
const healthCheckTimeout = 5 * time.Second

// Health проверяет работоспособность сервиса через Prometheus metrics
// endpoint. Используется в Dockerfile HEALTHCHECK и docker-compose
// healthcheck.
type Health struct {
	ConfigPath string `kong:"arg,required,type='existingfile',help='Path to config file.',name='config-path'"` //nolint: lll
}

func (h Health) Run(cli *CLI, version string) error {
	conf, err := utils.ReadConfig(h.ConfigPath)
	if err != nil {
		return fmt.Errorf("cannot parse config: %w", err)
	}

	if !conf.Stats.Prometheus.Enabled.Get(false) {
		return fmt.Errorf("prometheus is not enabled, nothing to probe")
	}

	bindTo := conf.Stats.Prometheus.BindTo.Value
	httpPath := conf.Stats.Prometheus.HTTPPath.Get("/metrics")

	// Для healthcheck всегда подключаемся к localhost
	_, port, _ := net.SplitHostPort(bindTo)
	if port == "" {
		return fmt.Errorf("cannot detect prometheus port in %q", bindTo)
	}

	return checkHTTP(fmt.Sprintf("http://127.0.0.1:%s%s", port, httpPath))
}

// checkHTTP проверяет HTTP endpoint — ожидает 200 OK.
func checkHTTP(url string) error {
	client := &http.Client{
		Timeout: healthCheckTimeout,
	}

	resp, err := client.Get(url) //nolint: noctx
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain body для корректного закрытия соединения
	io.Copy(io.Discard, resp.Body) //nolint: errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	return nil
}
