// Package discoveryannounce publishes periodic presence heartbeats on NATS so
// sibling services can find this instance. The announcer is optional: without
// a NATS_URL it stays disabled.
package discoveryannounce

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 15 * time.Second
	subjectPrefix     = "discovery.announce."
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
}

type announcement struct {
	Service  string            `json:"service"`
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   time.Time         `json:"sent_at"`
}

// Register attaches the heartbeat loop to the app lifecycle.
func Register(params Params, serviceName, host string, port int) {
	if strings.TrimSpace(serviceName) == "" {
		params.Logger.Warn("discovery announcer disabled: missing service name")
		return
	}
	if port <= 0 || port > 65535 {
		params.Logger.Warn("discovery announcer disabled: invalid port", zap.Int("port", port))
		return
	}
	natsURL := strings.TrimSpace(os.Getenv("NATS_URL"))
	if natsURL == "" {
		params.Logger.Info("discovery announcer disabled: NATS_URL not set")
		return
	}

	advertiseHost := strings.TrimSpace(os.Getenv("ADVERTISE_HOST"))
	if advertiseHost == "" {
		advertiseHost = strings.TrimSpace(host)
		if advertiseHost == "" || advertiseHost == "0.0.0.0" || advertiseHost == "::" {
			advertiseHost = serviceName
		}
	}
	advertisePort := port
	if envPort := strings.TrimSpace(os.Getenv("ADVERTISE_PORT")); envPort != "" {
		if parsed, err := strconv.Atoi(envPort); err == nil && parsed > 0 && parsed <= 65535 {
			advertisePort = parsed
		}
	}

	metadata := map[string]string{}
	if v := strings.TrimSpace(os.Getenv("SERVICE_VERSION")); v != "" {
		metadata["version"] = v
	}

	var (
		conn *nats.Conn
		stop chan struct{}
		done chan struct{}
	)

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			conn, err = nats.Connect(natsURL,
				nats.Name(serviceName),
				nats.MaxReconnects(-1),
				nats.ReconnectWait(2*time.Second),
			)
			if err != nil {
				params.Logger.Warn("discovery announcer disabled: nats connect failed", zap.Error(err))
				conn = nil
				return nil
			}

			subject := subjectPrefix + serviceName
			publish := func() {
				payload, _ := json.Marshal(announcement{
					Service:  serviceName,
					Host:     advertiseHost,
					Port:     advertisePort,
					Metadata: metadata,
					SentAt:   time.Now().UTC(),
				})
				if err := conn.Publish(subject, payload); err != nil {
					params.Logger.Warn("discovery announce failed", zap.Error(err))
				}
			}

			stop = make(chan struct{})
			done = make(chan struct{})
			go func() {
				defer close(done)
				publish()
				ticker := time.NewTicker(heartbeatInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						publish()
					case <-stop:
						return
					}
				}
			}()
			params.Logger.Info("discovery announcer started",
				zap.String("subject", subject),
				zap.String("host", advertiseHost),
				zap.Int("port", advertisePort))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if conn == nil {
				return nil
			}
			close(stop)
			<-done
			conn.Close()
			return nil
		},
	})
}
