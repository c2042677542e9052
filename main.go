package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/exp/slog"
	"manualpilot/bitrelay/internal"
)

type Env struct {
	Port           int           `env:"PORT,default=3000"`
	InstanceID     string        `env:"INSTANCE_ID"`
	LogLevel       string        `env:"LOG_LEVEL,default=debug"`
	PageDir        string        `env:"PAGE_DIR,default=."`
	PublicHost     string        `env:"PUBLIC_HOST"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL,default=30s"`
	PingInterval   time.Duration `env:"PING_INTERVAL,default=45s"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	SendQueue      int           `env:"SEND_QUEUE,default=64"`
	OriginPatterns []string      `env:"ORIGIN_PATTERNS"`
	RedisURL       string        `env:"REDIS_URL"`
	ServiceDomain  string        `env:"SERVICE_DOMAIN"`
	MQTTBroker     string        `env:"MQTT_BROKER"`
	MQTTClientID   string        `env:"MQTT_CLIENT_ID,default=bitrelay"`
	MQTTPrefix     string        `env:"MQTT_TOPIC_PREFIX,default=bitrelay"`
}

func doMain(logger *slog.Logger, env Env) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if env.InstanceID == "" {
		env.InstanceID = ksuid.New().String()
	}

	logger = logger.With(slog.String("instance", env.InstanceID))

	opts := internal.Options{
		InstanceID:    env.InstanceID,
		Port:          env.Port,
		PageDir:       env.PageDir,
		PublicHost:    env.PublicHost,
		SweepInterval: env.SweepInterval,
		Join: internal.JoinOptions{
			OriginPatterns: env.OriginPatterns,
			PingInterval:   env.PingInterval,
			WriteTimeout:   env.WriteTimeout,
			QueueSize:      env.SendQueue,
		},
	}

	if env.RedisURL != "" {
		rOpts, err := redis.ParseURL(env.RedisURL)
		if err != nil {
			return err
		}

		rdb := redis.NewClient(rOpts)
		if err := rdb.Info(ctx).Err(); err != nil {
			return err
		}

		//goland:noinspection GoUnhandledErrorResult
		defer rdb.Close()

		opts.Redis = rdb
	}

	if env.MQTTBroker != "" {
		mirror, err := internal.ConnectMirror(logger.With(slog.String("component", "mqtt")), env.MQTTBroker, env.MQTTClientID, env.MQTTPrefix)
		if err != nil {
			return err
		}

		defer mirror.Close()

		opts.Mirror = mirror
	}

	router, err := internal.Main(logger, ctx, opts)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%v", env.Port),
		Handler: router,
	}

	if env.ServiceDomain != "" {
		tlsConfig, err := TLSConfig(ctx, env.ServiceDomain, opts.Redis)
		if err != nil {
			return err
		}

		server.TLSConfig = tlsConfig
	}

	//goland:noinspection GoUnhandledErrorResult
	defer server.Close()

	ec := make(chan error)
	go func() {
		logger.Debug("starting...", slog.String("address", server.Addr))

		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			ec <- err
		}
	}()

	banner(logger, env.Port)

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sc:
		logger.Warn("shutdown signal", slog.String("signal", sig.String()))
	case err := <-ec:
		logger.Error("failed to start http server", err)
	}

	return nil
}

// banner logs where devices and browsers can reach the relay.
func banner(logger *slog.Logger, port int) {
	logger.Info("relay listening",
		slog.String("page", fmt.Sprintf("http://localhost:%v", port)),
		slog.String("diagnostics", fmt.Sprintf("http://localhost:%v/test", port)),
	)

	ifaces, err := net.Interfaces()
	if err != nil {
		logger.Error("failed to list interfaces", err)
		return
	}

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
				continue
			}

			logger.Info("reachable at",
				slog.String("interface", iface.Name),
				slog.String("address", fmt.Sprintf("%v:%v", ipnet.IP, port)),
			)
		}
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

func main() {
	env := Env{}
	if err := envconfig.Process(context.Background(), &env); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	handler := slog.HandlerOptions{AddSource: true, Level: parseLevel(env.LogLevel)}
	logger := slog.New(handler.NewTextHandler(os.Stdout))

	if err := doMain(logger, env); err != nil {
		logger.Error("failed to start", err)
		os.Exit(1)
	}
}
