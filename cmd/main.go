package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"webdmx/internal/artnet"
	"webdmx/internal/clientmqtt"
	"webdmx/internal/config"
	"webdmx/internal/controller"
	"webdmx/internal/dmx"
	"webdmx/internal/fader"
	"webdmx/internal/gateway"
	"webdmx/internal/logger"
	"webdmx/internal/presets"
	"webdmx/internal/server"
	"webdmx/internal/session"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "configs/conf.toml", "Path to configuration file")
}

func main() {
	flag.Parse()
	cfg, err := config.NewConfig(configFile)
	if err != nil {
		fmt.Printf("configuration file read error: %v", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Printf("failed to create a logger: %v", err)
		os.Exit(1)
	}

	log.With(logger.Fields{"module": "logger"}).Debug("newLogger created ok")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	ctrl, stopCtrl, err := newController(ctx, log, cfg.Controller)
	if err != nil {
		log.With(logger.Fields{"module": "controller"}).Errorf("failed to create the lighting controller: %v", err)
		os.Exit(1)
	}
	defer stopCtrl()

	store, err := presets.Open(log, cfg.Presets.Path)
	if err != nil {
		log.With(logger.Fields{"module": "presets"}).Errorf("failed to open presets: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	hub := session.NewBroadcaster(log)
	core := gateway.New(log, ctrl, store, hub, gateway.Options{
		Mask:         dimmerMask(cfg.Dimmers),
		FadeStages:   cfg.Fade.Stages,
		FadeInterval: cfg.Fade.Interval.Duration,
	})

	client := clientmqtt.NewClient(log, ConvertConfigClientMQTT(cfg.MQTT))
	source := fader.NewSource(log, client, cfg.MQTT.Topic, cfg.MQTT.ReconnectDelay.Duration, cfg.MQTT.PollInterval.Duration)

	srv := server.New(log, core, server.Options{
		Listen:       cfg.WebSocket.Listen,
		PingInterval: cfg.WebSocket.PingInterval.Duration,
		PongTimeout:  cfg.WebSocket.PongTimeout.Duration,
		SendBuffer:   cfg.WebSocket.SendBuffer,
		Status: func() server.Status {
			return server.Status{
				Sessions:      hub.Count(),
				FaderRestarts: source.Restarts(),
				FaderDropped:  source.Dropped(),
			}
		},
	})

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				log.With(logger.Fields{"module": name}).Errorf("stopped: %v", err)
				cancel()
			}
		}()
	}

	run("gateway", core.Run)
	run("fader", func(ctx context.Context) error {
		return source.Run(ctx, func(ev fader.Event) {
			if err := core.Fader(ctx, ev); err != nil {
				log.With(logger.Fields{"module": "fader"}).Warnf("event not applied: %v", err)
			}
		})
	})
	run("server", srv.Run)

	<-ctx.Done()
	wg.Wait()

	log.Info("shutdown complete")
}

// ConvertConfigClientMQTT преобразует структуры.
func ConvertConfigClientMQTT(cfg config.MQTTConf) clientmqtt.MQTTConf {
	return clientmqtt.MQTTConf{
		ClientID: cfg.ClientID,
		Schema:   "tcp",
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Qos:      cfg.Qos,
	}
}

// newController builds the configured driver and its shutdown hook.
func newController(ctx context.Context, log *logger.Log, cfg config.ControllerConf) (controller.LightingController, func(), error) {
	switch cfg.Driver {
	case "", "tcp":
		return controller.NewTCP(log, cfg.Address, cfg.Timeout.Duration), func() {}, nil
	case "artnet":
		a, err := artnet.NewController(log, cfg.Network, cfg.Universe)
		if err != nil {
			return nil, nil, err
		}
		if err := a.Start(ctx); err != nil {
			return nil, nil, err
		}
		return a, a.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown controller driver %q", cfg.Driver)
	}
}

func dimmerMask(cfg config.DimmersConf) dmx.DimmerMask {
	if len(cfg.Channels) == 0 {
		return dmx.DefaultDimmerMask()
	}
	return dmx.NewDimmerMask(cfg.Channels...)
}
