package main

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"webdmx/internal/config"
	"webdmx/internal/controller"
	"webdmx/internal/logger"
)

func TestConvertConfigClientMQTT(t *testing.T) {
	got := ConvertConfigClientMQTT(config.MQTTConf{
		ClientID: "id",
		Host:     "broker",
		Port:     "1883",
		User:     "u",
		Password: "p",
		Qos:      1,
	})
	if got.Schema != "tcp" || got.Host != "broker" || got.Port != "1883" || got.Qos != 1 || got.User != "u" {
		t.Errorf("ConvertConfigClientMQTT() = %+v", got)
	}
}

func TestNewController(t *testing.T) {
	l, _ := test.NewNullLogger()
	log := logger.Wrap(l)

	ctrl, stop, err := newController(context.Background(), log, config.ControllerConf{
		Driver:  "tcp",
		Address: "127.0.0.1:60877",
		Timeout: config.Duration{Duration: time.Second},
	})
	if err != nil {
		t.Fatalf("newController() error = %v", err)
	}
	defer stop()
	if _, ok := ctrl.(*controller.TCP); !ok {
		t.Errorf("newController() = %T, want *controller.TCP", ctrl)
	}

	if _, _, err := newController(context.Background(), log, config.ControllerConf{Driver: "serial"}); err == nil {
		t.Error("newController() expected error for unknown driver")
	}
}

func TestDimmerMask(t *testing.T) {
	if !dimmerMask(config.DimmersConf{}).Contains(96) {
		t.Error("default mask should contain channel 96")
	}
	custom := dimmerMask(config.DimmersConf{Channels: []int{5}})
	if !custom.Contains(5) || custom.Contains(96) {
		t.Errorf("custom mask = %v", custom)
	}
}
