package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mahmed8003/esp8266-weave-test/pkg/device"
	"github.com/mahmed8003/esp8266-weave-test/pkg/settings"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the device core, servicing pairing/auth/command connections until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(c)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// consoleBroadcaster stands in for a real BLE stack's advertising control
// point: it logs what would have been broadcast rather than broadcasting
// it. A board integration swaps this for its own device.Broadcaster.
type consoleBroadcaster struct{}

func (consoleBroadcaster) SetAdvertisingData(name string, manufacturerID uint16, payload []byte) error {
	slog.Info("advertising data updated", "name", name, "manufacturer_id", manufacturerID, "payload_len", len(payload))
	return nil
}

func serve(c cliConfig) error {
	store, err := c.openStore()
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	d, err := device.NewDevice(device.Config{
		Store:                 store,
		DefaultName:           c.name,
		OEMName:               c.oemName,
		ModelName:             c.modelName,
		ModelID:               c.modelIDBytes(),
		DeviceClass:           c.deviceClassBytes(),
		SupportedPairingTypes: c.pairingTypes(),
		EmbeddedCode:          embeddedCodeFrom(c),
		Broadcaster:           consoleBroadcaster{},
		OnWorkAvailable: func() {
			slog.Debug("work available")
		},
	})
	if err != nil {
		return fmt.Errorf("creating device: %w", err)
	}

	slog.Info("device ready",
		"model_manifest_id", d.Settings().ModelManifestID(),
		"instance_name", d.Identity().InstanceName(),
		"is_set_up", d.IsSetUp(),
	)

	if err := d.Start(); err != nil {
		return fmt.Errorf("starting device: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		case <-ticker.C:
			d.HandleEvents()
		}
	}

	slog.Info("shutting down")
	return d.Stop()
}

func embeddedCodeFrom(c cliConfig) settings.EmbeddedCode {
	if !c.pairingEmbedded || c.embeddedCode == "" {
		return settings.EmbeddedCode{}
	}
	return settings.EmbeddedCode{
		Source: settings.EmbeddedCodeSourceFixed,
		Code:   c.embeddedCode,
	}
}
