package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mahmed8003/esp8266-weave-test/pkg/device"
)

var factoryResetCmd = &cobra.Command{
	Use:   "factory-reset",
	Short: "Wipe persisted key material and mint a fresh device identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return factoryReset(c)
	},
}

func init() {
	rootCmd.AddCommand(factoryResetCmd)
}

func factoryReset(c cliConfig) error {
	store, err := c.openStore()
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	d, err := device.NewDevice(device.Config{
		Store:                 store,
		DefaultName:           c.name,
		ModelID:               c.modelIDBytes(),
		DeviceClass:           c.deviceClassBytes(),
		SupportedPairingTypes: c.pairingTypes(),
	})
	if err != nil {
		return fmt.Errorf("creating device: %w", err)
	}

	if err := d.FactoryReset(); err != nil {
		return fmt.Errorf("factory reset: %w", err)
	}

	fmt.Printf("factory reset complete, new device id: %x\n", d.Identity().DeviceID)
	return nil
}
