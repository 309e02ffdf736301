package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mahmed8003/esp8266-weave-test/pkg/advertising"
	"github.com/mahmed8003/esp8266-weave-test/pkg/device"
)

var showAdvertisingCmd = &cobra.Command{
	Use:   "show-advertising",
	Short: "Print the BLE advertising payload and the opaque name a host-side discovery bridge would use for it",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return showAdvertising(c)
	},
}

func init() {
	rootCmd.AddCommand(showAdvertisingCmd)
}

func showAdvertising(c cliConfig) error {
	store, err := c.openStore()
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	d, err := device.NewDevice(device.Config{
		Store:                 store,
		DefaultName:           c.name,
		ModelName:             c.modelName,
		ModelID:               c.modelIDBytes(),
		DeviceClass:           c.deviceClassBytes(),
		SupportedPairingTypes: c.pairingTypes(),
	})
	if err != nil {
		return fmt.Errorf("creating device: %w", err)
	}

	payload := advertising.BuildPayload(d.Settings(), d.Identity())
	fmt.Printf("manufacturer id:  0x%04x\n", advertising.GoogleManufacturerID())
	fmt.Printf("payload:          %x\n", payload)
	fmt.Printf("device id:        %x\n", d.Identity().DeviceID)
	// InstanceName is the stable, opaque name a host-side mDNS bridge
	// would register this device under: the payload above carries the
	// raw device id for BLE scanners, but a bridge announcing over IP
	// multicast shouldn't leak that id onto the local network.
	fmt.Printf("mDNS bridge name: %s\n", d.Identity().InstanceName())
	return nil
}
