// weave-device is the bring-up binary for the device-side provisioning,
// pairing, and command-execution stack: it wires pkg/device to a storage
// backend and to a console stand-in for the advertising broadcaster a real
// board firmware would supply. No BLE transport is wired in.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
