package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"hermannm.dev/devlog"

	"github.com/mahmed8003/esp8266-weave-test/pkg/settings"
	"github.com/mahmed8003/esp8266-weave-test/pkg/storage"
)

var logLevel slog.LevelVar

var rootCmd = &cobra.Command{
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Use:               "weave-device",
	Short:             "Bring-up harness for the device-side provisioning/pairing/command stack",
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{
		Level: &logLevel,
	})))

	rootCmd.PersistentFlags().String("config", "", "Pathname of a YAML config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Print debug-level log lines")
	rootCmd.PersistentFlags().String("storage-path", "", "SQLite database file for persisted keys/settings/counters (default: in-memory, lost on exit)")
	rootCmd.PersistentFlags().String("name", "weave-device", "Advertised device name before /setup renames it")
	rootCmd.PersistentFlags().String("oem-name", "", "OEM name reported by /info")
	rootCmd.PersistentFlags().String("model-name", "", "Model name reported by /info")
	rootCmd.PersistentFlags().String("model-id", "AAA", "3-character model id folded into the advertising payload")
	rootCmd.PersistentFlags().String("device-class", "XX", "2-character device class folded into the advertising payload")
	rootCmd.PersistentFlags().Bool("pairing-pin", true, "Support PIN-code pairing")
	rootCmd.PersistentFlags().Bool("pairing-embedded", false, "Support embedded-code pairing")
	rootCmd.PersistentFlags().String("embedded-code", "", "Fixed embedded pairing code (requires --pairing-embedded)")
}

// cliConfig is the bring-up configuration every subcommand resolves from
// viper (flags, environment variables, and a config file, in that
// precedence order) before building a device.Config from it.
type cliConfig struct {
	storagePath     string
	name            string
	oemName         string
	modelName       string
	modelID         string
	deviceClass     string
	pairingPin      bool
	pairingEmbedded bool
	embeddedCode    string
}

// loadConfig binds cmd's flags into viper, optionally layers in a config
// file, and resolves the merged result into cliConfig. Grounded on
// kgiusti-go-fdo-server/cmd/rendezvous.go's bind-flags-then-read-config-
// file sequencing.
func loadConfig(cmd *cobra.Command) (cliConfig, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return cliConfig{}, err
	}
	viper.SetEnvPrefix("weave_device")
	viper.AutomaticEnv()

	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return cliConfig{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	if viper.GetBool("debug") {
		logLevel.Set(slog.LevelDebug)
	}

	return cliConfig{
		storagePath:     viper.GetString("storage-path"),
		name:            viper.GetString("name"),
		oemName:         viper.GetString("oem-name"),
		modelName:       viper.GetString("model-name"),
		modelID:         viper.GetString("model-id"),
		deviceClass:     viper.GetString("device-class"),
		pairingPin:      viper.GetBool("pairing-pin"),
		pairingEmbedded: viper.GetBool("pairing-embedded"),
		embeddedCode:    viper.GetString("embedded-code"),
	}, nil
}

// openStore opens the sqlite-backed store at c.storagePath, or an
// in-memory store when no path is configured.
func (c cliConfig) openStore() (storage.Store, error) {
	if c.storagePath == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.OpenSQLStore(c.storagePath)
}

// pairingTypes folds the CLI's pairing flags into the bitfield
// pkg/settings expects.
func (c cliConfig) pairingTypes() settings.PairingType {
	var t settings.PairingType
	if c.pairingPin {
		t |= settings.PairingTypePinCode
	}
	if c.pairingEmbedded {
		t |= settings.PairingTypeEmbeddedCode
	}
	return t
}

func (c cliConfig) modelIDBytes() [3]byte {
	var out [3]byte
	copy(out[:], c.modelID)
	return out
}

func (c cliConfig) deviceClassBytes() [2]byte {
	var out [2]byte
	copy(out[:], c.deviceClass)
	return out
}
