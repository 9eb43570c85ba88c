package commands

import (
	"fmt"

	"github.com/netmdfs/netmdfs/internal/config"
	"github.com/netmdfs/netmdfs/internal/device"
	"github.com/netmdfs/netmdfs/internal/device/devicetest"
	"github.com/spf13/viper"
)

// loadConfig layers an optional --device override on top of the normal
// config precedence chain (flags > env > file > defaults).
func loadConfig(deviceOverride string) (config.Config, error) {
	flags := viper.New()
	if deviceOverride != "" {
		flags.Set("device", deviceOverride)
	}
	return config.Load(configFile(), flags)
}

func openDevice(name string) (device.Driver, error) {
	switch name {
	case "mock", "":
		return devicetest.New(), nil
	default:
		return nil, fmt.Errorf("unknown device %q (only \"mock\" is built in; wire a real USB driver behind device.Driver to add one)", name)
	}
}
