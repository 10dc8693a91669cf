package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/zenibako/spacemap-qlab/bridge"
	"github.com/zenibako/spacemap-qlab/messages"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.SetLevel(cfg.LogLevelValue())

	b, err := bridge.New(cfg, bridge.ScriptCollapser{})
	if err != nil {
		log.Fatalf("assemble bridge: %v", err)
	}
	if err := b.Start(); err != nil {
		log.Fatalf("start bridge: %v", err)
	}
	defer b.Close()

	if err := run(b, cfg); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads spacemap-qlab.yaml from the working directory or the
// user config dir, with SMQ_* environment overrides.
func loadConfig() (bridge.Config, error) {
	v := viper.New()

	defaults := bridge.DefaultConfig()
	v.SetDefault("device_host", defaults.DeviceHost)
	v.SetDefault("console_host", defaults.ConsoleHost)
	v.SetDefault("network_patch", defaults.NetworkPatch)
	v.SetDefault("cue_duration", defaults.CueDuration)
	v.SetDefault("default_mapping", defaults.DefaultMapping)
	v.SetDefault("log_level", defaults.LogLevel)

	v.SetConfigName("spacemap-qlab")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "spacemap-qlab"))
	}

	v.SetEnvPrefix("SMQ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// config file optional; env and defaults suffice
	_ = v.ReadInConfig()

	var cfg bridge.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return bridge.Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return bridge.Config{}, err
	}
	return cfg, nil
}

const (
	actionCapture = "capture"
	actionUpdate  = "update"
	actionQuit    = "quit"
)

func run(b *bridge.Bridge, cfg bridge.Config) error {
	for {
		var action string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Spacemap → QLab").
					Options(
						huh.NewOption("Capture scene from current positions", actionCapture),
						huh.NewOption("Update selected scenes", actionUpdate),
						huh.NewOption("Quit", actionQuit),
					).
					Value(&action),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("read action: %w", err)
		}

		switch action {
		case actionCapture:
			mapping, err := chooseMapping(cfg.DefaultMapping)
			if err != nil {
				return err
			}
			groupID, err := b.Orchestrator.CreateScene(mapping)
			if err != nil {
				log.Errorf("scene capture failed: %v", err)
				continue
			}
			log.Info("scene created", "group_id", groupID)

		case actionUpdate:
			selection, err := b.Console.FetchSelection()
			if err != nil {
				log.Errorf("fetch console selection: %v", err)
				continue
			}
			updated, failed := b.Orchestrator.UpdateScenes(selection)
			log.Info("update complete", "updated", updated, "failed", failed)

		case actionQuit:
			return nil
		}
	}
}

func chooseMapping(defaultMapping int) (int, error) {
	options := make([]huh.Option[int], 0, messages.MappingMax)
	for m := messages.MappingMin; m <= messages.MappingMax; m++ {
		label := fmt.Sprintf("Mapping %d", m)
		if m == defaultMapping {
			label += " (default)"
		}
		options = append(options, huh.NewOption(label, m))
	}

	mapping := defaultMapping
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Coordinate mapping").
				Options(options...).
				Value(&mapping),
		),
	)
	if err := form.Run(); err != nil {
		return 0, fmt.Errorf("read mapping: %w", err)
	}
	return mapping, nil
}
