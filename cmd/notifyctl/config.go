package main

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/mstoykov/envconfig"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/sonirico/notifyws"
)

const envPrefix = "NOTIFYWS"

func configFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.String("url", "", "REST API base URL, e.g. https://bank.example.com/api/v1")
	flags.String("rest-prefix", "", "REST path prefix replaced by the notifications path")
	flags.String("notifications-path", "", "path of the notification endpoint")
	flags.Duration("heartbeat", 0, "interval between keep-alive pings")
	flags.Duration("handshake-timeout", 0, "time allowed for the websocket handshake")
	flags.Duration("base-delay", 0, "first reconnect delay")
	flags.Duration("max-delay", 0, "upper bound of the reconnect delay")
	flags.Int("max-attempts", 0, "reconnect attempts before giving up")
	return flags
}

// getConsolidatedConfig layers, lowest first: defaults, config file, environment, flags.
func getConsolidatedConfig(gs *globalState, flags *pflag.FlagSet) (notifyws.Config, error) {
	cfg := notifyws.DefaultConfig()

	fileConf, err := readDiskConfig(gs.fs, gs.flags.configFilePath)
	if err != nil {
		return cfg, err
	}

	envConf, err := readEnvConfig(gs.lookupEnv)
	if err != nil {
		return cfg, err
	}

	cliConf, err := getConfig(flags)
	if err != nil {
		return cfg, err
	}

	cfg = cfg.Apply(fileConf).Apply(envConf).Apply(cliConf)

	return cfg, cfg.Validate()
}

// readDiskConfig reads a TOML file. An empty path means no file.
func readDiskConfig(fs afero.Fs, path string) (notifyws.Config, error) {
	var conf notifyws.Config
	if path == "" {
		return conf, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return conf, errors.Errorf("config file %s does not exist", path)
		}
		return conf, errors.Wrapf(err, "reading config file %s", path)
	}

	md, err := toml.Decode(string(data), &conf)
	if err != nil {
		return conf, errors.Wrapf(err, "couldn't parse config file %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return conf, errors.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}

	return conf, nil
}

func readEnvConfig(lookupEnv func(string) (string, bool)) (notifyws.Config, error) {
	var conf notifyws.Config
	if err := envconfig.Process(envPrefix, &conf, lookupEnv); err != nil {
		return conf, errors.Wrap(err, "environment")
	}
	return conf, nil
}

func getConfig(flags *pflag.FlagSet) (notifyws.Config, error) {
	var (
		conf notifyws.Config
		err  error
	)

	if conf.APIBaseURL, err = flags.GetString("url"); err != nil {
		return conf, err
	}
	if conf.RESTPathPrefix, err = flags.GetString("rest-prefix"); err != nil {
		return conf, err
	}
	if conf.NotificationsPath, err = flags.GetString("notifications-path"); err != nil {
		return conf, err
	}
	if conf.HeartbeatInterval, err = flags.GetDuration("heartbeat"); err != nil {
		return conf, err
	}
	if conf.HandshakeTimeout, err = flags.GetDuration("handshake-timeout"); err != nil {
		return conf, err
	}
	if conf.BaseDelay, err = flags.GetDuration("base-delay"); err != nil {
		return conf, err
	}
	if conf.MaxDelay, err = flags.GetDuration("max-delay"); err != nil {
		return conf, err
	}
	if conf.MaxAttempts, err = flags.GetInt("max-attempts"); err != nil {
		return conf, err
	}

	return conf, nil
}
