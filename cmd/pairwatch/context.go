package main

import (
	"strings"
	"sync"

	"github.com/hazyhaar/pairwatch/config"
	"github.com/hazyhaar/pairwatch/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	once   sync.Once
	config *config.Config
	logger *logging.Logger
	err    error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

// ensureConfig loads the configuration and builds the logger once.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		cfg := config.Default()
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			cfg, c.err = config.LoadFile(path)
			if c.err != nil {
				return
			}
		}
		if lvl := strings.TrimSpace(*c.logLevelFlag); lvl != "" {
			cfg.Log.Level = lvl
		}

		logger, err := logging.New(logging.Options{
			Level:   cfg.Log.Level,
			Format:  cfg.Log.Format,
			Outputs: cfg.Log.Outputs,
		})
		if err != nil {
			c.err = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.err
}

func (c *commandContext) close() {
	if c.logger != nil {
		c.logger.Close()
	}
}
