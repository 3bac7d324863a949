package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/HaozheZhao/cua-annotation-tool/internal/annotator"
	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool
	options    []annotator.Option

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool, opts ...annotator.Option) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		options:    opts,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withService opens an annotator session for the duration of fn.
func (c *commandContext) withService(cmd *cobra.Command, fn func(*annotator.Service) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	sessionID := uuid.NewString()
	logger, err := logging.NewFromConfig(cfg, sessionID)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logging.PruneLogs(logger, cfg.Paths.LogDir, "*.log", cfg.Logging.RetentionDays, filepath.Join(cfg.Paths.LogDir, logging.LogFileName))

	svc, err := annotator.New(cfg, logger, c.options...)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func parseID(kind, value string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid %s %q", kind, value)
	}
	return id, nil
}

func parseTaskStep(args []string) (int, int, error) {
	taskID, err := parseID("task id", args[0])
	if err != nil {
		return 0, 0, err
	}
	step, err := parseID("step", args[1])
	if err != nil {
		return 0, 0, err
	}
	return taskID, step, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
