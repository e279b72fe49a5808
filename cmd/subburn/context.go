package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"subburn/internal/config"
	"subburn/internal/ipc"
	"subburn/internal/jobstore"
	"subburn/internal/logging"
	"subburn/internal/services"
)

type commandContext struct {
	socketFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
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

func (c *commandContext) socketPath() string {
	if c.socketFlag != nil && strings.TrimSpace(*c.socketFlag) != "" {
		return strings.TrimSpace(*c.socketFlag)
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Daemon.SocketPath
	}
	return ""
}

// dialClient connects to the daemon. ok is false when no daemon is
// listening, which callers treat as a signal to work in-process.
func (c *commandContext) dialClient() (client *ipc.Client, ok bool, err error) {
	socket := c.socketPath()
	if socket == "" {
		return nil, false, nil
	}
	client, err = ipc.Dial(socket)
	if err != nil {
		if errors.Is(err, services.ErrCollaboratorUnavailable) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("connect to daemon: %w", err)
	}
	return client, true, nil
}

// requireClient connects to the daemon or explains how to start one.
func (c *commandContext) requireClient() (*ipc.Client, error) {
	client, ok, err := c.dialClient()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, services.Wrap(services.ErrCollaboratorUnavailable, "", "daemon",
			fmt.Sprintf("no daemon listening on %s; start one with `subburn daemon`", c.socketPath()), nil)
	}
	return client, nil
}

// withStore opens the job store for commands running without a daemon.
func (c *commandContext) withStore(fn func(jobstore.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := jobstore.Open(cfg, logging.NewNop())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
