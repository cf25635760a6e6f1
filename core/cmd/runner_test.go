package cmd

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/shopbot/core/config"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type appFunc func(ctx context.Context) error

func (f appFunc) Run(ctx context.Context) error { return f(ctx) }

func TestRunUsesEnvPathAndRunsApp(t *testing.T) {
	t.Setenv("SHOP_CONFIG", "/etc/shop.yaml")
	var loaded string
	var ran bool
	err := Run(Options{
		ConfigEnvVar:      "SHOP_CONFIG",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loaded = path
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(context.Context, ConfigCarrier) (App, error) {
			return appFunc(func(context.Context) error { ran = true; return context.Canceled }), nil
		},
		ShutdownLogger: func() error { return nil },
		Signals:        []os.Signal{syscall.SIGUSR1},
	})
	require.NoError(t, err)
	assert.Equal(t, "/etc/shop.yaml", loaded)
	assert.True(t, ran)
}

func TestRunRejectsMissingCoreConfig(t *testing.T) {
	err := Run(Options{
		LoadConfig: func(string) (ConfigCarrier, error) { return carrier{}, nil },
		Bootstrap: func(context.Context, ConfigCarrier) (App, error) {
			t.Fatal("bootstrap must not run")
			return nil, nil
		},
	})
	require.Error(t, err)
}

func TestRunReturnsAppError(t *testing.T) {
	boom := errors.New("listen failed")
	err := Run(Options{
		LoadConfig: func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap: func(context.Context, ConfigCarrier) (App, error) {
			return appFunc(func(context.Context) error { return boom }), nil
		},
		ShutdownLogger: func() error { return nil },
		Signals:        []os.Signal{syscall.SIGUSR1},
	})
	require.ErrorIs(t, err, boom)
}
