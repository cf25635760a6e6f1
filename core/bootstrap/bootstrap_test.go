package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/core/logger"
)

func noopLogger(*coreconfig.Config) error { return nil }

func TestRunSkipsOptionalInfrastructure(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noopLogger,
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			t.Fatal("database must not be opened")
			return nil, nil
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res.DB)
	assert.Nil(t, res.Redis)
	assert.NoError(t, res.Close())
}

func TestRunPropagatesDatabaseFailure(t *testing.T) {
	boom := errors.New("refused")
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   &coredatabase.Config{Host: "db"},
		LoggerInit: noopLogger,
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			return nil, boom
		},
	})
	require.ErrorIs(t, err, boom)
}

func TestRunConnectsRedisAndReportsMissing(t *testing.T) {
	var buf bytes.Buffer
	flush := logger.UseWriter(&buf, slog.LevelDebug)
	mr := miniredis.RunT(t)

	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Redis:      &coreconfig.RedisConfig{Addr: mr.Addr()},
		Missing:    map[string]string{"STRIPE_SECRET_KEY": "stripe payments", "ADMIN_EMAIL": "operator email"},
		LoggerInit: noopLogger,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Redis)
	require.NoError(t, res.Redis.Set(context.Background(), "k", "v", 0).Err())
	assert.NoError(t, res.Close())

	require.NoError(t, flush())
	out := buf.String()
	assert.Contains(t, out, "config.missing")
	assert.Contains(t, out, "STRIPE_SECRET_KEY")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("ADMIN_EMAIL")), bytes.Index(buf.Bytes(), []byte("STRIPE_SECRET_KEY")))
}
