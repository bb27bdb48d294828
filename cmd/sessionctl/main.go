// sessionctl is the operator CLI for the session store: list, revoke, and validate sessions of
// a tenant, and inspect how a user-agent string is classified.
package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/app"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/config"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/logger"
)

func main() {
	if err := newRootCmd(openApp).Execute(); err != nil {
		os.Exit(1)
	}
}

// openApp loads config from the environment and wires an App. CLI logs go to stderr at warn
// level so command output stays readable.
func openApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewWithWriter(os.Stderr, cfg.Env, "warn", "sessionctl")
	a, err := app.New(ctx, cfg, "sessionctl", log)
	if err != nil {
		return nil, nil, err
	}
	return a, func() {
		if err := a.Close(context.Background()); err != nil {
			log.Warn("close", zap.Error(err))
		}
		_ = log.Sync()
	}, nil
}
