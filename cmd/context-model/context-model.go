package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/diwise/context-model/internal/pkg/application/subscriptions"
	"github.com/diwise/context-model/internal/pkg/application/workspace"
	"github.com/diwise/context-model/internal/pkg/infrastructure/database"
	"github.com/diwise/context-model/internal/pkg/infrastructure/router"
	api "github.com/diwise/context-model/internal/pkg/presentation/api/model"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const serviceName string = "context-model"

func defaultFlags() FlagMap {
	return FlagMap{
		listenAddress: "",
		servicePort:   "8080",

		configPath: "/opt/diwise/config/default.yaml",
		opaPath:    "/opt/diwise/config/authz.rego",

		logFormat: "json",
	}
}

func main() {
	ctx, flags := parseExternalConfig(context.Background(), defaultFlags())

	serviceVersion := buildinfo.SourceVersion()
	ctx, logger, cleanup := o11y.Init(ctx, serviceName, serviceVersion, flags[logFormat])
	defer cleanup()

	err := run(ctx, flags)
	if err != nil {
		logger.Error("service failed", "err", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, flags FlagMap) error {
	logger := logging.GetFromContext(ctx)

	cfgFile, err := os.Open(flags[configPath])
	if err != nil {
		return fmt.Errorf("failed to open workspace configuration: %w", err)
	}
	defer cfgFile.Close()

	cfg, err := workspace.LoadConfiguration(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load workspace configuration: %w", err)
	}

	decorators := []workspace.WorkspaceDecoratorFunc{}

	if cfg.Notifier.Enabled {
		notifier, err := subscriptions.NewNotifier(ctx, cfg.Notifier.Endpoint)
		if err != nil {
			return fmt.Errorf("failed to create notifier: %w", err)
		}

		if err = notifier.Start(); err != nil {
			return fmt.Errorf("failed to start notifier: %w", err)
		}
		defer notifier.Stop()

		decorators = append(decorators, workspace.WithObservers(notifier))
	}

	dbCfg := database.LoadConfiguration(ctx)
	if dbCfg.Enabled() {
		pool, err := database.Connect(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		store, err := database.NewSnapshotStore(ctx, pool)
		if err != nil {
			return err
		}

		decorators = append(decorators, workspace.WithSnapshots(store))
	} else {
		logger.Info("no database configured, snapshots will not be saved")
	}

	ws, err := workspace.New(ctx, *cfg, decorators...)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	policies, err := os.Open(flags[opaPath])
	if err != nil {
		return fmt.Errorf("unable to open opa policy file: %w", err)
	}
	defer policies.Close()

	r := router.New(serviceName)

	err = api.RegisterHandlers(ctx, r, policies, ws)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(flags[listenAddress], flags[servicePort])
	logger.Info("starting to listen for connections", "addr", addr)

	return http.ListenAndServe(addr, r)
}

func parseExternalConfig(ctx context.Context, flags FlagMap) (context.Context, FlagMap) {

	// Allow environment variables to override certain defaults
	envOrDef := env.GetVariableOrDefault
	flags[listenAddress] = envOrDef(ctx, "LISTEN_ADDRESS", flags[listenAddress])
	flags[servicePort] = envOrDef(ctx, "SERVICE_PORT", flags[servicePort])
	flags[configPath] = envOrDef(ctx, "CONTEXT_MODEL_CONFIG_PATH", flags[configPath])
	flags[opaPath] = envOrDef(ctx, "POLICY_PATH", flags[opaPath])

	apply := func(f FlagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("config", "workspace configuration file", apply(configPath))
	flag.Func("policies", "an authorization policy file", apply(opaPath))
	flag.Func("logformat", "log format (json or text)", apply(logFormat))
	flag.Parse()

	return ctx, flags
}
