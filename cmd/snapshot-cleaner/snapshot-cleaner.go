package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/diwise/context-model/internal/pkg/infrastructure/database"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
)

const (
	appName string = "snapshot-cleaner"
)

func main() {
	appVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), appName, appVersion, "json")
	defer cleanup()

	log.Debug("begin clean snapshots")

	keep, err := snapshotsToKeep(ctx)
	if err != nil {
		log.Error("invalid number of snapshots to keep", "err", err.Error())
		os.Exit(1)
	}

	p, err := database.Connect(ctx, database.LoadConfiguration(ctx))
	if err != nil {
		log.Error("failed to connect to database", "err", err.Error())
		os.Exit(1)
	}
	defer p.Close()

	store, err := database.NewSnapshotStore(ctx, p)
	if err != nil {
		log.Error("failed to open snapshot store", "err", err.Error())
		os.Exit(1)
	}

	entities, err := store.Entities(ctx)
	if err != nil {
		log.Error("failed to get entities", "err", err.Error())
		os.Exit(1)
	}

	log.Debug("number of total entities", "count", len(entities))

	var totalCount int64 = 0

	for _, entity := range entities {
		l := log.With(slog.String("entity_id", entity))

		count, err := store.DeleteStale(ctx, entity, keep)
		if err != nil {
			l.Error("failed to delete stale snapshots", "err", err.Error())
			os.Exit(1)
		}

		totalCount += count

		l.Debug("done cleaning snapshots", slog.Int64("count", count), slog.Time("end_time", time.Now()))
	}

	log.Debug("vacuum")

	err = store.Vacuum(ctx)
	if err != nil {
		log.Error("failed to vacuum table", "err", err.Error())
		os.Exit(1)
	}

	log.Info("done cleaning", slog.Int64("total", totalCount))
}

func snapshotsToKeep(ctx context.Context) (int, error) {
	keep, err := strconv.Atoi(env.GetVariableOrDefault(ctx, "SNAPSHOTS_TO_KEEP", "10"))
	if err != nil {
		return 0, err
	}

	if keep < 1 {
		keep = 1
	}

	return keep, nil
}
