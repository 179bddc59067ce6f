//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"SyncGuard/internal/biz"
	"SyncGuard/internal/conf"
	"SyncGuard/internal/data"
	"SyncGuard/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireService builds the sync service without the transport servers.
func wireService(*conf.Data, *conf.Sync, log.Logger) (*service.SyncService, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
	))
}
