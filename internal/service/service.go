// Package service exposes the sync operator facade to the transports and the CLI.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewSyncService)
