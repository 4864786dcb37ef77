package catalog

import (
	"github.com/basketlabs/shelfscout/internal/catalog/repository"
	"github.com/basketlabs/shelfscout/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
