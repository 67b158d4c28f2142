package usage

import (
	"github.com/brujulacripto/creditledger/internal/usage/repository"
	"github.com/brujulacripto/creditledger/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
