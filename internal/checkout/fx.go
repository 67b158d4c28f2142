package checkout

import (
	"github.com/brujulacripto/creditledger/internal/checkout/service"
	"github.com/brujulacripto/creditledger/internal/checkout/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(stripe.NewProcessor),
	fx.Provide(service.New),
)
