package payment

import (
	"github.com/brujulacripto/creditledger/internal/payment/adapters"
	"github.com/brujulacripto/creditledger/internal/payment/adapters/stripe"
	"github.com/brujulacripto/creditledger/internal/payment/receipt"
	"github.com/brujulacripto/creditledger/internal/payment/repository"
	paymentservice "github.com/brujulacripto/creditledger/internal/payment/service"
	"github.com/brujulacripto/creditledger/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
	fx.Provide(receipt.NewRenderer),
)
