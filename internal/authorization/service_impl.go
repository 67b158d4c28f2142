package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/brujulacripto/creditledger/internal/observability/logger"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectAccount  = "account"
	ObjectBalance  = "balance"
	ObjectUsage    = "usage"
	ObjectPayment  = "payment"
	ObjectCheckout = "checkout"
)

const (
	ActionAccountOpen  = "account.open"
	ActionAccountClose = "account.close"

	ActionBalanceView    = "balance.view"
	ActionBalanceViewAny = "balance.view_any"

	ActionUsageApply = "usage.apply"
	ActionUsageView  = "usage.view"

	ActionPaymentReconcile = "payment.reconcile"
	ActionPaymentReceipt   = "payment.receipt"

	ActionCheckoutCreate = "checkout.create"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID string, role string, object string, action string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidActor
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce("role:"+role, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		logger.WithContext(ctx, s.log).Info("authorization denied",
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// End users act on their own account only.
		{"role:user", ObjectAccount, ActionAccountOpen},
		{"role:user", ObjectAccount, ActionAccountClose},
		{"role:user", ObjectBalance, ActionBalanceView},
		{"role:user", ObjectUsage, ActionUsageApply},
		{"role:user", ObjectUsage, ActionUsageView},
		{"role:user", ObjectPayment, ActionPaymentReceipt},
		{"role:user", ObjectCheckout, ActionCheckoutCreate},

		// Operators
		{"role:operator", ObjectBalance, ActionBalanceViewAny},
		{"role:operator", ObjectPayment, ActionPaymentReconcile},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	has, err := enforcer.HasGroupingPolicy("role:operator", "role:user")
	if err != nil {
		return err
	}
	if !has {
		if _, err := enforcer.AddGroupingPolicy("role:operator", "role:user"); err != nil {
			return err
		}
	}
	return nil
}
