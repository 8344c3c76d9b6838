package controllers

import (
	"go.uber.org/dig"

	"github.com/aihub/ai-gateway/internal/ai"
	"github.com/aihub/ai-gateway/internal/auth"
	"github.com/aihub/ai-gateway/internal/config"
	"github.com/aihub/ai-gateway/internal/database"
	"github.com/aihub/ai-gateway/internal/services"
	"github.com/aihub/ai-gateway/internal/stellar"
)

// Deps 控制器依赖，由容器注入
type Deps struct {
	dig.In

	Config        *config.Config
	Pricing       *services.PricingService
	Users         *services.UserService
	Credits       *services.CreditsService
	Usage         *services.UsageService
	Payments      *services.PaymentService
	Conversations *services.ConversationService
	AI            *ai.Service
	Ledger        *stellar.Client
	JWT           *auth.JWTService
	Health        *database.HealthChecker
}

// Set 路由使用的全部控制器
type Set struct {
	AI            *AIController
	Conversations *ConversationController
	Credits       *CreditsController
	Stellar       *StellarController
	Usage         *UsageController
	Auth          *AuthController
	Health        *HealthController
}

// ControllerFactory 控制器工厂
type ControllerFactory struct {
	container *dig.Container
}

// NewControllerFactory 创建控制器工厂
func NewControllerFactory(container *dig.Container) *ControllerFactory {
	return &ControllerFactory{
		container: container,
	}
}

// Build 从容器解析依赖并创建控制器
func (f *ControllerFactory) Build() (*Set, error) {
	var set *Set
	err := f.container.Invoke(func(d Deps) {
		set = NewSet(d)
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// NewSet 使用给定依赖创建控制器。beego 按请求复制控制器，依赖字段必须导出
func NewSet(d Deps) *Set {
	base := BaseController{Production: d.Config.Server.IsProduction()}

	return &Set{
		AI: &AIController{
			BaseController: base,
			Payments:       d.Payments,
			AI:             d.AI,
		},
		Conversations: &ConversationController{
			BaseController: base,
			Conversations:  d.Conversations,
		},
		Credits: &CreditsController{
			BaseController: base,
			Credits:        d.Credits,
			Users:          d.Users,
			Usage:          d.Usage,
			PricingService: d.Pricing,
			Ledger:         d.Ledger,
		},
		Stellar: &StellarController{
			BaseController: base,
			Ledger:         d.Ledger,
		},
		Usage: &UsageController{
			BaseController: base,
			Usage:          d.Usage,
			Users:          d.Users,
			Pricing:        d.Pricing,
		},
		Auth: &AuthController{
			BaseController: base,
			Users:          d.Users,
			Credits:        d.Credits,
			Pricing:        d.Pricing,
			Ledger:         d.Ledger,
			JWT:            d.JWT,
		},
		Health: &HealthController{
			BaseController: base,
			Checker:        d.Health,
			Network:        d.Ledger.Network(),
			Version:        Version,
		},
	}
}

// Version 构建版本，由 -ldflags 注入
var Version = "dev"
