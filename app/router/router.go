package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aihub/ai-gateway/app/controllers"
	"github.com/aihub/ai-gateway/app/middleware"
)

// Init 在全局路由器上注册中间件与路由
func Init(set *controllers.Set, mw *middleware.Manager) error {
	return Register(web.BeeApp.Handlers, set, mw)
}

// Register 在指定路由器上注册中间件与路由
func Register(reg *web.ControllerRegister, set *controllers.Set, mw *middleware.Manager) error {
	if mw != nil {
		if err := mw.Apply(reg); err != nil {
			return err
		}
	}

	route := func(path string, c web.ControllerInterface, mapping string) {
		reg.Add(path, c, web.WithRouterMethods(c, mapping))
	}

	route("/health", set.Health, "get:Health")
	reg.Handler("/metrics", promhttp.Handler())

	// AI 补全
	route("/api/ai/completions", set.AI, "post:Completions")
	route("/api/ai/status", set.AI, "get:Status")
	route("/api/ai/test", set.AI, "post:Test")

	// 对话
	route("/api/conversations", set.Conversations, "get:List;post:Create")
	route("/api/conversations/:id/messages", set.Conversations, "get:Messages;post:SendMessage")
	route("/api/conversations/:id", set.Conversations, "delete:Delete")

	// 余额与计费
	route("/api/credits/real-balance", set.Credits, "post:RealBalance")
	route("/api/credits/balance", set.Credits, "get:Balance")
	route("/api/credits/topup", set.Credits, "post:TopUp")
	route("/api/credits/check-balance", set.Credits, "post:CheckBalance")
	route("/api/credits/pricing", set.Credits, "get:Pricing")
	route("/api/credits/estimate-cost", set.Credits, "post:EstimateCost")

	// 账本网络
	route("/api/stellar/balances/:accountId", set.Stellar, "get:Balances")
	route("/api/stellar/demo-payment", set.Stellar, "post:DemoPayment")
	route("/api/stellar/sign-transaction", set.Stellar, "post:SignTransaction")
	route("/api/stellar/network-info", set.Stellar, "get:NetworkInfo")
	route("/api/stellar/account/:accountId/info", set.Stellar, "get:AccountInfo")
	route("/api/stellar/validate-address", set.Stellar, "post:ValidateAddress")
	route("/api/stellar/test-address", set.Stellar, "get:TestAddress")

	// 使用记录
	route("/api/usage", set.Usage, "get:List")
	route("/api/usage/stats", set.Usage, "get:Stats")
	route("/api/usage/:id/tx", set.Usage, "put:AttachTx")

	// 钱包会话
	route("/api/auth/wallet", set.Auth, "post:Wallet")
	route("/api/auth/session", set.Auth, "get:Session")

	return nil
}
