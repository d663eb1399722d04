package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/AndriyMelnyk/FinTrack/app/controllers"
	"github.com/AndriyMelnyk/FinTrack/app/repository"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/database"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/env"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/liqpay"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/middleware"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/session"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/subscription"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	wireSubscriptionServices()
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

// wireSubscriptionServices builds the billing service graph and hands it to
// the controllers.
func wireSubscriptionServices() {
	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	client := liqpay.NewClientFromEnv()
	planSvc := subscription.NewPlanService(repos.Plan)
	subSvc := subscription.NewService(
		repos.User,
		repos.Subscription,
		repos.Plan,
		repos.Cancellation,
		subscription.NewLiqPayGateway(client),
		subscription.NewNotificationService(),
		subscription.NewEventLogService(repos.SubscriptionEvent),
	)
	callbackSvc := subscription.NewCallbackService(
		env.GetEnv("LIQPAY_PRIVATE_KEY", ""),
		subscription.NewRepositoryUserDirectory(repos.User),
		planSvc,
		subSvc,
		client,
		subscription.NewFlowLoggerFromEnv(),
	)

	controllers.SetSubscriptionServices(planSvc, subSvc, repos.User)
	controllers.SetCallbackService(callbackSvc)
}
