package subscription

import (
	"context"

	"github.com/AndriyMelnyk/FinTrack/app/models"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/liqpay"
)

// liqpayGateway adapts the LiqPay client to the ProviderGateway interface.
type liqpayGateway struct {
	client *liqpay.Client
}

// NewLiqPayGateway wraps a LiqPay client as a provider gateway.
func NewLiqPayGateway(client *liqpay.Client) ProviderGateway {
	return &liqpayGateway{client: client}
}

func (g *liqpayGateway) CancelSubscription(ctx context.Context, sub *models.UserSubscription) error {
	return g.client.Unsubscribe(ctx, sub.LastOrderID, sub.PaymentSubscriptionID)
}
