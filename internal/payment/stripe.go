package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

type intentClient interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type refundCreator interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeGateway списания через PaymentIntents с подтверждением off-session.
// PayerRef имеет вид "cus_...:pm_..." (клиент и сохранённый способ оплаты).
//
// Незавершённый intent отменяется, и списание считается отклонённым. Intent в
// статусе processing перечитывается; если он всё ещё в обработке, возвращается
// ошибка, и повтор идёт с тем же ключом идемпотентности.
type StripeGateway struct {
	intents intentClient
	refunds refundCreator
	logger  *zap.Logger
}

func NewStripeGateway(secretKey string, logger *zap.Logger) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeGateway{
		intents: sc.PaymentIntents,
		refunds: sc.Refunds,
		logger:  logger,
	}
}

func (g *StripeGateway) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	customer, method, ok := parsePayerRef(req.PayerRef)
	if !ok {
		return &CaptureResult{Success: false, Reason: "payer has no saved payment method"}, nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(customer),
		PaymentMethod: stripe.String(method),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := g.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			g.logger.Info("Stripe card declined",
				zap.String("customer", customer),
				zap.String("code", string(stripeErr.Code)))
			return &CaptureResult{Success: false, Reason: stripeErr.Msg}, nil
		}
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	if intent.Status == stripe.PaymentIntentStatusProcessing {
		// повтор с тем же ключом вернёт исходный ответ, поэтому статус берём заново
		getParams := &stripe.PaymentIntentParams{}
		getParams.Context = ctx
		intent, err = g.intents.Get(intent.ID, getParams)
		if err != nil {
			return nil, fmt.Errorf("get payment intent: %w", err)
		}
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &CaptureResult{Success: true, TransactionID: intent.ID}, nil
	case stripe.PaymentIntentStatusProcessing:
		return nil, fmt.Errorf("payment intent %s is still processing", intent.ID)
	case stripe.PaymentIntentStatusCanceled:
	default:
		if err := g.cancel(ctx, intent.ID); err != nil {
			return nil, err
		}
	}

	g.logger.Info("Stripe payment intent not completed",
		zap.String("intent", intent.ID),
		zap.String("status", string(intent.Status)))

	return &CaptureResult{
		Success: false,
		Reason:  "payment intent status " + string(intent.Status),
	}, nil
}

func (g *StripeGateway) cancel(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String("abandoned"),
	}
	params.Context = ctx

	if _, err := g.intents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("cancel payment intent: %w", err)
	}
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, transactionID string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(transactionID),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund:" + transactionID)

	if _, err := g.refunds.New(params); err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

func parsePayerRef(ref string) (customer, method string, ok bool) {
	customer, method, found := strings.Cut(ref, ":")
	if !found || customer == "" || method == "" {
		return "", "", false
	}
	return customer, method, true
}
