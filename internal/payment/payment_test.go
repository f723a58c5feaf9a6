package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

func TestIdempotencyKey(t *testing.T) {
	id := uuid.MustParse("7b7f7c8e-1d2a-4c1b-9a7e-0c7e4f0b2a11")
	assert.Equal(t,
		"session:7b7f7c8e-1d2a-4c1b-9a7e-0c7e4f0b2a11:student:5:attempt:2",
		IdempotencyKey(id, 5, 2))
}

func TestSimulatedGateway_CaptureIsIdempotent(t *testing.T) {
	g := NewSimulatedGateway(zap.NewNop())
	ctx := context.Background()
	req := CaptureRequest{Amount: 1500, Currency: "rub", PayerRef: "p1", IdempotencyKey: "k1"}

	first, err := g.Capture(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := g.Capture(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)

	req.IdempotencyKey = "k2"
	third, err := g.Capture(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.TransactionID, third.TransactionID)
}

func TestSimulatedGateway_DeclineAndRefund(t *testing.T) {
	g := NewSimulatedGateway(zap.NewNop())
	ctx := context.Background()

	g.Decline("p1", "insufficient funds")
	res, err := g.Capture(ctx, CaptureRequest{Amount: 100, PayerRef: "p1", IdempotencyKey: "a"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient funds", res.Reason)

	g.Allow("p1")
	res, err = g.Capture(ctx, CaptureRequest{Amount: 100, PayerRef: "p1", IdempotencyKey: "b"})
	require.NoError(t, err)
	require.True(t, res.Success)

	g.FailNextRefund(errors.New("gateway down"))
	require.Error(t, g.Refund(ctx, res.TransactionID))
	assert.False(t, g.Refunded(res.TransactionID))

	require.NoError(t, g.Refund(ctx, res.TransactionID))
	assert.True(t, g.Refunded(res.TransactionID))

	assert.Error(t, g.Refund(ctx, "pi_unknown"))
}

type fakeIntents struct {
	params   *stripe.PaymentIntentParams
	intent   *stripe.PaymentIntent
	err      error
	current  *stripe.PaymentIntent // ответ Get
	canceled []string
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.params = params
	return f.intent, f.err
}

func (f *fakeIntents) Get(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if f.current == nil {
		return nil, errors.New("no such payment intent: " + id)
	}
	return f.current, nil
}

func (f *fakeIntents) Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	f.canceled = append(f.canceled, id)
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
}

type fakeRefunds struct {
	params *stripe.RefundParams
	err    error
}

func (f *fakeRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.params = params
	return &stripe.Refund{ID: "re_1"}, f.err
}

func TestStripeGateway_Capture(t *testing.T) {
	intents := &fakeIntents{intent: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded}}
	g := &StripeGateway{intents: intents, refunds: &fakeRefunds{}, logger: zap.NewNop()}

	res, err := g.Capture(context.Background(), CaptureRequest{
		Amount:         2000,
		Currency:       "RUB",
		PayerRef:       "cus_1:pm_1",
		IdempotencyKey: "key-1",
		Metadata:       map[string]string{"session_id": "s1"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "pi_1", res.TransactionID)

	require.NotNil(t, intents.params)
	assert.Equal(t, int64(2000), *intents.params.Amount)
	assert.Equal(t, "rub", *intents.params.Currency)
	assert.Equal(t, "cus_1", *intents.params.Customer)
	assert.Equal(t, "pm_1", *intents.params.PaymentMethod)
	assert.Equal(t, "key-1", *intents.params.IdempotencyKey)
	assert.Equal(t, "s1", intents.params.Metadata["session_id"])
}

func TestStripeGateway_CardDeclined(t *testing.T) {
	intents := &fakeIntents{err: &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."}}
	g := &StripeGateway{intents: intents, refunds: &fakeRefunds{}, logger: zap.NewNop()}

	res, err := g.Capture(context.Background(), CaptureRequest{Amount: 100, Currency: "usd", PayerRef: "cus_1:pm_1"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Your card was declined.", res.Reason)
}

func TestStripeGateway_InfrastructureError(t *testing.T) {
	intents := &fakeIntents{err: &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"}}
	g := &StripeGateway{intents: intents, refunds: &fakeRefunds{}, logger: zap.NewNop()}

	_, err := g.Capture(context.Background(), CaptureRequest{Amount: 100, Currency: "usd", PayerRef: "cus_1:pm_1"})
	require.Error(t, err)
}

func TestStripeGateway_RequiresAction(t *testing.T) {
	intents := &fakeIntents{intent: &stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusRequiresAction}}
	g := &StripeGateway{intents: intents, refunds: &fakeRefunds{}, logger: zap.NewNop()}

	res, err := g.Capture(context.Background(), CaptureRequest{Amount: 100, Currency: "usd", PayerRef: "cus_1:pm_1"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.TransactionID)
	assert.Equal(t, []string{"pi_2"}, intents.canceled, "open intent must be cancelled")
}

func TestStripeGateway_ProcessingResolvedOnRefresh(t *testing.T) {
	intents := &fakeIntents{
		intent:  &stripe.PaymentIntent{ID: "pi_3", Status: stripe.PaymentIntentStatusProcessing},
		current: &stripe.PaymentIntent{ID: "pi_3", Status: stripe.PaymentIntentStatusSucceeded},
	}
	g := &StripeGateway{intents: intents, refunds: &fakeRefunds{}, logger: zap.NewNop()}

	res, err := g.Capture(context.Background(), CaptureRequest{Amount: 100, Currency: "usd", PayerRef: "cus_1:pm_1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "pi_3", res.TransactionID)
	assert.Empty(t, intents.canceled)
}

func TestStripeGateway_StillProcessingIsUnknownOutcome(t *testing.T) {
	processing := &stripe.PaymentIntent{ID: "pi_4", Status: stripe.PaymentIntentStatusProcessing}
	intents := &fakeIntents{intent: processing, current: processing}
	g := &StripeGateway{intents: intents, refunds: &fakeRefunds{}, logger: zap.NewNop()}

	res, err := g.Capture(context.Background(), CaptureRequest{Amount: 100, Currency: "usd", PayerRef: "cus_1:pm_1"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Empty(t, intents.canceled, "processing intent may still succeed")
}

func TestStripeGateway_MissingPaymentMethod(t *testing.T) {
	intents := &fakeIntents{}
	g := &StripeGateway{intents: intents, refunds: &fakeRefunds{}, logger: zap.NewNop()}

	res, err := g.Capture(context.Background(), CaptureRequest{Amount: 100, Currency: "usd", PayerRef: "cus_1"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, intents.params)
}

func TestStripeGateway_Refund(t *testing.T) {
	refunds := &fakeRefunds{}
	g := &StripeGateway{intents: &fakeIntents{}, refunds: refunds, logger: zap.NewNop()}

	require.NoError(t, g.Refund(context.Background(), "pi_9"))
	assert.Equal(t, "pi_9", *refunds.params.PaymentIntent)
	assert.Equal(t, "refund:pi_9", *refunds.params.IdempotencyKey)
}
