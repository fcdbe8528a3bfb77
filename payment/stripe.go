package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cinema_booking/apperror"
	"cinema_booking/logger"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

func (g *StripeGateway) Name() string {
	return "stripe"
}

func (g *StripeGateway) SignatureHeader() string {
	return "Stripe-Signature"
}

func (g *StripeGateway) OpenPaymentSession(ctx context.Context, req SessionRequest) (*CheckoutSession, error) {
	metadata := map[string]string{
		MetadataBookingID: FormatBookingID(req.BookingID),
		"bookingCode":     req.BookingCode,
		"customerId":      FormatBookingID(req.CustomerID),
		"sessionId":       FormatBookingID(req.SessionID),
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(FormatBookingID(req.BookingID)),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	cs, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, apperror.Unavailable("stripe: create checkout session", err)
	}
	return sessionFromStripe(cs), nil
}

func sessionFromStripe(cs *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{ID: cs.ID, URL: cs.URL, Status: SessionStatus(cs.Status)}
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	return out
}

func (g *StripeGateway) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, apperror.Unavailable("stripe: retrieve payment intent", err)
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Cancel(id, params); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			// already canceled, or processing and about to settle
			logger.Warn("stripe: payment intent not cancelable", zap.String("paymentIntentId", id), zap.Error(err))
			return nil
		}
		return apperror.Unavailable("stripe: cancel payment intent", err)
	}
	return nil
}

// ExpireCheckoutSession expires an open session, which also cancels its payment intent.
// Sessions that are already complete or expired are returned as they are.
func (g *StripeGateway) ExpireCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, apperror.Unavailable("stripe: retrieve checkout session", err)
	}
	if cs.Status != stripe.CheckoutSessionStatusOpen {
		return sessionFromStripe(cs), nil
	}
	expire := &stripe.CheckoutSessionExpireParams{}
	expire.Context = ctx
	cs, err = g.api.CheckoutSessions.Expire(id, expire)
	if err != nil {
		// a session completed in between fails here and is seen as complete on retry
		return nil, apperror.Unavailable("stripe: expire checkout session", err)
	}
	return sessionFromStripe(cs), nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, apperror.Unavailable("stripe: create refund", err)
	}
	return &Refund{
		ID:              r.ID,
		PaymentIntentID: req.PaymentIntentID,
		Amount:          r.Amount,
		Currency:        string(r.Currency),
		Status:          string(r.Status),
	}, nil
}

func (g *StripeGateway) RetrieveChargeNetAmount(ctx context.Context, paymentIntentID string) (int64, error) {
	params := &stripe.PaymentIntentParams{}
	params.AddExpand("latest_charge.balance_transaction")
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return 0, apperror.Unavailable("stripe: retrieve charge", err)
	}
	if pi.LatestCharge == nil || pi.LatestCharge.BalanceTransaction == nil {
		return 0, apperror.Unavailable("stripe: retrieve charge",
			fmt.Errorf("payment intent %s has no settled balance transaction", paymentIntentID))
	}
	return pi.LatestCharge.BalanceTransaction.Net, nil
}

func (g *StripeGateway) ParseWebhook(_ context.Context, payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, apperror.Validation("Invalid webhook signature")
	}
	return eventFromStripe(event)
}

func eventFromStripe(event stripe.Event) (*Event, error) {
	out := &Event{ID: event.ID, ProviderType: string(event.Type), Type: EventIgnored}
	if event.Data == nil {
		return out, nil
	}

	switch string(event.Type) {
	case string(EventIntentCreated), string(EventIntentSucceeded), string(EventIntentFailed):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, apperror.Validation("Malformed payment intent event")
		}
		intent := intentFromStripe(&pi)
		out.Type = EventType(event.Type)
		out.PaymentIntentID = intent.ID
		out.BookingID = intent.BookingID
		out.Amount = intent.Amount
		out.Currency = intent.Currency
		out.Method = intent.Method
	case string(EventCheckoutCompleted):
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, apperror.Validation("Malformed checkout session event")
		}
		out.CheckoutSessionID = cs.ID
		// async methods complete the session before the money settles
		if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			out.Type = EventCheckoutCompleted
		}
		out.Amount = cs.AmountTotal
		out.Currency = string(cs.Currency)
		out.BookingID = ParseBookingID(cs.Metadata[MetadataBookingID])
		if out.BookingID == 0 {
			out.BookingID = ParseBookingID(cs.ClientReferenceID)
		}
		if cs.PaymentIntent != nil {
			out.PaymentIntentID = cs.PaymentIntent.ID
		}
	}
	return out, nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:        pi.ID,
		Amount:    pi.Amount,
		Currency:  strings.ToLower(string(pi.Currency)),
		BookingID: ParseBookingID(pi.Metadata[MetadataBookingID]),
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		out.Status = IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		out.Status = IntentCanceled
	default:
		out.Status = IntentPending
	}
	if len(pi.PaymentMethodTypes) > 0 {
		out.Method = pi.PaymentMethodTypes[0]
	}
	return out
}
