package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cinema_booking/apperror"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// OmiseGateway charges through an offsite source; the charge doubles as the payment intent.
// Omise webhooks are unsigned, so ParseWebhook authenticates an event by fetching it back
// from the API with the secret key.
type OmiseGateway struct {
	client     *omise.Client
	sourceType string
}

func NewOmiseGateway(publicKey, secretKey string) (*OmiseGateway, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	return &OmiseGateway{client: c, sourceType: "promptpay"}, nil
}

func (g *OmiseGateway) Name() string {
	return "omise"
}

func (g *OmiseGateway) SignatureHeader() string {
	return ""
}

func (g *OmiseGateway) OpenPaymentSession(_ context.Context, req SessionRequest) (*CheckoutSession, error) {
	src := &omise.Source{}
	if err := g.client.Do(src, &operations.CreateSource{
		Type:     g.sourceType,
		Amount:   req.Amount,
		Currency: req.Currency,
	}); err != nil {
		return nil, apperror.Unavailable("omise: create source", err)
	}

	ch := &omise.Charge{}
	if err := g.client.Do(ch, &operations.CreateCharge{
		Amount:    req.Amount,
		Currency:  req.Currency,
		Source:    src.ID,
		ReturnURI: req.SuccessURL,
		Metadata: map[string]any{
			"booking_id":   FormatBookingID(req.BookingID),
			"booking_code": req.BookingCode,
			"customer_id":  FormatBookingID(req.CustomerID),
			"session_id":   FormatBookingID(req.SessionID),
		},
	}); err != nil {
		return nil, apperror.Unavailable("omise: create charge", err)
	}
	return &CheckoutSession{ID: ch.ID, URL: ch.AuthorizeURI, PaymentIntentID: ch.ID, Status: SessionOpen}, nil
}

func (g *OmiseGateway) RetrievePaymentIntent(_ context.Context, id string) (*PaymentIntent, error) {
	ch := &omise.Charge{}
	if err := g.client.Do(ch, &operations.RetrieveCharge{ChargeID: id}); err != nil {
		return nil, apperror.Unavailable("omise: retrieve charge", err)
	}
	return intentFromOmise(ch), nil
}

func (g *OmiseGateway) CancelPaymentIntent(_ context.Context, id string) error {
	ch := &omise.Charge{}
	if err := g.client.Do(ch, &operations.ReverseCharge{ChargeID: id}); err != nil {
		return apperror.Unavailable("omise: reverse charge", err)
	}
	return nil
}

// ExpireCheckoutSession reverses the pending charge behind the checkout; Omise keys
// the checkout by its charge id.
func (g *OmiseGateway) ExpireCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	intent, err := g.RetrievePaymentIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &CheckoutSession{ID: id, PaymentIntentID: id, Status: SessionExpired}
	switch intent.Status {
	case IntentSucceeded:
		out.Status = SessionComplete
	case IntentPending:
		if err := g.CancelPaymentIntent(ctx, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CreateRefund looks for a refund already issued under the idempotency key before
// creating one. Omise takes no idempotency header, so the key is kept in the refund
// metadata and a retry after a lost response finds the first refund there.
func (g *OmiseGateway) CreateRefund(_ context.Context, req RefundRequest) (*Refund, error) {
	if req.IdempotencyKey != "" {
		prior, err := g.refundByKey(req.PaymentIntentID, req.IdempotencyKey)
		if err != nil {
			return nil, apperror.Unavailable("omise: list refunds", err)
		}
		if prior != nil {
			return refundFromOmise(req.PaymentIntentID, prior), nil
		}
	}

	amount := req.Amount
	if amount == 0 {
		ch := &omise.Charge{}
		if err := g.client.Do(ch, &operations.RetrieveCharge{ChargeID: req.PaymentIntentID}); err != nil {
			return nil, apperror.Unavailable("omise: retrieve charge", err)
		}
		amount = ch.Amount - ch.Refunded
	}
	r := &omise.Refund{}
	if err := g.client.Do(r, &operations.CreateRefund{
		ChargeID: req.PaymentIntentID,
		Amount:   amount,
		Metadata: map[string]any{"reason": req.Reason, omiseIdempotencyKey: req.IdempotencyKey},
	}); err != nil {
		return nil, apperror.Unavailable("omise: create refund", err)
	}
	return refundFromOmise(req.PaymentIntentID, r), nil
}

const (
	omiseIdempotencyKey = "idempotency_key"
	omiseRefundPage     = 100
)

func (g *OmiseGateway) refundByKey(chargeID, key string) (*omise.Refund, error) {
	for offset := 0; ; offset += omiseRefundPage {
		list := &omise.RefundList{}
		if err := g.client.Do(list, &operations.ListRefunds{
			ChargeID: chargeID,
			List:     operations.List{Offset: offset, Limit: omiseRefundPage},
		}); err != nil {
			return nil, err
		}
		if r := refundWithKey(list.Data, key); r != nil {
			return r, nil
		}
		if len(list.Data) < omiseRefundPage || offset+omiseRefundPage >= list.Total {
			return nil, nil
		}
	}
}

func refundWithKey(refunds []*omise.Refund, key string) *omise.Refund {
	for _, r := range refunds {
		if r != nil && r.Metadata[omiseIdempotencyKey] == key {
			return r
		}
	}
	return nil
}

func refundFromOmise(chargeID string, r *omise.Refund) *Refund {
	return &Refund{
		ID:              r.ID,
		PaymentIntentID: chargeID,
		Amount:          r.Amount,
		Currency:        strings.ToLower(r.Currency),
		Status:          "succeeded",
	}
}

// RetrieveChargeNetAmount returns the captured amount; the charge object does not
// break out processor fees.
func (g *OmiseGateway) RetrieveChargeNetAmount(ctx context.Context, paymentIntentID string) (int64, error) {
	intent, err := g.RetrievePaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return 0, err
	}
	return intent.Amount, nil
}

type omiseIncomingEvent struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

func (g *OmiseGateway) ParseWebhook(_ context.Context, payload []byte, _ string) (*Event, error) {
	var inc omiseIncomingEvent
	if err := json.Unmarshal(payload, &inc); err != nil || inc.ID == "" {
		return nil, apperror.Validation("Malformed webhook payload")
	}

	ev := &omise.Event{}
	if err := g.client.Do(ev, &operations.RetrieveEvent{EventID: inc.ID}); err != nil {
		return nil, apperror.Validation("Webhook event could not be authenticated")
	}

	out := &Event{ID: ev.ID, ProviderType: ev.Key, Type: EventIgnored}
	if ev.Key != "charge.create" && ev.Key != "charge.complete" {
		return out, nil
	}
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, apperror.Validation("Malformed charge event")
	}
	var ch omise.Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, apperror.Validation("Malformed charge event")
	}

	intent := intentFromOmise(&ch)
	out.PaymentIntentID = intent.ID
	out.BookingID = intent.BookingID
	out.Amount = intent.Amount
	out.Currency = intent.Currency
	out.Method = intent.Method
	switch {
	case ev.Key == "charge.create":
		out.Type = EventIntentCreated
	case intent.Status == IntentSucceeded:
		out.Type = EventIntentSucceeded
	default:
		out.Type = EventIntentFailed
	}
	return out, nil
}

func intentFromOmise(ch *omise.Charge) *PaymentIntent {
	out := &PaymentIntent{
		ID:       ch.ID,
		Amount:   ch.Amount,
		Currency: strings.ToLower(ch.Currency),
		Method:   "card",
	}
	if id, ok := ch.Metadata["booking_id"].(string); ok {
		out.BookingID = ParseBookingID(id)
	}
	if ch.Source != nil && ch.Source.Type != "" {
		out.Method = ch.Source.Type
	}
	out.Status = omiseStatus(string(ch.Status))
	return out
}

func omiseStatus(status string) IntentStatus {
	switch status {
	case "successful":
		return IntentSucceeded
	case "failed", "expired", "reversed":
		return IntentCanceled
	default:
		return IntentPending
	}
}
