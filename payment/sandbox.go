package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cinema_booking/apperror"
)

const (
	OpOpenSession    = "open_session"
	OpRetrieve       = "retrieve"
	OpCancel         = "cancel"
	OpRefund         = "refund"
	OpNetAmount      = "net_amount"
	OpExpireSession  = "expire_session"
	SandboxSignature = "X-Sandbox-Signature"
)

// SandboxGateway is an in-process processor for local development and tests.
// Webhook bodies are signed with HMAC-SHA512 over the raw payload.
type SandboxGateway struct {
	mu             sync.Mutex
	secret         []byte
	baseURL        string
	seq            int
	feeBasisPoints int64
	intents        map[string]*PaymentIntent
	sessions       map[string]*CheckoutSession
	refunded       map[string]int64
	refunds        map[string]*Refund
	failures       map[string]error
	calls          map[string]int
}

func NewSandboxGateway(secret, baseURL string) *SandboxGateway {
	return &SandboxGateway{
		secret:   []byte(secret),
		baseURL:  strings.TrimRight(baseURL, "/"),
		intents:  map[string]*PaymentIntent{},
		sessions: map[string]*CheckoutSession{},
		refunded: map[string]int64{},
		refunds:  map[string]*Refund{},
		failures: map[string]error{},
		calls:    map[string]int{},
	}
}

// SetFee makes RetrieveChargeNetAmount deduct bps/10000 of the charged amount.
func (g *SandboxGateway) SetFee(bps int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feeBasisPoints = bps
}

// FailOn makes every call of op fail with err until cleared with a nil err.
func (g *SandboxGateway) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, op)
		return
	}
	g.failures[op] = err
}

// Calls reports how many times op was invoked, including failed calls.
func (g *SandboxGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *SandboxGateway) enter(op string) error {
	g.calls[op]++
	if err := g.failures[op]; err != nil {
		return apperror.Unavailable("sandbox: "+op, err)
	}
	return nil
}

func (g *SandboxGateway) Name() string {
	return "sandbox"
}

func (g *SandboxGateway) SignatureHeader() string {
	return SandboxSignature
}

func (g *SandboxGateway) OpenPaymentSession(_ context.Context, req SessionRequest) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpOpenSession); err != nil {
		return nil, err
	}
	g.seq++
	intent := &PaymentIntent{
		ID:        fmt.Sprintf("pi_sbx_%d", g.seq),
		Status:    IntentPending,
		Amount:    req.Amount,
		Currency:  strings.ToLower(req.Currency),
		Method:    "card",
		BookingID: req.BookingID,
	}
	g.intents[intent.ID] = intent
	csID := fmt.Sprintf("cs_sbx_%d", g.seq)
	cs := &CheckoutSession{
		ID:              csID,
		URL:             fmt.Sprintf("%s/checkout/%s", g.baseURL, csID),
		PaymentIntentID: intent.ID,
		Status:          SessionOpen,
	}
	g.sessions[csID] = cs
	copied := *cs
	return &copied, nil
}

// ExpireCheckoutSession expires an open session and cancels its pending intent. A
// session whose intent succeeded reports complete.
func (g *SandboxGateway) ExpireCheckoutSession(_ context.Context, id string) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpExpireSession); err != nil {
		return nil, err
	}
	cs, ok := g.sessions[id]
	if !ok {
		return nil, apperror.Unavailable("sandbox: expire session", fmt.Errorf("no such checkout session %s", id))
	}
	intent := g.intents[cs.PaymentIntentID]
	switch {
	case intent != nil && intent.Status == IntentSucceeded:
		cs.Status = SessionComplete
	case cs.Status == SessionOpen:
		cs.Status = SessionExpired
		if intent != nil && intent.Status == IntentPending {
			intent.Status = IntentCanceled
		}
	}
	copied := *cs
	return &copied, nil
}

// CheckoutStatus reports the current state of a checkout session.
func (g *SandboxGateway) CheckoutStatus(id string) SessionStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cs, ok := g.sessions[id]; ok {
		return cs.Status
	}
	return ""
}

func (g *SandboxGateway) RetrievePaymentIntent(_ context.Context, id string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpRetrieve); err != nil {
		return nil, err
	}
	intent, ok := g.intents[id]
	if !ok {
		return nil, apperror.Unavailable("sandbox: retrieve", fmt.Errorf("no such payment intent %s", id))
	}
	copied := *intent
	return &copied, nil
}

func (g *SandboxGateway) CancelPaymentIntent(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpCancel); err != nil {
		return err
	}
	intent, ok := g.intents[id]
	if !ok {
		return apperror.Unavailable("sandbox: cancel", fmt.Errorf("no such payment intent %s", id))
	}
	if intent.Status == IntentPending {
		intent.Status = IntentCanceled
	}
	return nil
}

func (g *SandboxGateway) CreateRefund(_ context.Context, req RefundRequest) (*Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpRefund); err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		if prior, ok := g.refunds[req.IdempotencyKey]; ok {
			copied := *prior
			return &copied, nil
		}
	}
	intent, ok := g.intents[req.PaymentIntentID]
	if !ok || intent.Status != IntentSucceeded {
		return nil, apperror.Unavailable("sandbox: refund", fmt.Errorf("payment intent %s is not refundable", req.PaymentIntentID))
	}
	remaining := intent.Amount - g.refunded[intent.ID]
	amount := req.Amount
	if amount == 0 {
		amount = remaining
	}
	if amount <= 0 || amount > remaining {
		return nil, apperror.Unavailable("sandbox: refund", fmt.Errorf("refund of %d exceeds remaining %d", amount, remaining))
	}
	g.refunded[intent.ID] += amount
	g.seq++
	refund := &Refund{
		ID:              fmt.Sprintf("re_sbx_%d", g.seq),
		PaymentIntentID: intent.ID,
		Amount:          amount,
		Currency:        intent.Currency,
		Status:          "succeeded",
	}
	if req.IdempotencyKey != "" {
		g.refunds[req.IdempotencyKey] = refund
	}
	copied := *refund
	return &copied, nil
}

// Refunded is the total refunded so far against a payment intent.
func (g *SandboxGateway) Refunded(paymentIntentID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[paymentIntentID]
}

func (g *SandboxGateway) RetrieveChargeNetAmount(_ context.Context, paymentIntentID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpNetAmount); err != nil {
		return 0, err
	}
	intent, ok := g.intents[paymentIntentID]
	if !ok || intent.Status != IntentSucceeded {
		return 0, apperror.Unavailable("sandbox: net amount", fmt.Errorf("payment intent %s has no charge", paymentIntentID))
	}
	return intent.Amount - intent.Amount*g.feeBasisPoints/10000, nil
}

type sandboxEvent struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
	BookingID       uint      `json:"bookingId"`
	PaymentIntentID string    `json:"paymentIntentId"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Method          string    `json:"method"`
}

// Succeed settles a pending intent and returns the signed webhook the processor would deliver.
func (g *SandboxGateway) Succeed(paymentIntentID string) (payload []byte, signature string, err error) {
	g.mu.Lock()
	intent, ok := g.intents[paymentIntentID]
	if !ok {
		g.mu.Unlock()
		return nil, "", fmt.Errorf("no such payment intent %s", paymentIntentID)
	}
	intent.Status = IntentSucceeded
	g.seq++
	ev := sandboxEvent{
		ID:              fmt.Sprintf("evt_sbx_%d", g.seq),
		Type:            EventIntentSucceeded,
		BookingID:       intent.BookingID,
		PaymentIntentID: intent.ID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Method:          intent.Method,
	}
	g.mu.Unlock()

	payload, err = json.Marshal(ev)
	if err != nil {
		return nil, "", err
	}
	return payload, g.Sign(payload), nil
}

func (g *SandboxGateway) Sign(payload []byte) string {
	mac := hmac.New(sha512.New, g.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *SandboxGateway) ParseWebhook(_ context.Context, payload []byte, signature string) (*Event, error) {
	expected := g.Sign(payload)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return nil, apperror.Validation("Invalid webhook signature")
	}
	var ev sandboxEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, apperror.Validation("Malformed webhook payload")
	}
	return &Event{
		ID:              ev.ID,
		Type:            ev.Type,
		ProviderType:    string(ev.Type),
		BookingID:       ev.BookingID,
		PaymentIntentID: ev.PaymentIntentID,
		Amount:          ev.Amount,
		Currency:        ev.Currency,
		Method:          ev.Method,
	}, nil
}
