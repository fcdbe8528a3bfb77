package mailer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderConfirmation(t *testing.T) {
	html, err := RenderConfirmation(Confirmation{
		CustomerName: "Ana",
		BookingCode:  "BK-1234",
		MovieTitle:   "Alien",
		RoomName:     "Room 2",
		StartTime:    time.Date(2026, 3, 4, 20, 30, 0, 0, time.UTC),
		Seats:        []string{"A1", "A2"},
		TotalAmount:  2650,
		Currency:     "usd",
		Tickets: []TicketAttachment{
			{Code: "TKT-1", Seat: "A1", FileName: "ticket-alien-a1.png"},
			{Code: "TKT-2", Seat: "A2", FileName: "ticket-alien-a2.png"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "BK-1234")
	assert.Contains(t, html, "A1, A2")
	assert.Contains(t, html, "26.50 USD")
	assert.Contains(t, html, "cid:ticket-alien-a2.png")
	assert.Contains(t, html, "TKT-2")
}

func TestRenderRefundNotice(t *testing.T) {
	body := RenderRefundNotice(RefundNotice{
		BookingCode: "BK-9",
		MovieTitle:  "Alien",
		Seats:       []string{"B4"},
		Amount:      500,
		Currency:    "usd",
		Percent:     50,
	})
	assert.Contains(t, body, "BK-9")
	assert.Contains(t, body, "5.00 USD")
	assert.Contains(t, body, "50%")
}

func TestSendRespectsCancelledContext(t *testing.T) {
	m := New(SMTPConfig{Host: "localhost", Port: 2525, From: "a@b.c"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.SendBookingConfirmation(ctx, Confirmation{To: "x@y.z"}), context.Canceled)
	assert.ErrorIs(t, m.SendRefundNotice(ctx, RefundNotice{To: "x@y.z"}), context.Canceled)
}
