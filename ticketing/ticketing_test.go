package ticketing

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_RoundTrip(t *testing.T) {
	s, err := NewSigner("top-secret")
	require.NoError(t, err)

	issued := time.Unix(1_700_000_000, 0)
	code, err := s.Sign(Payload{TicketCode: "TKT-abc", BookingID: 4, CustomerID: 2, SessionID: 9, Seat: "B3", IssuedAt: issued})
	require.NoError(t, err)

	p, err := s.Verify(code)
	require.NoError(t, err)
	assert.Equal(t, "TKT-abc", p.TicketCode)
	assert.Equal(t, uint(4), p.BookingID)
	assert.Equal(t, uint(2), p.CustomerID)
	assert.Equal(t, uint(9), p.SessionID)
	assert.Equal(t, "B3", p.Seat)
	assert.True(t, issued.Equal(p.IssuedAt))
}

func TestSigner_RejectsTamperedAndForeignCodes(t *testing.T) {
	s, err := NewSigner("top-secret")
	require.NoError(t, err)
	other, err := NewSigner("other-secret")
	require.NoError(t, err)

	code, err := s.Sign(Payload{TicketCode: "TKT-abc", Seat: "A1", IssuedAt: time.Now()})
	require.NoError(t, err)

	parts := strings.Split(code, ".")
	require.Len(t, parts, 3)
	forgedSig := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = s.Verify(forgedSig)
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = other.Verify(code)
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = s.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestNewSigner_EmptySecret(t *testing.T) {
	_, err := NewSigner("")
	assert.Error(t, err)
}

func TestGenerateQRCode(t *testing.T) {
	data, err := GenerateQRCode("TKT-abc", DefaultQRSize)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultQRSize, img.Bounds().Dx())
}

func TestAttachmentName(t *testing.T) {
	assert.Equal(t, "ticket-the-grand-budapest-hotel-a1.png", AttachmentName("The Grand Budapest Hotel", "A1"))
	assert.Equal(t, "ticket-session-b2.png", AttachmentName("", "B2"))
}
