package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/smtp"
	"strings"
	"time"

	"cinema_booking/utils"

	"github.com/jordan-wright/email"
	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var confirmationTmpl = template.Must(
	template.New("booking_confirmed.html").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(templateFS, "templates/booking_confirmed.html"),
)

type TicketAttachment struct {
	Code     string
	Seat     string
	FileName string
	PNG      []byte
}

type Confirmation struct {
	To           string
	CustomerName string
	BookingCode  string
	MovieTitle   string
	RoomName     string
	StartTime    time.Time
	Seats        []string
	TotalAmount  int64
	Currency     string
	DetailLink   string
	Tickets      []TicketAttachment
}

type RefundNotice struct {
	To          string
	BookingCode string
	MovieTitle  string
	Seats       []string
	Amount      int64
	Currency    string
	Percent     int
	Reason      string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Mailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func New(cfg SMTPConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

type confirmationView struct {
	Confirmation
	Total     string
	StartTime string
}

func RenderConfirmation(c Confirmation) (string, error) {
	var body bytes.Buffer
	view := confirmationView{
		Confirmation: c,
		Total:        utils.FormatAmount(c.TotalAmount, c.Currency),
		StartTime:    c.StartTime.Format("Mon 02 Jan 2006 15:04"),
	}
	if err := confirmationTmpl.Execute(&body, view); err != nil {
		return "", fmt.Errorf("render confirmation: %w", err)
	}
	return body.String(), nil
}

// SendBookingConfirmation mails every ticket code with its QR image embedded inline.
func (m *Mailer) SendBookingConfirmation(ctx context.Context, c Confirmation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	html, err := RenderConfirmation(c)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", c.To)
	msg.SetHeader("Subject", "Booking confirmed #"+c.BookingCode)
	msg.SetBody("text/html", html)
	for _, t := range c.Tickets {
		png := t.PNG
		msg.Embed(t.FileName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(png)
			return err
		}))
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send confirmation to %s: %w", c.To, err)
	}
	return nil
}

func RenderRefundNotice(n RefundNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your booking %s for %s has been updated.\n\n", n.BookingCode, n.MovieTitle)
	fmt.Fprintf(&b, "Refunded seats: %s\n", strings.Join(n.Seats, ", "))
	fmt.Fprintf(&b, "Refund amount: %s (%d%% of the amount charged for these seats)\n",
		utils.FormatAmount(n.Amount, n.Currency), n.Percent)
	if n.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", n.Reason)
	}
	b.WriteString("\nRefunds usually reach your account within 5-10 business days.\n")
	return b.String()
}

func (m *Mailer) SendRefundNotice(ctx context.Context, n RefundNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = []string{n.To}
	e.Subject = "Refund for booking #" + n.BookingCode
	e.Text = []byte(RenderRefundNotice(n))

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := e.Send(addr, smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
		return fmt.Errorf("send refund notice to %s: %w", n.To, err)
	}
	return nil
}

// Nop discards every message; used when SMTP is not configured.
type Nop struct{}

func (Nop) SendBookingConfirmation(context.Context, Confirmation) error { return nil }

func (Nop) SendRefundNotice(context.Context, RefundNotice) error { return nil }
