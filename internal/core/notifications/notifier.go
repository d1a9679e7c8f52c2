// Package notifications tells guardians what their minors are doing with
// their accounts. Delivery is always best effort: callers log failures and
// move on.
package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BatiOli9/IDDO/internal/core/domain"
)

// Notifier delivers guardian notices.
type Notifier interface {
	SendTransferNotice(ctx context.Context, guardianEmail string, n TransferNotice) error
	SendLimitExceededNotice(ctx context.Context, guardianEmail string, n LimitNotice) error
}

// TransferNotice reports a committed transfer made by a minor.
type TransferNotice struct {
	ChildName     string          `json:"child_name"`
	ReceiverName  string          `json:"receiver_name"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	VoucherURL    string          `json:"voucher_url,omitempty"`
}

// LimitNotice reports a transfer blocked by a guardian limit.
type LimitNotice struct {
	ChildName    string           `json:"child_name"`
	ReceiverName string           `json:"receiver_name"`
	Amount       decimal.Decimal  `json:"amount"`
	Limit        decimal.Decimal  `json:"limit"`
	LimitKind    domain.LimitKind `json:"limit_kind"`
	Date         time.Time        `json:"date"`
}

// Message is a rendered mail: subject and plain-text body.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ComposeTransferNotice renders the "your child spent money" mail.
func ComposeTransferNotice(n TransferNotice, loc *time.Location) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hola, te informamos que tu hijo/a %s realizó una transferencia:\n\n", n.ChildName)
	fmt.Fprintf(&b, "%s\n\n", domain.FormatARS(n.Amount))
	fmt.Fprintf(&b, "Destinatario: %s\n", n.ReceiverName)
	fmt.Fprintf(&b, "Fecha: %s\n", domain.FormatLocal(n.Date, loc))
	if n.VoucherURL != "" {
		fmt.Fprintf(&b, "Comprobante: %s\n", n.VoucherURL)
	}
	b.WriteString("\nSi no reconocés este movimiento, por favor comunicate con soporte.\n\nIDDO\n")

	return Message{Subject: "Notificación de gasto de tu hijo/a", Body: b.String()}
}

// ComposeLimitExceededNotice renders the "transfer blocked" mail.
func ComposeLimitExceededNotice(n LimitNotice, loc *time.Location) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Le informamos que su hijo/a %s intentó realizar una transferencia que excede %s.\n\n",
		n.ChildName, limitPhrase(n.LimitKind))
	fmt.Fprintf(&b, "Monto intentado: %s\n", domain.FormatARS(n.Amount))
	if n.LimitKind != domain.LimitNotConfigured {
		fmt.Fprintf(&b, "%s: %s\n", limitLabel(n.LimitKind), domain.FormatARS(n.Limit))
	}
	fmt.Fprintf(&b, "Destinatario: %s\n", n.ReceiverName)
	fmt.Fprintf(&b, "Fecha: %s\n", domain.FormatLocal(n.Date, loc))
	b.WriteString("\nLa operación fue bloqueada automáticamente por el sistema.\n\nIDDO\n")

	return Message{Subject: limitSubject(n.LimitKind), Body: b.String()}
}

func limitPhrase(k domain.LimitKind) string {
	switch k {
	case domain.LimitPerTransaction:
		return "el límite por transferencia permitido"
	case domain.LimitNotConfigured:
		return "lo permitido, ya que la cuenta no tiene límites configurados"
	default:
		return "el límite diario permitido"
	}
}

func limitLabel(k domain.LimitKind) string {
	if k == domain.LimitPerTransaction {
		return "Límite por transferencia permitido"
	}
	return "Límite diario permitido"
}

func limitSubject(k domain.LimitKind) string {
	switch k {
	case domain.LimitPerTransaction:
		return "Intento de transferencia bloqueado por límite por transferencia"
	case domain.LimitNotConfigured:
		return "Intento de transferencia bloqueado: cuenta sin límites configurados"
	default:
		return "Intento de transferencia bloqueado por límite diario"
	}
}
