// Package voucher renders proof-of-transfer documents and stores them where
// they can be fetched by a public reference.
package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BatiOli9/IDDO/internal/core/domain"
)

const ContentType = "text/plain; charset=utf-8"

var (
	ErrRender = errors.New("voucher render failed")
	ErrUpload = errors.New("voucher upload failed")
)

// Blobs persists rendered vouchers under a file name.
type Blobs interface {
	PutVoucher(ctx context.Context, name, contentType string, body []byte) error
}

type Generator struct {
	blobs   Blobs
	baseURL string
	loc     *time.Location
	now     func() time.Time
}

func NewGenerator(blobs Blobs, publicBaseURL string, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{
		blobs:   blobs,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		loc:     loc,
		now:     time.Now,
	}
}

// Generate renders, stores and returns the public reference of the voucher
// for a committed transaction. Calling it twice stores two documents.
func (g *Generator) Generate(ctx context.Context, d domain.VoucherDetails) (string, error) {
	body, err := Render(d, g.loc)
	if err != nil {
		return "", err
	}

	name := FileName(d.Transaction.ID.String(), g.now())
	if err := g.blobs.PutVoucher(ctx, name, ContentType, body); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUpload, name, err)
	}
	return g.URL(name), nil
}

// URL is the public reference for a stored voucher name.
func (g *Generator) URL(name string) string {
	return g.baseURL + "/v1/vouchers/" + name
}

// FileName is voucher_<transaction id>_<unix millis>.txt.
func FileName(transactionID string, at time.Time) string {
	return fmt.Sprintf("voucher_%s_%d.txt", transactionID, at.UnixMilli())
}

// Render produces the voucher document.
func Render(d domain.VoucherDetails, loc *time.Location) ([]byte, error) {
	tx := d.Transaction
	if tx.ID == uuid.Nil || !tx.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: transaction %s has no positive amount", ErrRender, tx.ID)
	}
	if d.Sender.Name == "" || d.Receiver.Name == "" {
		return nil, fmt.Errorf("%w: missing party names", ErrRender)
	}

	var b strings.Builder
	b.WriteString("Comprobante de transferencia\n")
	b.WriteString(strings.Repeat("=", 28) + "\n\n")
	fmt.Fprintf(&b, "Fecha:        %s\n", domain.FormatLocal(tx.CreatedAt, loc))
	fmt.Fprintf(&b, "Operación:    %s\n", tx.ID)
	fmt.Fprintf(&b, "Monto:        %s\n\n", domain.FormatARS(tx.Amount))
	b.WriteString("De\n")
	fmt.Fprintf(&b, "  %s\n  CVU %s\n\n", d.Sender.Name, d.Sender.CVU)
	b.WriteString("Para\n")
	fmt.Fprintf(&b, "  %s\n  CVU %s\n\n", d.Receiver.Name, d.Receiver.CVU)
	b.WriteString("IDDO\n")
	return []byte(b.String()), nil
}
