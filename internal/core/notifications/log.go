package notifications

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LogNotifier writes notices to the log instead of delivering them. It is
// the development default.
type LogNotifier struct {
	log *zap.Logger
	loc *time.Location
}

func NewLogNotifier(log *zap.Logger, loc *time.Location) *LogNotifier {
	return &LogNotifier{log: log, loc: loc}
}

func (n *LogNotifier) SendTransferNotice(ctx context.Context, guardianEmail string, notice TransferNotice) error {
	msg := ComposeTransferNotice(notice, n.loc)
	n.log.Info("📧 Guardian notice",
		zap.String("to", guardianEmail),
		zap.String("subject", msg.Subject),
		zap.Stringer("transaction_id", notice.TransactionID),
		zap.String("amount", notice.Amount.StringFixed(2)),
	)
	return nil
}

func (n *LogNotifier) SendLimitExceededNotice(ctx context.Context, guardianEmail string, notice LimitNotice) error {
	msg := ComposeLimitExceededNotice(notice, n.loc)
	n.log.Info("📧 Guardian limit notice",
		zap.String("to", guardianEmail),
		zap.String("subject", msg.Subject),
		zap.String("limit_kind", string(notice.LimitKind)),
		zap.String("amount", notice.Amount.StringFixed(2)),
	)
	return nil
}
