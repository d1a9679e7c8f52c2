package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/BatiOli9/IDDO/internal/core/domain"
	"github.com/BatiOli9/IDDO/internal/core/notifications"
	"github.com/BatiOli9/IDDO/internal/core/worker"
)

var errNoGuardian = errors.New("no guardian linked")

// afterCommit queues voucher generation and the guardian notice, then waits
// up to VoucherWait for the voucher reference. It never fails: the transfer
// is already committed. pending reports whether the voucher may still show
// up later.
func (e *Engine) afterCommit(ctx context.Context, tx domain.Transaction, sender, receiver domain.User) (ref string, pending bool) {
	done := make(chan string, 1)
	job := worker.Job{
		Name: "transfer.post_commit",
		Run: func(jobCtx context.Context) error {
			e.runSideEffects(jobCtx, tx, sender, receiver, done)
			return nil
		},
	}
	if err := e.dispatcher.Submit(job); err != nil {
		e.log.Error("Could not queue post-commit work",
			zap.Stringer("transaction_id", tx.ID),
			zap.Error(err),
		)
		return "", false
	}

	if e.opts.VoucherWait <= 0 {
		return "", true
	}
	timer := time.NewTimer(e.opts.VoucherWait)
	defer timer.Stop()

	select {
	case ref, ok := <-done:
		if !ok {
			return "", false
		}
		return ref, false
	case <-timer.C:
		return "", true
	case <-ctx.Done():
		return "", true
	}
}

// runSideEffects generates and attaches the voucher, signals done, then
// notifies the guardian of a minor sender. The voucher and the notice are
// retried separately so a flaky mail service never regenerates a voucher.
func (e *Engine) runSideEffects(ctx context.Context, tx domain.Transaction, sender, receiver domain.User, done chan<- string) {
	ref, err := worker.Retry(ctx, e.opts.SideEffectRetry, func(ctx context.Context) (string, error) {
		return e.vouchers.Generate(ctx, domain.VoucherDetails{Transaction: tx, Sender: sender, Receiver: receiver})
	})
	if err == nil {
		_, err = worker.Retry(ctx, e.opts.SideEffectRetry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.store.AttachVoucher(ctx, tx.ID, ref)
		})
	}
	if err != nil {
		e.log.Error("Voucher generation failed",
			zap.Stringer("transaction_id", tx.ID),
			zap.Error(err),
		)
		ref = ""
	} else {
		done <- ref
	}
	close(done)

	if !sender.IsMinor {
		return
	}
	notice := notifications.TransferNotice{
		ChildName:     sender.Name,
		ReceiverName:  receiver.Name,
		Amount:        tx.Amount,
		Date:          tx.CreatedAt,
		TransactionID: tx.ID,
		VoucherURL:    ref,
	}
	err = e.notifyGuardian(ctx, sender, func(ctx context.Context, email string) error {
		return e.notifier.SendTransferNotice(ctx, email, notice)
	})
	e.logNotice(err, "transfer", sender)
}

// notifyLimitLater queues a limit-exceeded notice. The rejection is returned
// to the caller without waiting for it.
func (e *Engine) notifyLimitLater(sender, receiver domain.User, amount decimal.Decimal, kind domain.LimitKind, limit decimal.Decimal) {
	notice := notifications.LimitNotice{
		ChildName:    sender.Name,
		ReceiverName: receiver.Name,
		Amount:       amount,
		Limit:        limit,
		LimitKind:    kind,
		Date:         e.policy.Now(),
	}
	job := worker.Job{
		Name: "transfer.limit_notice",
		Run: func(ctx context.Context) error {
			err := e.notifyGuardian(ctx, sender, func(ctx context.Context, email string) error {
				return e.notifier.SendLimitExceededNotice(ctx, email, notice)
			})
			e.logNotice(err, "limit", sender)
			return nil
		},
	}
	if err := e.dispatcher.Submit(job); err != nil {
		e.log.Error("Could not queue limit notice", zap.Stringer("sender_id", sender.ID), zap.Error(err))
	}
}

func (e *Engine) notifyGuardian(ctx context.Context, child domain.User, send func(ctx context.Context, email string) error) error {
	link, err := e.store.GuardianOf(ctx, child.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return errNoGuardian
		}
		return fmt.Errorf("load guardian link: %w", err)
	}
	guardian, err := e.store.User(ctx, link.ParentID)
	if err != nil {
		return fmt.Errorf("load guardian %s: %w", link.ParentID, err)
	}
	if guardian.Email == "" {
		return fmt.Errorf("guardian %s has no email", guardian.ID)
	}

	_, err = worker.Retry(ctx, e.opts.SideEffectRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, send(ctx, guardian.Email)
	})
	return err
}

func (e *Engine) logNotice(err error, kind string, child domain.User) {
	switch {
	case err == nil:
		e.log.Debug("Guardian notified", zap.String("notice", kind), zap.Stringer("child_id", child.ID))
	case errors.Is(err, errNoGuardian):
		e.log.Warn("Minor has no guardian to notify", zap.String("notice", kind), zap.Stringer("child_id", child.ID))
	default:
		e.log.Error("Guardian notification failed",
			zap.String("notice", kind),
			zap.Stringer("child_id", child.ID),
			zap.Error(err),
		)
	}
}
