package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

// Wrap translates an upstream error into the domain kind the job queue
// acts on. Retryable failures and an open breaker become ErrTemporary and
// the job is requeued. Rejections the classifier marks Permanent become
// ErrPermanent and the job fails on the spot. Cancellation, expired
// deadlines and unclassified errors pass through unchanged; the queue
// retries those up to its cap with a fresh deadline each time.
func Wrap(operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrPermanent) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	class := classifier(err)
	switch {
	case class.Permanent:
		return domain.WrapError(domain.ErrPermanent, operation, err)
	case class.Retryable:
		return domain.WrapError(domain.ErrTemporary, operation, err)
	default:
		return err
	}
}
