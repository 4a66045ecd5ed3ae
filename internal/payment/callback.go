package payment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/checksum"
	"github.com/natureofthedivine/storefront/internal/domain"
	"github.com/natureofthedivine/storefront/internal/gateway"
)

// Callback is one gateway notification: the base64 "response" field of the
// body and the X-VERIFY header that signs it.
type Callback struct {
	Response string
	Header   string
}

// HandleCallback authenticates a gateway callback, re-confirms the payment
// with the gateway's status endpoint and applies the resulting transition.
//
// The callback body only identifies the transaction; its reported status is
// never applied. A nil error means the callback should be acknowledged, even
// when the record was unknown, already terminal or the status check could not
// be made. Errors wrapping apperr.ErrChecksumMismatch or
// apperr.ErrMalformedPayload mean the callback is rejected; any other error
// means the gateway should retry.
func (s *Service) HandleCallback(ctx context.Context, kind domain.Kind, cb Callback) (domain.CallbackOutcome, error) {
	entry := &domain.CallbackLog{
		ID:         uuid.New().String(),
		Kind:       kind,
		Payload:    cb.Response,
		ReceivedAt: s.now().UTC(),
	}
	outcome, err := s.handleCallback(ctx, kind, cb, entry)
	entry.Outcome = outcome
	s.record(ctx, entry)
	return outcome, err
}

func (s *Service) handleCallback(ctx context.Context, kind domain.Kind, cb Callback, entry *domain.CallbackLog) (domain.CallbackOutcome, error) {
	if !kind.Valid() {
		return domain.OutcomeMalformed, fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidRequest, kind)
	}
	if !checksum.Verify(cb.Response, cb.Header, s.salt) {
		if _, index, ok := checksum.SplitHeader(cb.Header); ok {
			log.Printf("[payment] WARNING: %s callback rejected: checksum mismatch (salt index %d, expected %d)", kind, index, s.salt.Index)
		} else {
			log.Printf("[payment] WARNING: %s callback rejected: X-VERIFY header missing or malformed", kind)
		}
		return domain.OutcomeRejected, apperr.ErrChecksumMismatch
	}
	entry.Verified = true

	reported, err := gateway.DecodeCallback(cb.Response)
	if err != nil {
		log.Printf("[payment] WARNING: %s callback malformed: %v", kind, err)
		return domain.OutcomeMalformed, err
	}
	txn := reported.Data.MerchantTransactionID
	entry.MerchantTransactionID = txn

	p, err := s.store.FindPayment(ctx, kind, txn)
	if err != nil {
		if errors.Is(err, apperr.ErrRecordNotFound) {
			log.Printf("[payment] WARNING: %s callback for unknown transaction %s (reported %s)", kind, txn, reported.Code)
			return domain.OutcomeUnknownTransaction, nil
		}
		return domain.OutcomeError, fmt.Errorf("find %s %s: %w", kind, txn, err)
	}

	res, err := s.confirm(ctx, kind, p)
	if err != nil {
		if errors.Is(err, apperr.ErrGatewayUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[payment] WARNING: status check for %s %s failed, left PENDING: %v", kind, txn, err)
			return domain.OutcomeGatewayUnavailable, nil
		}
		return domain.OutcomeError, err
	}
	if !res.Applied {
		log.Printf("[payment] %s %s already settled, callback (reported %s) ignored", kind, txn, reported.Code)
		return domain.OutcomeDuplicate, nil
	}
	return domain.OutcomeApplied, nil
}

// Confirmation is the result of re-checking one transaction.
type Confirmation struct {
	MerchantTransactionID string               `json:"merchantTransactionId"`
	Status                domain.PaymentStatus `json:"status"`
	Code                  string               `json:"code"`
	Applied               bool                 `json:"applied"`
}

// confirm asks the gateway for the status of p and moves the record out
// of PENDING accordingly: PAYMENT_SUCCESS becomes SUCCESS, every other
// answer FAILURE.
func (s *Service) confirm(ctx context.Context, kind domain.Kind, p *domain.Payment) (Confirmation, error) {
	status, err := s.gateway.Status(ctx, p.MerchantTransactionID)
	if err != nil {
		return Confirmation{}, fmt.Errorf("status check %s: %w", p.MerchantTransactionID, err)
	}
	return s.apply(ctx, kind, p, status)
}

func (s *Service) apply(ctx context.Context, kind domain.Kind, p *domain.Payment, status gateway.StatusResult) (Confirmation, error) {
	txn := p.MerchantTransactionID
	to := domain.StatusFailure
	switch status.Outcome {
	case gateway.OutcomeSuccess:
		// A success for another transaction or amount settles nothing.
		if status.Data.MerchantTransactionID != txn || status.Data.Amount != p.Amount {
			log.Printf("[payment] WARNING: status for %s %s reports %s amount %d, record has amount %d, treating as FAILURE",
				kind, txn, status.Data.MerchantTransactionID, status.Data.Amount, p.Amount)
			break
		}
		to = domain.StatusSuccess
	case gateway.OutcomeUnrecognized:
		log.Printf("[payment] WARNING: unrecognized status response for %s %s, treating as FAILURE", kind, txn)
	}

	applied, err := s.store.Transition(ctx, kind, txn, domain.Transition{
		To:      to,
		Details: status.Details(),
		At:      s.now(),
	})
	if err != nil {
		return Confirmation{}, fmt.Errorf("transition %s %s: %w", kind, txn, err)
	}
	if applied {
		log.Printf("[payment] %s %s -> %s (%s)", kind, txn, to, status.Code)
	}
	return Confirmation{MerchantTransactionID: txn, Status: to, Code: status.Code, Applied: applied}, nil
}

// Recheck re-confirms a record that never received a usable callback. Unlike
// a callback, a gateway answer of PAYMENT_PENDING leaves the record PENDING:
// the payer may still be at the gateway.
func (s *Service) Recheck(ctx context.Context, kind domain.Kind, txn string) (Confirmation, error) {
	p, err := s.store.FindPayment(ctx, kind, txn)
	if err != nil {
		return Confirmation{}, fmt.Errorf("find %s %s: %w", kind, txn, err)
	}
	status, err := s.gateway.Status(ctx, txn)
	if err != nil {
		return Confirmation{}, fmt.Errorf("status check %s: %w", txn, err)
	}
	if status.Outcome == gateway.OutcomeFailure && status.Code == gateway.CodePaymentPending {
		return Confirmation{MerchantTransactionID: txn, Status: domain.StatusPending, Code: status.Code}, nil
	}
	return s.apply(ctx, kind, p, status)
}

// record appends the callback to the audit log and archive. Failures are
// logged; they never change how the callback is answered.
func (s *Service) record(ctx context.Context, entry *domain.CallbackLog) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.LogCallback(ctx, entry); err != nil {
		log.Printf("[payment] WARNING: could not log callback %s: %v", entry.ID, err)
	}
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, entry); err != nil {
		log.Printf("[payment] WARNING: could not archive callback %s: %v", entry.ID, err)
	}
}
