// Package payment runs the order and donation payment lifecycle: initiation
// at the gateway, verified callbacks and status queries.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/checksum"
	"github.com/natureofthedivine/storefront/internal/currency"
	"github.com/natureofthedivine/storefront/internal/domain"
	"github.com/natureofthedivine/storefront/internal/gateway"
	"github.com/natureofthedivine/storefront/internal/pricing"
)

// Store is the record store the lifecycle needs.
type Store interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	CreateDonation(ctx context.Context, d *domain.Donation) error
	GetDonation(ctx context.Context, id string) (*domain.Donation, error)
	FindPayment(ctx context.Context, kind domain.Kind, merchantTxnID string) (*domain.Payment, error)
	Transition(ctx context.Context, kind domain.Kind, merchantTxnID string, t domain.Transition) (bool, error)
	LogCallback(ctx context.Context, l *domain.CallbackLog) error
}

// Gateway is implemented by *gateway.Client.
type Gateway interface {
	Pay(ctx context.Context, pr gateway.PayRequest) (string, error)
	Status(ctx context.Context, merchantTxnID string) (gateway.StatusResult, error)
}

// Pricer is implemented by *pricing.Resolver.
type Pricer interface {
	Resolve(ctx context.Context, hint pricing.Hint) pricing.Quote
}

// Archiver keeps a copy of raw callback payloads outside the store.
type Archiver interface {
	Archive(ctx context.Context, l *domain.CallbackLog) error
}

type Service struct {
	store   Store
	gateway Gateway
	pricer  Pricer
	salt    checksum.Salt
	baseURL string

	archiver Archiver
	now      func() time.Time
}

// NewService wires the lifecycle. salt must belong to the same key set as
// gw; baseURL is the public origin the gateway calls back and redirects to.
func NewService(store Store, gw Gateway, pricer Pricer, salt checksum.Salt, baseURL string) *Service {
	return &Service{
		store:   store,
		gateway: gw,
		pricer:  pricer,
		salt:    salt,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// SetArchiver enables copying every callback to a.
func (s *Service) SetArchiver(a Archiver) {
	s.archiver = a
}

// InitiateOrder prices the order, stores it PENDING and registers the
// payment with the gateway.
func (s *Service) InitiateOrder(ctx context.Context, req OrderRequest) (*Initiation, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	quote := s.pricer.Resolve(ctx, req.Hint)
	price, ok := quote.Price(req.Variant)
	if !ok {
		return nil, invalid("unknown variant %q", req.Variant)
	}
	amount, err := currency.ToMinor(price.Mul(decimal.NewFromInt(int64(req.Quantity))), quote.Currency)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", req.Variant, err)
	}

	now := s.now().UTC()
	o := &domain.Order{
		Payment:           s.newPayment(req.UserID, amount, quote.Currency, now),
		Variant:           req.Variant,
		Quantity:          req.Quantity,
		Name:              req.Name,
		Email:             req.Email,
		Phone:             req.Phone,
		Address:           req.Address,
		FulfillmentStatus: domain.FulfillmentNew,
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("store order: %w", err)
	}

	return s.pay(ctx, domain.KindOrder, &o.Payment, req.Phone)
}

// InitiateDonation stores a PENDING donation and registers the payment with
// the gateway. The currency defaults to the one priced for the donor's
// location.
func (s *Service) InitiateDonation(ctx context.Context, req DonationRequest) (*Initiation, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if req.Currency == "" {
		req.Currency = s.pricer.Resolve(ctx, req.Hint).Currency
	}
	if !currency.Supported(req.Currency) {
		return nil, invalid("unsupported currency %q", req.Currency)
	}
	amount, err := currency.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return nil, invalid("%v", err)
	}

	now := s.now().UTC()
	d := &domain.Donation{
		Payment: s.newPayment(req.UserID, amount, req.Currency, now),
		Name:    req.Name,
		Phone:   req.Phone,
		Message: req.Message,
	}
	if err := s.store.CreateDonation(ctx, d); err != nil {
		return nil, fmt.Errorf("store donation: %w", err)
	}

	return s.pay(ctx, domain.KindDonation, &d.Payment, req.Phone)
}

func (s *Service) newPayment(userID string, amount int64, cur string, now time.Time) domain.Payment {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = NewMerchantUserID()
	}
	return domain.Payment{
		ID:                    uuid.New().String(),
		MerchantTransactionID: NewMerchantTransactionID(),
		UserID:                userID,
		Amount:                amount,
		Currency:              cur,
		Status:                domain.StatusPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// pay registers a stored PENDING record with the gateway. A definite
// rejection marks the record FAILURE; an unreachable gateway leaves it
// PENDING for reconciliation, since the attempt may have been registered.
func (s *Service) pay(ctx context.Context, kind domain.Kind, p *domain.Payment, phone string) (*Initiation, error) {
	txn := url.PathEscape(p.MerchantTransactionID)
	redirect, err := s.gateway.Pay(ctx, gateway.PayRequest{
		MerchantTransactionID: p.MerchantTransactionID,
		MerchantUserID:        p.UserID,
		Amount:                p.Amount,
		RedirectURL:           fmt.Sprintf("%s/payment/%s/%s", s.baseURL, kind, txn),
		CallbackURL:           fmt.Sprintf("%s/api/v1/callbacks/%s?txn=%s", s.baseURL, kind, txn),
		MobileNumber:          phone,
	})
	if err != nil {
		log.Printf("[payment] %s %s: initiation failed: %v", kind, p.MerchantTransactionID, err)
		if errors.Is(err, apperr.ErrPaymentInitiation) {
			s.failInitiation(ctx, kind, p.MerchantTransactionID, err)
		}
		return nil, err
	}

	major, _ := currency.FromMinor(p.Amount, p.Currency)
	log.Printf("[payment] %s %s initiated: %s %s", kind, p.MerchantTransactionID, major.String(), p.Currency)
	return &Initiation{
		ID:                    p.ID,
		MerchantTransactionID: p.MerchantTransactionID,
		RedirectURL:           redirect,
		Amount:                p.Amount,
		Currency:              p.Currency,
	}, nil
}

func (s *Service) failInitiation(ctx context.Context, kind domain.Kind, txn string, cause error) {
	details, _ := json.Marshal(map[string]string{
		"reason": "payment initiation rejected",
		"error":  cause.Error(),
	})
	_, err := s.store.Transition(context.WithoutCancel(ctx), kind, txn, domain.Transition{
		To:      domain.StatusFailure,
		Details: details,
		At:      s.now(),
	})
	if err != nil {
		log.Printf("[payment] WARNING: could not mark %s %s failed: %v", kind, txn, err)
	}
}

// OrderStatus returns the order, or nil when id does not exist.
func (s *Service) OrderStatus(ctx context.Context, id string) (*domain.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, apperr.ErrRecordNotFound) {
		return nil, nil
	}
	return o, err
}

// DonationStatus returns the donation, or nil when id does not exist.
func (s *Service) DonationStatus(ctx context.Context, id string) (*domain.Donation, error) {
	d, err := s.store.GetDonation(ctx, id)
	if errors.Is(err, apperr.ErrRecordNotFound) {
		return nil, nil
	}
	return d, err
}
