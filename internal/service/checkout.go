package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kdrag0n/earlypilot/internal/domain"
	"github.com/kdrag0n/earlypilot/internal/payment"
	"github.com/kdrag0n/earlypilot/internal/repository"
)

// CheckoutService starts provider checkout sessions and resolves the
// post-payment success page.
type CheckoutService struct {
	products  repository.ProductRepository
	purchases repository.PurchaseRepository
	grantRepo repository.GrantRepository
	grants    *GrantService
	payments  payment.CheckoutClient
	baseURL   string
	cancelURL string
}

func NewCheckoutService(
	products repository.ProductRepository,
	purchases repository.PurchaseRepository,
	grantRepo repository.GrantRepository,
	grants *GrantService,
	payments payment.CheckoutClient,
	baseURL, cancelURL string,
) *CheckoutService {
	return &CheckoutService{
		products:  products,
		purchases: purchases,
		grantRepo: grantRepo,
		grants:    grants,
		payments:  payments,
		baseURL:   strings.TrimRight(baseURL, "/"),
		cancelURL: cancelURL,
	}
}

// ErrNotForSale distinguishes inactive products; the handler redirects to
// the public release when one exists.
var ErrNotForSale = errors.New("product not available for purchase")

// StartCheckout creates a provider checkout session for the product. The
// product is returned alongside so callers can fall back to its public
// release when it is no longer for sale.
func (s *CheckoutService) StartCheckout(ctx context.Context, productID int) (payment.CheckoutSession, domain.Product, error) {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return payment.CheckoutSession{}, domain.Product{}, err
	}
	if !product.Active {
		return payment.CheckoutSession{}, product, ErrNotForSale
	}
	if product.PriceCents == nil {
		return payment.CheckoutSession{}, product, fmt.Errorf("product %d has no price", productID)
	}

	txRefID := uuid.NewString()
	session, err := s.payments.CreateSession(ctx, payment.CreateSessionInput{
		Product:    product,
		PriceCents: *product.PriceCents,
		TxRefID:    txRefID,
		SuccessURL: s.baseURL + "/buy/success/" + txRefID,
		CancelURL:  s.cancelURL,
	})
	if err != nil {
		return payment.CheckoutSession{}, product, fmt.Errorf("create checkout session: %w", err)
	}
	return session, product, nil
}

// SuccessInfo is everything the success page shows.
type SuccessInfo struct {
	Purchase          domain.Purchase
	Product           domain.Product
	FirstDownloadLink string
}

// PurchaseSuccess resolves the buyer-visible transaction reference to the
// purchase and regenerates the first download link.
func (s *CheckoutService) PurchaseSuccess(ctx context.Context, txRefID uuid.UUID) (SuccessInfo, error) {
	purchase, err := s.purchases.GetByTxRef(ctx, txRefID)
	if err != nil {
		return SuccessInfo{}, err
	}

	product, err := s.products.Get(ctx, purchase.ProductID)
	if err != nil {
		return SuccessInfo{}, err
	}

	grants, err := s.grantRepo.ListByTag(ctx, domain.GrantTypePurchase, strconv.Itoa(purchase.ID), 1)
	if err != nil {
		return SuccessInfo{}, err
	}
	if len(grants) == 0 {
		return SuccessInfo{}, domain.ErrNotFound
	}

	link, err := s.grants.GrantURL(grants[0])
	if err != nil {
		return SuccessInfo{}, err
	}

	return SuccessInfo{Purchase: purchase, Product: product, FirstDownloadLink: link}, nil
}
