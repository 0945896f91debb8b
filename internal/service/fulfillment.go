package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kdrag0n/earlypilot/internal/domain"
	"github.com/kdrag0n/earlypilot/internal/mailer"
	"github.com/kdrag0n/earlypilot/internal/payment"
	"github.com/kdrag0n/earlypilot/internal/repository"
)

const (
	// Purchase grants last one month.
	purchaseGrantHours = 31 * 24

	maxPurchaseQuantity = 99

	linkSeparator = "\n    • "
)

// FulfillmentService converts confirmed payments into grants and reverses
// them on refund.
type FulfillmentService struct {
	purchases repository.PurchaseRepository
	products  repository.ProductRepository
	downloads repository.DownloadEventRepository
	grantRepo repository.GrantRepository
	grants    *GrantService
	mail      mailer.Mailer
	logger    *zap.Logger
}

func NewFulfillmentService(
	purchases repository.PurchaseRepository,
	products repository.ProductRepository,
	downloads repository.DownloadEventRepository,
	grantRepo repository.GrantRepository,
	grants *GrantService,
	mail mailer.Mailer,
	logger *zap.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		purchases: purchases,
		products:  products,
		downloads: downloads,
		grantRepo: grantRepo,
		grants:    grants,
		mail:      mail,
		logger:    logger,
	}
}

// FulfillCheckout processes a checkout-completed event. Safe under duplicate
// deliveries: the purchase row is keyed by the checkout session id, grants
// are reused once they exist for the purchase tag, and the fulfilled flag is
// only set after the confirmation email went out.
func (s *FulfillmentService) FulfillCheckout(ctx context.Context, session payment.CheckoutSession) error {
	// Missing metadata means the session was tampered with or did not come
	// from this server.
	productID, err := strconv.Atoi(session.Metadata["productId"])
	if err != nil {
		return fmt.Errorf("invalid product id in session metadata: %w", err)
	}
	txRefID, err := uuid.Parse(session.Metadata["txRefId"])
	if err != nil {
		return fmt.Errorf("invalid tx ref id in session metadata: %w", err)
	}

	quantity := session.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 || quantity > maxPurchaseQuantity {
		return fmt.Errorf("purchase quantity %d out of range [1, %d]", quantity, maxPurchaseQuantity)
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return fmt.Errorf("load product %d: %w", productID, err)
	}

	purchase, err := s.ensurePurchase(ctx, session, productID, quantity, txRefID)
	if err != nil {
		return err
	}

	// Bail out if this event has already been fulfilled successfully.
	if purchase.Fulfilled {
		return nil
	}

	grantURLs, err := s.ensureGrantURLs(ctx, purchase, product, quantity)
	if err != nil {
		return err
	}

	msg := buildConfirmation(purchase.Email, product.Name, grantURLs)
	if err := s.mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}

	// Mark fulfilled only after every other side effect succeeded.
	if err := s.purchases.MarkFulfilled(ctx, purchase.ID); err != nil {
		return err
	}

	s.log().Info("purchase fulfilled",
		zap.Int("purchaseId", purchase.ID),
		zap.String("eventId", purchase.EventID),
		zap.Int("quantity", quantity),
	)
	return nil
}

func (s *FulfillmentService) ensurePurchase(ctx context.Context, session payment.CheckoutSession, productID, quantity int, txRefID uuid.UUID) (domain.Purchase, error) {
	purchase, err := s.purchases.GetByEventID(ctx, session.ID)
	if err == nil {
		return purchase, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Purchase{}, fmt.Errorf("look up purchase: %w", err)
	}

	purchase, err = s.purchases.Create(ctx, domain.Purchase{
		ProductID:       productID,
		EventID:         session.ID,
		PaymentIntentID: session.PaymentIntentID,
		CustomerID:      session.CustomerID,
		Quantity:        quantity,
		Email:           session.Email(),
		TxRefID:         txRefID,
	})
	if errors.Is(err, domain.ErrConflict) {
		// Lost the race against a concurrent delivery of the same event.
		return s.purchases.GetByEventID(ctx, session.ID)
	}
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("create purchase: %w", err)
	}
	return purchase, nil
}

// ensureGrantURLs reuses grants from a prior partial fulfillment and tops up
// to the purchased quantity, so webhook retries never duplicate grants.
func (s *FulfillmentService) ensureGrantURLs(ctx context.Context, purchase domain.Purchase, product domain.Product, quantity int) ([]string, error) {
	tag := strconv.Itoa(purchase.ID)

	existing, err := s.grantRepo.ListByTag(ctx, domain.GrantTypePurchase, tag, quantity)
	if err != nil {
		return nil, fmt.Errorf("list purchase grants: %w", err)
	}

	targetPath := "/exclusive/" + product.Path
	grants := existing
	for len(grants) < quantity {
		grant, err := s.grants.Create(ctx, targetPath, tag, domain.GrantTypePurchase, purchaseGrantHours)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}

	urls := make([]string, 0, len(grants))
	for _, grant := range grants {
		url, err := s.grants.GrantURL(grant)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// HandleRefund disables every grant tied to the refunded purchase and
// deactivates its download events. Compensating action, not a delete: audit
// history stays. Idempotent under repeated deliveries.
func (s *FulfillmentService) HandleRefund(ctx context.Context, charge payment.Charge) error {
	if !charge.Refunded || charge.PaymentIntentID == "" {
		return nil
	}

	purchase, err := s.purchases.GetByPaymentIntent(ctx, charge.PaymentIntentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up purchase for refund: %w", err)
	}

	tag := strconv.Itoa(purchase.ID)
	if err := s.grantRepo.DisableByTag(ctx, domain.GrantTypePurchase, tag); err != nil {
		return err
	}
	if err := s.downloads.DeactivateByTag(ctx, domain.AccessTypePurchase, tag); err != nil {
		return err
	}

	s.log().Info("purchase refunded",
		zap.Int("purchaseId", purchase.ID),
		zap.String("paymentIntentId", charge.PaymentIntentID),
	)
	return nil
}

func buildConfirmation(toAddress, productName string, grantURLs []string) mailer.Message {
	var body strings.Builder
	body.WriteString("Thank you for purchasing " + productName + "!\n\n")

	if len(grantURLs) > 1 {
		body.WriteString("Your download links:")
		for i, url := range grantURLs {
			body.WriteString(linkSeparator)
			body.WriteString(fmt.Sprintf("Link %d: %s", i+1, url))
		}
		body.WriteString("\n\nEach link admits one download grant; share spares as you like.")
	} else if len(grantURLs) == 1 {
		body.WriteString("Your download link: " + grantURLs[0])
	}
	body.WriteString("\n\nLinks expire one month after purchase.\n")

	return mailer.Message{
		ToAddress: toAddress,
		Subject:   "Thank you for purchasing " + productName + "!",
		BodyText:  body.String(),
	}
}

func (s *FulfillmentService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
