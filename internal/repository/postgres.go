package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kdrag0n/earlypilot/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository          = (*PostgresUserRepo)(nil)
	_ GrantRepository         = (*PostgresGrantRepo)(nil)
	_ ProductRepository       = (*PostgresProductRepo)(nil)
	_ PurchaseRepository      = (*PostgresPurchaseRepo)(nil)
	_ DownloadEventRepository = (*PostgresDownloadEventRepo)(nil)
)

const uniqueViolationCode = "23505"

func mapRowError(err error, action string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return domain.ErrConflict
	}
	return fmt.Errorf("%s: %w", action, err)
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const userColumns = `id, name, email, access_token, creation_time, login_time, login_ip,
activity_time, activity_ip, auth_state, blocked, telegram_id, telegram_invite`

func (r *PostgresUserRepo) Get(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapRowError(err, "get user")
	}
	return user, nil
}

const upsertUserSQL = `INSERT INTO users (id, name, email, access_token, creation_time, login_time, login_ip)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	email = EXCLUDED.email,
	access_token = EXCLUDED.access_token,
	login_time = EXCLUDED.login_time,
	login_ip = EXCLUDED.login_ip
RETURNING ` + userColumns

func (r *PostgresUserRepo) UpsertLogin(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, upsertUserSQL,
		user.ID,
		user.Name,
		user.Email,
		user.AccessToken,
		user.CreationTime,
		user.LoginTime,
		user.LoginIP,
	)
	saved, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapRowError(err, "upsert user")
	}
	return saved, nil
}

func (r *PostgresUserRepo) RecordActivity(ctx context.Context, id string, state domain.AuthorizationResult, ip string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET auth_state = $2, activity_ip = $3, activity_time = $4 WHERE id = $1`,
		id, string(state), ip, at,
	)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		user      domain.User
		authState *string
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.AccessToken,
		&user.CreationTime,
		&user.LoginTime,
		&user.LoginIP,
		&user.ActivityTime,
		&user.ActivityIP,
		&authState,
		&user.Blocked,
		&user.TelegramID,
		&user.TelegramInvite,
	)
	if err != nil {
		return domain.User{}, err
	}
	if authState != nil {
		state := domain.AuthorizationResult(*authState)
		user.AuthState = &state
	}
	return user, nil
}

// PostgresGrantRepo implements GrantRepository.
type PostgresGrantRepo struct {
	db *pgxpool.Pool
}

func NewPostgresGrantRepo(pool *pgxpool.Pool) *PostgresGrantRepo {
	return &PostgresGrantRepo{db: pool}
}

const grantColumns = `id, type, path, tag, expire_time, access_count, last_access_time, disabled`

func (r *PostgresGrantRepo) Create(ctx context.Context, grant domain.Grant) (domain.Grant, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO grants (type, path, tag, expire_time) VALUES ($1, $2, $3, $4) RETURNING `+grantColumns,
		string(grant.Type), grant.Path, grant.Tag, grant.ExpireTime,
	)
	saved, err := scanGrant(row)
	if err != nil {
		return domain.Grant{}, mapRowError(err, "create grant")
	}
	return saved, nil
}

func (r *PostgresGrantRepo) Get(ctx context.Context, id int) (domain.Grant, error) {
	row := r.db.QueryRow(ctx, `SELECT `+grantColumns+` FROM grants WHERE id = $1`, id)
	grant, err := scanGrant(row)
	if err != nil {
		return domain.Grant{}, mapRowError(err, "get grant")
	}
	return grant, nil
}

// Redeem is the serialization point for concurrent redemptions: the validity
// checks and the counter increment happen in one guarded UPDATE.
func (r *PostgresGrantRepo) Redeem(ctx context.Context, id int, path string, now time.Time) (domain.Grant, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE grants
		SET access_count = access_count + 1, last_access_time = $3
		WHERE id = $1 AND path = $2 AND NOT disabled AND expire_time >= $3
		RETURNING `+grantColumns,
		id, path, now,
	)
	grant, err := scanGrant(row)
	if err != nil {
		return domain.Grant{}, mapRowError(err, "redeem grant")
	}
	return grant, nil
}

func (r *PostgresGrantRepo) Disable(ctx context.Context, id int) error {
	if _, err := r.db.Exec(ctx, `UPDATE grants SET disabled = true WHERE id = $1`, id); err != nil {
		return fmt.Errorf("disable grant: %w", err)
	}
	return nil
}

func (r *PostgresGrantRepo) DisableByTag(ctx context.Context, grantType domain.GrantType, tag string) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE grants SET disabled = true WHERE type = $1 AND tag = $2`,
		string(grantType), tag,
	); err != nil {
		return fmt.Errorf("disable grants by tag: %w", err)
	}
	return nil
}

func (r *PostgresGrantRepo) ListByTag(ctx context.Context, grantType domain.GrantType, tag string, limit int) ([]domain.Grant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+grantColumns+` FROM grants WHERE type = $1 AND tag = $2 ORDER BY id ASC LIMIT $3`,
		string(grantType), tag, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list grants by tag: %w", err)
	}
	defer rows.Close()

	var grants []domain.Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

func scanGrant(row pgx.Row) (domain.Grant, error) {
	var (
		grant     domain.Grant
		grantType string
	)
	err := row.Scan(
		&grant.ID,
		&grantType,
		&grant.Path,
		&grant.Tag,
		&grant.ExpireTime,
		&grant.AccessCount,
		&grant.LastAccessTime,
		&grant.Disabled,
	)
	if err != nil {
		return domain.Grant{}, err
	}
	grant.Type = domain.GrantType(grantType)
	return grant, nil
}

// PostgresProductRepo implements ProductRepository.
type PostgresProductRepo struct {
	db *pgxpool.Pool
}

func NewPostgresProductRepo(pool *pgxpool.Pool) *PostgresProductRepo {
	return &PostgresProductRepo{db: pool}
}

const productColumns = `id, path, name, price_cents, image_url, creation_time, update_time, active, public_url`

func (r *PostgresProductRepo) Get(ctx context.Context, id int) (domain.Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, mapRowError(err, "get product")
	}
	return product, nil
}

func (r *PostgresProductRepo) GetByPath(ctx context.Context, path string) (domain.Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE path = $1`, path)
	product, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, mapRowError(err, "get product by path")
	}
	return product, nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		product   domain.Product
		imageURL  *string
		publicURL *string
	)
	err := row.Scan(
		&product.ID,
		&product.Path,
		&product.Name,
		&product.PriceCents,
		&imageURL,
		&product.CreationTime,
		&product.UpdateTime,
		&product.Active,
		&publicURL,
	)
	if err != nil {
		return domain.Product{}, err
	}
	if imageURL != nil {
		product.ImageURL = *imageURL
	}
	if publicURL != nil {
		product.PublicURL = *publicURL
	}
	return product, nil
}

// PostgresPurchaseRepo implements PurchaseRepository.
type PostgresPurchaseRepo struct {
	db *pgxpool.Pool
}

func NewPostgresPurchaseRepo(pool *pgxpool.Pool) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{db: pool}
}

const purchaseColumns = `id, product_id, event_id, payment_intent_id, customer_id, quantity, email, tx_ref_id, purchase_time, fulfilled`

func (r *PostgresPurchaseRepo) Create(ctx context.Context, purchase domain.Purchase) (domain.Purchase, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO purchases (product_id, event_id, payment_intent_id, customer_id, quantity, email, tx_ref_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+purchaseColumns,
		purchase.ProductID,
		purchase.EventID,
		purchase.PaymentIntentID,
		purchase.CustomerID,
		purchase.Quantity,
		purchase.Email,
		purchase.TxRefID,
	)
	saved, err := scanPurchase(row)
	if err != nil {
		return domain.Purchase{}, mapRowError(err, "create purchase")
	}
	return saved, nil
}

func (r *PostgresPurchaseRepo) GetByEventID(ctx context.Context, eventID string) (domain.Purchase, error) {
	row := r.db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE event_id = $1`, eventID)
	purchase, err := scanPurchase(row)
	if err != nil {
		return domain.Purchase{}, mapRowError(err, "get purchase by event")
	}
	return purchase, nil
}

func (r *PostgresPurchaseRepo) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (domain.Purchase, error) {
	row := r.db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE payment_intent_id = $1`, paymentIntentID)
	purchase, err := scanPurchase(row)
	if err != nil {
		return domain.Purchase{}, mapRowError(err, "get purchase by payment intent")
	}
	return purchase, nil
}

func (r *PostgresPurchaseRepo) GetByTxRef(ctx context.Context, txRefID uuid.UUID) (domain.Purchase, error) {
	row := r.db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE tx_ref_id = $1`, txRefID)
	purchase, err := scanPurchase(row)
	if err != nil {
		return domain.Purchase{}, mapRowError(err, "get purchase by tx ref")
	}
	return purchase, nil
}

// MarkFulfilled flips the idempotency gate. The guard keeps the transition
// one-way even under concurrent webhook deliveries.
func (r *PostgresPurchaseRepo) MarkFulfilled(ctx context.Context, id int) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE purchases SET fulfilled = true WHERE id = $1 AND NOT fulfilled`, id,
	); err != nil {
		return fmt.Errorf("mark purchase fulfilled: %w", err)
	}
	return nil
}

func scanPurchase(row pgx.Row) (domain.Purchase, error) {
	var purchase domain.Purchase
	err := row.Scan(
		&purchase.ID,
		&purchase.ProductID,
		&purchase.EventID,
		&purchase.PaymentIntentID,
		&purchase.CustomerID,
		&purchase.Quantity,
		&purchase.Email,
		&purchase.TxRefID,
		&purchase.PurchaseTime,
		&purchase.Fulfilled,
	)
	if err != nil {
		return domain.Purchase{}, err
	}
	return purchase, nil
}

// PostgresDownloadEventRepo implements DownloadEventRepository.
type PostgresDownloadEventRepo struct {
	db *pgxpool.Pool
}

func NewPostgresDownloadEventRepo(pool *pgxpool.Pool) *PostgresDownloadEventRepo {
	return &PostgresDownloadEventRepo{db: pool}
}

func (r *PostgresDownloadEventRepo) Create(ctx context.Context, event domain.DownloadEvent) (domain.DownloadEvent, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO download_events (access_type, tag, file_name, file_hash, download_time, client_ip)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, active`,
		string(event.AccessType),
		event.Tag,
		event.FileName,
		event.FileHash,
		event.DownloadTime,
		event.ClientIP,
	)
	if err := row.Scan(&event.ID, &event.Active); err != nil {
		return domain.DownloadEvent{}, mapRowError(err, "create download event")
	}
	return event, nil
}

func (r *PostgresDownloadEventRepo) DeactivateByTag(ctx context.Context, accessType domain.AccessType, tag string) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE download_events SET active = false WHERE access_type = $1 AND tag = $2`,
		string(accessType), tag,
	); err != nil {
		return fmt.Errorf("deactivate download events: %w", err)
	}
	return nil
}
