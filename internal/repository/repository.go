package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository provides database operations
type Repository struct {
	queries
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{queries: queries{q: db}, db: db}
}

// Migrate creates the schema objects when they are missing
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithinTx runs fn in a read-committed transaction
func (r *Repository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&txRepository{queries: queries{q: sqlTx}}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txRepository struct {
	queries
}

// LockCards selects the cards FOR UPDATE; ORDER BY id fixes the lock order
func (t *txRepository) LockCards(ctx context.Context, ids ...int64) (map[int64]*models.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM bank.cards
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`
	rows, err := t.q.QueryContext(ctx, query, pq.Array(SortedIDs(ids...)))
	if err != nil {
		return nil, fmt.Errorf("failed to lock cards: %w", err)
	}
	cards, err := scanCards(rows)
	if err != nil {
		return nil, err
	}

	locked := make(map[int64]*models.Card, len(cards))
	for i := range cards {
		locked[cards[i].ID] = &cards[i]
	}
	return locked, nil
}

// LockBlockRequest selects one block request FOR UPDATE
func (t *txRepository) LockBlockRequest(ctx context.Context, id int64) (*models.BlockRequest, error) {
	query := `
		SELECT ` + blockRequestColumns + `
		FROM bank.block_requests
		WHERE id = $1
		FOR UPDATE`
	req, err := scanBlockRequest(t.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("block request %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock block request: %w", err)
	}
	return req, nil
}

type queries struct {
	q querier
}

// CreateUser creates a new user in the database
func (r queries) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO bank.users (username, email, first_name, last_name, password_hash, role, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, user.Username, user.Email, user.FirstName, user.LastName,
		user.PasswordHash, user.Role, user.Enabled).
		Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return models.Validationf("username %q is already taken", user.Username)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

const userColumns = `id, username, email, first_name, last_name, password_hash, role, enabled, created_at`

// FindUserByID retrieves a user by id
func (r queries) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM bank.users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("user %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindUserByUsername retrieves a user by username
func (r queries) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM bank.users WHERE username = $1`, username))
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("user %q not found", username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func (r queries) UserExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM bank.users WHERE id = $1)`, id)
}

const cardColumns = `id, encrypted_number, number_hash, owner, expiration_date, status, balance, user_id, created_at, updated_at`

// CreateCard inserts a card and fills in its id and timestamps
func (r queries) CreateCard(ctx context.Context, card *models.Card) error {
	query := `
		INSERT INTO bank.cards (encrypted_number, number_hash, owner, expiration_date, status, balance, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.q.QueryRowContext(ctx, query, card.EncryptedNumber, card.NumberHash, card.Owner,
		card.ExpirationDate, card.Status, card.Balance, card.UserID).
		Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt)
	if isUniqueViolation(err) {
		return models.Validationf("card number is already registered")
	}
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// FindCardByID retrieves a card by id
func (r queries) FindCardByID(ctx context.Context, id int64) (*models.Card, error) {
	card, err := scanCard(r.q.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("card %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}
	return card, nil
}

func (r queries) CardExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM bank.cards WHERE id = $1)`, id)
}

// UpdateCard persists status and balance, the only mutable card fields
func (r queries) UpdateCard(ctx context.Context, card *models.Card) error {
	query := `
		UPDATE bank.cards
		SET status = $2, balance = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.q.QueryRowContext(ctx, query, card.ID, card.Status, card.Balance).Scan(&card.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.NotFoundf("card %d not found", card.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	return nil
}

// DeleteCard removes a card; its block requests go with it
func (r queries) DeleteCard(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM bank.cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return models.NotFoundf("card %d not found", id)
	}
	return nil
}

// FindCardsByUserID lists a user's cards
func (r queries) FindCardsByUserID(ctx context.Context, userID int64) ([]models.Card, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find cards: %w", err)
	}
	return scanCards(rows)
}

// FindAllCards lists every card
func (r queries) FindAllCards(ctx context.Context) ([]models.Card, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+cardColumns+` FROM bank.cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to find cards: %w", err)
	}
	return scanCards(rows)
}

func (r queries) ExpireCards(ctx context.Context, before time.Time) ([]int64, error) {
	query := `
		UPDATE bank.cards
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE expiration_date < $2 AND status IN ($3, $4)
		RETURNING id`
	rows, err := r.q.QueryContext(ctx, query, models.CardStatusExpired, before,
		models.CardStatusActive, models.CardStatusBlocked)
	if err != nil {
		return nil, fmt.Errorf("failed to expire cards: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired card: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const blockRequestColumns = `id, card_id, user_id, status, reason, created_at, processed_at, processed_by`

// CreateBlockRequest inserts a block request
func (r queries) CreateBlockRequest(ctx context.Context, req *models.BlockRequest) error {
	query := `
		INSERT INTO bank.block_requests (card_id, user_id, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := r.q.QueryRowContext(ctx, query, req.CardID, req.UserID, req.Status, req.Reason, req.CreatedAt).
		Scan(&req.ID)
	if isUniqueViolation(err) {
		return models.Validationf("card %d already has a pending block request", req.CardID)
	}
	if err != nil {
		return fmt.Errorf("failed to create block request: %w", err)
	}
	return nil
}

// FindBlockRequestByID retrieves a block request by id
func (r queries) FindBlockRequestByID(ctx context.Context, id int64) (*models.BlockRequest, error) {
	req, err := scanBlockRequest(r.q.QueryRowContext(ctx,
		`SELECT `+blockRequestColumns+` FROM bank.block_requests WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("block request %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find block request: %w", err)
	}
	return req, nil
}

// UpdateBlockRequest persists the processing outcome of a request
func (r queries) UpdateBlockRequest(ctx context.Context, req *models.BlockRequest) error {
	query := `
		UPDATE bank.block_requests
		SET status = $2, reason = $3, processed_at = $4, processed_by = $5
		WHERE id = $1`
	result, err := r.q.ExecContext(ctx, query, req.ID, req.Status, req.Reason, req.ProcessedAt, req.ProcessedBy)
	if err != nil {
		return fmt.Errorf("failed to update block request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return models.NotFoundf("block request %d not found", req.ID)
	}
	return nil
}

func (r queries) ExistsBlockRequestByCardIDAndStatus(ctx context.Context, cardID int64, status models.BlockRequestStatus) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM bank.block_requests WHERE card_id = $1 AND status = $2)`, cardID, status)
}

func (r queries) FindBlockRequestByCardIDAndStatus(ctx context.Context, cardID int64, status models.BlockRequestStatus) (*models.BlockRequest, error) {
	req, err := scanBlockRequest(r.q.QueryRowContext(ctx,
		`SELECT `+blockRequestColumns+` FROM bank.block_requests WHERE card_id = $1 AND status = $2 ORDER BY id LIMIT 1`,
		cardID, status))
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("no %s block request for card %d", status, cardID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find block request: %w", err)
	}
	return req, nil
}

func (r queries) FindBlockRequestsByStatus(ctx context.Context, status models.BlockRequestStatus) ([]models.BlockRequest, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+blockRequestColumns+` FROM bank.block_requests WHERE status = $1 ORDER BY created_at, id`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to find block requests: %w", err)
	}
	return scanBlockRequests(rows)
}

func (r queries) FindBlockRequestsByUserID(ctx context.Context, userID int64) ([]models.BlockRequest, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+blockRequestColumns+` FROM bank.block_requests WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find block requests: %w", err)
	}
	return scanBlockRequests(rows)
}

func (r queries) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return ok, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName,
		&user.PasswordHash, &user.Role, &user.Enabled, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func scanCard(row scanner) (*models.Card, error) {
	card := &models.Card{}
	err := row.Scan(&card.ID, &card.EncryptedNumber, &card.NumberHash, &card.Owner, &card.ExpirationDate,
		&card.Status, &card.Balance, &card.UserID, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return card, nil
}

func scanCards(rows *sql.Rows) ([]models.Card, error) {
	defer rows.Close()
	var cards []models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *card)
	}
	return cards, rows.Err()
}

func scanBlockRequest(row scanner) (*models.BlockRequest, error) {
	req := &models.BlockRequest{}
	var processedAt sql.NullTime
	var processedBy sql.NullInt64
	err := row.Scan(&req.ID, &req.CardID, &req.UserID, &req.Status, &req.Reason, &req.CreatedAt,
		&processedAt, &processedBy)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		req.ProcessedAt = &processedAt.Time
	}
	if processedBy.Valid {
		req.ProcessedBy = &processedBy.Int64
	}
	return req, nil
}

func scanBlockRequests(rows *sql.Rows) ([]models.BlockRequest, error) {
	defer rows.Close()
	var reqs []models.BlockRequest
	for rows.Next() {
		req, err := scanBlockRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var (
	_ Store = (*Repository)(nil)
	_ Tx    = (*txRepository)(nil)
)
