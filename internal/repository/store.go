package repository

import (
	"context"
	"slices"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
)

// Queries is the persistence surface shared by plain and transactional access.
// Lookups of a missing row return an error matching models.ErrNotFound.
type Queries interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	UserExists(ctx context.Context, id int64) (bool, error)

	CreateCard(ctx context.Context, card *models.Card) error
	FindCardByID(ctx context.Context, id int64) (*models.Card, error)
	CardExists(ctx context.Context, id int64) (bool, error)
	UpdateCard(ctx context.Context, card *models.Card) error
	DeleteCard(ctx context.Context, id int64) error
	FindCardsByUserID(ctx context.Context, userID int64) ([]models.Card, error)
	FindAllCards(ctx context.Context) ([]models.Card, error)
	// ExpireCards moves active and blocked cards expiring before the given day to EXPIRED
	ExpireCards(ctx context.Context, before time.Time) ([]int64, error)

	CreateBlockRequest(ctx context.Context, req *models.BlockRequest) error
	FindBlockRequestByID(ctx context.Context, id int64) (*models.BlockRequest, error)
	UpdateBlockRequest(ctx context.Context, req *models.BlockRequest) error
	ExistsBlockRequestByCardIDAndStatus(ctx context.Context, cardID int64, status models.BlockRequestStatus) (bool, error)
	FindBlockRequestByCardIDAndStatus(ctx context.Context, cardID int64, status models.BlockRequestStatus) (*models.BlockRequest, error)
	FindBlockRequestsByStatus(ctx context.Context, status models.BlockRequestStatus) ([]models.BlockRequest, error)
	FindBlockRequestsByUserID(ctx context.Context, userID int64) ([]models.BlockRequest, error)
}

// Tx is a unit of work. Everything done through it commits or rolls back together.
type Tx interface {
	Queries

	// LockCards takes exclusive locks on the given cards in ascending id order.
	// Missing ids are absent from the returned map.
	LockCards(ctx context.Context, ids ...int64) (map[int64]*models.Card, error)

	// LockBlockRequest takes an exclusive lock on one block request
	LockBlockRequest(ctx context.Context, id int64) (*models.BlockRequest, error)
}

// Store is implemented by the Postgres repository and the in-memory store
type Store interface {
	Queries

	// WithinTx runs fn in a transaction, committing when fn returns nil
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// SortedIDs returns the distinct ids in ascending order, the lock acquisition order.
func SortedIDs(ids ...int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
