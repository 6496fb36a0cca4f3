// Package memory is an in-process implementation of repository.Store.
// A single RWMutex serializes writers; a transaction works on a private copy
// of the data and swaps it in on commit, so a failed unit leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
)

// Store keeps users, cards and block requests in maps
type Store struct {
	mu sync.RWMutex
	d  *data
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{d: newData()}
}

// WithinTx holds the write lock for the whole unit of work
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.d.clone()
	if err := fn(&tx{data: staged}); err != nil {
		return err
	}
	s.d = staged
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateUser(ctx, user)
}

func (s *Store) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.FindUserByID(ctx, id)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.FindUserByUsername(ctx, username)
}

func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.UserExists(ctx, id)
}

func (s *Store) CreateCard(ctx context.Context, card *models.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateCard(ctx, card)
}

func (s *Store) FindCardByID(ctx context.Context, id int64) (*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.FindCardByID(ctx, id)
}

func (s *Store) CardExists(ctx context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.CardExists(ctx, id)
}

func (s *Store) UpdateCard(ctx context.Context, card *models.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpdateCard(ctx, card)
}

func (s *Store) DeleteCard(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.DeleteCard(ctx, id)
}

func (s *Store) FindCardsByUserID(ctx context.Context, userID int64) ([]models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.FindCardsByUserID(ctx, userID)
}

func (s *Store) FindAllCards(ctx context.Context) ([]models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.FindAllCards(ctx)
}

func (s *Store) ExpireCards(ctx context.Context, before time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ExpireCards(ctx, before)
}

func (s *Store) CreateBlockRequest(ctx context.Context, req *models.BlockRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateBlockRequest(ctx, req)
}

func (s *Store) FindBlockRequestByID(ctx context.Context, id int64) (*models.BlockRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.FindBlockRequestByID(ctx, id)
}

func (s *Store) UpdateBlockRequest(ctx context.Context, req *models.BlockRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpdateBlockRequest(ctx, req)
}

func (s *Store) ExistsBlockRequestByCardIDAndStatus(ctx context.Context, cardID int64, status models.BlockRequestStatus) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.ExistsBlockRequestByCardIDAndStatus(ctx, cardID, status)
}

func (s *Store) FindBlockRequestByCardIDAndStatus(ctx context.Context, cardID int64, status models.BlockRequestStatus) (*models.BlockRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.FindBlockRequestByCardIDAndStatus(ctx, cardID, status)
}

func (s *Store) FindBlockRequestsByStatus(ctx context.Context, status models.BlockRequestStatus) ([]models.BlockRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.FindBlockRequestsByStatus(ctx, status)
}

func (s *Store) FindBlockRequestsByUserID(ctx context.Context, userID int64) ([]models.BlockRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.FindBlockRequestsByUserID(ctx, userID)
}

// tx runs against the staged copy while the store's write lock is held
type tx struct {
	*data
}

// LockCards needs no per-row locking: the whole store is already exclusive
func (t *tx) LockCards(ctx context.Context, ids ...int64) (map[int64]*models.Card, error) {
	locked := make(map[int64]*models.Card, len(ids))
	for _, id := range repository.SortedIDs(ids...) {
		if card, ok := t.cards[id]; ok {
			cp := card
			locked[id] = &cp
		}
	}
	return locked, nil
}

func (t *tx) LockBlockRequest(ctx context.Context, id int64) (*models.BlockRequest, error) {
	return t.FindBlockRequestByID(ctx, id)
}

// data is the unlocked state; every method returns copies, never internal pointers
type data struct {
	users    map[int64]models.User
	cards    map[int64]models.Card
	requests map[int64]models.BlockRequest

	nextUserID    int64
	nextCardID    int64
	nextRequestID int64
}

func newData() *data {
	return &data{
		users:    make(map[int64]models.User),
		cards:    make(map[int64]models.Card),
		requests: make(map[int64]models.BlockRequest),
	}
}

func (d *data) clone() *data {
	cp := &data{
		users:         make(map[int64]models.User, len(d.users)),
		cards:         make(map[int64]models.Card, len(d.cards)),
		requests:      make(map[int64]models.BlockRequest, len(d.requests)),
		nextUserID:    d.nextUserID,
		nextCardID:    d.nextCardID,
		nextRequestID: d.nextRequestID,
	}
	for id, u := range d.users {
		cp.users[id] = u
	}
	for id, c := range d.cards {
		cp.cards[id] = c
	}
	for id, r := range d.requests {
		cp.requests[id] = r
	}
	return cp
}

func (d *data) CreateUser(_ context.Context, user *models.User) error {
	for _, u := range d.users {
		if u.Username == user.Username {
			return models.Validationf("username %q is already taken", user.Username)
		}
	}
	d.nextUserID++
	user.ID = d.nextUserID
	user.CreatedAt = time.Now().UTC()
	d.users[user.ID] = *user
	return nil
}

func (d *data) FindUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, models.NotFoundf("user %d not found", id)
	}
	return &u, nil
}

func (d *data) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range d.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, models.NotFoundf("user %q not found", username)
}

func (d *data) UserExists(_ context.Context, id int64) (bool, error) {
	_, ok := d.users[id]
	return ok, nil
}

func (d *data) CreateCard(_ context.Context, card *models.Card) error {
	if _, ok := d.users[card.UserID]; !ok {
		return models.NotFoundf("user %d not found", card.UserID)
	}
	for _, c := range d.cards {
		if c.NumberHash == card.NumberHash || c.EncryptedNumber == card.EncryptedNumber {
			return models.Validationf("card number is already registered")
		}
	}
	d.nextCardID++
	now := time.Now().UTC()
	card.ID = d.nextCardID
	card.CreatedAt = now
	card.UpdatedAt = now
	d.cards[card.ID] = *card
	return nil
}

func (d *data) FindCardByID(_ context.Context, id int64) (*models.Card, error) {
	c, ok := d.cards[id]
	if !ok {
		return nil, models.NotFoundf("card %d not found", id)
	}
	return &c, nil
}

func (d *data) CardExists(_ context.Context, id int64) (bool, error) {
	_, ok := d.cards[id]
	return ok, nil
}

func (d *data) UpdateCard(_ context.Context, card *models.Card) error {
	stored, ok := d.cards[card.ID]
	if !ok {
		return models.NotFoundf("card %d not found", card.ID)
	}
	if card.Balance.IsNegative() {
		return models.Validationf("card %d balance cannot be negative", card.ID)
	}
	stored.Status = card.Status
	stored.Balance = card.Balance
	stored.UpdatedAt = time.Now().UTC()
	card.UpdatedAt = stored.UpdatedAt
	d.cards[card.ID] = stored
	return nil
}

func (d *data) DeleteCard(_ context.Context, id int64) error {
	if _, ok := d.cards[id]; !ok {
		return models.NotFoundf("card %d not found", id)
	}
	delete(d.cards, id)
	for rid, r := range d.requests {
		if r.CardID == id {
			delete(d.requests, rid)
		}
	}
	return nil
}

func (d *data) FindCardsByUserID(_ context.Context, userID int64) ([]models.Card, error) {
	var out []models.Card
	for _, c := range d.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sortCards(out)
	return out, nil
}

func (d *data) FindAllCards(_ context.Context) ([]models.Card, error) {
	out := make([]models.Card, 0, len(d.cards))
	for _, c := range d.cards {
		out = append(out, c)
	}
	sortCards(out)
	return out, nil
}

func (d *data) ExpireCards(_ context.Context, before time.Time) ([]int64, error) {
	var ids []int64
	now := time.Now().UTC()
	for id, c := range d.cards {
		if c.Status == models.CardStatusExpired || !c.ExpirationDate.Before(before) {
			continue
		}
		c.Status = models.CardStatusExpired
		c.UpdatedAt = now
		d.cards[id] = c
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (d *data) CreateBlockRequest(_ context.Context, req *models.BlockRequest) error {
	if _, ok := d.cards[req.CardID]; !ok {
		return models.NotFoundf("card %d not found", req.CardID)
	}
	if req.Status == models.BlockRequestPending {
		for _, r := range d.requests {
			if r.CardID == req.CardID && r.Status == models.BlockRequestPending {
				return models.Validationf("card %d already has a pending block request", req.CardID)
			}
		}
	}
	d.nextRequestID++
	req.ID = d.nextRequestID
	d.requests[req.ID] = *req
	return nil
}

func (d *data) FindBlockRequestByID(_ context.Context, id int64) (*models.BlockRequest, error) {
	r, ok := d.requests[id]
	if !ok {
		return nil, models.NotFoundf("block request %d not found", id)
	}
	return &r, nil
}

func (d *data) UpdateBlockRequest(_ context.Context, req *models.BlockRequest) error {
	if _, ok := d.requests[req.ID]; !ok {
		return models.NotFoundf("block request %d not found", req.ID)
	}
	d.requests[req.ID] = *req
	return nil
}

func (d *data) ExistsBlockRequestByCardIDAndStatus(_ context.Context, cardID int64, status models.BlockRequestStatus) (bool, error) {
	for _, r := range d.requests {
		if r.CardID == cardID && r.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (d *data) FindBlockRequestByCardIDAndStatus(ctx context.Context, cardID int64, status models.BlockRequestStatus) (*models.BlockRequest, error) {
	var found *models.BlockRequest
	for _, r := range d.requests {
		if r.CardID == cardID && r.Status == status && (found == nil || r.ID < found.ID) {
			cp := r
			found = &cp
		}
	}
	if found == nil {
		return nil, models.NotFoundf("no %s block request for card %d", status, cardID)
	}
	return found, nil
}

func (d *data) FindBlockRequestsByStatus(_ context.Context, status models.BlockRequestStatus) ([]models.BlockRequest, error) {
	return d.filterRequests(func(r models.BlockRequest) bool { return r.Status == status }), nil
}

func (d *data) FindBlockRequestsByUserID(_ context.Context, userID int64) ([]models.BlockRequest, error) {
	return d.filterRequests(func(r models.BlockRequest) bool { return r.UserID == userID }), nil
}

func (d *data) filterRequests(keep func(models.BlockRequest) bool) []models.BlockRequest {
	var out []models.BlockRequest
	for _, r := range d.requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortCards(cards []models.Card) {
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
}

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Tx    = (*tx)(nil)
)
