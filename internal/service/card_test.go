package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dan9191/bank-cards/internal/events"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/shopspring/decimal"
)

func TestCreateCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	view, err := f.cards.CreateCard(ctx, alice, models.NewCard{
		Number:         "4532 0151 1283 0366",
		Owner:          " Alice Smith ",
		ExpirationDate: time.Now().AddDate(2, 0, 0),
		UserID:         alice.UserID,
	})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if view.CardNumber != "**** **** **** 0366" {
		t.Fatalf("CardNumber=%q", view.CardNumber)
	}
	if view.Status != models.CardStatusActive || !view.Balance.IsZero() || view.Owner != "Alice Smith" {
		t.Fatalf("unexpected view %+v", view)
	}
	if !f.publisher.has(events.CardCreated) {
		t.Fatal("card.created was not published")
	}

	stored, _ := f.store.FindCardByID(ctx, view.ID)
	if strings.Contains(stored.EncryptedNumber, "4532015112830366") {
		t.Fatal("number stored in clear")
	}

	// Same number again, differently formatted
	_, err = f.cards.CreateCard(ctx, alice, models.NewCard{
		Number:         "4532015112830366",
		Owner:          "Alice Smith",
		ExpirationDate: time.Now().AddDate(2, 0, 0),
		UserID:         alice.UserID,
	})
	wantErr(t, err, models.ErrValidation)
}

func TestCreateCardValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	future := time.Now().AddDate(2, 0, 0)

	cases := map[string]struct {
		caller models.Caller
		in     models.NewCard
		kind   error
	}{
		"bad luhn": {alice, models.NewCard{Number: "4532015112830367", Owner: "A", ExpirationDate: future, UserID: alice.UserID}, models.ErrValidation},
		"expired":  {alice, models.NewCard{Number: "4532015112830366", Owner: "A", ExpirationDate: time.Now().AddDate(0, 0, -2), UserID: alice.UserID}, models.ErrValidation},
		"no owner": {alice, models.NewCard{Number: "4532015112830366", Owner: " ", ExpirationDate: future, UserID: alice.UserID}, models.ErrValidation},
		"for other user": {alice, models.NewCard{Number: "4532015112830366", Owner: "A", ExpirationDate: future, UserID: bob.UserID}, models.ErrAccessDenied},
		"unknown user": {models.Caller{UserID: 99, IsAdmin: true}, models.NewCard{Number: "4532015112830366", Owner: "A", ExpirationDate: future, UserID: 99}, models.ErrNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.cards.CreateCard(ctx, tc.caller, tc.in)
			wantErr(t, err, tc.kind)
		})
	}

	admin := f.admin(t)
	view, err := f.cards.CreateCard(ctx, admin, models.NewCard{Number: "4111111111111111", Owner: "Bob", ExpirationDate: future, UserID: bob.UserID})
	if err != nil {
		t.Fatalf("admin CreateCard for bob: %v", err)
	}
	if view.UserID != bob.UserID {
		t.Fatalf("UserID=%d want %d", view.UserID, bob.UserID)
	}
}

func TestCardAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	admin := f.admin(t)
	card := f.card(t, alice, 250)

	if _, err := f.cards.GetCard(ctx, bob, card.ID); err == nil {
		t.Fatal("bob read alice's card")
	}
	_, err := f.cards.GetBalance(ctx, bob, card.ID)
	wantErr(t, err, models.ErrAccessDenied)

	balance, err := f.cards.GetBalance(ctx, admin, card.ID)
	if err != nil || !balance.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("admin balance=%s err=%v", balance, err)
	}
	_, err = f.cards.GetCard(ctx, alice, 12345)
	wantErr(t, err, models.ErrNotFound)

	_, err = f.cards.ListUserCards(ctx, bob, alice.UserID)
	wantErr(t, err, models.ErrAccessDenied)
	mine, err := f.cards.ListUserCards(ctx, alice, alice.UserID)
	if err != nil || len(mine) != 1 {
		t.Fatalf("ListUserCards=%v err=%v", mine, err)
	}

	_, err = f.cards.ListCards(ctx, alice)
	wantErr(t, err, models.ErrAccessDenied)
	all, err := f.cards.ListCards(ctx, admin)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListCards=%v err=%v", all, err)
	}
}

func TestBlockAndActivateCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	admin := f.admin(t)
	card := f.card(t, alice, 0)

	_, err := f.cards.BlockCard(ctx, alice, card.ID)
	wantErr(t, err, models.ErrAccessDenied)

	view, err := f.cards.BlockCard(ctx, admin, card.ID)
	if err != nil || view.Status != models.CardStatusBlocked {
		t.Fatalf("BlockCard=%+v err=%v", view, err)
	}
	_, err = f.cards.BlockCard(ctx, admin, card.ID)
	wantErr(t, err, models.ErrValidation)

	view, err = f.cards.ActivateCard(ctx, admin, card.ID)
	if err != nil || view.Status != models.CardStatusActive {
		t.Fatalf("ActivateCard=%+v err=%v", view, err)
	}
	_, err = f.cards.ActivateCard(ctx, admin, card.ID)
	wantErr(t, err, models.ErrValidation)

	_, err = f.cards.BlockCard(ctx, admin, 999)
	wantErr(t, err, models.ErrNotFound)
}

func TestExpiredCardRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	admin := f.admin(t)
	expired := f.card(t, alice, 100)
	if _, err := f.store.ExpireCards(ctx, time.Now().AddDate(10, 0, 0)); err != nil {
		t.Fatal(err)
	}
	active := f.card(t, alice, 100)
	if f.status(t, expired.ID) != models.CardStatusExpired || f.status(t, active.ID) != models.CardStatusActive {
		t.Fatalf("statuses=%s/%s", f.status(t, expired.ID), f.status(t, active.ID))
	}

	_, err := f.cards.BlockCard(ctx, admin, expired.ID)
	wantErr(t, err, models.ErrValidation)
	_, err = f.cards.ActivateCard(ctx, admin, expired.ID)
	wantErr(t, err, models.ErrValidation)

	wantErr(t, f.cards.Transfer(ctx, alice, expired.ID, active.ID, decimal.NewFromInt(10)), models.ErrValidation)
	wantErr(t, f.cards.Transfer(ctx, alice, active.ID, expired.ID, decimal.NewFromInt(10)), models.ErrValidation)

	if f.status(t, expired.ID) != models.CardStatusExpired {
		t.Fatalf("expired card status=%s", f.status(t, expired.ID))
	}
	hundred := decimal.NewFromInt(100)
	if !f.balance(t, expired.ID).Equal(hundred) || !f.balance(t, active.ID).Equal(hundred) {
		t.Fatalf("balances=%s/%s", f.balance(t, expired.ID), f.balance(t, active.ID))
	}
}

func TestDeleteCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	admin := f.admin(t)
	card := f.card(t, alice, 0)

	wantErr(t, f.cards.DeleteCard(ctx, alice, card.ID), models.ErrAccessDenied)
	if err := f.cards.DeleteCard(ctx, admin, card.ID); err != nil {
		t.Fatal(err)
	}
	wantErr(t, f.cards.DeleteCard(ctx, admin, card.ID), models.ErrNotFound)
	if !f.publisher.has(events.CardDeleted) {
		t.Fatal("card.deleted was not published")
	}
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	from := f.card(t, alice, 100)
	to := f.card(t, alice, 0)

	if err := f.cards.Transfer(ctx, alice, from.ID, to.ID, decimal.NewFromInt(40)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := f.balance(t, from.ID); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("from=%s want 60", got)
	}
	if got := f.balance(t, to.ID); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("to=%s want 40", got)
	}
	if !f.publisher.has(events.TransferCompleted) {
		t.Fatal("transfer.completed was not published")
	}

	// Insufficient funds leaves both balances untouched
	err := f.cards.Transfer(ctx, alice, from.ID, to.ID, decimal.NewFromInt(70))
	wantErr(t, err, models.ErrValidation)
	if got := f.balance(t, from.ID); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("from=%s want 60 after failed transfer", got)
	}
	if got := f.balance(t, to.ID); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("to=%s want 40 after failed transfer", got)
	}
}

func TestTransferRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	admin := f.admin(t)
	a1 := f.card(t, alice, 500)
	a2 := f.card(t, alice, 4990)
	b1 := f.card(t, bob, 100)
	blocked := f.card(t, alice, 100)
	if _, err := f.cards.BlockCard(ctx, admin, blocked.ID); err != nil {
		t.Fatal(err)
	}

	cases := map[string]struct {
		from, to int64
		amount   string
		kind     error
	}{
		"same card":         {a1.ID, a1.ID, "1", models.ErrValidation},
		"foreign card":      {a1.ID, b1.ID, "1", models.ErrAccessDenied},
		"blocked source":    {blocked.ID, a1.ID, "1", models.ErrValidation},
		"blocked target":    {a1.ID, blocked.ID, "1", models.ErrValidation},
		"zero amount":       {a1.ID, a2.ID, "0", models.ErrValidation},
		"three decimals":    {a1.ID, a2.ID, "1.005", models.ErrValidation},
		"over max transfer": {a2.ID, a1.ID, "1000.01", models.ErrValidation},
		"over max balance":  {a1.ID, a2.ID, "10.01", models.ErrValidation},
		"missing card":      {a1.ID, 999, "1", models.ErrNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.cards.Transfer(ctx, alice, tc.from, tc.to, decimal.RequireFromString(tc.amount))
			wantErr(t, err, tc.kind)
		})
	}

	if got := f.balance(t, a1.ID); !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("a1=%s, rejected transfers changed a balance", got)
	}

	// Exactly reaching the ceiling is allowed
	if err := f.cards.Transfer(ctx, alice, a1.ID, a2.ID, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("transfer up to max balance: %v", err)
	}
}

func TestConcurrentOppositeTransfersKeepTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	a := f.card(t, alice, 500)
	b := f.card(t, alice, 500)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		from, to := a.ID, b.ID
		if i%2 == 1 {
			from, to = b.ID, a.ID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.cards.Transfer(ctx, alice, from, to, decimal.NewFromInt(5)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("transfer failed: %v", err)
	}

	total := f.balance(t, a.ID).Add(f.balance(t, b.ID))
	if !total.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("total=%s want 1000", total)
	}
	if !f.balance(t, a.ID).Equal(decimal.NewFromInt(500)) {
		t.Fatalf("a=%s want 500 after balanced transfers", f.balance(t, a.ID))
	}
}

func TestConcurrentDrainNeverOverdraws(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	from := f.card(t, alice, 100)
	to := f.card(t, alice, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.cards.Transfer(ctx, alice, from.ID, to.ID, decimal.NewFromInt(30)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("succeeded=%d want 3", succeeded)
	}
	if got := f.balance(t, from.ID); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("from=%s want 10", got)
	}
}

func TestExpireCards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	live := f.card(t, alice, 0)

	old := &models.Card{
		EncryptedNumber: "old-ct",
		NumberHash:      "old-hash",
		Owner:           "Alice",
		ExpirationDate:  time.Now().AddDate(-1, 0, 0),
		Status:          models.CardStatusActive,
		Balance:         decimal.Zero,
		UserID:          alice.UserID,
	}
	if err := f.store.CreateCard(ctx, old); err != nil {
		t.Fatal(err)
	}

	ids, err := f.cards.ExpireCards(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != old.ID {
		t.Fatalf("expired=%v want [%d]", ids, old.ID)
	}
	if f.status(t, old.ID) != models.CardStatusExpired || f.status(t, live.ID) != models.CardStatusActive {
		t.Fatal("wrong statuses after sweep")
	}

	// An undecryptable number still renders with the placeholder mask
	view, err := f.cards.GetCard(ctx, alice, old.ID)
	if err != nil {
		t.Fatal(err)
	}
	if view.CardNumber != "**** **** **** ****" {
		t.Fatalf("CardNumber=%q want placeholder", view.CardNumber)
	}
}
