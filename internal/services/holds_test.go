package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"circulation/internal/models"
)

func TestQueuePositionAfterCancellation(t *testing.T) {
	h := newHarness(t)
	pub, _ := h.publication("Middlemarch", "9780141439548", 0)
	a := h.placeHold(pub, h.fx.Borrower("a", ""))
	h.clock.Advance(time.Minute)
	b := h.placeHold(pub, h.fx.Borrower("b", ""))
	h.clock.Advance(time.Minute)
	c := h.placeHold(pub, h.fx.Borrower("c", ""))
	assert.Equal(t, 3, c.QueuePosition)

	_, err := h.svc.CancelHold(h.ctx, b.ID)
	require.NoError(t, err)

	pos, err := h.svc.QueuePosition(h.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	pos, err = h.svc.QueuePosition(h.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	pos, err = h.svc.QueuePosition(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, pos)

	list, err := h.svc.ListHolds(h.ctx, pub.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, 1, list[0].QueuePosition)
	assert.Equal(t, c.ID, list[1].ID)
	assert.Equal(t, 2, list[1].QueuePosition)
}

func TestQueuePositionsStayContiguous(t *testing.T) {
	h := newHarness(t)
	round := 0
	rapid.Check(t, func(rt *rapid.T) {
		round++
		n := rapid.IntRange(1, 7).Draw(rt, "holds")
		cancel := rapid.SliceOfN(rapid.Bool(), n, n).Draw(rt, "cancel")

		pub := h.fx.Publication(fmt.Sprintf("Pub %d", round), fmt.Sprintf("ISBN-%d", round))
		holds := make([]*models.Hold, 0, n)
		for i := 0; i < n; i++ {
			b := h.fx.Borrower(fmt.Sprintf("r%d-b%d", round, i), "")
			hold, err := h.svc.PlaceHold(h.ctx, pub.ID, b.ID, h.branch.ID, "")
			if err != nil {
				rt.Fatalf("place hold %d: %v", i, err)
			}
			holds = append(holds, hold)
			if rapid.Bool().Draw(rt, "advance") {
				h.clock.Advance(time.Second)
			}
		}
		for i, hold := range holds {
			if cancel[i] {
				if _, err := h.svc.CancelHold(h.ctx, hold.ID); err != nil {
					rt.Fatalf("cancel hold %d: %v", i, err)
				}
			}
		}

		list, err := h.svc.ListHolds(h.ctx, pub.ID)
		if err != nil {
			rt.Fatalf("list holds: %v", err)
		}
		for i, hold := range list {
			if hold.QueuePosition != i+1 {
				rt.Fatalf("hold %d listed at %d has position %d", i, i+1, hold.QueuePosition)
			}
			pos, err := h.svc.QueuePosition(h.ctx, hold.ID)
			if err != nil {
				rt.Fatalf("queue position: %v", err)
			}
			if pos != hold.QueuePosition {
				rt.Fatalf("hold %s: recomputed position %d, listed %d", hold.ID, pos, hold.QueuePosition)
			}
			if i > 0 && list[i-1].HoldDate.After(hold.HoldDate) {
				rt.Fatalf("holds out of order at %d", i)
			}
		}
	})
}

func TestPlaceHoldRejectsDuplicate(t *testing.T) {
	h := newHarness(t)
	pub, _ := h.publication("Emma", "9780141439588", 0)
	b := h.fx.Borrower("harriet", "")
	h.placeHold(pub, b)

	_, err := h.svc.PlaceHold(h.ctx, pub.ID, b.ID, h.branch.ID, "")

	assert.ErrorIs(t, err, ErrDuplicateHold)
	assert.True(t, errors.Is(err, ErrDuplicateClaim))
}

func TestPlaceHoldValidatesReferences(t *testing.T) {
	h := newHarness(t)
	pub, _ := h.publication("Kidnapped", "9780141441771", 0)
	b := h.fx.Borrower("david", "")

	_, err := h.svc.PlaceHold(h.ctx, pub.ID, pub.ID, h.branch.ID, "")
	assert.ErrorIs(t, err, ErrBorrowerNotFound)
	_, err = h.svc.PlaceHold(h.ctx, b.ID, b.ID, h.branch.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetHoldReadyWithoutFreeItemLeavesHoldWaiting(t *testing.T) {
	h := newHarness(t)
	pub, _ := h.publication("Silas Marner", "9780141439754", 1)
	h.fx.Borrower("silas", "C1")
	h.checkout("9780141439754", "C1")
	hold := h.placeHold(pub, h.fx.Borrower("eppie", ""))

	_, err := h.svc.SetHoldReady(h.ctx, hold.ID)

	assert.ErrorIs(t, err, ErrNoAvailableItem)
	stored := h.fx.ReloadHold(hold.ID)
	assert.Equal(t, models.HoldStatusWaiting, stored.Status)
	assert.Nil(t, stored.ReservedItemID)
}

func TestSetHoldReadyOnlyFromWaiting(t *testing.T) {
	h := newHarness(t)
	pub, _ := h.publication("Shirley", "9780141439860", 2)
	hold := h.placeHold(pub, h.fx.Borrower("caroline", ""))
	_, err := h.svc.SetHoldReady(h.ctx, hold.ID)
	require.NoError(t, err)

	_, err = h.svc.SetHoldReady(h.ctx, hold.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestCancelReadyHoldReleasesItem(t *testing.T) {
	h := newHarness(t)
	pub, items := h.publication("Villette", "9780141434797", 1)
	hold := h.placeHold(pub, h.fx.Borrower("lucy", ""))
	_, err := h.svc.SetHoldReady(h.ctx, hold.ID)
	require.NoError(t, err)

	cancelled, err := h.svc.CancelHold(h.ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusCancelled, cancelled.Status)

	item := h.fx.ReloadItem(items[0].ID)
	assert.Equal(t, models.ItemStatusAvailable, item.Status)
	assert.Nil(t, item.ClaimID)
	assert.Equal(t, models.NotificationHoldCancelled, h.notes.last().Type)

	_, err = h.svc.CancelHold(h.ctx, hold.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestCompleteHoldLendsReservedItem(t *testing.T) {
	h := newHarness(t)
	pub, items := h.publication("Vanity Fair", "9780141439839", 1)
	becky := h.fx.Borrower("becky", "")
	hold := h.placeHold(pub, becky)

	_, err := h.svc.CompleteHold(h.ctx, hold.ID, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = h.svc.SetHoldReady(h.ctx, hold.ID)
	require.NoError(t, err)
	loan, err := h.svc.CompleteHold(h.ctx, hold.ID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, items[0].ID, loan.ItemID)
	assert.Equal(t, becky.ID, loan.BorrowerID)
	stored := h.fx.ReloadHold(hold.ID)
	assert.Equal(t, models.HoldStatusFulfilled, stored.Status)
	require.NotNil(t, stored.LoanID)
	assert.Equal(t, loan.ID, *stored.LoanID)
	assert.Equal(t, models.ItemStatusOnLoan, h.fx.ReloadItem(items[0].ID).Status)
}

func TestCompleteHoldWithOtherCopyReleasesReservation(t *testing.T) {
	h := newHarness(t)
	pub, items := h.publication("Bleak House", "9780141439723", 2)
	hold := h.placeHold(pub, h.fx.Borrower("esther", ""))
	ready, err := h.svc.SetHoldReady(h.ctx, hold.ID)
	require.NoError(t, err)
	reserved := *ready.ReservedItemID
	other := items[0].ID
	if other == reserved {
		other = items[1].ID
	}

	loan, err := h.svc.CompleteHold(h.ctx, hold.ID, &other, nil)
	require.NoError(t, err)

	assert.Equal(t, other, loan.ItemID)
	assert.Equal(t, models.ItemStatusAvailable, h.fx.ReloadItem(reserved).Status)
	assert.Equal(t, models.ItemStatusOnLoan, h.fx.ReloadItem(other).Status)
}

func TestCompleteHoldRejectsIneligibleBorrower(t *testing.T) {
	h := newHarness(t)
	pub, items := h.publication("Pamela", "9780140431407", 1)
	b := h.fx.Borrower("pamela", "")
	hold := h.placeHold(pub, b)
	_, err := h.svc.SetHoldReady(h.ctx, hold.ID)
	require.NoError(t, err)
	require.NoError(t, h.db.Model(b).Update("is_blocked", true).Error)

	_, err = h.svc.CompleteHold(h.ctx, hold.ID, nil, nil)

	assert.ErrorIs(t, err, ErrIneligible)
	assert.Equal(t, models.HoldStatusReady, h.fx.ReloadHold(hold.ID).Status)
	assert.Equal(t, models.ItemStatusOnHoldShelf, h.fx.ReloadItem(items[0].ID).Status)
}

func TestExpireHolds(t *testing.T) {
	h := newHarness(t)
	pub, items := h.publication("Tess", "9780141439594", 1)
	hold := h.placeHold(pub, h.fx.Borrower("tess", ""))
	_, err := h.svc.SetHoldReady(h.ctx, hold.ID)
	require.NoError(t, err)

	h.clock.Advance(6 * 24 * time.Hour)
	n, err := h.svc.ExpireHolds(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(2 * 24 * time.Hour)
	n, err = h.svc.ExpireHolds(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.HoldStatusExpired, h.fx.ReloadHold(hold.ID).Status)
	assert.Equal(t, models.ItemStatusAvailable, h.fx.ReloadItem(items[0].ID).Status)

	n, err = h.svc.ExpireHolds(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
