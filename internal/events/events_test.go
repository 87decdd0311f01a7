package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidationKeys(t *testing.T) {
	id := uuid.MustParse("6f1c1f0e-2f63-4c55-9a57-0a6c1d7f9b11")
	loan := &domain.Loan{ID: id, BranchID: "dhaka", Direction: domain.DirectionReceiving}

	assert.Equal(t, []string{
		"loan:6f1c1f0e-2f63-4c55-9a57-0a6c1d7f9b11",
		"loans:list",
		"dashboard:all",
		"dashboard:branch:dhaka",
		"dashboard:direction:receiving",
	}, InvalidationKeys(loan))
}

func TestForLoan(t *testing.T) {
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	loan := &domain.Loan{ID: uuid.New(), BranchID: "khulna", Direction: domain.DirectionGiving}

	ev := ForLoan(LoanApproved, loan, at)
	require.NotNil(t, ev.LoanID)
	assert.Equal(t, loan.ID, *ev.LoanID)
	assert.Equal(t, LoanApproved, ev.Type)
	assert.Equal(t, "khulna", ev.BranchID)
	assert.Equal(t, at, ev.OccurredAt)
	assert.Len(t, ev.Keys, 5)

	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"type":"loan.approved"`)
	assert.NotContains(t, string(payload), "account_id")
}

func TestForAccount(t *testing.T) {
	account := &domain.BankAccount{ID: uuid.New(), BranchID: "dhaka"}
	ev := ForAccount(AccountCreated, account, time.Now())

	assert.Nil(t, ev.LoanID)
	assert.Equal(t, []string{AccountKey(account.ID)}, ev.Keys)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), Event{Type: LoanCreated}))
}

func TestRedisPublisher_Publish(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	prefix := "test:" + uuid.NewString() + ":"
	channel := prefix + "events"
	loan := &domain.Loan{ID: uuid.New(), BranchID: "dhaka", Direction: domain.DirectionGiving}
	cached := prefix + "loan:" + loan.ID.String()
	require.NoError(t, client.Set(ctx, cached, "stale", time.Minute).Err())

	sub := client.Subscribe(ctx, channel)
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewRedisPublisher(client, channel, prefix)
	require.NoError(t, publisher.Publish(ctx, ForLoan(LoanUpdated, loan, time.Now())))

	exists, err := client.Exists(ctx, cached).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	select {
	case msg := <-sub.Channel():
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, LoanUpdated, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no invalidation event received")
	}
}
