package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/loan-ledger/internal/domain"
)

type Type string

const (
	LoanCreated       Type = "loan.created"
	LoanUpdated       Type = "loan.updated"
	LoanDeleted       Type = "loan.deleted"
	LoanApproved      Type = "loan.approved"
	LoanRejected      Type = "loan.rejected"
	LoanStatusChanged Type = "loan.status_changed"
	TransactionAdded  Type = "loan.transaction_recorded"
	AccountCreated    Type = "account.created"
)

const (
	listKey      = "loans:list"
	dashboardKey = "dashboard:all"
)

// Event tells the caching layer in front of the API which keys went stale.
type Event struct {
	Type       Type             `json:"type"`
	LoanID     *uuid.UUID       `json:"loan_id,omitempty"`
	AccountID  *uuid.UUID       `json:"account_id,omitempty"`
	BranchID   string           `json:"branch_id,omitempty"`
	Direction  domain.Direction `json:"direction,omitempty"`
	Keys       []string         `json:"keys"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// InvalidationKeys lists the cache keys a write to loan makes stale: the
// loan itself, the listing and every dashboard it contributes to.
func InvalidationKeys(loan *domain.Loan) []string {
	return []string{
		"loan:" + loan.ID.String(),
		listKey,
		dashboardKey,
		"dashboard:branch:" + loan.BranchID,
		"dashboard:direction:" + string(loan.Direction),
	}
}

// ForLoan builds the event for a committed write to loan.
func ForLoan(t Type, loan *domain.Loan, at time.Time) Event {
	id := loan.ID
	return Event{
		Type:       t,
		LoanID:     &id,
		BranchID:   loan.BranchID,
		Direction:  loan.Direction,
		Keys:       InvalidationKeys(loan),
		OccurredAt: at,
	}
}

// ForAccount builds the event for a newly created bank account. Loans are
// unaffected, so only the account key is listed.
func ForAccount(t Type, account *domain.BankAccount, at time.Time) Event {
	id := account.ID
	return Event{
		Type:       t,
		AccountID:  &id,
		BranchID:   account.BranchID,
		Keys:       []string{AccountKey(id)},
		OccurredAt: at,
	}
}

// AccountKey is the cache key of a bank account.
func AccountKey(id uuid.UUID) string {
	return "account:" + id.String()
}

// Publisher delivers events after the write they describe has committed.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event. Used when Redis is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

type RedisPublisher struct {
	client    *redis.Client
	channel   string
	keyPrefix string
}

func NewRedisPublisher(client *redis.Client, channel, keyPrefix string) *RedisPublisher {
	return &RedisPublisher{
		client:    client,
		channel:   channel,
		keyPrefix: keyPrefix,
	}
}

// Publish broadcasts the event on the channel and drops the stale keys
// under the configured prefix in one round trip.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	keys := make([]string, 0, len(event.Keys))
	for _, k := range event.Keys {
		keys = append(keys, p.keyPrefix+k)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.Publish(ctx, p.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
