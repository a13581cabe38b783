package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
	badgerstore "github.com/jerilmartin/infini8seo-sub000/internal/storage/badger"
)

// LedgerEntry is one credit movement on a user's account. Entries are
// insert-only; balances are derived by summing.
type LedgerEntry struct {
	Key        string `badgerhold:"key"`
	UserID     string `badgerhold:"index"`
	Amount     int
	SourceKind string
	EntityID   string
	Reason     string
	CreatedAt  time.Time
}

// Ledger records credit movements in Badger. Idempotency comes from the
// entry key: (sourceKind, entityID) maps to exactly one row, so replaying
// a refund after a crash inserts nothing.
type Ledger struct {
	db     *badgerstore.BadgerDB
	logger arbor.ILogger
}

// NewLedger creates a Badger-backed credit ledger
func NewLedger(db *badgerstore.BadgerDB, logger arbor.ILogger) interfaces.CreditLedger {
	return &Ledger{
		db:     db,
		logger: logger,
	}
}

func entryKey(sourceKind, entityID string) string {
	return fmt.Sprintf("credit:%s:%s", sourceKind, entityID)
}

func (l *Ledger) AddCredits(ctx context.Context, userID string, amount int, sourceKind, entityID, reason string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if sourceKind == "" || entityID == "" {
		return fmt.Errorf("source kind and entity ID are required")
	}
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	entry := &LedgerEntry{
		Key:        entryKey(sourceKind, entityID),
		UserID:     userID,
		Amount:     amount,
		SourceKind: sourceKind,
		EntityID:   entityID,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}

	if err := l.db.Store().Insert(entry.Key, entry); err != nil {
		if err == badgerhold.ErrKeyExists {
			l.logger.Debug().
				Str("source_kind", sourceKind).
				Str("entity_id", entityID).
				Msg("Credit entry already recorded, skipping")
			return nil
		}
		return fmt.Errorf("failed to record credit entry: %w", err)
	}

	l.logger.Info().
		Str("user_id", userID).
		Int("amount", amount).
		Str("source_kind", sourceKind).
		Str("entity_id", entityID).
		Msg("Credits added")

	return nil
}

// Balance sums all ledger entries for a user
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	var entries []LedgerEntry
	if err := l.db.Store().Find(&entries, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return 0, fmt.Errorf("failed to read ledger for user %s: %w", userID, err)
	}

	total := 0
	for _, entry := range entries {
		total += entry.Amount
	}
	return total, nil
}
