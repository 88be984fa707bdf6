package market

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
)

// Budget is a team's spendable funds. Reserved money is earmarked against
// pending bids and is not available for new reservations.
type Budget struct {
	TeamID   string `json:"team_id"`
	Total    int64  `json:"total"`
	Reserved int64  `json:"reserved"`
}

func (b Budget) Available() int64 {
	return b.Total - b.Reserved
}

func (b Budget) View() BudgetView {
	return BudgetView{TeamID: b.TeamID, Total: b.Total, Reserved: b.Reserved, Available: b.Available()}
}

// Valid reports whether 0 <= reserved <= total.
func (b Budget) Valid() bool {
	return b.Total >= 0 && b.Reserved >= 0 && b.Reserved <= b.Total
}

const (
	accountAvailable = "available"
	accountReserved  = "reserved"
	accountMarket    = "market"
	accountRewards   = "rewards"
)

// Ledger applies reserve/release/settle/credit to team budgets inside a
// single Tx. Each budget row is locked once, on first touch, and every
// mutation is written back before the next one so the row always holds a
// valid state. Entries are buffered and written by Flush; callers flush
// before the transaction commits.
type Ledger struct {
	tx      Tx
	log     *slog.Logger
	group   string
	now     time.Time
	budgets map[string]*Budget
	entries []LedgerEntry
}

func NewLedger(tx Tx, logger *slog.Logger, now time.Time) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		tx:      tx,
		log:     logger,
		group:   uuid.NewString(),
		now:     now,
		budgets: make(map[string]*Budget),
	}
}

func (l *Ledger) budget(ctx context.Context, teamID string) (*Budget, error) {
	if b, ok := l.budgets[teamID]; ok {
		return b, nil
	}
	b, err := l.tx.LockBudget(ctx, teamID)
	if err != nil {
		return nil, err
	}
	l.budgets[teamID] = &b
	return &b, nil
}

// Budget returns the team's budget as seen inside this transaction.
func (l *Ledger) Budget(ctx context.Context, teamID string) (Budget, error) {
	b, err := l.budget(ctx, teamID)
	if err != nil {
		return Budget{}, err
	}
	return *b, nil
}

// Reserve earmarks amount; fails with KindInsufficientFunds when the team's
// available funds do not cover it.
func (l *Ledger) Reserve(ctx context.Context, teamID string, amount int64, ref string) error {
	b, err := l.budget(ctx, teamID)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return l.violation(ctx, "reserve", *b, amount)
	}
	if b.Available() < amount {
		return Errorf(KindInsufficientFunds, "insufficient funds: available %s, need %s", FormatAmount(b.Available()), FormatAmount(amount))
	}
	next := *b
	next.Reserved += amount
	return l.apply(ctx, b, next, "reserve", amount, ref,
		LedgerEntry{Account: accountAvailable, Delta: -amount},
		LedgerEntry{Account: accountReserved, Delta: amount},
	)
}

// Release returns reserved funds to available. Releasing more than is
// reserved is a programming error.
func (l *Ledger) Release(ctx context.Context, teamID string, amount int64, ref string) error {
	b, err := l.budget(ctx, teamID)
	if err != nil {
		return err
	}
	if amount <= 0 || amount > b.Reserved {
		return l.violation(ctx, "release", *b, amount)
	}
	next := *b
	next.Reserved -= amount
	return l.apply(ctx, b, next, "release", amount, ref,
		LedgerEntry{Account: accountReserved, Delta: -amount},
		LedgerEntry{Account: accountAvailable, Delta: amount},
	)
}

// Settle releases amount from reserved and debits it from total as one
// budget write. The amount must already be reserved.
func (l *Ledger) Settle(ctx context.Context, teamID string, amount int64, ref string) error {
	b, err := l.budget(ctx, teamID)
	if err != nil {
		return err
	}
	if amount <= 0 || amount > b.Reserved {
		return l.violation(ctx, "settle", *b, amount)
	}
	next := *b
	next.Reserved -= amount
	next.Total -= amount
	return l.apply(ctx, b, next, "settle", amount, ref,
		LedgerEntry{Account: accountReserved, Delta: -amount},
		LedgerEntry{Account: accountMarket, Delta: amount},
	)
}

// Credit adds amount to the team's total. An amount that would overflow the
// total is rejected as invalid input.
func (l *Ledger) Credit(ctx context.Context, teamID string, amount int64, ref string) error {
	b, err := l.budget(ctx, teamID)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return Errorf(KindInvalidInput, "credit amount must be > 0")
	}
	if amount > math.MaxInt64-b.Total {
		return Errorf(KindInvalidInput, "credit of %s would overflow team %s budget", FormatAmount(amount), teamID)
	}
	next := *b
	next.Total += amount
	return l.apply(ctx, b, next, "credit", amount, ref,
		LedgerEntry{Account: accountRewards, Delta: -amount},
		LedgerEntry{Account: accountAvailable, Delta: amount},
	)
}

func (l *Ledger) apply(ctx context.Context, cur *Budget, next Budget, action string, amount int64, ref string, legs ...LedgerEntry) error {
	if !next.Valid() {
		return l.violation(ctx, action, *cur, amount)
	}
	if err := l.tx.SaveBudget(ctx, next); err != nil {
		return fmt.Errorf("save budget %s: %w", next.TeamID, err)
	}
	*cur = next
	for _, leg := range legs {
		leg.TxGroupID = l.group
		leg.TeamID = next.TeamID
		leg.Action = action
		leg.RefID = ref
		leg.CreatedAt = l.now
		l.entries = append(l.entries, leg)
	}
	return nil
}

func (l *Ledger) violation(ctx context.Context, op string, b Budget, amount int64) error {
	l.log.ErrorContext(ctx, "ledger invariant violated",
		"op", op,
		"team_id", b.TeamID,
		"total", b.Total,
		"reserved", b.Reserved,
		"amount", amount,
	)
	return fmt.Errorf("%s %d on team %s (total=%d reserved=%d): %w", op, amount, b.TeamID, b.Total, b.Reserved, ErrInvariant)
}

// Entries returns the ledger legs recorded so far.
func (l *Ledger) Entries() []LedgerEntry {
	return l.entries
}

// Flush writes buffered ledger entries.
func (l *Ledger) Flush(ctx context.Context) error {
	if len(l.entries) == 0 {
		return nil
	}
	if err := l.tx.AppendLedger(ctx, l.entries); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	l.entries = nil
	return nil
}
