package reply

import (
	"context"
	"fmt"
	"strings"
)

const (
	mailboxContactQuery = `to:"%s"`
	sentContactQuery    = `in:sent to:"%s"`
)

// QueryContactChecker treats any message matching a search query as prior contact.
type QueryContactChecker struct {
	searcher MessageSearcher
	format   string
}

// NewMailboxContactChecker reports prior contact when any message in the
// mailbox is addressed to the sender, whoever wrote it.
func NewMailboxContactChecker(searcher MessageSearcher) *QueryContactChecker {
	return &QueryContactChecker{searcher: searcher, format: mailboxContactQuery}
}

// NewSentContactChecker only counts messages the account itself sent to the sender.
func NewSentContactChecker(searcher MessageSearcher) *QueryContactChecker {
	return &QueryContactChecker{searcher: searcher, format: sentContactQuery}
}

// Query builds the search for address. The address is quoted so that a local
// part containing spaces stays a single term.
func (c *QueryContactChecker) Query(address string) string {
	return fmt.Sprintf(c.format, strings.ReplaceAll(address, `"`, ""))
}

func (c *QueryContactChecker) HasPriorContact(ctx context.Context, address string) (bool, error) {
	return c.searcher.HasMessages(ctx, c.Query(address))
}

// LedgerContactChecker only counts replies this responder recorded.
type LedgerContactChecker struct {
	ledger ReplyLedger
}

func NewLedgerContactChecker(ledger ReplyLedger) *LedgerContactChecker {
	return &LedgerContactChecker{ledger: ledger}
}

func (c *LedgerContactChecker) HasPriorContact(ctx context.Context, address string) (bool, error) {
	return c.ledger.HasRepliedTo(ctx, address)
}
