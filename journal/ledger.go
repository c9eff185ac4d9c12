package journal

import (
	"github.com/rustyeddy/bandtrader/broker"
)

// Ledger is the append-only fill ledger of a single run. It is not safe for
// concurrent use; each run owns its own.
type Ledger struct {
	fills []Fill
}

var _ broker.Listener = (*Ledger)(nil)

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// RecordFill appends f.
func (l *Ledger) RecordFill(f Fill) {
	l.fills = append(l.fills, f)
}

// MarkClosed flags the fill that closed tc and overwrites its PnL with the
// trade's realized PnL. The first matching record wins. It returns false,
// and changes nothing, when no record matches.
func (l *Ledger) MarkClosed(tc broker.TradeClosed) bool {
	if tc.FillID == "" {
		return false
	}
	for i := range l.fills {
		if l.fills[i].ID == tc.FillID {
			l.fills[i].Closed = true
			l.fills[i].PnL = tc.PnL
			return true
		}
	}
	return false
}

// Fills returns a copy of the records in insertion order.
func (l *Ledger) Fills() []Fill {
	out := make([]Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

func (l *Ledger) Len() int { return len(l.fills) }

// OnOrder records completed orders.
func (l *Ledger) OnOrder(ev broker.OrderEvent) {
	if ev.Status == broker.Completed {
		l.RecordFill(FillFromEvent(ev))
	}
}

// OnTradeClosed marks the closing fill.
func (l *Ledger) OnTradeClosed(tc broker.TradeClosed) {
	l.MarkClosed(tc)
}
