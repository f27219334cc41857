package tools

import (
	"github.com/martinemde/conductor/audit"
	"github.com/martinemde/conductor/journal"
	"github.com/martinemde/conductor/router"
	"github.com/martinemde/conductor/sandbox"
)

// Toolbox bundles the dependencies the built-in tools need: sandbox policy
// for effect gating, journal for reversibility, audit sink, the router for
// search delegation, and the memo store path.
type Toolbox struct {
	Policy   *sandbox.Policy
	Journal  *journal.Journal
	Sink     *audit.Sink
	Router   *router.Router
	MemoPath string

	memo *memoStore
}

// RegisterAll registers every built-in tool on the registry.
func (tb *Toolbox) RegisterAll(reg *Registry) error {
	if tb.Sink == nil {
		tb.Sink = audit.Default()
	}
	tb.memo = newMemoStore(tb.MemoPath)

	registrations := []func(*Registry) error{
		tb.registerFilesystem,
		tb.registerTerminal,
		tb.registerEditor,
		tb.registerSearch,
		tb.registerThink,
		tb.registerMemory,
		tb.registerRequestApproval,
		tb.registerReport,
		tb.registerJournal,
	}
	for _, register := range registrations {
		if err := register(reg); err != nil {
			return err
		}
	}
	return nil
}
