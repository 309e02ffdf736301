package command

import "sync"

// TickSource returns a monotonically-increasing uptime tick, stamped onto a
// command when it is assigned. Satisfied by pkg/device's uptime clock;
// declared here to avoid a dependency on a not-yet-built package (accept
// interfaces).
type TickSource func() uint32

// List holds the set of current and recent commands: in the Privet model
// there is a single active command, a number of deferred (asynchronous)
// commands, and a history of recently-completed ones, all drawn from one
// fixed-size pool. Grounded on
// original_source/src/libuweave/include/uweave/command_list.h and
// src/command_list.h/.c.
type List struct {
	mu    sync.Mutex
	tick  TickSource
	items []*Command

	nextID uint32
}

// NewList allocates count command slots, each with a reply buffer of
// maxResponseLen bytes. maxResponseLen is bound by the transport's packet
// buffer size minus header overhead; shortening it for an application that
// only ever sends small replies saves memory, at the cost of
// PrivetResponseTooLarge for any reply that doesn't fit.
func NewList(count int, maxResponseLen int, tick TickSource) *List {
	items := make([]*Command, count)
	for i := range items {
		items[i] = newCommand(make([]byte, maxResponseLen))
	}
	return &List{tick: tick, items: items}
}

// isPreferred reports whether candidate should be evicted/reused ahead of
// current, per uw_command_list.c's is_preferred_.
func isPreferred(candidate, current *Command) bool {
	if candidate.state == StateEmpty && current.state != StateEmpty {
		return true
	}
	if candidate.isComplete() && current.isComplete() {
		return candidate.commandID < current.commandID
	}
	return candidate.state < current.state
}

// GetFreeOrEvict returns the best command slot to bind a new request to:
// an empty slot if one exists, otherwise the most nearly "finished"
// occupied slot (lowest command id wins ties). Returns nil if every slot
// is still genuinely in flight. Grounded on
// uw_command_list_get_free_or_evict_.
func (l *List) GetFreeOrEvict() *Command {
	l.mu.Lock()
	defer l.mu.Unlock()

	var candidate *Command
	for _, cur := range l.items {
		if candidate == nil {
			if cur.isComplete() {
				candidate = cur
			}
			continue
		}
		if isPreferred(cur, candidate) {
			candidate = cur
		}
	}
	if candidate == nil {
		return nil
	}

	l.nextID++
	candidate.commandID = l.nextID
	if l.tick != nil {
		candidate.tickStamp = l.tick()
	}
	// state is left as-is: the caller (execute handler) transitions it via
	// Bind followed by one of MarkDeferred/Reply*, same as the origin's
	// uw_command_reset_with_request_ leaving ->state untouched.
	return candidate
}

// Bind assigns req to cmd, as the final step of accepting a new execute
// call onto the slot returned by GetFreeOrEvict.
func (l *List) Bind(cmd *Command, req *ExecuteRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cmd.resetWithRequest(req)
}

// GetByID returns the initialized command with the given id, or nil.
// Grounded on uw_command_list_get_command_by_id.
func (l *List) GetByID(id uint32) *Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, cur := range l.items {
		if cur.IsInitialized() && cur.commandID == id {
			return cur
		}
	}
	return nil
}
