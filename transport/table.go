package transport

// pendingTable maps correlation ids to their waiting calls.
// It is owned by the dispatcher goroutine and never touched from anywhere else.
type pendingTable map[string]*Call

func newPendingTable() pendingTable {
	return make(pendingTable)
}

// insert adds call unless its id is already pending.
func (p pendingTable) insert(call *Call) error {
	if _, ok := p[call.ID]; ok {
		return ErrDuplicateID
	}
	p[call.ID] = call
	return nil
}

// take removes and returns the call registered under id.
func (p pendingTable) take(id string) (*Call, bool) {
	call, ok := p[id]
	if ok {
		delete(p, id)
	}
	return call, ok
}

// drain removes every call, handing each to fn.
func (p pendingTable) drain(fn func(*Call)) {
	for id, call := range p {
		delete(p, id)
		fn(call)
	}
}
