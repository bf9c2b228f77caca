package registry

// PendingApproval is one outstanding connect_to_host request awaiting the
// target's connect_accept or connect_deny.
type PendingApproval struct {
	Requester *Client
	Port      int
}

// pendingApprovals replaces the "stacked per-message listener" design
// flagged as fragile in the original source: concurrent approval requests
// aimed at the same target used to tangle each other's listeners. Here
// each target socket owns an ordered queue, and connect_accept/deny always
// resolves the oldest outstanding entry for that socket.
type pendingApprovals struct {
	byTarget map[Socket][]PendingApproval
}

func newPendingApprovals() *pendingApprovals {
	return &pendingApprovals{byTarget: make(map[Socket][]PendingApproval)}
}

// Enqueue records a pending approval for targetSocket.
func (p *pendingApprovals) Enqueue(targetSocket Socket, approval PendingApproval) {
	p.byTarget[targetSocket] = append(p.byTarget[targetSocket], approval)
}

// Dequeue pops the oldest pending approval for targetSocket, if any.
func (p *pendingApprovals) Dequeue(targetSocket Socket) (PendingApproval, bool) {
	queue := p.byTarget[targetSocket]
	if len(queue) == 0 {
		return PendingApproval{}, false
	}
	next := queue[0]
	if len(queue) == 1 {
		delete(p.byTarget, targetSocket)
	} else {
		p.byTarget[targetSocket] = queue[1:]
	}
	return next, true
}

// cancelRequester removes every pending approval whose requester is
// requesterSocket, across all targets. Called when a requester disconnects
// mid-approval so a stale connect_accept can never provision a tunnel for
// a peer that is no longer there.
func (p *pendingApprovals) cancelRequester(requesterSocket Socket) {
	for target, queue := range p.byTarget {
		filtered := queue[:0]
		for _, approval := range queue {
			if approval.Requester.Socket != requesterSocket {
				filtered = append(filtered, approval)
			}
		}
		if len(filtered) == 0 {
			delete(p.byTarget, target)
		} else {
			p.byTarget[target] = filtered
		}
	}
}

// DiscardAllFor removes every pending approval queued against
// targetSocket, returning the requesters that were waiting so the caller
// can notify them the target disappeared.
func (p *pendingApprovals) DiscardAllFor(targetSocket Socket) []PendingApproval {
	queue := p.byTarget[targetSocket]
	delete(p.byTarget, targetSocket)
	return queue
}
