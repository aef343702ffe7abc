package scheduler

import "math/rand"

// serviceShift is the fixed-point shift applied when converting service
// amounts (sectors) into virtual-time deltas, so that divisions by weight
// keep enough precision.
const serviceShift = 22

// vtimeGT reports whether virtual time a is after b, tolerating wraparound.
func vtimeGT(a, b uint64) bool {
	return int64(a-b) > 0
}

func vtimeMax(a, b uint64) uint64 {
	if vtimeGT(a, b) {
		return a
	}
	return b
}

// vtimeDelta converts a service amount into a virtual-time delta for the
// given weight.
func vtimeDelta(service, weight int64) uint64 {
	return (uint64(service) << serviceShift) / uint64(weight)
}

// treapNode is a node of the active or idle forest: a randomized balanced
// tree keyed by (virtual finish, activation seq), augmented with the minimum
// virtual start of its subtree. The augmentation is what makes the eligible
// entity with the smallest virtual finish findable in O(log N).
type treapNode struct {
	e           *Entity
	left, right *treapNode
	prio        uint64
	minStart    uint64
}

func (n *treapNode) update() {
	n.minStart = n.e.start
	if n.left != nil && vtimeGT(n.minStart, n.left.minStart) {
		n.minStart = n.left.minStart
	}
	if n.right != nil && vtimeGT(n.minStart, n.right.minStart) {
		n.minStart = n.right.minStart
	}
}

// entityLess orders entities by virtual finish, breaking exact ties by
// activation sequence so the total order is deterministic.
func entityLess(a, b *Entity) bool {
	if a.finish != b.finish {
		return vtimeGT(b.finish, a.finish)
	}
	return a.seq < b.seq
}

func rotateRight(n *treapNode) *treapNode {
	l := n.left
	n.left = l.right
	l.right = n
	n.update()
	l.update()
	return l
}

func rotateLeft(n *treapNode) *treapNode {
	r := n.right
	n.right = r.left
	r.left = n
	n.update()
	r.update()
	return r
}

func treapInsert(root, n *treapNode) *treapNode {
	if root == nil {
		n.left, n.right = nil, nil
		n.update()
		return n
	}
	if entityLess(n.e, root.e) {
		root.left = treapInsert(root.left, n)
		if root.left.prio < root.prio {
			root.update()
			return rotateRight(root)
		}
	} else {
		root.right = treapInsert(root.right, n)
		if root.right.prio < root.prio {
			root.update()
			return rotateLeft(root)
		}
	}
	root.update()
	return root
}

// treapMerge joins two treaps where every key in a precedes every key in b.
func treapMerge(a, b *treapNode) *treapNode {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.prio < b.prio {
		a.right = treapMerge(a.right, b)
		a.update()
		return a
	}
	b.left = treapMerge(a, b.left)
	b.update()
	return b
}

func treapDelete(root *treapNode, e *Entity) (*treapNode, bool) {
	if root == nil {
		return nil, false
	}
	if root.e == e {
		return treapMerge(root.left, root.right), true
	}
	var ok bool
	if entityLess(e, root.e) {
		root.left, ok = treapDelete(root.left, e)
	} else {
		root.right, ok = treapDelete(root.right, e)
	}
	root.update()
	return root, ok
}

func treapLeftmost(root *treapNode) *treapNode {
	if root == nil {
		return nil
	}
	for root.left != nil {
		root = root.left
	}
	return root
}

// serviceTree schedules the entities of one priority class with B-WF2Q+:
// among entities whose virtual start has passed the tree's virtual time
// ("eligible"), serve the one with the smallest virtual finish.
type serviceTree struct {
	active *treapNode
	idle   *treapNode
	vtime  uint64
	seq    uint64
	rnd    *rand.Rand

	// invariant is the owning scheduler's invariant reporter: returns
	// false (and halts the device) when the condition does not hold.
	invariant func(cond bool, format string, args ...interface{}) bool
}

func newServiceTree(seed int64, invariant func(bool, string, ...interface{}) bool) *serviceTree {
	return &serviceTree{
		rnd:       rand.New(rand.NewSource(seed)),
		invariant: invariant,
	}
}

func (st *serviceTree) activeInsert(e *Entity) {
	n := &treapNode{e: e, prio: st.rnd.Uint64()}
	st.active = treapInsert(st.active, n)
	e.state = entityActive
}

func (st *serviceTree) activeExtract(e *Entity) {
	root, ok := treapDelete(st.active, e)
	if !st.invariant(ok, "entity %v not found in active forest", e.queue) {
		return
	}
	st.active = root
	e.state = entityDetached
}

func (st *serviceTree) idleInsert(e *Entity) {
	n := &treapNode{e: e, prio: st.rnd.Uint64()}
	st.idle = treapInsert(st.idle, n)
	e.state = entityIdle
}

func (st *serviceTree) idleExtract(e *Entity) {
	root, ok := treapDelete(st.idle, e)
	if !st.invariant(ok, "entity %v not found in idle forest", e.queue) {
		return
	}
	st.idle = root
	e.state = entityDetached
}

// forgetIdle drops idle entities whose preserved finish time has fallen
// behind the tree's virtual time: their fairness bookkeeping no longer
// affects future activations.
func (st *serviceTree) forgetIdle() {
	for {
		n := treapLeftmost(st.idle)
		if n == nil || vtimeGT(n.e.finish, st.vtime) {
			return
		}
		st.idleExtract(n.e)
	}
}

// activate links an entity into the active forest per spec:
// virtual start = max(tree virtual time, finish from previous activation),
// virtual finish = start + budget/weight. Re-activating an already-active
// entity (a budget change before being selected) keeps its virtual start.
func (st *serviceTree) activate(e *Entity) {
	switch e.state {
	case entityActive:
		st.activeExtract(e) // keep e.start: requeue in place
	case entityIdle:
		st.idleExtract(e)
		if vtimeGT(e.finish, st.vtime) {
			e.start = e.finish
		} else {
			e.start = st.vtime
		}
	case entityInService:
		if !st.invariant(false, "activate of in-service entity %v", e.queue) {
			return
		}
	default:
		e.start = st.vtime
	}

	e.applyWeightChange()
	if !st.invariant(e.weight > 0, "entity %v has non-positive weight %d", e.queue, e.weight) {
		return
	}
	e.finish = e.start + vtimeDelta(e.budget, e.weight)
	st.seq++
	e.seq = st.seq
	e.service = 0
	st.activeInsert(e)
}

// requeue reinserts an expired in-service entity behind its consumed
// service: its new virtual start is the finish time of the turn that just
// ended (set by expire), with a fresh budget-based finish.
func (st *serviceTree) requeue(e *Entity) {
	if !st.invariant(e.state == entityInService, "requeue of %s entity %v", e.state, e.queue) {
		return
	}
	e.applyWeightChange()
	if !st.invariant(e.weight > 0, "entity %v has non-positive weight %d", e.queue, e.weight) {
		return
	}
	e.finish = e.start + vtimeDelta(e.budget, e.weight)
	st.seq++
	e.seq = st.seq
	e.service = 0
	st.activeInsert(e)
}

// updateVtime jumps the virtual time forward to the active forest's minimum
// virtual start when no entity is eligible. Virtual time only moves forward.
func (st *serviceTree) updateVtime() {
	if st.active != nil && vtimeGT(st.active.minStart, st.vtime) {
		st.vtime = st.active.minStart
		st.forgetIdle()
	}
}

// firstEligible returns, among entities with start <= vtime, the one with
// the minimum finish time, descending the finish-keyed tree and pruning on
// the min-start augmentation.
func firstEligible(node *treapNode, vtime uint64) *Entity {
	var first *Entity
	for node != nil {
		if !vtimeGT(node.e.start, vtime) {
			first = node.e
		}
		if node.left != nil && !vtimeGT(node.left.minStart, vtime) {
			node = node.left
			continue
		}
		if first != nil {
			break
		}
		node = node.right
	}
	return first
}

// selectInService extracts and returns the next entity to put in service,
// or nil if the active forest is empty.
func (st *serviceTree) selectInService() *Entity {
	if st.active == nil {
		return nil
	}
	st.updateVtime()
	e := firstEligible(st.active, st.vtime)
	if !st.invariant(e != nil, "active forest non-empty but no eligible entity at vtime %d", st.vtime) {
		return nil
	}
	st.activeExtract(e)
	e.state = entityInService
	return e
}

// expire ends an in-service turn: the finish time recomputed from the
// service actually consumed advances the virtual time (a zero-service turn
// therefore contributes nothing), and becomes the entity's next virtual
// start. The caller then either requeues or deactivates the entity.
func (st *serviceTree) expire(e *Entity) {
	if !st.invariant(e.state == entityInService, "expire of %s entity %v", e.state, e.queue) {
		return
	}
	e.finish = e.start + vtimeDelta(e.service, e.weight)
	st.vtime = vtimeMax(st.vtime, e.finish)
	e.start = e.finish
	st.forgetIdle()
}

// deactivate unlinks an entity with no pending service. Entities whose
// finish time is still ahead of the virtual time are parked in the idle
// forest so a quick re-activation cannot gain service; the rest are
// forgotten outright.
func (st *serviceTree) deactivate(e *Entity) {
	switch e.state {
	case entityActive:
		st.activeExtract(e)
	case entityInService:
		e.state = entityDetached
	case entityIdle:
		return
	default:
		return
	}
	if vtimeGT(e.finish, st.vtime) {
		st.idleInsert(e)
	}
}

// empty reports whether the active forest has no entities.
func (st *serviceTree) empty() bool {
	return st.active == nil
}
