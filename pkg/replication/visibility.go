package replication

// TargetKind is the closed set of NetworkTarget variants (spec.md §4.7).
type TargetKind uint8

const (
	TargetAll TargetKind = iota
	TargetNone
	TargetOnly
	TargetAllExcept
)

// NetworkTarget configures which clients an entity replicates to, before
// intersection with room membership.
type NetworkTarget struct {
	Kind TargetKind
	Set  map[PeerKey]struct{} // meaningful for Only/AllExcept
}

// PeerKey identifies a client for visibility purposes; callers map their
// own PeerId into this opaque comparable key.
type PeerKey uint64

func AllTarget() NetworkTarget  { return NetworkTarget{Kind: TargetAll} }
func NoneTarget() NetworkTarget { return NetworkTarget{Kind: TargetNone} }
func OnlyTarget(peers ...PeerKey) NetworkTarget {
	s := make(map[PeerKey]struct{}, len(peers))
	for _, p := range peers {
		s[p] = struct{}{}
	}
	return NetworkTarget{Kind: TargetOnly, Set: s}
}
func AllExceptTarget(peers ...PeerKey) NetworkTarget {
	s := make(map[PeerKey]struct{}, len(peers))
	for _, p := range peers {
		s[p] = struct{}{}
	}
	return NetworkTarget{Kind: TargetAllExcept, Set: s}
}

// Matches reports whether peer is a recipient under target.
func (t NetworkTarget) Matches(peer PeerKey) bool {
	switch t.Kind {
	case TargetAll:
		return true
	case TargetNone:
		return false
	case TargetOnly:
		_, ok := t.Set[peer]
		return ok
	case TargetAllExcept:
		_, ok := t.Set[peer]
		return !ok
	default:
		return false
	}
}

// Resolve intersects target with room membership (nil room means no room
// restriction) to yield whether peer actually receives the entity.
func Resolve(target NetworkTarget, room map[PeerKey]struct{}, peer PeerKey) bool {
	if !target.Matches(peer) {
		return false
	}
	if room == nil {
		return true
	}
	_, ok := room[peer]
	return ok
}

// Transition classifies how an entity's visibility to one client changed
// between two send passes (spec.md §4.7).
type Transition uint8

const (
	TransitionMaintained Transition = iota
	TransitionGained
	TransitionLost
)

// VisibilityTracker remembers, per client, which entities were visible on
// the previous send pass, so transitions can be classified.
type VisibilityTracker struct {
	prevVisible map[PeerKey]map[EntityID]struct{}
}

func NewVisibilityTracker() *VisibilityTracker {
	return &VisibilityTracker{prevVisible: make(map[PeerKey]map[EntityID]struct{})}
}

// Update computes transitions for peer given this pass's visible set, and
// remembers it for the next call.
func (v *VisibilityTracker) Update(peer PeerKey, nowVisible map[EntityID]struct{}) map[EntityID]Transition {
	prev := v.prevVisible[peer]
	out := make(map[EntityID]Transition, len(nowVisible))
	for e := range nowVisible {
		if _, was := prev[e]; was {
			out[e] = TransitionMaintained
		} else {
			out[e] = TransitionGained
		}
	}
	for e := range prev {
		if _, still := nowVisible[e]; !still {
			out[e] = TransitionLost
		}
	}
	v.prevVisible[peer] = nowVisible
	return out
}

// Forget drops all tracked visibility state for peer, e.g. on disconnect.
func (v *VisibilityTracker) Forget(peer PeerKey) {
	delete(v.prevVisible, peer)
}
