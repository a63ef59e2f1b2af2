// Package membership implements PlayerRegister, the three-bucket
// membership store every peer keeps: confirmed, voted, and missing
// players.
package membership

import (
	"sort"
	"sync"
	"time"

	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/metrics"
)

// Register is the process-local membership store. The game state machine
// is its only writer; reads are safe from any goroutine (the mutex here
// guards the maps themselves, not the broader state-machine invariants,
// which the engine's own monitor enforces).
type Register struct {
	mu sync.RWMutex

	confirmed map[domain.PlayerID]*domain.PlayerState
	voted     map[domain.PlayerID]map[domain.ClientID]*domain.PlayerState
	missing   map[domain.PlayerID]*domain.PlayerState
}

// New creates an empty register.
func New() *Register {
	return &Register{
		confirmed: make(map[domain.PlayerID]*domain.PlayerState),
		voted:     make(map[domain.PlayerID]map[domain.ClientID]*domain.PlayerState),
		missing:   make(map[domain.PlayerID]*domain.PlayerState),
	}
}

// reportGauges publishes the current bucket sizes. Caller must hold
// r.mu; every mutator that changes confirmed or missing calls this
// before releasing the lock.
func (r *Register) reportGauges() {
	metrics.ConfirmedPlayers.Set(float64(len(r.confirmed)))
	metrics.MissingPlayers.Set(float64(len(r.missing)))
}

// Confirmed returns a clone of the confirmed entry for playerID, if any.
func (r *Register) Confirmed(playerID domain.PlayerID) (*domain.PlayerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.confirmed[playerID]
	return p.Clone(), ok
}

// Missing returns a clone of the missing entry for playerID, if any.
func (r *Register) Missing(playerID domain.PlayerID) (*domain.PlayerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.missing[playerID]
	return p.Clone(), ok
}

// IsConfirmedByOtherClient reports whether playerID is confirmed under a
// clientID other than the one given — canJoin condition (a).
func (r *Register) IsConfirmedByOtherClient(playerID domain.PlayerID, clientID domain.ClientID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.confirmed[playerID]
	return ok && p.ClientID != clientID
}

// IsMissing reports whether playerID is currently in the missing bucket.
func (r *Register) IsMissing(playerID domain.PlayerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.missing[playerID]
	return ok
}

// Knows reports whether playerID already occupies a seat, confirmed or
// voted — the capacity check in canJoin condition (b) only counts a
// newcomer against the party size once.
func (r *Register) Knows(playerID domain.PlayerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.confirmed[playerID]; ok {
		return true
	}
	_, ok := r.voted[playerID]
	return ok
}

// IsConnected reports whether (playerID, clientID) currently has any
// trace in confirmed or voted — used to dedup a disconnect message
// against a pair the register no longer recognizes.
func (r *Register) IsConnected(playerID domain.PlayerID, clientID domain.ClientID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.confirmed[playerID]; ok && p.ClientID == clientID {
		return true
	}
	if byClient, ok := r.voted[playerID]; ok {
		if _, ok := byClient[clientID]; ok {
			return true
		}
	}
	return false
}

// ConfirmedCount is |confirmed|.
func (r *Register) ConfirmedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.confirmed)
}

// MissingCount is |missing|.
func (r *Register) MissingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.missing)
}

// PartySize is |confirmed ∪ voted| counted by distinct playerID — the
// capacity check for canJoin condition (b). A playerID with only voted
// (no confirmed) entries counts once regardless of how many contending
// clientIDs are racing for it.
func (r *Register) PartySize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[domain.PlayerID]struct{}, len(r.confirmed)+len(r.voted))
	for id := range r.confirmed {
		seen[id] = struct{}{}
	}
	for id := range r.voted {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// AddVoted records a tentative vote entry for (playerID, clientID),
// creating one with default field values if this exact pair hasn't been
// seen yet. Multiple clientIDs may race for the same playerID; all are
// retained until one is confirmed.
func (r *Register) AddVoted(playerID domain.PlayerID, clientID domain.ClientID) *domain.PlayerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	byClient, ok := r.voted[playerID]
	if !ok {
		byClient = make(map[domain.ClientID]*domain.PlayerState)
		r.voted[playerID] = byClient
	}
	p, ok := byClient[clientID]
	if !ok {
		p = domain.NewPlayerState(playerID, clientID)
		byClient[clientID] = p
	}
	return p.Clone()
}

// Confirm promotes playerID to confirmed under clientID. If playerID was
// in missing, its retained PlayerState (HasFoundObject, TeamNumber) is
// restored and ClientID/IsReady/LastHeartbeat reset for the new process —
// this is the rejoin restoration. Otherwise the
// matching voted entry is promoted and every other contender for the
// same playerID is discarded (the tie-break: first confirmed wins).
// If neither bucket has an entry, a fresh one is created defensively.
func (r *Register) Confirm(playerID domain.PlayerID, clientID domain.ClientID) *domain.PlayerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if restored, ok := r.missing[playerID]; ok {
		restored.ClientID = clientID
		restored.IsReady = false
		restored.LastHeartbeat = time.Time{}
		delete(r.missing, playerID)
		r.confirmed[playerID] = restored
		r.reportGauges()
		return restored.Clone()
	}

	var promoted *domain.PlayerState
	if byClient, ok := r.voted[playerID]; ok {
		if p, ok := byClient[clientID]; ok {
			promoted = p
		}
	}
	if promoted == nil {
		promoted = domain.NewPlayerState(playerID, clientID)
	}
	delete(r.voted, playerID)
	r.confirmed[playerID] = promoted
	r.reportGauges()
	return promoted.Clone()
}

// MarkMissing moves a confirmed player to missing (heartbeat expiry or
// disconnect while PLAYING/PAUSED). Returns the retained state and
// whether the player was actually confirmed.
func (r *Register) MarkMissing(playerID domain.PlayerID) (*domain.PlayerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.confirmed[playerID]
	if !ok {
		return nil, false
	}
	delete(r.confirmed, playerID)
	r.missing[playerID] = p
	r.reportGauges()
	return p.Clone(), true
}

// Remove destroys all record of playerID in every bucket (leave/stop).
func (r *Register) Remove(playerID domain.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.confirmed, playerID)
	delete(r.missing, playerID)
	delete(r.voted, playerID)
	r.reportGauges()
}

// RemoveVoted discards a single contender's tentative entry, e.g. when
// that contender loses the tie-break.
func (r *Register) RemoveVoted(playerID domain.PlayerID, clientID domain.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byClient, ok := r.voted[playerID]
	if !ok {
		return
	}
	delete(byClient, clientID)
	if len(byClient) == 0 {
		delete(r.voted, playerID)
	}
}

// Reset clears every bucket (used on leave() and on a failed join).
func (r *Register) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = make(map[domain.PlayerID]*domain.PlayerState)
	r.voted = make(map[domain.PlayerID]map[domain.ClientID]*domain.PlayerState)
	r.missing = make(map[domain.PlayerID]*domain.PlayerState)
	r.reportGauges()
}

// ConfirmedIDs returns confirmed playerIDs in lexicographic order.
func (r *Register) ConfirmedIDs() []domain.PlayerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.PlayerID, 0, len(r.confirmed))
	for id := range r.confirmed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MissingIDs returns missing playerIDs in lexicographic order.
func (r *Register) MissingIDs() []domain.PlayerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.PlayerID, 0, len(r.missing))
	for id := range r.missing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MissingInfos builds the missingPlayers[] summary a join reply echoes so
// the joining peer can learn the party before it has seen any broadcasts.
func (r *Register) MissingInfos() []domain.MissingPlayerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]domain.MissingPlayerInfo, 0, len(r.missing))
	for _, p := range r.missing {
		infos = append(infos, domain.MissingPlayerInfo{
			PlayerID:       p.PlayerID,
			HasFoundObject: p.HasFoundObject,
			TeamNumber:     p.TeamNumber,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].PlayerID < infos[j].PlayerID })
	return infos
}

// MergeMissing adds entries learned from a join reply's missingPlayers[]
// list for any playerID this register doesn't already know about as
// confirmed or missing.
func (r *Register) MergeMissing(infos []domain.MissingPlayerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range infos {
		if _, ok := r.confirmed[info.PlayerID]; ok {
			continue
		}
		if _, ok := r.missing[info.PlayerID]; ok {
			continue
		}
		r.missing[info.PlayerID] = &domain.PlayerState{
			PlayerID:       info.PlayerID,
			HasFoundObject: info.HasFoundObject,
			TeamNumber:     info.TeamNumber,
		}
	}
	r.reportGauges()
}

// SetReady updates the confirmed entry's readiness, returning whether
// the player was confirmed.
func (r *Register) SetReady(playerID domain.PlayerID, ready bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.confirmed[playerID]
	if !ok {
		return false
	}
	p.IsReady = ready
	return true
}

// AllReady reports whether every confirmed player has IsReady=true.
func (r *Register) AllReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.confirmed {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// SetFoundObject marks a confirmed player's object as found.
func (r *Register) SetFoundObject(playerID domain.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.confirmed[playerID]
	if !ok {
		return false
	}
	p.HasFoundObject = true
	return true
}

// SetTeam assigns a confirmed player's team number.
func (r *Register) SetTeam(playerID domain.PlayerID, team int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.confirmed[playerID]
	if !ok {
		return false
	}
	p.TeamNumber = team
	return true
}

// TouchHeartbeat stamps a confirmed player's lastHeartbeat.
func (r *Register) TouchHeartbeat(playerID domain.PlayerID, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.confirmed[playerID]
	if !ok {
		return false
	}
	p.LastHeartbeat = at
	return true
}

// StaleConfirmed returns confirmed players whose lastHeartbeat is
// non-zero and older than the given cutoff (the reaper's scan).
func (r *Register) StaleConfirmed(cutoff time.Time) []domain.PlayerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stale []domain.PlayerID
	for id, p := range r.confirmed {
		if !p.LastHeartbeat.IsZero() && p.LastHeartbeat.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	return stale
}
