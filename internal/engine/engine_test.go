package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/infra/codec"
	"github.com/htttp-net/htttp/internal/infra/transport"
)

// newTestCore builds a Core on a shared broker/exchange with a
// channel-backed OnJoined/OnGameRolled pair wired in, for tests that
// need to block until a specific lifecycle event fires.
func newTestCore(t *testing.T, b *transport.Broker, exchange string, playerID domain.PlayerID, h domain.Handlers) *Core {
	t.Helper()
	c := New(Config{
		PlayerID:  playerID,
		Exchange:  exchange,
		Transport: b.Connect(exchange),
		Codec:     codec.New(),
		Handlers:  h,
	})
	t.Cleanup(c.Close)
	return c
}

// joinFullLobby spins up domain.N cores on one exchange, joins them all,
// and blocks until every one has drawn its roll and the lobby reaches
// STARTING. Returns the cores in join order together with a map from
// playerID to the rolled player number.
func joinFullLobby(t *testing.T) ([]*Core, map[domain.PlayerID]int) {
	t.Helper()
	cores, numbers, _ := joinFullLobbyOnBroker(t, transport.NewBroker(), "lobby")
	return cores, numbers
}

// joinFullLobbyOnBroker is joinFullLobby parameterized on an
// already-constructed broker, so a caller can later attach more cores
// (e.g. a rejoining peer) to the same exchange.
func joinFullLobbyOnBroker(t *testing.T, b *transport.Broker, exchange string) ([]*Core, map[domain.PlayerID]int, *transport.Broker) {
	t.Helper()

	rolled := make(chan struct {
		id  domain.PlayerID
		num int
	}, domain.N)

	cores := make([]*Core, 0, domain.N)
	for i := 0; i < domain.N; i++ {
		id := domain.PlayerID(fmt.Sprintf("p%d", i))
		c := newTestCore(t, b, exchange, id, domain.Handlers{
			OnGameRolled: func(num, _ int) {
				rolled <- struct {
					id  domain.PlayerID
					num int
				}{id, num}
			},
		})
		cores = append(cores, c)
		if err := c.Join(); err != nil {
			t.Fatalf("Join(%s): %v", id, err)
		}
	}

	numbers := make(map[domain.PlayerID]int, domain.N)
	deadline := time.After(5 * time.Second)
	for i := 0; i < domain.N; i++ {
		select {
		case r := <-rolled:
			numbers[r.id] = r.num
		case <-deadline:
			t.Fatalf("timed out waiting for all %d rolls", domain.N)
		}
	}
	return cores, numbers, b
}

func TestFourPeerLobbyReachesStartingWithBijectivePlayerNumbers(t *testing.T) {
	cores, numbers := joinFullLobby(t)

	if len(numbers) != domain.N {
		t.Fatalf("got %d rolled players, want %d", len(numbers), domain.N)
	}
	seen := make(map[int]bool, domain.N)
	for id, n := range numbers {
		if n < 1 || n > domain.N {
			t.Errorf("player %s got out-of-range number %d", id, n)
		}
		if seen[n] {
			t.Errorf("player number %d assigned twice, want a bijection", n)
		}
		seen[n] = true
	}

	for _, c := range cores {
		if got := c.GameState(); got != domain.Starting {
			t.Errorf("core %s GameState() = %s, want STARTING", c.PlayerID(), got)
		}
	}
}

func TestStartRequiresAllReady(t *testing.T) {
	cores, _ := joinFullLobby(t)

	if err := cores[0].Start(); err != domain.ErrCannotStart {
		t.Fatalf("Start() before anyone is ready = %v, want ErrCannotStart", err)
	}

	for _, c := range cores {
		if err := c.SetReady(true); err != nil {
			t.Fatalf("SetReady(true): %v", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(domain.N)
	for _, c := range cores {
		c := c
		go func() {
			defer wg.Done()
			for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline); {
				if c.GameState() == domain.Playing {
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
	}

	if err := cores[0].Start(); err != nil {
		t.Fatalf("Start(): %v", err)
	}
	wg.Wait()

	for _, c := range cores {
		if got := c.GameState(); got != domain.Playing {
			t.Errorf("core %s GameState() = %s, want PLAYING", c.PlayerID(), got)
		}
	}
}

func TestSetReadySameValueIsNoOp(t *testing.T) {
	cores, _ := joinFullLobby(t)
	c := cores[0]

	if err := c.SetReady(true); err != nil {
		t.Fatalf("SetReady(true): %v", err)
	}
	if err := c.SetReady(true); err != nil {
		t.Errorf("SetReady(true) repeated = %v, want nil (repeated calls must be idempotent)", err)
	}
}

func TestFoundObjectOnlyOnce(t *testing.T) {
	cores, _ := startFullGame(t)
	c := cores[0]

	if err := c.FoundObject(); err != nil {
		t.Fatalf("FoundObject(): %v", err)
	}
	if err := c.FoundObject(); err != domain.ErrAlreadyFound {
		t.Fatalf("FoundObject() repeated = %v, want ErrAlreadyFound", err)
	}
}

func TestLockSeesawIdempotentForSameBarcode(t *testing.T) {
	cores, _ := startFullGame(t)
	c := cores[0]

	if err := c.LockSeesaw(7); err != nil {
		t.Fatalf("LockSeesaw(7): %v", err)
	}
	if err := c.LockSeesaw(7); err != nil {
		t.Errorf("LockSeesaw(7) repeated = %v, want nil (idempotent for same barcode)", err)
	}
	if err := c.LockSeesaw(9); err != domain.ErrSeesawHeld {
		t.Errorf("LockSeesaw(9) while 7 is held = %v, want ErrSeesawHeld", err)
	}
}

func TestWinRequiresTeamAndPartner(t *testing.T) {
	cores, _ := startFullGame(t)
	c := cores[0]

	if err := c.Win(); err != domain.ErrNoTeam {
		t.Fatalf("Win() with no team = %v, want ErrNoTeam", err)
	}
}

func TestJoinTeamPairsPartnersAndWinStopsTheGame(t *testing.T) {
	cores, numbers := startFullGame(t)

	var teamA, teamB *Core
	for _, c := range cores {
		switch numbers[c.PlayerID()] {
		case 1:
			teamA = c
		case 2:
			teamB = c
		}
	}
	if teamA == nil || teamB == nil {
		t.Fatal("expected player numbers 1 and 2 to be assigned")
	}

	// JoinTeam's handlers are fixed at Core construction, so this test
	// polls the package-private hasPartner field rather than threading a
	// fresh OnTeamConnected channel through startFullGame.
	if err := teamA.JoinTeam(1); err != nil {
		t.Fatalf("JoinTeam(1) on team A: %v", err)
	}
	if err := teamB.JoinTeam(1); err != nil {
		t.Fatalf("JoinTeam(1) on team B: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		teamA.mu.Lock()
		aHas := teamA.hasPartner
		teamA.mu.Unlock()
		teamB.mu.Lock()
		bHas := teamB.hasPartner
		teamB.mu.Unlock()
		if aHas && bHas {
			break
		}
		time.Sleep(time.Millisecond)
	}
	teamA.mu.Lock()
	aHas := teamA.hasPartner
	teamA.mu.Unlock()
	if !aHas {
		t.Fatal("timed out waiting for team A to discover its partner")
	}

	if err := teamA.Win(); err != nil {
		t.Fatalf("Win(): %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if teamA.GameState() == domain.Waiting {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := teamA.GameState(); got != domain.Waiting {
		t.Errorf("after Win(), GameState() = %s, want WAITING (win implies stop)", got)
	}
}

func TestDisconnectDuringWaitingRemovesPlayerEntirely(t *testing.T) {
	cores, _ := joinFullLobby(t)
	leaver := cores[0]
	survivor := cores[1]

	if err := leaver.Leave(); err != nil {
		t.Fatalf("Leave(): %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if survivor.register.PartySize() < domain.N {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if survivor.register.Knows(leaver.PlayerID()) {
		t.Errorf("WAITING-state disconnect should remove the player entirely, but survivor still knows %s", leaver.PlayerID())
	}
}

func TestDisconnectDuringPlayingRetainsPlayerNumber(t *testing.T) {
	cores, numbers := startFullGame(t)
	leaver := cores[0]
	survivor := cores[1]
	leaverNumber := numbers[leaver.PlayerID()]

	_ = leaver.publish(domain.TopicDisconnect, domain.DisconnectMessage{
		Envelope: domain.Envelope{PlayerID: leaver.PlayerID(), ClientID: leaver.ClientID()},
		Reason:   domain.ReasonTimeout,
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if survivor.GameState() == domain.Paused {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := survivor.GameState(); got != domain.Paused {
		t.Fatalf("survivor GameState() = %s, want PAUSED after a PLAYING-state disconnect", got)
	}

	survivor.mu.Lock()
	gotNumber, ok := survivor.playerNumbers[leaver.PlayerID()]
	survivor.mu.Unlock()
	if !ok || gotNumber != leaverNumber {
		t.Errorf("playerNumber for missing peer = %d (ok=%v), want %d retained", gotNumber, ok, leaverNumber)
	}
	if !survivor.register.IsMissing(leaver.PlayerID()) {
		t.Error("disconnecting peer should be moved to missing, not removed, during PLAYING")
	}
}

// startFullGame joins domain.N cores, readies and starts them all, and
// returns once every core observes PLAYING.
func startFullGame(t *testing.T) ([]*Core, map[domain.PlayerID]int) {
	t.Helper()
	cores, numbers, _ := startFullGameOnBroker(t, transport.NewBroker(), "game")
	return cores, numbers
}

// startFullGameOnBroker is startFullGame parameterized on an
// already-constructed broker, mirroring joinFullLobbyOnBroker.
func startFullGameOnBroker(t *testing.T, b *transport.Broker, exchange string) ([]*Core, map[domain.PlayerID]int, *transport.Broker) {
	t.Helper()
	cores, numbers, _ := joinFullLobbyOnBroker(t, b, exchange)
	for _, c := range cores {
		if err := c.SetReady(true); err != nil {
			t.Fatalf("SetReady(true): %v", err)
		}
	}
	if err := cores[0].Start(); err != nil {
		t.Fatalf("Start(): %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		allPlaying := true
		for _, c := range cores {
			if c.GameState() != domain.Playing {
				allPlaying = false
				break
			}
		}
		if allPlaying {
			break
		}
		time.Sleep(time.Millisecond)
	}
	for _, c := range cores {
		if c.GameState() != domain.Playing {
			t.Fatalf("core %s never reached PLAYING", c.PlayerID())
		}
	}
	return cores, numbers, b
}

// TestSoloJoinReachesWaitingOnZeroReplies covers the first-player case:
// a lone peer's join vote has nobody to ask, so it resolves by timeout
// with zero replies rather than by quorum.
func TestSoloJoinReachesWaitingOnZeroReplies(t *testing.T) {
	b := transport.NewBroker()
	joined := make(chan struct{}, 1)
	c := newTestCore(t, b, "solo", "A", domain.Handlers{
		OnJoined: func() { joined <- struct{}{} },
	})

	if err := c.Join(); err != nil {
		t.Fatalf("Join(): %v", err)
	}

	select {
	case <-joined:
	case <-time.After(domain.RequestLifetime + 2*time.Second):
		t.Fatal("timed out waiting for a solo join to resolve")
	}

	if got := c.GameState(); got != domain.Waiting {
		t.Fatalf("GameState() = %s, want WAITING", got)
	}
	if players := c.Players(); len(players) != 1 || players[0] != "A" {
		t.Errorf("Players() = %v, want [A]", players)
	}
	if !c.IsJoined() {
		t.Error("IsJoined() = false, want true once a solo join resolves")
	}
}

// TestAssignPlayerNumbersBreaksTiesByPlayerID exercises the roll
// tie-break directly: two players rolling the same value must still
// get a deterministic, bijective assignment, ordered by playerID.
func TestAssignPlayerNumbersBreaksTiesByPlayerID(t *testing.T) {
	rolls := map[domain.PlayerID]int32{
		"charlie": 10,
		"alice":   5,
		"bob":     5,
		"dana":    20,
	}
	numbers := assignPlayerNumbers(rolls)
	if len(numbers) != 4 {
		t.Fatalf("got %d assignments, want 4", len(numbers))
	}
	if numbers["alice"] >= numbers["bob"] {
		t.Errorf("tied rolls: alice=%d bob=%d, want alice < bob (lexicographic tie-break)", numbers["alice"], numbers["bob"])
	}
	if numbers["bob"] >= numbers["charlie"] {
		t.Errorf("bob=%d charlie=%d, want bob < charlie (lower roll wins)", numbers["bob"], numbers["charlie"])
	}
	if numbers["charlie"] >= numbers["dana"] {
		t.Errorf("charlie=%d dana=%d, want charlie < dana (lower roll wins)", numbers["charlie"], numbers["dana"])
	}

	again := assignPlayerNumbers(map[domain.PlayerID]int32{
		"dana": 20, "bob": 5, "alice": 5, "charlie": 10,
	})
	for id, n := range numbers {
		if again[id] != n {
			t.Errorf("assignPlayerNumbers is not deterministic across input order: %s got %d then %d", id, n, again[id])
		}
	}
}

// TestUnlockSeesawClearsLockAndAllowsRelock follows the lock/unlock
// round trip S5 describes: a different barcode is rejected while the
// lock is held, then admitted once it's released.
func TestUnlockSeesawClearsLockAndAllowsRelock(t *testing.T) {
	cores, _ := startFullGame(t)
	c := cores[0]

	if err := c.LockSeesaw(7); err != nil {
		t.Fatalf("LockSeesaw(7): %v", err)
	}
	if err := c.LockSeesaw(11); err != domain.ErrSeesawHeld {
		t.Fatalf("LockSeesaw(11) while 7 is held = %v, want ErrSeesawHeld", err)
	}
	if err := c.UnlockSeesaw(); err != nil {
		t.Fatalf("UnlockSeesaw(): %v", err)
	}
	if got := c.SeesawLock(); got != 0 {
		t.Errorf("SeesawLock() after UnlockSeesaw() = %d, want 0", got)
	}
	if err := c.UnlockSeesaw(); err != nil {
		t.Errorf("UnlockSeesaw() repeated = %v, want nil (no lock held is a no-op)", err)
	}
	if err := c.LockSeesaw(11); err != nil {
		t.Fatalf("LockSeesaw(11) after release: %v", err)
	}
}

// TestSendTilesDeliversToTeamPartner exercises the team tile channel
// end to end: once two peers have discovered each other as partners,
// one's SendTiles reaches the other's OnTeamTiles.
func TestSendTilesDeliversToTeamPartner(t *testing.T) {
	b := transport.NewBroker()
	const exchange = "tiles"

	tiles := make(chan [][3]int, 1)
	rolled := make(chan struct {
		id  domain.PlayerID
		num int
	}, domain.N)

	cores := make([]*Core, 0, domain.N)
	for i := 0; i < domain.N; i++ {
		id := domain.PlayerID(fmt.Sprintf("q%d", i))
		h := domain.Handlers{
			OnGameRolled: func(num, _ int) {
				rolled <- struct {
					id  domain.PlayerID
					num int
				}{id, num}
			},
		}
		if i == 1 {
			h.OnTeamTiles = func(got [][3]int) { tiles <- got }
		}
		c := newTestCore(t, b, exchange, id, h)
		cores = append(cores, c)
		if err := c.Join(); err != nil {
			t.Fatalf("Join(%s): %v", id, err)
		}
	}

	numbers := make(map[domain.PlayerID]int, domain.N)
	deadline := time.After(5 * time.Second)
	for i := 0; i < domain.N; i++ {
		select {
		case r := <-rolled:
			numbers[r.id] = r.num
		case <-deadline:
			t.Fatalf("timed out waiting for all %d rolls", domain.N)
		}
	}
	for _, c := range cores {
		if err := c.SetReady(true); err != nil {
			t.Fatalf("SetReady(true): %v", err)
		}
	}
	if err := cores[0].Start(); err != nil {
		t.Fatalf("Start(): %v", err)
	}

	var sender, receiver *Core
	for _, c := range cores {
		switch numbers[c.PlayerID()] {
		case 1:
			sender = c
		case 2:
			receiver = c
		}
	}
	if sender == nil || receiver == nil {
		t.Fatal("expected player numbers 1 and 2 to be assigned")
	}

	waitDeadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(waitDeadline) && (sender.GameState() != domain.Playing || receiver.GameState() != domain.Playing) {
		time.Sleep(time.Millisecond)
	}
	if err := sender.JoinTeam(1); err != nil {
		t.Fatalf("sender.JoinTeam(1): %v", err)
	}
	if err := receiver.JoinTeam(1); err != nil {
		t.Fatalf("receiver.JoinTeam(1): %v", err)
	}

	partnerDeadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(partnerDeadline) {
		sender.mu.Lock()
		has := sender.hasPartner
		sender.mu.Unlock()
		if has {
			break
		}
		time.Sleep(time.Millisecond)
	}

	want := [][3]int{{1, 2, 3}, {4, 5, 6}}
	if err := sender.SendTiles(want); err != nil {
		t.Fatalf("SendTiles(): %v", err)
	}

	select {
	case got := <-tiles:
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("OnTeamTiles received %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the team partner to receive tiles")
	}
}

// TestRejoinDuringPausedRestoresPlayerState covers S4: a player whose
// process crashed and gets declared missing can rejoin under a new
// clientID while the game is PAUSED, and regains its retained
// hasFoundObject/teamNumber/playerNumber rather than starting fresh.
func TestRejoinDuringPausedRestoresPlayerState(t *testing.T) {
	b := transport.NewBroker()
	cores, numbers, _ := startFullGameOnBroker(t, b, "rejoin")
	leaver := cores[0]
	survivor := cores[1]
	leaverID := leaver.PlayerID()
	leaverNumber := numbers[leaverID]

	if err := leaver.FoundObject(); err != nil {
		t.Fatalf("FoundObject(): %v", err)
	}
	if err := leaver.JoinTeam(leaverNumber); err != nil {
		t.Fatalf("JoinTeam(%d): %v", leaverNumber, err)
	}
	time.Sleep(20 * time.Millisecond)

	_ = leaver.publish(domain.TopicDisconnect, domain.DisconnectMessage{
		Envelope: domain.Envelope{PlayerID: leaverID, ClientID: leaver.ClientID()},
		Reason:   domain.ReasonTimeout,
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && survivor.GameState() != domain.Paused {
		time.Sleep(time.Millisecond)
	}
	if got := survivor.GameState(); got != domain.Paused {
		t.Fatalf("survivor GameState() = %s, want PAUSED before rejoin", got)
	}

	rejoined := make(chan struct{}, 1)
	newPeer := newTestCore(t, b, "rejoin", leaverID, domain.Handlers{
		OnJoined: func() { rejoined <- struct{}{} },
	})
	if err := newPeer.Join(); err != nil {
		t.Fatalf("rejoin Join(): %v", err)
	}

	select {
	case <-rejoined:
	case <-time.After(domain.RequestLifetime + 2*time.Second):
		t.Fatal("timed out waiting for the rejoin vote to resolve")
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && survivor.register.IsMissing(leaverID) {
		time.Sleep(time.Millisecond)
	}
	if survivor.register.IsMissing(leaverID) {
		t.Fatal("survivor still considers the rejoined player missing")
	}
	restored, ok := survivor.register.Confirmed(leaverID)
	if !ok {
		t.Fatal("survivor has no confirmed entry for the rejoined player")
	}
	if !restored.HasFoundObject {
		t.Error("rejoined player lost hasFoundObject across the rejoin")
	}
	if restored.TeamNumber != leaverNumber {
		t.Errorf("rejoined player teamNumber = %d, want %d retained", restored.TeamNumber, leaverNumber)
	}

	survivor.mu.Lock()
	gotNumber, ok := survivor.playerNumbers[leaverID]
	survivor.mu.Unlock()
	if !ok || gotNumber != leaverNumber {
		t.Errorf("survivor's playerNumber for rejoined player = %d (ok=%v), want %d retained", gotNumber, ok, leaverNumber)
	}
}
