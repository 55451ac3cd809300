// Package memory is an in-process implementation of the persistence ports,
// used by tests and single-node deployments without Postgres.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/okian/rankd/internal/domain/model"
)

// Sentinel kinds for memory repository errors.
var (
	ErrScoreNotFound  = errors.New("score not found")
	ErrPlayerNotFound = errors.New("player not found")
)

// Player is an account as seen by the ranking core.
type Player struct {
	ID         int64
	Username   string
	Country    string
	Restricted bool
	Kudosu     int
}

type statsKey struct {
	player int64
	mode   model.Mode
}

type state struct {
	players  map[int64]Player
	beatmaps map[int64]model.Beatmap
	scores   map[int64]model.ScoreRecord
	stats    map[statsKey]model.PlayerStats
}

func (s *state) clone() state {
	return state{
		players:  maps.Clone(s.players),
		beatmaps: maps.Clone(s.beatmaps),
		scores:   maps.Clone(s.scores),
		stats:    maps.Clone(s.stats),
	}
}

// Store holds players, beatmaps, scores and stats. Transactions are
// serialized and roll back by restoring a snapshot; reads outside a
// transaction may observe a transaction's uncommitted writes.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state
}

// New creates an empty store.
func New() *Store {
	return &Store{data: state{
		players:  make(map[int64]Player),
		beatmaps: make(map[int64]model.Beatmap),
		scores:   make(map[int64]model.ScoreRecord),
		stats:    make(map[statsKey]model.PlayerStats),
	}}
}

// InTx runs fn with exclusive write access, undoing its writes on error.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			s.rollback(snapshot)
			panic(p)
		}
		if err != nil {
			s.rollback(snapshot)
		}
	}()
	return fn(ctx)
}

func (s *Store) rollback(snapshot state) {
	s.mu.Lock()
	s.data = snapshot
	s.mu.Unlock()
}

// PutPlayer creates or replaces a player.
func (s *Store) PutPlayer(p Player) {
	s.mu.Lock()
	s.data.players[p.ID] = p
	s.mu.Unlock()
}

// PutBeatmap creates or replaces a beatmap.
func (s *Store) PutBeatmap(b model.Beatmap) {
	s.mu.Lock()
	s.data.beatmaps[b.ID] = b
	s.mu.Unlock()
}

// PutScore creates or replaces a score.
func (s *Store) PutScore(sc model.ScoreRecord) {
	s.mu.Lock()
	s.data.scores[sc.ID] = sc
	s.mu.Unlock()
}

// Score returns a score by id.
func (s *Store) Score(id int64) (model.ScoreRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.data.scores[id]
	return sc, ok
}

// Stats returns the persisted stats row.
func (s *Store) Stats(ctx context.Context, playerID int64, mode model.Mode) (model.PlayerStats, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data.stats[statsKey{playerID, mode}]
	return st, ok, nil
}

// FetchScoresForPlayerMode returns the player's scores in mode ordered by id.
func (s *Store) FetchScoresForPlayerMode(ctx context.Context, playerID int64, mode model.Mode) ([]model.ScoreRecord, error) {
	return s.scoresWhere(func(sc model.ScoreRecord) bool {
		return sc.PlayerID == playerID && sc.Mode == mode
	}), nil
}

// FetchScoresForPlayer returns all the player's scores ordered by id.
func (s *Store) FetchScoresForPlayer(ctx context.Context, playerID int64) ([]model.ScoreRecord, error) {
	return s.scoresWhere(func(sc model.ScoreRecord) bool { return sc.PlayerID == playerID }), nil
}

func (s *Store) scoresWhere(keep func(model.ScoreRecord) bool) []model.ScoreRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScoreRecord, 0)
	for _, sc := range s.data.scores {
		if keep(sc) {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Beatmaps returns the known beatmaps among ids.
func (s *Store) Beatmaps(ctx context.Context, ids []int64) (map[int64]model.Beatmap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]model.Beatmap, len(ids))
	for _, id := range ids {
		if b, ok := s.data.beatmaps[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

// SaveStats upserts everything except Rank.
func (s *Store) SaveStats(ctx context.Context, st model.PlayerStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := statsKey{st.PlayerID, st.Mode}
	st.Rank = s.data.stats[k].Rank
	s.data.stats[k] = st
	return nil
}

// UpdateRank stores the cached global rank.
func (s *Store) UpdateRank(ctx context.Context, playerID int64, mode model.Mode, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := statsKey{playerID, mode}
	st := s.data.stats[k]
	st.PlayerID, st.Mode, st.Rank = playerID, mode, rank
	s.data.stats[k] = st
	return nil
}

// UpdateScoreStatus applies every change or none.
func (s *Store) UpdateScoreStatus(ctx context.Context, changes []model.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range changes {
		if _, ok := s.data.scores[c.ScoreID]; !ok {
			return fmt.Errorf("%w: %d", ErrScoreNotFound, c.ScoreID)
		}
	}
	for _, c := range changes {
		sc := s.data.scores[c.ScoreID]
		sc.Status = c.To
		s.data.scores[c.ScoreID] = sc
	}
	return nil
}

// UpdateScorePP overwrites a score's pp.
func (s *Store) UpdateScorePP(ctx context.Context, scoreID int64, pp float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.data.scores[scoreID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrScoreNotFound, scoreID)
	}
	sc.PP = pp
	s.data.scores[scoreID] = sc
	return nil
}

// FetchLeaderCount counts beatmaps in mode where the player holds the
// highest visible Best score. Ties go to the earlier score.
func (s *Store) FetchLeaderCount(ctx context.Context, playerID int64, mode model.Mode) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	leaders := make(map[int64]model.ScoreRecord)
	for _, sc := range s.data.scores {
		if sc.Mode != mode || sc.Status != model.StatusBest {
			continue
		}
		if p, ok := s.data.players[sc.PlayerID]; ok && p.Restricted {
			continue
		}
		cur, ok := leaders[sc.BeatmapID]
		if !ok || sc.TotalScore > cur.TotalScore || (sc.TotalScore == cur.TotalScore && sc.ID < cur.ID) {
			leaders[sc.BeatmapID] = sc
		}
	}
	n := 0
	for _, sc := range leaders {
		if sc.PlayerID == playerID {
			n++
		}
	}
	return n, nil
}

// TotalKudosuForPlayer returns the player's kudosu.
func (s *Store) TotalKudosuForPlayer(ctx context.Context, playerID int64) (int, error) {
	p, err := s.player(playerID)
	return p.Kudosu, err
}

// Username returns the player's name.
func (s *Store) Username(ctx context.Context, playerID int64) (string, error) {
	p, err := s.player(playerID)
	return p.Username, err
}

// Country returns the player's country code.
func (s *Store) Country(ctx context.Context, playerID int64) (string, error) {
	p, err := s.player(playerID)
	return p.Country, err
}

// Restricted reports whether the player is restricted.
func (s *Store) Restricted(ctx context.Context, playerID int64) (bool, error) {
	p, err := s.player(playerID)
	return p.Restricted, err
}

func (s *Store) player(id int64) (Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.players[id]
	if !ok {
		return Player{}, fmt.Errorf("%w: %d", ErrPlayerNotFound, id)
	}
	return p, nil
}
