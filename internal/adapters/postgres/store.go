package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/metrics"
)

// Store implements the aggregate, status, leaderboard and player ports.
// Every method runs in the transaction carried by ctx, if any.
type Store struct {
	*Connection
}

// NewStore wraps a connection.
func NewStore(conn *Connection) *Store {
	return &Store{Connection: conn}
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordStoreError(backend, op)
	}
}

const scoreColumns = `id, player_id, beatmap_id, mode, mods, total_score, pp, accuracy,
	max_combo, grade, status, submitted_at, failtime, n300, n100, n50, ngeki, nkatu, nmiss`

func scanScore(row pgx.CollectableRow) (model.ScoreRecord, error) {
	var s model.ScoreRecord
	err := row.Scan(&s.ID, &s.PlayerID, &s.BeatmapID, &s.Mode, &s.Mods, &s.TotalScore, &s.PP,
		&s.Accuracy, &s.MaxCombo, &s.Grade, &s.Status, &s.SubmittedAt, &s.Failtime,
		&s.N300, &s.N100, &s.N50, &s.NGeki, &s.NKatu, &s.NMiss)
	return s, err
}

func (s *Store) scores(ctx context.Context, op, where string, args ...any) (out []model.ScoreRecord, err error) {
	start := time.Now()
	defer func() { observe(op, start, err) }()

	rows, err := s.q(ctx).Query(ctx, "SELECT "+scoreColumns+" FROM scores WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	out, err = pgx.CollectRows(rows, scanScore)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return out, nil
}

// FetchScoresForPlayerMode returns the player's scores in mode ordered by id.
func (s *Store) FetchScoresForPlayerMode(ctx context.Context, playerID int64, mode model.Mode) ([]model.ScoreRecord, error) {
	return s.scores(ctx, "fetch_scores_mode", "player_id = $1 AND mode = $2", playerID, int(mode))
}

// FetchScoresForPlayer returns all the player's scores ordered by id.
func (s *Store) FetchScoresForPlayer(ctx context.Context, playerID int64) ([]model.ScoreRecord, error) {
	return s.scores(ctx, "fetch_scores", "player_id = $1", playerID)
}

// Beatmaps returns the known beatmaps among ids.
func (s *Store) Beatmaps(ctx context.Context, ids []int64) (out map[int64]model.Beatmap, err error) {
	start := time.Now()
	defer func() { observe("beatmaps", start, err) }()

	out = make(map[int64]model.Beatmap, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.q(ctx).Query(ctx, `SELECT id, total_length, status FROM beatmaps WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: beatmaps: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Beatmap, error) {
		var b model.Beatmap
		err := row.Scan(&b.ID, &b.TotalLength, &b.Status)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: beatmaps: %w", err)
	}
	for _, b := range list {
		out[b.ID] = b
	}
	return out, nil
}

// SaveStats upserts every aggregate column except rank.
func (s *Store) SaveStats(ctx context.Context, st model.PlayerStats) (err error) {
	start := time.Now()
	defer func() { observe("save_stats", start, err) }()

	grades := make([]int32, len(st.GradeCounts))
	for i, g := range st.GradeCounts {
		grades[i] = int32(g)
	}
	_, err = s.q(ctx).Exec(ctx, `
		INSERT INTO player_stats (player_id, mode, total_score, ranked_score, pp, pp_variants,
			accuracy, playcount, playtime, max_combo, total_hits, grade_counts, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (player_id, mode) DO UPDATE SET
			total_score = EXCLUDED.total_score,
			ranked_score = EXCLUDED.ranked_score,
			pp = EXCLUDED.pp,
			pp_variants = EXCLUDED.pp_variants,
			accuracy = EXCLUDED.accuracy,
			playcount = EXCLUDED.playcount,
			playtime = EXCLUDED.playtime,
			max_combo = EXCLUDED.max_combo,
			total_hits = EXCLUDED.total_hits,
			grade_counts = EXCLUDED.grade_counts,
			updated_at = EXCLUDED.updated_at`,
		st.PlayerID, int(st.Mode), st.TotalScore, st.RankedScore, st.PP, st.PPVariants[:],
		st.Accuracy, st.Playcount, st.Playtime, st.MaxCombo, st.TotalHits, grades)
	if err != nil {
		return fmt.Errorf("postgres: save stats of %d/%s: %w", st.PlayerID, st.Mode, err)
	}
	return nil
}

// UpdateRank stores the cached global rank.
func (s *Store) UpdateRank(ctx context.Context, playerID int64, mode model.Mode, rank int) (err error) {
	start := time.Now()
	defer func() { observe("update_rank", start, err) }()

	_, err = s.q(ctx).Exec(ctx, `
		INSERT INTO player_stats (player_id, mode, rank) VALUES ($1, $2, $3)
		ON CONFLICT (player_id, mode) DO UPDATE SET rank = EXCLUDED.rank`,
		playerID, int(mode), rank)
	if err != nil {
		return fmt.Errorf("postgres: update rank of %d/%s: %w", playerID, mode, err)
	}
	return nil
}

// Stats returns the persisted stats row.
func (s *Store) Stats(ctx context.Context, playerID int64, mode model.Mode) (model.PlayerStats, bool, error) {
	var (
		st       model.PlayerStats
		variants []float64
		grades   []int32
	)
	err := s.q(ctx).QueryRow(ctx, `
		SELECT player_id, mode, rank, total_score, ranked_score, pp, pp_variants, accuracy,
			playcount, playtime, max_combo, total_hits, grade_counts
		FROM player_stats WHERE player_id = $1 AND mode = $2`, playerID, int(mode)).
		Scan(&st.PlayerID, &st.Mode, &st.Rank, &st.TotalScore, &st.RankedScore, &st.PP, &variants,
			&st.Accuracy, &st.Playcount, &st.Playtime, &st.MaxCombo, &st.TotalHits, &grades)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PlayerStats{}, false, nil
	}
	if err != nil {
		return model.PlayerStats{}, false, fmt.Errorf("postgres: stats of %d/%s: %w", playerID, mode, err)
	}
	copy(st.PPVariants[:], variants)
	for i := 0; i < len(grades) && i < model.GradeCount; i++ {
		st.GradeCounts[i] = int(grades[i])
	}
	return st, true, nil
}

// UpdateScoreStatus applies every change or none. A change whose From no
// longer matches the stored status aborts with ErrStaleStatus.
func (s *Store) UpdateScoreStatus(ctx context.Context, changes []model.StatusChange) error {
	if len(changes) == 0 {
		return nil
	}
	return s.InTx(ctx, func(ctx context.Context) (err error) {
		start := time.Now()
		defer func() { observe("update_status", start, err) }()

		batch := &pgx.Batch{}
		for _, c := range changes {
			batch.Queue(`UPDATE scores SET status = $1 WHERE id = $2 AND status = $3`,
				int(c.To), c.ScoreID, int(c.From))
		}
		res := s.q(ctx).SendBatch(ctx, batch)
		defer func() {
			if cerr := res.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("postgres: update statuses: %w", cerr)
			}
		}()
		for _, c := range changes {
			tag, err := res.Exec()
			if err != nil {
				return fmt.Errorf("postgres: update status of score %d: %w", c.ScoreID, err)
			}
			if tag.RowsAffected() != 1 {
				return fmt.Errorf("%w: score %d", ErrStaleStatus, c.ScoreID)
			}
		}
		return nil
	})
}

// UpdateScorePP overwrites a score's pp.
func (s *Store) UpdateScorePP(ctx context.Context, scoreID int64, pp float64) (err error) {
	start := time.Now()
	defer func() { observe("update_pp", start, err) }()

	tag, err := s.q(ctx).Exec(ctx, `UPDATE scores SET pp = $1 WHERE id = $2`, pp, scoreID)
	if err != nil {
		return fmt.Errorf("postgres: update pp of score %d: %w", scoreID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrScoreNotFound, scoreID)
	}
	return nil
}

// FetchLeaderCount counts beatmaps in mode where the player holds the
// highest visible Best score among unrestricted players. Ties go to the
// earlier score.
func (s *Store) FetchLeaderCount(ctx context.Context, playerID int64, mode model.Mode) (n int, err error) {
	start := time.Now()
	defer func() { observe("leader_count", start, err) }()

	err = s.q(ctx).QueryRow(ctx, `
		WITH leaders AS (
			SELECT DISTINCT ON (s.beatmap_id) s.beatmap_id, s.player_id
			FROM scores s
			LEFT JOIN players p ON p.id = s.player_id
			WHERE s.mode = $2 AND s.status = $3 AND NOT COALESCE(p.restricted, FALSE)
			ORDER BY s.beatmap_id, s.total_score DESC, s.id ASC
		)
		SELECT count(*) FROM leaders WHERE player_id = $1`,
		playerID, int(mode), int(model.StatusBest)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: leader count of %d/%s: %w", playerID, mode, err)
	}
	return n, nil
}

// Player is an account row.
type Player struct {
	ID         int64
	Username   string
	Country    string
	Restricted bool
	Kudosu     int
}

func (s *Store) player(ctx context.Context, id int64) (Player, error) {
	var p Player
	err := s.q(ctx).QueryRow(ctx,
		`SELECT id, username, country, restricted, kudosu FROM players WHERE id = $1`, id).
		Scan(&p.ID, &p.Username, &p.Country, &p.Restricted, &p.Kudosu)
	if errors.Is(err, pgx.ErrNoRows) {
		return Player{}, fmt.Errorf("%w: %d", ErrPlayerNotFound, id)
	}
	if err != nil {
		return Player{}, fmt.Errorf("postgres: player %d: %w", id, err)
	}
	return p, nil
}

// TotalKudosuForPlayer returns the player's kudosu.
func (s *Store) TotalKudosuForPlayer(ctx context.Context, playerID int64) (int, error) {
	p, err := s.player(ctx, playerID)
	return p.Kudosu, err
}

// Username returns the player's name.
func (s *Store) Username(ctx context.Context, playerID int64) (string, error) {
	p, err := s.player(ctx, playerID)
	return p.Username, err
}

// Country returns the player's country code.
func (s *Store) Country(ctx context.Context, playerID int64) (string, error) {
	p, err := s.player(ctx, playerID)
	return p.Country, err
}

// Restricted reports whether the player is restricted.
func (s *Store) Restricted(ctx context.Context, playerID int64) (bool, error) {
	p, err := s.player(ctx, playerID)
	return p.Restricted, err
}

// PutPlayer inserts or replaces a player.
func (s *Store) PutPlayer(ctx context.Context, p Player) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO players (id, username, country, restricted, kudosu) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, country = EXCLUDED.country,
			restricted = EXCLUDED.restricted, kudosu = EXCLUDED.kudosu`,
		p.ID, p.Username, p.Country, p.Restricted, p.Kudosu)
	if err != nil {
		return fmt.Errorf("postgres: put player %d: %w", p.ID, err)
	}
	return nil
}

// PutBeatmap inserts or replaces a beatmap.
func (s *Store) PutBeatmap(ctx context.Context, b model.Beatmap) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO beatmaps (id, total_length, status) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET total_length = EXCLUDED.total_length, status = EXCLUDED.status`,
		b.ID, b.TotalLength, int(b.Status))
	if err != nil {
		return fmt.Errorf("postgres: put beatmap %d: %w", b.ID, err)
	}
	return nil
}

// PutScore inserts or replaces a score.
func (s *Store) PutScore(ctx context.Context, sc model.ScoreRecord) error {
	submitted := sc.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO scores (`+scoreColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, pp = EXCLUDED.pp,
			total_score = EXCLUDED.total_score, mods = EXCLUDED.mods`,
		sc.ID, sc.PlayerID, sc.BeatmapID, int(sc.Mode), int(sc.Mods), sc.TotalScore, sc.PP, sc.Accuracy,
		sc.MaxCombo, int(sc.Grade), int(sc.Status), submitted, sc.Failtime,
		sc.N300, sc.N100, sc.N50, sc.NGeki, sc.NKatu, sc.NMiss)
	if err != nil {
		return fmt.Errorf("postgres: put score %d: %w", sc.ID, err)
	}
	return nil
}
