package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Guild struct {
	Guild        string
	LastFullSync int64
	Watermark    int64
}

func (q *Queries) GetGuild(ctx context.Context, guild string) (Guild, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT guild, last_full_sync, watermark FROM guilds WHERE guild = ?`,
		guild,
	)
	var g Guild
	err := row.Scan(&g.Guild, &g.LastFullSync, &g.Watermark)
	return g, err
}

func (q *Queries) GetGuilds(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT guild FROM guilds ORDER BY guild`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var guild string
		err := rows.Scan(&guild)
		if err != nil {
			return nil, err
		}
		out = append(out, guild)
	}
	return out, rows.Err()
}

func (q *Queries) CreateGuild(ctx context.Context, guild string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO guilds (guild) VALUES (?) ON CONFLICT (guild) DO NOTHING`,
		guild,
	)
	return err
}

type SetGuildLastFullSyncParams struct {
	Guild        string
	LastFullSync int64
}

func (q *Queries) SetGuildLastFullSync(ctx context.Context, arg SetGuildLastFullSyncParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO guilds (guild, last_full_sync) VALUES (?, ?)
		ON CONFLICT (guild) DO UPDATE SET last_full_sync = excluded.last_full_sync`,
		arg.Guild, arg.LastFullSync,
	)
	return err
}

type SetGuildWatermarkParams struct {
	Guild     string
	Watermark int64
}

func (q *Queries) SetGuildWatermark(ctx context.Context, arg SetGuildWatermarkParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO guilds (guild, watermark) VALUES (?, ?)
		ON CONFLICT (guild) DO UPDATE SET watermark = excluded.watermark`,
		arg.Guild, arg.Watermark,
	)
	return err
}

type Member struct {
	Guild string
	Uid   int64
	LbId  string
}

type UpsertMemberParams struct {
	Guild string
	Uid   int64
	LbId  string
}

func (q *Queries) UpsertMember(ctx context.Context, arg UpsertMemberParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO members (guild, uid, lb_id) VALUES (?, ?, ?)
		ON CONFLICT (guild, uid) DO UPDATE SET lb_id = excluded.lb_id`,
		arg.Guild, arg.Uid, arg.LbId,
	)
	return err
}

type GetMemberParams struct {
	Guild string
	Uid   int64
}

func (q *Queries) GetMember(ctx context.Context, arg GetMemberParams) (Member, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT guild, uid, lb_id FROM members WHERE guild = ? AND uid = ?`,
		arg.Guild, arg.Uid,
	)
	var m Member
	err := row.Scan(&m.Guild, &m.Uid, &m.LbId)
	return m, err
}

func (q *Queries) GetMembersByGuild(ctx context.Context, guild string) ([]Member, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT guild, uid, lb_id FROM members WHERE guild = ? ORDER BY uid`,
		guild,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		err := rows.Scan(&m.Guild, &m.Uid, &m.LbId)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type DeleteMembersByIdentityParams struct {
	Guild string
	LbId  string
}

func (q *Queries) DeleteMembersByIdentity(ctx context.Context, arg DeleteMembersByIdentityParams) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM members WHERE guild = ? AND lb_id = ?`,
		arg.Guild, arg.LbId,
	)
	return err
}

type MemberSyncParams struct {
	Guild string
	Uid   int64
}

func (q *Queries) GetMemberLastSync(ctx context.Context, arg MemberSyncParams) (int64, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT last_sync FROM member_syncs WHERE guild = ? AND uid = ?`,
		arg.Guild, arg.Uid,
	)
	var lastSync int64
	err := row.Scan(&lastSync)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return lastSync, err
}

type SetMemberLastSyncParams struct {
	Guild    string
	Uid      int64
	LastSync int64
}

func (q *Queries) SetMemberLastSync(ctx context.Context, arg SetMemberLastSyncParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO member_syncs (guild, uid, last_sync) VALUES (?, ?, ?)
		ON CONFLICT (guild, uid) DO UPDATE SET last_sync = excluded.last_sync`,
		arg.Guild, arg.Uid, arg.LastSync,
	)
	return err
}

type Identity struct {
	Guild    string
	LbId     string
	NumPages int64
}

type UpsertIdentityParams struct {
	Guild    string
	LbId     string
	NumPages int64
}

func (q *Queries) UpsertIdentity(ctx context.Context, arg UpsertIdentityParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO identities (guild, lb_id, num_pages) VALUES (?, ?, ?)
		ON CONFLICT (guild, lb_id) DO UPDATE SET num_pages = excluded.num_pages`,
		arg.Guild, arg.LbId, arg.NumPages,
	)
	return err
}

type GetIdentityParams struct {
	Guild string
	LbId  string
}

func (q *Queries) GetIdentity(ctx context.Context, arg GetIdentityParams) (Identity, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT guild, lb_id, num_pages FROM identities WHERE guild = ? AND lb_id = ?`,
		arg.Guild, arg.LbId,
	)
	var i Identity
	err := row.Scan(&i.Guild, &i.LbId, &i.NumPages)
	return i, err
}

type DeleteIdentityParams struct {
	Guild string
	LbId  string
}

func (q *Queries) DeleteIdentity(ctx context.Context, arg DeleteIdentityParams) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM identities WHERE guild = ? AND lb_id = ?`,
		arg.Guild, arg.LbId,
	)
	return err
}

type Rating struct {
	Guild  string
	LbId   string
	FilmId string
	Rating float64
}

type UpsertRatingParams struct {
	Guild  string
	LbId   string
	FilmId string
	Rating float64
}

func (q *Queries) UpsertRating(ctx context.Context, arg UpsertRatingParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO ratings (guild, lb_id, film_id, rating) VALUES (?, ?, ?, ?)
		ON CONFLICT (guild, lb_id, film_id) DO UPDATE SET rating = excluded.rating`,
		arg.Guild, arg.LbId, arg.FilmId, arg.Rating,
	)
	return err
}

type GetRatingsByFilmParams struct {
	Guild  string
	FilmId string
}

func (q *Queries) GetRatingsByFilm(ctx context.Context, arg GetRatingsByFilmParams) ([]Rating, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT guild, lb_id, film_id, rating FROM ratings
		WHERE guild = ? AND film_id = ? ORDER BY lb_id`,
		arg.Guild, arg.FilmId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rating
	for rows.Next() {
		var r Rating
		err := rows.Scan(&r.Guild, &r.LbId, &r.FilmId, &r.Rating)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type GetRatingsByIdentityParams struct {
	Guild string
	LbId  string
}

func (q *Queries) GetRatingsByIdentity(ctx context.Context, arg GetRatingsByIdentityParams) ([]Rating, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT guild, lb_id, film_id, rating FROM ratings
		WHERE guild = ? AND lb_id = ? ORDER BY film_id`,
		arg.Guild, arg.LbId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rating
	for rows.Next() {
		var r Rating
		err := rows.Scan(&r.Guild, &r.LbId, &r.FilmId, &r.Rating)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) GetDistinctFilmIds(ctx context.Context, guild string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT DISTINCT film_id FROM ratings WHERE guild = ? ORDER BY film_id`,
		guild,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		err := rows.Scan(&id)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type DeleteRatingsByIdentityParams struct {
	Guild string
	LbId  string
}

func (q *Queries) DeleteRatingsByIdentity(ctx context.Context, arg DeleteRatingsByIdentityParams) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM ratings WHERE guild = ? AND lb_id = ?`,
		arg.Guild, arg.LbId,
	)
	return err
}

type Film struct {
	Guild       string
	FilmId      string
	Name        string
	GuildAvg    float64
	RatingCount int64
	WatchCount  int64
}

type UpsertFilmAggregateParams struct {
	Guild       string
	FilmId      string
	GuildAvg    float64
	RatingCount int64
	WatchCount  int64
}

func (q *Queries) UpsertFilmAggregate(ctx context.Context, arg UpsertFilmAggregateParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO films (guild, film_id, guild_avg, rating_count, watch_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (guild, film_id) DO UPDATE SET
			guild_avg = excluded.guild_avg,
			rating_count = excluded.rating_count,
			watch_count = excluded.watch_count`,
		arg.Guild, arg.FilmId, arg.GuildAvg, arg.RatingCount, arg.WatchCount,
	)
	return err
}

type SetFilmNameParams struct {
	Guild  string
	FilmId string
	Name   string
}

func (q *Queries) SetFilmName(ctx context.Context, arg SetFilmNameParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO films (guild, film_id, name) VALUES (?, ?, ?)
		ON CONFLICT (guild, film_id) DO UPDATE SET name = excluded.name`,
		arg.Guild, arg.FilmId, arg.Name,
	)
	return err
}

type GetFilmParams struct {
	Guild  string
	FilmId string
}

func (q *Queries) GetFilm(ctx context.Context, arg GetFilmParams) (Film, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT guild, film_id, name, guild_avg, rating_count, watch_count
		FROM films WHERE guild = ? AND film_id = ?`,
		arg.Guild, arg.FilmId,
	)
	var f Film
	err := row.Scan(&f.Guild, &f.FilmId, &f.Name, &f.GuildAvg, &f.RatingCount, &f.WatchCount)
	return f, err
}

type DeleteFilmParams struct {
	Guild  string
	FilmId string
}

func (q *Queries) DeleteFilm(ctx context.Context, arg DeleteFilmParams) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM films WHERE guild = ? AND film_id = ?`,
		arg.Guild, arg.FilmId,
	)
	return err
}

func (q *Queries) GetFilmsByGuild(ctx context.Context, guild string) ([]Film, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT guild, film_id, name, guild_avg, rating_count, watch_count
		FROM films WHERE guild = ? ORDER BY film_id`,
		guild,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFilms(rows)
}

type RankedFilmsParams struct {
	Guild      string
	MinRatings int64
	Limit      int64
}

func (q *Queries) GetTopFilms(ctx context.Context, arg RankedFilmsParams) ([]Film, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT guild, film_id, name, guild_avg, rating_count, watch_count
		FROM films WHERE guild = ? AND rating_count >= ?
		ORDER BY guild_avg DESC, rating_count DESC LIMIT ?`,
		arg.Guild, arg.MinRatings, arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFilms(rows)
}

func (q *Queries) GetBottomFilms(ctx context.Context, arg RankedFilmsParams) ([]Film, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT guild, film_id, name, guild_avg, rating_count, watch_count
		FROM films WHERE guild = ? AND rating_count >= ?
		ORDER BY guild_avg ASC, rating_count DESC LIMIT ?`,
		arg.Guild, arg.MinRatings, arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFilms(rows)
}

func scanFilms(rows *sql.Rows) ([]Film, error) {
	var out []Film
	for rows.Next() {
		var f Film
		err := rows.Scan(&f.Guild, &f.FilmId, &f.Name, &f.GuildAvg, &f.RatingCount, &f.WatchCount)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
