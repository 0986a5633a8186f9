// Package postgres implements store.Store against PostgreSQL using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sarvex/keywhiz/internal/apperr"
	"github.com/sarvex/keywhiz/pkg/models"
)

// Store is a store.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// pgxQuerier is the subset of *pgxpool.Pool and pgx.Tx that query methods
// need, so the same method body works whether or not it's running inside
// a WithinTx call.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// db returns the pgx.Tx installed in ctx by WithinTx, or the pool if there
// is none, so series and content queries composed inside WithinTx observe
// one another's writes and share isolation instead of running as
// independent pool-level statements.
func (s *Store) db(ctx context.Context) pgxQuerier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// WithinTx runs fn against a single read-committed transaction, satisfying
// the requirement that a multi-step series/content sequence (create, or a
// series+content join read) never observes a torn state. fn must use the
// ctx it is given, not the ctx passed to WithinTx, so its store calls route
// through the transaction rather than the pool.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.StoreError, "committing transaction", err)
	}
	return nil
}

// New opens a pgxpool connection and returns a ready Store.
func New(ctx context.Context, connStr string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an already-constructed pool, letting callers supply a
// pool they configured themselves.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

func jsonMap(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func scanMap(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// --- SeriesStore ---

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == uniqueViolation
	}
	return false
}

func (s *Store) CreateSeries(ctx context.Context, name, description, creator, secretType string, generationOptions, metadata map[string]string) (int64, error) {
	optsJSON, err := jsonMap(generationOptions)
	if err != nil {
		return 0, apperr.Wrap(apperr.StoreError, "marshaling generation options", err)
	}
	metaJSON, err := jsonMap(metadata)
	if err != nil {
		return 0, apperr.Wrap(apperr.StoreError, "marshaling metadata", err)
	}

	var id int64
	err = s.db(ctx).QueryRow(ctx,
		`INSERT INTO secrets (name, description, createdby, updatedby, type, options, metadata)
		 VALUES ($1, $2, $3, $3, $4, $5, $6)
		 RETURNING id`,
		name, description, creator, secretType, optsJSON, metaJSON,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperr.New(apperr.Conflict, fmt.Sprintf("series %q already exists", name))
		}
		return 0, apperr.Wrap(apperr.StoreError, "inserting series", err)
	}
	return id, nil
}

func (s *Store) scanSeries(row pgx.Row) (*models.SecretSeries, error) {
	var series models.SecretSeries
	var optsRaw, metaRaw []byte
	err := row.Scan(&series.ID, &series.Name, &series.Description,
		&series.CreatedAt, &series.CreatedBy, &series.UpdatedAt, &series.UpdatedBy,
		&series.Type, &optsRaw, &metaRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "series not found")
		}
		return nil, apperr.Wrap(apperr.StoreError, "scanning series", err)
	}
	if series.GenerationOptions, err = scanMap(optsRaw); err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "unmarshaling generation options", err)
	}
	if series.Metadata, err = scanMap(metaRaw); err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "unmarshaling metadata", err)
	}
	return &series, nil
}

const seriesColumns = `id, name, description, createdat, createdby, updatedat, updatedby, type, options, metadata`

func (s *Store) GetSeriesByID(ctx context.Context, id int64) (*models.SecretSeries, error) {
	row := s.db(ctx).QueryRow(ctx, `SELECT `+seriesColumns+` FROM secrets WHERE id = $1`, id)
	return s.scanSeries(row)
}

func (s *Store) GetSeriesByName(ctx context.Context, name string) (*models.SecretSeries, error) {
	row := s.db(ctx).QueryRow(ctx, `SELECT `+seriesColumns+` FROM secrets WHERE name = $1`, name)
	return s.scanSeries(row)
}

func (s *Store) ListAll(ctx context.Context) ([]models.SecretSeries, error) {
	rows, err := s.db(ctx).Query(ctx, `SELECT `+seriesColumns+` FROM secrets ORDER BY id ASC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "listing series", err)
	}
	defer rows.Close()

	var out []models.SecretSeries
	for rows.Next() {
		series, err := s.scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *series)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "iterating series", err)
	}
	return out, nil
}

// DeleteByName removes a series and, in the same transaction, its access
// grants via removeSeriesGrantsTx — the same cascade edge deletion exposed
// standalone as RemoveSeries. Content rows cascade through the schema's
// ON DELETE CASCADE on secrets_content.secretid.
func (s *Store) DeleteByName(ctx context.Context, name string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var seriesID int64
	err = tx.QueryRow(ctx, `SELECT id FROM secrets WHERE name = $1`, name).Scan(&seriesID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil // idempotent
	}
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "looking up series", err)
	}
	if err := removeSeriesGrantsTx(ctx, tx, seriesID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM secrets WHERE id = $1`, seriesID); err != nil {
		return apperr.Wrap(apperr.StoreError, "deleting series", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.StoreError, "committing transaction", err)
	}
	return nil
}

// --- ContentStore ---

const contentColumns = `id, secretid, encrypted_content, version, createdat, createdby, updatedat, updatedby`

func (s *Store) Create(ctx context.Context, seriesID int64, encryptedContent, version, creator string) (int64, error) {
	var id int64
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO secrets_content (secretid, encrypted_content, version, createdby, updatedby)
		 VALUES ($1, $2, $3, $4, $4)
		 RETURNING id`,
		seriesID, encryptedContent, version, creator,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperr.New(apperr.Conflict, fmt.Sprintf("version %q already exists for series %d", version, seriesID))
		}
		return 0, apperr.Wrap(apperr.StoreError, "inserting content", err)
	}
	return id, nil
}

func (s *Store) scanContent(row pgx.Row) (*models.SecretContent, error) {
	var c models.SecretContent
	err := row.Scan(&c.ID, &c.SecretSeriesID, &c.EncryptedContent, &c.Version,
		&c.CreatedAt, &c.CreatedBy, &c.UpdatedAt, &c.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "content not found")
		}
		return nil, apperr.Wrap(apperr.StoreError, "scanning content", err)
	}
	return &c, nil
}

func (s *Store) GetContentByID(ctx context.Context, id int64) (*models.SecretContent, error) {
	row := s.db(ctx).QueryRow(ctx, `SELECT `+contentColumns+` FROM secrets_content WHERE id = $1`, id)
	return s.scanContent(row)
}

func (s *Store) ListBySeries(ctx context.Context, seriesID int64) ([]models.SecretContent, error) {
	rows, err := s.db(ctx).Query(ctx, `SELECT `+contentColumns+` FROM secrets_content WHERE secretid = $1 ORDER BY id ASC`, seriesID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "listing content", err)
	}
	defer rows.Close()

	var out []models.SecretContent
	for rows.Next() {
		c, err := s.scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "iterating content", err)
	}
	return out, nil
}

func (s *Store) VersionsOf(ctx context.Context, seriesID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT version FROM secrets_content WHERE secretid = $1 ORDER BY version ASC`, seriesID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "listing versions", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, apperr.Wrap(apperr.StoreError, "scanning version", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) DeleteBySeries(ctx context.Context, seriesID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM secrets_content WHERE secretid = $1`, seriesID)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "deleting content", err)
	}
	return nil
}

func (s *Store) DeleteBySeriesAndVersion(ctx context.Context, seriesID int64, version string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM secrets_content WHERE secretid = $1 AND version = $2`, seriesID, version)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "deleting content version", err)
	}
	return nil
}

// --- ClientStore ---

const clientColumns = `id, name, description, createdat, createdby, updatedat, updatedby, automation`

func (s *Store) CreateClient(ctx context.Context, name, description, creator string, automation bool) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO clients (name, description, createdby, updatedby, automation)
		 VALUES ($1, $2, $3, $3, $4)
		 RETURNING id`,
		name, description, creator, automation,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperr.New(apperr.Conflict, fmt.Sprintf("client %q already exists", name))
		}
		return 0, apperr.Wrap(apperr.StoreError, "inserting client", err)
	}
	return id, nil
}

func scanClient(row pgx.Row) (*models.Client, error) {
	var c models.Client
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.CreatedBy,
		&c.UpdatedAt, &c.UpdatedBy, &c.Automation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "client not found")
		}
		return nil, apperr.Wrap(apperr.StoreError, "scanning client", err)
	}
	return &c, nil
}

func (s *Store) GetClientByID(ctx context.Context, id int64) (*models.Client, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	return scanClient(row)
}

func (s *Store) GetClientByName(ctx context.Context, name string) (*models.Client, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE name = $1`, name)
	return scanClient(row)
}

func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY id ASC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "listing clients", err)
	}
	defer rows.Close()
	var out []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DeleteClient removes a client and, in the same transaction, its group
// memberships via removeClientMembershipsTx — the same cascade edge
// deletion exposed standalone as RemoveClient.
func (s *Store) DeleteClient(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := removeClientMembershipsTx(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id); err != nil {
		return apperr.Wrap(apperr.StoreError, "deleting client", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.StoreError, "committing transaction", err)
	}
	return nil
}

// --- GroupStore ---

const groupColumns = `id, name, description, createdat, createdby, updatedat, updatedby`

func (s *Store) CreateGroup(ctx context.Context, name, description, creator string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO groups (name, description, createdby, updatedby)
		 VALUES ($1, $2, $3, $3)
		 RETURNING id`,
		name, description, creator,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperr.New(apperr.Conflict, fmt.Sprintf("group %q already exists", name))
		}
		return 0, apperr.Wrap(apperr.StoreError, "inserting group", err)
	}
	return id, nil
}

func scanGroup(row pgx.Row) (*models.Group, error) {
	var g models.Group
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.CreatedBy, &g.UpdatedAt, &g.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "group not found")
		}
		return nil, apperr.Wrap(apperr.StoreError, "scanning group", err)
	}
	return &g, nil
}

func (s *Store) GetGroupByID(ctx context.Context, id int64) (*models.Group, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id)
	return scanGroup(row)
}

func (s *Store) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE name = $1`, name)
	return scanGroup(row)
}

func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY id ASC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "listing groups", err)
	}
	defer rows.Close()
	var out []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// DeleteGroup removes a group and, in the same transaction, its client and
// series edges via removeGroupEdgesTx — the same cascade edge deletion
// exposed standalone as RemoveGroup.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := removeGroupEdgesTx(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id); err != nil {
		return apperr.Wrap(apperr.StoreError, "deleting group", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.StoreError, "committing transaction", err)
	}
	return nil
}

// --- MembershipStore ---

func (s *Store) Enroll(ctx context.Context, clientID, groupID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memberships (clientid, groupid) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		clientID, groupID)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "enrolling client", err)
	}
	return nil
}

func (s *Store) Evict(ctx context.Context, clientID, groupID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM memberships WHERE clientid = $1 AND groupid = $2`, clientID, groupID)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "evicting client", err)
	}
	return nil
}

func (s *Store) Allow(ctx context.Context, seriesID, groupID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accessgrants (groupid, secretid) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, seriesID)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "allowing series", err)
	}
	return nil
}

func (s *Store) Disallow(ctx context.Context, seriesID, groupID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM accessgrants WHERE groupid = $1 AND secretid = $2`, groupID, seriesID)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "disallowing series", err)
	}
	return nil
}

func (s *Store) ClientsOf(ctx context.Context, groupID int64) ([]models.Client, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+prefixColumns("c", clientColumns)+` FROM clients c
		 JOIN memberships m ON m.clientid = c.id
		 WHERE m.groupid = $1 ORDER BY c.id ASC`, groupID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "listing clients of group", err)
	}
	defer rows.Close()
	var out []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) GroupsOfClient(ctx context.Context, clientID int64) ([]models.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+prefixColumns("g", groupColumns)+` FROM groups g
		 JOIN memberships m ON m.groupid = g.id
		 WHERE m.clientid = $1 ORDER BY g.id ASC`, clientID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "listing groups of client", err)
	}
	defer rows.Close()
	var out []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (s *Store) SeriesOf(ctx context.Context, groupID int64) ([]models.SecretSeries, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+prefixColumns("s", seriesColumns)+` FROM secrets s
		 JOIN accessgrants a ON a.secretid = s.id
		 WHERE a.groupid = $1 ORDER BY s.id ASC`, groupID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "listing series of group", err)
	}
	defer rows.Close()
	var out []models.SecretSeries
	for rows.Next() {
		series, err := s.scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *series)
	}
	return out, rows.Err()
}

func (s *Store) GroupsOfSeries(ctx context.Context, seriesID int64) ([]models.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+prefixColumns("g", groupColumns)+` FROM groups g
		 JOIN accessgrants a ON a.groupid = g.id
		 WHERE a.secretid = $1 ORDER BY g.id ASC`, seriesID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "listing groups of series", err)
	}
	defer rows.Close()
	var out []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// RemoveClient evicts clientID from every group it belongs to, standalone
// from deleting the client row. DeleteClient runs the identical statement
// inside its own transaction rather than calling this method, since pgx
// transactions don't nest.
func (s *Store) RemoveClient(ctx context.Context, clientID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	if err := removeClientMembershipsTx(ctx, tx, clientID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.StoreError, "committing transaction", err)
	}
	return nil
}

// RemoveGroup clears groupID's client and series edges, standalone from
// deleting the group row.
func (s *Store) RemoveGroup(ctx context.Context, groupID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	if err := removeGroupEdgesTx(ctx, tx, groupID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.StoreError, "committing transaction", err)
	}
	return nil
}

// RemoveSeries clears every group's grant on seriesID, standalone from
// deleting the series row.
func (s *Store) RemoveSeries(ctx context.Context, seriesID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	if err := removeSeriesGrantsTx(ctx, tx, seriesID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.StoreError, "committing transaction", err)
	}
	return nil
}

func removeClientMembershipsTx(ctx context.Context, tx pgx.Tx, clientID int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM memberships WHERE clientid = $1`, clientID); err != nil {
		return apperr.Wrap(apperr.StoreError, "removing client memberships", err)
	}
	return nil
}

func removeGroupEdgesTx(ctx context.Context, tx pgx.Tx, groupID int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM memberships WHERE groupid = $1`, groupID); err != nil {
		return apperr.Wrap(apperr.StoreError, "removing group memberships", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM accessgrants WHERE groupid = $1`, groupID); err != nil {
		return apperr.Wrap(apperr.StoreError, "removing group access grants", err)
	}
	return nil
}

func removeSeriesGrantsTx(ctx context.Context, tx pgx.Tx, seriesID int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM accessgrants WHERE secretid = $1`, seriesID); err != nil {
		return apperr.Wrap(apperr.StoreError, "removing series access grants", err)
	}
	return nil
}

// prefixColumns qualifies every column in a flat comma list with a table
// alias, needed once a query joins two tables sharing column names.
func prefixColumns(alias, columns string) string {
	result := ""
	for i, col := range splitColumns(columns) {
		if i > 0 {
			result += ", "
		}
		result += alias + "." + col
	}
	return result
}

func splitColumns(columns string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(columns); i++ {
		if i == len(columns) || columns[i] == ',' {
			col := columns[start:i]
			for len(col) > 0 && col[0] == ' ' {
				col = col[1:]
			}
			out = append(out, col)
			start = i + 1
		}
	}
	return out
}
