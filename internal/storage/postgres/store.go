package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pairdex/internal/model"
)

const feeRateSetting = "fee_rate"

// Store provides Postgres persistence for pair state and the settlement journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the ledger tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// LoadPairs returns every stored pair.
func (s *Store) LoadPairs(ctx context.Context) ([]model.Pair, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_id, token_liquidity::text, base_liquidity::text, initial_k::text,
			token_earnings::text, base_earnings::text
		FROM pairs
		ORDER BY token_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Pair
	for rows.Next() {
		var id string
		var fields [5]string
		if err := rows.Scan(&id, &fields[0], &fields[1], &fields[2], &fields[3], &fields[4]); err != nil {
			return nil, err
		}
		pair, err := decodePair(id, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}

// SavePair upserts a pair. Empty pairs are removed.
func (s *Store) SavePair(ctx context.Context, pair model.Pair) error {
	if pair.TokenID == "" {
		return fmt.Errorf("token id required")
	}
	if pair.IsEmpty() {
		_, err := s.pool.Exec(ctx, `DELETE FROM pairs WHERE token_id=$1`, pair.TokenID)
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pairs (
			token_id, token_liquidity, base_liquidity, initial_k, token_earnings, base_earnings, updated_at
		) VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric, now())
		ON CONFLICT (token_id)
		DO UPDATE SET
			token_liquidity = EXCLUDED.token_liquidity,
			base_liquidity = EXCLUDED.base_liquidity,
			initial_k = EXCLUDED.initial_k,
			token_earnings = EXCLUDED.token_earnings,
			base_earnings = EXCLUDED.base_earnings,
			updated_at = now()
	`,
		pair.TokenID,
		pair.TokenLiquidity.String(),
		pair.BaseLiquidity.String(),
		pair.InitialK.String(),
		pair.TokenEarnings.String(),
		pair.BaseEarnings.String(),
	)
	return err
}

// LoadFeeRate returns the stored fee rate, if any.
func (s *Store) LoadFeeRate(ctx context.Context) (uint32, bool, error) {
	var value string
	row := s.pool.QueryRow(ctx, `SELECT value FROM ledger_settings WHERE name=$1`, feeRateSetting)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	fee, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("parse fee rate %q: %w", value, err)
	}
	return uint32(fee), true, nil
}

// SaveFeeRate upserts the fee rate.
func (s *Store) SaveFeeRate(ctx context.Context, feeRate uint32) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_settings (name, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`, feeRateSetting, strconv.FormatUint(uint64(feeRate), 10))
	return err
}

// Transfer journals one settlement instruction.
func (s *Store) Transfer(ctx context.Context, transfer model.Transfer) error {
	return s.InsertTransfers(ctx, []model.Transfer{transfer})
}

// InsertTransfers appends settlement instructions to the transfers table.
func (s *Store) InsertTransfers(ctx context.Context, transfers []model.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range transfers {
		batch.Queue(`
			INSERT INTO transfers (transfer_id, recipient, asset, amount, token_id, reason, created_at)
			VALUES (NULLIF($1, ''), $2, $3, $4::numeric, NULLIF($5, ''), $6, $7::timestamptz)
			ON CONFLICT (transfer_id) DO NOTHING
		`,
			t.ID,
			t.Recipient,
			t.Asset,
			t.Amount,
			t.TokenID,
			t.Reason,
			t.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range transfers {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListTransfers returns the most recent transfers, newest first.
func (s *Store) ListTransfers(ctx context.Context, limit int) ([]model.Transfer, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(transfer_id, ''), recipient, asset, amount::text, COALESCE(token_id, ''), reason,
			to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"')
		FROM transfers
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transfer
	for rows.Next() {
		var t model.Transfer
		if err := rows.Scan(&t.ID, &t.Recipient, &t.Asset, &t.Amount, &t.TokenID, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func decodePair(id string, fields [5]string) (model.Pair, error) {
	pair := model.NewPair(id)
	targets := []**big.Int{
		&pair.TokenLiquidity,
		&pair.BaseLiquidity,
		&pair.InitialK,
		&pair.TokenEarnings,
		&pair.BaseEarnings,
	}
	for i, target := range targets {
		v, err := model.ParseAmount(fields[i])
		if err != nil {
			return model.Pair{}, fmt.Errorf("pair %s: %w", id, err)
		}
		*target = v
	}
	return pair, nil
}
