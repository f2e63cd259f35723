package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for Payjoin Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}

	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Payjoin schema initialized")
	return nil
}

// InsertSeenOutpoint atomically tests whether an outpoint has been used in a
// prior payjoin proposal and records it if not, backing the
// CheckNoInputsSeenBefore callback (spec §4.5). Returns true if the outpoint
// was already known.
func (s *PostgresStore) InsertSeenOutpoint(ctx context.Context, txid string, vout uint32) (alreadySeen bool, err error) {
	const sql = `
		INSERT INTO seen_outpoints (txid, vout)
		VALUES ($1, $2)
		ON CONFLICT (txid, vout) DO NOTHING;
	`
	tag, err := s.pool.Exec(ctx, sql, txid, vout)
	if err != nil {
		return false, fmt.Errorf("insert seen_outpoints: %w", err)
	}
	// RowsAffected is 0 only when the ON CONFLICT DO NOTHING suppressed the
	// insert, i.e. the row already existed.
	return tag.RowsAffected() == 0, nil
}

// ProposalRecord is one row of the payjoin_proposals audit log.
type ProposalRecord struct {
	CorrelationID      string
	Status             string // "scheduled", "finalized", "rejected"
	Txid               string
	ContributedInputs  int
	FeeContributedSats int64
	RejectReason       string
}

// SaveProposal upserts an audit row for a payjoin request, keyed by
// correlation ID so the same request can be recorded at multiple stages
// (scheduled on receipt, then updated to finalized or rejected).
func (s *PostgresStore) SaveProposal(ctx context.Context, rec ProposalRecord) error {
	const sql = `
		INSERT INTO payjoin_proposals (correlation_id, status, txid, contributed_inputs, fee_contributed_sats, reject_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (correlation_id) DO UPDATE
		SET status = EXCLUDED.status,
		    txid = EXCLUDED.txid,
		    contributed_inputs = EXCLUDED.contributed_inputs,
		    fee_contributed_sats = EXCLUDED.fee_contributed_sats,
		    reject_reason = EXCLUDED.reject_reason,
		    updated_at = NOW();
	`
	_, err := s.pool.Exec(ctx, sql, rec.CorrelationID, rec.Status, rec.Txid, rec.ContributedInputs, rec.FeeContributedSats, rec.RejectReason)
	if err != nil {
		return fmt.Errorf("save proposal: %w", err)
	}
	return nil
}

// ListProposals returns the most recent proposals, newest first, for
// operational visibility.
func (s *PostgresStore) ListProposals(ctx context.Context, limit int) ([]ProposalRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	const sql = `
		SELECT correlation_id, status, txid, contributed_inputs, fee_contributed_sats, reject_reason
		FROM payjoin_proposals
		ORDER BY updated_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ProposalRecord
	for rows.Next() {
		var r ProposalRecord
		if err := rows.Scan(&r.CorrelationID, &r.Status, &r.Txid, &r.ContributedInputs, &r.FeeContributedSats, &r.RejectReason); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// GetPool exposes the connection pool for subsystems that need direct access.
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}
