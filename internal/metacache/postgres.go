package metacache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mbd888/agentdex/internal/resolver"
)

// PostgresStore persists metadata in the agent_metadata table so resolved
// documents survive restarts and are shared by every replica.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping checks the database connection.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, key Key) (resolver.Metadata, bool, error) {
	if err := key.validate(); err != nil {
		return nil, false, err
	}

	var raw []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT data FROM agent_metadata WHERE chain = $1 AND agent_id = $2
	`, key.Chain.String(), key.AgentID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get metadata: %w", err)
	}

	var doc resolver.Metadata
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return doc, true, nil
}

func (p *PostgresStore) Put(ctx context.Context, key Key, data resolver.Metadata) error {
	if err := key.validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO agent_metadata (chain, agent_id, data, resolved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain, agent_id)
		DO UPDATE SET data = EXCLUDED.data, resolved_at = EXCLUDED.resolved_at
	`, key.Chain.String(), key.AgentID, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store metadata: %w", err)
	}
	return nil
}

func (p *PostgresStore) Clear(ctx context.Context, agentID string) (int, error) {
	var (
		res sql.Result
		err error
	)
	if agentID == "" {
		res, err = p.db.ExecContext(ctx, `DELETE FROM agent_metadata`)
	} else {
		res, err = p.db.ExecContext(ctx, `DELETE FROM agent_metadata WHERE agent_id = $1`, agentID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear metadata: %w", err)
	}
	return int(n), nil
}

func (p *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT chain || ':' || agent_id FROM agent_metadata ORDER BY 1 COLLATE "C"
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	agents := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return Stats{}, fmt.Errorf("failed to scan metadata key: %w", err)
		}
		agents = append(agents, k)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("failed to list metadata: %w", err)
	}
	return Stats{Size: len(agents), Agents: agents}, nil
}
