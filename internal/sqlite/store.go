package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/meshforge/pipeline/internal/store"
)

// New opens (or creates) the durable store at the given SQLite path.
func New(dataSourceName string, opts ...store.Option) (store.Store, error) {
	db, err := Open(dataSourceName)
	if err != nil {
		return nil, err
	}
	s, err := store.NewDurable(&persister{db: db}, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// persister stores the encoded state document in one row, fenced by a
// generation counter: a writer that lost the row to someone else gets
// ErrStateConflict instead of silently clobbering newer state.
type persister struct {
	db         *DB
	generation int64
}

func (p *persister) Load() ([]byte, error) {
	var doc []byte
	err := p.db.QueryRow(
		`SELECT generation, document FROM pipeline_state WHERE id = 1`,
	).Scan(&p.generation, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state row: %w", err)
	}
	return doc, nil
}

func (p *persister) Save(doc []byte) error {
	if p.generation == 0 {
		_, err := p.db.Exec(
			`INSERT INTO pipeline_state (id, generation, document) VALUES (1, 1, ?)`,
			doc,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrStateConflict, err)
		}
		p.generation = 1
		return nil
	}

	res, err := p.db.Exec(
		`UPDATE pipeline_state
		 SET generation = generation + 1, document = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = 1 AND generation = ?`,
		doc, p.generation,
	)
	if err != nil {
		return fmt.Errorf("update state row: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update state row: %w", err)
	}
	if rows == 0 {
		return store.ErrStateConflict
	}
	p.generation++
	return nil
}

func (p *persister) Close() error {
	return p.db.Close()
}
