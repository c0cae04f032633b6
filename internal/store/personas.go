package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nidhogg/tiny-world/internal/persona"
)

// SaveDefinition upserts a persona definition.
func (s *Store) SaveDefinition(ctx context.Context, d persona.Definition) error {
	body, err := json.Marshal(d.Persona)
	if err != nil {
		return fmt.Errorf("marshal persona: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO persona_definitions (id, name, source, raw, persona, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			source = EXCLUDED.source,
			raw = EXCLUDED.raw,
			persona = EXCLUDED.persona`,
		d.ID, d.Persona.Name, d.Source, d.Raw, body, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save definition %s: %w", d.ID, err)
	}
	return nil
}

// ListDefinitions returns every stored definition, oldest first.
func (s *Store) ListDefinitions(ctx context.Context) ([]persona.Definition, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, source, COALESCE(raw, ''), persona, created_at
		FROM persona_definitions
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []persona.Definition
	for rows.Next() {
		var d persona.Definition
		var body []byte
		if err := rows.Scan(&d.ID, &d.Source, &d.Raw, &body, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		if err := json.Unmarshal(body, &d.Persona); err != nil {
			return nil, fmt.Errorf("decode persona %s: %w", d.ID, err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// ClearDefinitions removes every stored definition.
func (s *Store) ClearDefinitions(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM persona_definitions`); err != nil {
		return fmt.Errorf("clear definitions: %w", err)
	}
	return nil
}
