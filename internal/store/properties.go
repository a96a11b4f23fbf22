package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hurttlocker/leasebot/internal/lead"
)

// searchLimit caps rows returned by Search; ranking happens in the caller.
const searchLimit = 50

// PutProperty inserts or replaces a catalog unit. An empty ID gets a ULID.
// MatchScore is derived and never stored.
func (s *SQLiteStore) PutProperty(ctx context.Context, c lead.Candidate) (string, error) {
	if strings.TrimSpace(c.Address) == "" {
		return "", fmt.Errorf("put property: address is required")
	}
	if c.ID == "" {
		c.ID = s.newID()
	}
	amenities, err := json.Marshal(nonNil(c.Amenities))
	if err != nil {
		return "", fmt.Errorf("put property: encoding amenities: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO properties (id, address, bedrooms, bathrooms, rent, available, pet_friendly, amenities, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			address = excluded.address,
			bedrooms = excluded.bedrooms,
			bathrooms = excluded.bathrooms,
			rent = excluded.rent,
			available = excluded.available,
			pet_friendly = excluded.pet_friendly,
			amenities = excluded.amenities,
			updated_at = excluded.updated_at`,
		c.ID, c.Address, c.Bedrooms, c.Bathrooms, c.Rent, c.Available, c.PetFriendly, string(amenities), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("put property %s: %w", c.ID, err)
	}
	return c.ID, nil
}

// SetAvailable flips a unit's availability.
func (s *SQLiteStore) SetAvailable(ctx context.Context, id string, available bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE properties SET available = ?, updated_at = ? WHERE id = ?`,
		available, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set available %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set available %s: property not found", id)
	}
	return nil
}

// Search returns available units matching c, cheapest first.
// Nil criteria fields do not filter.
func (s *SQLiteStore) Search(ctx context.Context, c lead.Criteria) ([]lead.Candidate, error) {
	where := []string{"available = 1"}
	var args []any
	if c.Bedrooms != nil {
		where = append(where, "bedrooms = ?")
		args = append(args, *c.Bedrooms)
	}
	if c.MaxRent != nil {
		where = append(where, "rent <= ?")
		args = append(args, *c.MaxRent)
	}
	if c.PetFriendly {
		where = append(where, "pet_friendly = 1")
	}
	query := `SELECT id, address, bedrooms, bathrooms, rent, available, pet_friendly, amenities
		FROM properties WHERE ` + strings.Join(where, " AND ") + ` ORDER BY rent, id LIMIT ?`
	args = append(args, searchLimit)

	return s.queryProperties(ctx, query, args...)
}

// ListProperties returns the whole catalog ordered by ID.
func (s *SQLiteStore) ListProperties(ctx context.Context) ([]lead.Candidate, error) {
	return s.queryProperties(ctx, `SELECT id, address, bedrooms, bathrooms, rent, available, pet_friendly, amenities
		FROM properties ORDER BY id`)
}

func (s *SQLiteStore) queryProperties(ctx context.Context, query string, args ...any) ([]lead.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching properties: %w", err)
	}
	defer rows.Close()

	out := []lead.Candidate{}
	for rows.Next() {
		var (
			c         lead.Candidate
			amenities string
		)
		if err := rows.Scan(&c.ID, &c.Address, &c.Bedrooms, &c.Bathrooms, &c.Rent,
			&c.Available, &c.PetFriendly, &amenities); err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		if err := json.Unmarshal([]byte(amenities), &c.Amenities); err != nil {
			return nil, fmt.Errorf("decoding amenities for %s: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
