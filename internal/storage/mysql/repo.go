package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"hostaway_sync/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// jsonList marshals a string list, always producing a JSON array.
func jsonList(in []string) string {
	if in == nil {
		in = []string{}
	}
	b, _ := json.Marshal(in)
	return string(b)
}

func day(t time.Time) string { return t.UTC().Format(domain.DateLayout) }

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

var _ domain.Repository = (*Repo)(nil)

func (r *Repo) UpsertProperty(ctx context.Context, p domain.Property) (int64, error) {
	status := p.Status
	if status == "" {
		status = domain.StatusActive
	}
	res, err := r.db.ExecContext(ctx, upsertPropertySQL,
		p.ExternalID,
		p.Title,
		p.Slug,
		valStr(p.Description),
		valStr(p.Country),
		valStr(p.City),
		valStr(p.Address),
		valF64(p.Lat),
		valF64(p.Lng),
		p.Bedrooms,
		p.Bathrooms,
		p.MaxGuests,
		p.BasePrice,
		p.Currency,
		valStr(p.ThumbnailURL),
		jsonList(p.Gallery),
		jsonList(p.Amenities),
		status,
		valJSON(p.RawJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("upsert property %d: %w", p.ExternalID, err)
	}
	return res.LastInsertId()
}

// DeactivateMissing marks every active property whose external id is not
// in seen as inactive and returns their local ids.
func (r *Repo) DeactivateMissing(ctx context.Context, seen []int64) ([]int64, error) {
	if len(seen) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM properties WHERE status = 'active' AND external_id NOT IN ("+placeholders(len(seen))+") FOR UPDATE",
		int64Args(seen)...)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE properties SET status = 'inactive' WHERE id IN ("+placeholders(len(ids))+")",
		int64Args(ids)...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (domain.Property, error) {
	var p domain.Property
	var desc, country, city, addr, thumb sql.NullString
	var lat, lng sql.NullFloat64
	var gallery, amenities []byte
	if err := row.Scan(
		&p.ID, &p.ExternalID, &p.Title, &p.Slug, &desc, &country, &city,
		&addr, &lat, &lng, &p.Bedrooms, &p.Bathrooms, &p.MaxGuests,
		&p.BasePrice, &p.Currency, &thumb, &gallery, &amenities,
		&p.Status, &p.UpdatedAt,
	); err != nil {
		return domain.Property{}, err
	}
	p.Description = nullStr(desc)
	p.Country = nullStr(country)
	p.City = nullStr(city)
	p.Address = nullStr(addr)
	p.ThumbnailURL = nullStr(thumb)
	if lat.Valid && lng.Valid {
		p.Lat, p.Lng = &lat.Float64, &lng.Float64
	}
	_ = json.Unmarshal(gallery, &p.Gallery)
	_ = json.Unmarshal(amenities, &p.Amenities)
	return p, nil
}

func nullStr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func (r *Repo) GetProperty(ctx context.Context, id int64) (domain.Property, error) {
	p, err := scanProperty(r.db.QueryRowContext(ctx, getPropertySQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Property{}, domain.ErrNotFound
	}
	return p, err
}

func (r *Repo) GetPropertyBySlug(ctx context.Context, slug string) (domain.Property, error) {
	p, err := scanProperty(r.db.QueryRowContext(ctx, getPropertyBySlugSQL, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Property{}, domain.ErrNotFound
	}
	return p, err
}

func (r *Repo) ListActiveProperties(ctx context.Context) ([]domain.Property, error) {
	rows, err := r.db.QueryContext(ctx, listActivePropertiesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// searchWhere renders the WHERE clause shared by the page and count queries.
func searchWhere(f domain.PropertyFilter) (string, []any) {
	conds := []string{"p.status = 'active'"}
	var args []any
	if q := strings.TrimSpace(f.Q); q != "" {
		like := "%" + q + "%"
		conds = append(conds, "(p.title LIKE ? OR p.city LIKE ? OR p.address LIKE ? OR p.description LIKE ?)")
		args = append(args, like, like, like, like)
	}
	if f.Country != "" {
		conds = append(conds, "p.country = ?")
		args = append(args, f.Country)
	}
	if f.City != "" {
		conds = append(conds, "p.city = ?")
		args = append(args, f.City)
	}
	if f.Guests > 0 {
		conds = append(conds, "p.max_guests >= ?")
		args = append(args, f.Guests)
	}
	if f.Bedrooms > 0 {
		conds = append(conds, "p.bedrooms >= ?")
		args = append(args, f.Bedrooms)
	}
	if f.MinPrice > 0 {
		conds = append(conds, "p.base_price >= ?")
		args = append(args, f.MinPrice)
	}
	if f.MaxPrice > 0 {
		conds = append(conds, "p.base_price <= ?")
		args = append(args, f.MaxPrice)
	}
	if f.Amenity != "" {
		conds = append(conds, "JSON_CONTAINS(p.amenities, JSON_QUOTE(?))")
		args = append(args, f.Amenity)
	}
	if f.Checkin != nil && f.Checkout != nil {
		// every night must have an open, unbooked row
		nights := len(domain.Nights(*f.Checkin, *f.Checkout))
		conds = append(conds, `(SELECT COUNT(*) FROM availability a
  WHERE a.property_id = p.id AND a.date >= ? AND a.date < ?
    AND a.is_available = 1 AND a.is_booked = 0) = ?`)
		args = append(args, day(*f.Checkin), day(*f.Checkout), nights)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *Repo) SearchProperties(ctx context.Context, f domain.PropertyFilter) (domain.PropertyPage, error) {
	where, args := searchWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties p"+where, args...).Scan(&total); err != nil {
		return domain.PropertyPage{}, err
	}

	pageArgs := append(append([]any{}, args...), f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx,
		"SELECT"+propertyColumns+" FROM properties p"+where+" ORDER BY p.title, p.id LIMIT ? OFFSET ?",
		pageArgs...)
	if err != nil {
		return domain.PropertyPage{}, err
	}
	defer rows.Close()

	out := domain.PropertyPage{Items: []domain.Property{}, Total: total, Limit: f.Limit, Offset: f.Offset}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return domain.PropertyPage{}, err
		}
		out.Items = append(out.Items, p)
	}
	return out, rows.Err()
}

func (r *Repo) ListAmenities(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, listAmenitiesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := map[string]struct{}{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var names []string
		if err := json.Unmarshal(raw, &names); err != nil {
			continue
		}
		for _, n := range names {
			set[n] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}
