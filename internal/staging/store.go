package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ziadkadry99/rvt-studio/internal/db"
	"github.com/ziadkadry99/rvt-studio/internal/matcher"
)

// Store persists staging batches and their items.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// ActiveBatch returns the owner's newest batch, creating one if none exists.
func (s *Store) ActiveBatch(ctx context.Context, owner string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, step, categories, created_at, updated_at
		FROM staging_batches WHERE owner = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, owner)
	b, err := scanBatch(row)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting active batch: %w", err)
	}

	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO staging_batches (id, owner) VALUES (?, ?)", id, owner); err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}
	return s.GetBatch(ctx, id)
}

// GetBatch returns a batch by id.
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, step, categories, created_at, updated_at
		FROM staging_batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting batch: %w", err)
	}
	return b, nil
}

// SetStep moves the batch to step. Moving past review requires at least
// one selected item; moving past upload requires at least one item.
func (s *Store) SetStep(ctx context.Context, batchID string, step Step) error {
	if step < StepUpload || step > StepCategories {
		return ErrInvalidStep
	}
	sum, err := s.Summary(ctx, batchID)
	if err != nil {
		return err
	}
	if step > StepUpload && sum.Total == 0 {
		return ErrNoItems
	}
	if step > StepReview && sum.Selected == 0 {
		return ErrNothingSelected
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE staging_batches SET step = ?, updated_at = datetime('now') WHERE id = ?", int(step), batchID)
	if err != nil {
		return fmt.Errorf("updating step: %w", err)
	}
	return nil
}

// SetBatchCategories stores the global categories chosen in the last step.
func (s *Store) SetBatchCategories(ctx context.Context, batchID string, categories []string) error {
	cats, err := json.Marshal(AddCategories(nil, categories...))
	if err != nil {
		return fmt.Errorf("marshalling categories: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE staging_batches SET categories = ?, updated_at = datetime('now') WHERE id = ?", string(cats), batchID)
	if err != nil {
		return fmt.Errorf("updating batch categories: %w", err)
	}
	return nil
}

// AddItems appends matched items to the batch, selected by default, and
// advances the batch to the review step. It returns the stored items.
func (s *Store) AddItems(ctx context.Context, batchID string, items []matcher.Item) ([]Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), -1) + 1 FROM staged_items WHERE batch_id = ?", batchID).Scan(&next); err != nil {
		return nil, fmt.Errorf("reading position: %w", err)
	}

	ids := make([]string, 0, len(items))
	for i, it := range items {
		id := uuid.New().String()
		cats, err := json.Marshal(AddCategories(nil, it.Categories...))
		if err != nil {
			return nil, fmt.Errorf("marshalling categories: %w", err)
		}
		thumb := ""
		if it.Thumbnail != nil {
			thumb = it.Thumbnail.Path
		}
		freemium := it.Freemium
		if freemium == "" {
			freemium = "free"
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO staged_items (
				id, batch_id, position, name, sku, description, freemium,
				parametric, nested_family, categories, rfa_path, thumbnail_path,
				matched, selected
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			id, batchID, next+i, it.Name, it.SKU, it.Desc, freemium,
			it.Parametric, it.NestedFamily, string(cats), it.RFA.Path, thumb,
			it.Matched,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting staged item %s: %w", it.RFA.Name, err)
		}
		ids = append(ids, id)
	}

	if len(items) > 0 {
		if _, err := tx.ExecContext(ctx,
			"UPDATE staging_batches SET step = MAX(step, ?), updated_at = datetime('now') WHERE id = ?",
			int(StepReview), batchID); err != nil {
			return nil, fmt.Errorf("advancing batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing staged items: %w", err)
	}

	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		it, err := s.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, nil
}

const itemColumns = `id, batch_id, position, name, sku, description, freemium,
	parametric, nested_family, categories, rfa_path, thumbnail_path, matched,
	selected, status, remote_id, error, created_at, updated_at`

// GetItem returns a staged item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM staged_items WHERE id = ?", id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting staged item: %w", err)
	}
	return it, nil
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	Status       Status
	SelectedOnly bool
}

// ListItems returns the batch's items in upload order.
func (s *Store) ListItems(ctx context.Context, batchID string, filter ItemFilter) ([]Item, error) {
	clauses := []string{"batch_id = ?"}
	args := []any{batchID}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.SelectedOnly {
		clauses = append(clauses, "selected = 1")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM staged_items WHERE "+strings.Join(clauses, " AND ")+" ORDER BY position",
		args...)
	if err != nil {
		return nil, fmt.Errorf("listing staged items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning staged item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// UpdateItem applies patch to an item of the batch and returns the result.
// Items of other batches are reported as ErrNotFound.
func (s *Store) UpdateItem(ctx context.Context, batchID, id string, patch ItemPatch) (*Item, error) {
	var (
		sets []string
		args []any
	)
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("name must not be empty")
		}
		sets, args = append(sets, "name = ?"), append(args, name)
	}
	if patch.SKU != nil {
		sets, args = append(sets, "sku = ?"), append(args, *patch.SKU)
	}
	if patch.Desc != nil {
		sets, args = append(sets, "description = ?"), append(args, *patch.Desc)
	}
	if patch.Freemium != nil {
		v := strings.ToLower(*patch.Freemium)
		if v != "free" && v != "premium" {
			return nil, fmt.Errorf("freemium must be free or premium, got %q", *patch.Freemium)
		}
		sets, args = append(sets, "freemium = ?"), append(args, v)
	}
	if patch.Parametric != nil {
		sets, args = append(sets, "parametric = ?"), append(args, *patch.Parametric)
	}
	if patch.NestedFamily != nil {
		sets, args = append(sets, "nested_family = ?"), append(args, *patch.NestedFamily)
	}
	if patch.Categories != nil {
		cats, err := json.Marshal(AddCategories(nil, (*patch.Categories)...))
		if err != nil {
			return nil, fmt.Errorf("marshalling categories: %w", err)
		}
		sets, args = append(sets, "categories = ?"), append(args, string(cats))
	}
	if patch.Selected != nil {
		sets, args = append(sets, "selected = ?"), append(args, *patch.Selected)
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = datetime('now')")
		args = append(args, id, batchID)
		res, err := s.db.ExecContext(ctx,
			"UPDATE staged_items SET "+strings.Join(sets, ", ")+" WHERE id = ? AND batch_id = ?", args...)
		if err != nil {
			return nil, fmt.Errorf("updating staged item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, ErrNotFound
		}
	}
	it, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.BatchID != batchID {
		return nil, ErrNotFound
	}
	return it, nil
}

// SetSelected selects or deselects the given items of a batch.
func (s *Store) SetSelected(ctx context.Context, batchID string, ids []string, selected bool) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := []any{selected, batchID}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE staged_items SET selected = ?, updated_at = datetime('now') WHERE batch_id = ? AND id IN ("+placeholders+")",
		args...)
	if err != nil {
		return fmt.Errorf("updating selection: %w", err)
	}
	return nil
}

// ToggleAll selects every pending item, or deselects all of them when they
// are already all selected. It returns the new selection state.
func (s *Store) ToggleAll(ctx context.Context, batchID string) (bool, error) {
	var total, selected int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(selected), 0) FROM staged_items
		WHERE batch_id = ? AND status != 'imported'`, batchID).Scan(&total, &selected)
	if err != nil {
		return false, fmt.Errorf("counting selection: %w", err)
	}
	next := !(total > 0 && selected == total)
	_, err = s.db.ExecContext(ctx, `
		UPDATE staged_items SET selected = ?, updated_at = datetime('now')
		WHERE batch_id = ? AND status != 'imported'`, next, batchID)
	if err != nil {
		return false, fmt.Errorf("updating selection: %w", err)
	}
	return next, nil
}

// ApplyCategories appends the global categories to every selected item
// and remembers them on the batch.
func (s *Store) ApplyCategories(ctx context.Context, batchID string, categories []string) (int, error) {
	items, err := s.ListItems(ctx, batchID, ItemFilter{SelectedOnly: true})
	if err != nil {
		return 0, err
	}
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if err := s.SetBatchCategories(ctx, batchID, AddCategories(b.Categories, categories...)); err != nil {
		return 0, err
	}

	for _, it := range items {
		cats := AddCategories(it.Categories, categories...)
		if _, err := s.UpdateItem(ctx, batchID, it.ID, ItemPatch{Categories: &cats}); err != nil {
			return 0, err
		}
	}
	return len(items), nil
}

// MarkImported records a successful import.
func (s *Store) MarkImported(ctx context.Context, id, remoteID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE staged_items SET status = 'imported', remote_id = ?, error = '',
			selected = 0, updated_at = datetime('now')
		WHERE id = ?`, remoteID, id)
	if err != nil {
		return fmt.Errorf("marking item imported: %w", err)
	}
	return nil
}

// MarkFailed records a failed import. The item stays selected so it can be
// retried.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE staged_items SET status = 'failed', error = ?, updated_at = datetime('now')
		WHERE id = ?`, message, id)
	if err != nil {
		return fmt.Errorf("marking item failed: %w", err)
	}
	return nil
}

// Summary counts the batch's items.
func (s *Store) Summary(ctx context.Context, batchID string) (*Summary, error) {
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Step: b.Step}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(matched), 0),
			COALESCE(SUM(selected), 0),
			COALESCE(SUM(status = 'imported'), 0),
			COALESCE(SUM(status = 'failed'), 0)
		FROM staged_items WHERE batch_id = ?`, batchID).
		Scan(&sum.Total, &sum.Matched, &sum.Selected, &sum.Imported, &sum.Failed)
	if err != nil {
		return nil, fmt.Errorf("summarising batch: %w", err)
	}
	sum.Unmatched = sum.Total - sum.Matched
	return sum, nil
}

// CountPending returns how many items across all batches are not imported.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM staged_items WHERE status != 'imported'").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting staged items: %w", err)
	}
	return n, nil
}

// DeleteItem removes one item of the batch.
func (s *Store) DeleteItem(ctx context.Context, batchID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM staged_items WHERE id = ? AND batch_id = ?", id, batchID)
	if err != nil {
		return fmt.Errorf("deleting staged item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear deletes the batch and all of its items.
func (s *Store) Clear(ctx context.Context, batchID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM staging_batches WHERE id = ?", batchID); err != nil {
		return fmt.Errorf("clearing batch: %w", err)
	}
	return nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(sc scanner) (*Batch, error) {
	var (
		b                Batch
		step             int
		cats             string
		created, updated string
	)
	if err := sc.Scan(&b.ID, &b.Owner, &step, &cats, &created, &updated); err != nil {
		return nil, err
	}
	b.Step = Step(step)
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	if err := json.Unmarshal([]byte(cats), &b.Categories); err != nil || b.Categories == nil {
		b.Categories = []string{}
	}
	return &b, nil
}

func scanItem(sc scanner) (*Item, error) {
	var (
		it               Item
		cats, status     string
		created, updated string
	)
	err := sc.Scan(
		&it.ID, &it.BatchID, &it.Position, &it.Name, &it.SKU, &it.Desc, &it.Freemium,
		&it.Parametric, &it.NestedFamily, &cats, &it.RFAPath, &it.ThumbnailPath, &it.Matched,
		&it.Selected, &status, &it.RemoteID, &it.Error, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	it.Status = Status(status)
	it.CreatedAt = parseTime(created)
	it.UpdatedAt = parseTime(updated)
	if err := json.Unmarshal([]byte(cats), &it.Categories); err != nil || it.Categories == nil {
		it.Categories = []string{}
	}
	return &it, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.DateTime, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
