package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kalmarr/matrixcbs/internal/model"
)

// PostTaxonomy returns the category and tag id sets of a post, any status.
func (r *DBPostRepository) PostTaxonomy(ctx context.Context, id model.PostID) (*model.Taxonomy, error) {
	var exists int64
	row := r.db.Get().QueryRowContext(ctx, `SELECT id FROM posts WHERE id = ?`, id)
	if err := row.Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error loading post: %w", err)
	}

	tax := &model.Taxonomy{}

	catRows, err := r.db.Get().QueryContext(ctx, `SELECT category_id FROM post_categories WHERE post_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("error querying post categories: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var cid int64
		if err := catRows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("error scanning category id: %w", err)
		}
		tax.CategoryIDs = append(tax.CategoryIDs, cid)
	}

	tagRows, err := r.db.Get().QueryContext(ctx, `SELECT tag_id FROM post_tags WHERE post_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("error querying post tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tid int64
		if err := tagRows.Scan(&tid); err != nil {
			return nil, fmt.Errorf("error scanning tag id: %w", err)
		}
		tax.TagIDs = append(tax.TagIDs, tid)
	}

	return tax, nil
}

// PublishedCandidates returns every publicly visible post other than
// excludeID that shares at least one category or tag with the given sets,
// including each candidate's own taxonomy and display fields.
func (r *DBPostRepository) PublishedCandidates(ctx context.Context, categoryIDs, tagIDs []int64, excludeID model.PostID, now time.Time) ([]model.RelatedCandidate, error) {
	if len(categoryIDs) == 0 && len(tagIDs) == 0 {
		return nil, nil
	}

	var clauses []string
	var args []interface{}

	if len(categoryIDs) > 0 {
		clauses = append(clauses,
			`p.id IN (SELECT post_id FROM post_categories WHERE category_id IN (`+placeholders(len(categoryIDs))+`))`)
		for _, id := range categoryIDs {
			args = append(args, id)
		}
	}
	if len(tagIDs) > 0 {
		clauses = append(clauses,
			`p.id IN (SELECT post_id FROM post_tags WHERE tag_id IN (`+placeholders(len(tagIDs))+`))`)
		for _, id := range tagIDs {
			args = append(args, id)
		}
	}

	query := `
		SELECT p.id, p.title, p.slug, p.excerpt, p.featured_image, p.published_at
		FROM posts p
		WHERE p.status = ? AND p.published_at IS NOT NULL AND p.published_at <= ?
		  AND p.id != ?
		  AND (` + strings.Join(clauses, " OR ") + `)`
	args = append([]interface{}{model.StatusPublished, now, excludeID}, args...)

	rows, err := r.db.Get().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying candidates: %w", err)
	}
	defer rows.Close()

	byID := make(map[model.PostID]*model.RelatedCandidate)
	var order []model.PostID
	for rows.Next() {
		var c model.RelatedCandidate
		var excerpt, featured sql.NullString
		if err := rows.Scan(&c.ID, &c.Title, &c.Slug, &excerpt, &featured, &c.PublishedAt); err != nil {
			return nil, fmt.Errorf("error scanning candidate: %w", err)
		}
		c.Excerpt = excerpt.String
		c.FeaturedImage = featured.String
		cand := c
		byID[c.ID] = &cand
		order = append(order, c.ID)
	}
	if len(byID) == 0 {
		return nil, nil
	}

	if err := r.loadCandidateTaxonomies(ctx, byID); err != nil {
		return nil, err
	}

	out := make([]model.RelatedCandidate, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (r *DBPostRepository) loadCandidateTaxonomies(ctx context.Context, byID map[model.PostID]*model.RelatedCandidate) error {
	ids := make([]interface{}, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	in := placeholders(len(ids))

	catRows, err := r.db.Get().QueryContext(ctx, `
		SELECT pc.post_id, c.id, c.name, c.slug, c.color
		FROM post_categories pc JOIN categories c ON c.id = pc.category_id
		WHERE pc.post_id IN (`+in+`)`, ids...)
	if err != nil {
		return fmt.Errorf("error querying candidate categories: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var postID model.PostID
		var cat model.Category
		var color sql.NullString
		if err := catRows.Scan(&postID, &cat.ID, &cat.Name, &cat.Slug, &color); err != nil {
			return fmt.Errorf("error scanning candidate category: %w", err)
		}
		cat.Color = color.String
		if c, ok := byID[postID]; ok {
			c.CategoryIDs = append(c.CategoryIDs, cat.ID)
			c.Categories = append(c.Categories, cat)
		}
	}

	tagRows, err := r.db.Get().QueryContext(ctx, `
		SELECT post_id, tag_id FROM post_tags WHERE post_id IN (`+in+`)`, ids...)
	if err != nil {
		return fmt.Errorf("error querying candidate tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var postID model.PostID
		var tagID int64
		if err := tagRows.Scan(&postID, &tagID); err != nil {
			return fmt.Errorf("error scanning candidate tag: %w", err)
		}
		if c, ok := byID[postID]; ok {
			c.TagIDs = append(c.TagIDs, tagID)
		}
	}

	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
