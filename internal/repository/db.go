package repository

import (
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/kalmarr/matrixcbs/internal/cache"
	"github.com/kalmarr/matrixcbs/internal/db"
	"github.com/kalmarr/matrixcbs/internal/model"
	"github.com/kalmarr/matrixcbs/internal/util"
	"github.com/kalmarr/matrixcbs/internal/util/compression"
)

type DBPostRepository struct { // implements PostRepository and TaxonomyStore
	postsCache       *cache.Cache[model.PostID, *model.Post]
	postsCacheSorted []model.Post

	reloadNotifier   func(model.PostID)
	lastModifiedTime *time.Time // Track the latest modification time

	refreshInterval time.Duration

	db         db.DB
	compressor compression.Compressor
}

func NewDBPostRepository(database db.DB, refreshInterval time.Duration) *DBPostRepository {
	if refreshInterval <= 0 {
		refreshInterval = 10 * time.Second
	}
	return &DBPostRepository{
		postsCache: cache.NewCache[model.PostID, *model.Post](),

		refreshInterval: refreshInterval,

		db: database,

		compressor: compression.ZstdCompressor{},
	}
}

func (r *DBPostRepository) Init() {
	if err := r.reload(); err != nil {
		repoLogger.Fatal().Err(err).Msg("Error initializing posts")
	}

	go r.Refresh()
}

func (r *DBPostRepository) GetLatestModifiedTime() (*time.Time, error) {
	var latestTimeStr sql.NullString
	row := r.db.Get().QueryRow(`SELECT MAX(modified_at) FROM posts`)
	err := row.Scan(&latestTimeStr)
	if err != nil {
		return nil, fmt.Errorf("error scanning latest modified time: %w", err)
	}

	if !latestTimeStr.Valid {
		return nil, nil // It was NULL, so no posts or no valid timestamps.
	}

	// The go-sqlite3 driver returns a string for MAX(), so we must parse it.
	// It can be in a format with a space separator.
	timeFormats := []string{
		"2006-01-02 15:04:05.999999999-07:00", // Space separator with timezone
		time.RFC3339Nano,                      // 'T' separator with timezone
		time.RFC3339,                          // 'T' separator, no nanos
	}

	var latestTime time.Time
	var parseErr error
	for _, format := range timeFormats {
		latestTime, parseErr = time.Parse(format, latestTimeStr.String)
		if parseErr == nil {
			return &latestTime, nil
		}
	}

	return nil, fmt.Errorf("error parsing latest modified time '%s' with any known format: %w", latestTimeStr.String, parseErr)
}

// GetPosts loads every post with its taxonomy. The map is keyed by post id;
// the slice holds only publicly visible posts, newest first.
func (r *DBPostRepository) GetPosts() ([]model.Post, map[model.PostID]*model.Post, error) {
	rows, err := r.db.Query(`SELECT id, title, slug, excerpt, body, body_hash, featured_image, status, published_at, created_at, modified_at, user_id FROM posts`)
	if err != nil {
		return nil, nil, fmt.Errorf("error querying posts: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	postMap := make(map[model.PostID]*model.Post)
	var latestModTime *time.Time

	for rows.Next() {
		var post model.Post
		var compressed []byte
		var excerpt, bodyHash, featured, owner sql.NullString
		var publishedAt sql.NullTime

		err := rows.Scan(&post.ID, &post.Title, &post.Slug, &excerpt, &compressed, &bodyHash, &featured, &post.Status, &publishedAt, &post.CreatedDate, &post.ModifiedDate, &owner)
		if err != nil {
			return nil, nil, fmt.Errorf("error scanning post: %w", err)
		}

		post.Excerpt = excerpt.String
		post.BodyHash = bodyHash.String
		post.FeaturedImage = featured.String
		post.Owner = model.UserID(owner.String)
		if publishedAt.Valid {
			t := publishedAt.Time
			post.PublishedAt = &t
		}

		// Track the latest modification time
		if latestModTime == nil || post.ModifiedDate.After(*latestModTime) {
			latestModTime = &post.ModifiedDate
		}

		// Decompress the body
		if len(compressed) > 0 {
			body, err := r.compressor.Decompress(compressed)
			if err != nil {
				return nil, nil, fmt.Errorf("error decompressing content: %w", err)
			}
			post.Markdown = body
		}

		p := post
		postMap[post.ID] = &p
	}

	if err := r.loadTaxonomies(postMap); err != nil {
		return nil, nil, err
	}

	// Update our tracked modification time
	r.lastModifiedTime = latestModTime

	visible := make([]model.Post, 0, len(postMap))
	for _, post := range postMap {
		if post.IsVisible(now) {
			visible = append(visible, *post)
		}
	}

	// Sort the visible posts by publication date, newest first
	slices.SortStableFunc(visible, func(a, b model.Post) int {
		return -a.PublishedAt.Compare(*b.PublishedAt)
	})

	return visible, postMap, nil
}

// loadTaxonomies attaches categories and tags to every post in the map.
func (r *DBPostRepository) loadTaxonomies(postMap map[model.PostID]*model.Post) error {
	catRows, err := r.db.Query(`
		SELECT pc.post_id, c.id, c.name, c.slug, c.color
		FROM post_categories pc JOIN categories c ON c.id = pc.category_id`)
	if err != nil {
		return fmt.Errorf("error querying post categories: %w", err)
	}
	defer catRows.Close()

	for catRows.Next() {
		var postID model.PostID
		var cat model.Category
		var color sql.NullString
		if err := catRows.Scan(&postID, &cat.ID, &cat.Name, &cat.Slug, &color); err != nil {
			return fmt.Errorf("error scanning post category: %w", err)
		}
		cat.Color = color.String
		if post, ok := postMap[postID]; ok {
			post.Categories = append(post.Categories, cat)
		}
	}

	tagRows, err := r.db.Query(`
		SELECT pt.post_id, t.id, t.name, t.slug
		FROM post_tags pt JOIN tags t ON t.id = pt.tag_id`)
	if err != nil {
		return fmt.Errorf("error querying post tags: %w", err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var postID model.PostID
		var tag model.Tag
		if err := tagRows.Scan(&postID, &tag.ID, &tag.Name, &tag.Slug); err != nil {
			return fmt.Errorf("error scanning post tag: %w", err)
		}
		if post, ok := postMap[postID]; ok {
			post.Tags = append(post.Tags, tag)
		}
	}

	return nil
}

func (r *DBPostRepository) GetPostList() []model.Post {
	return r.postsCacheSorted
}

func (r *DBPostRepository) ReadPost(id model.PostID) (*model.Post, error) {
	post, ok := r.postsCache.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return post, nil
}

func (r *DBPostRepository) reload() error {
	visible, postMap, err := r.GetPosts()
	if err != nil {
		return err
	}

	// Notify on content changes relative to the cache.
	for id, newPost := range postMap {
		if cached, ok := r.postsCache.Get(id); ok && cached.BodyHash != newPost.BodyHash {
			repoLogger.Info().
				Int64("post_id", int64(id)).
				Str("title", newPost.Title).
				Msg("Post content changed, reloading")
			if r.reloadNotifier != nil {
				go r.reloadNotifier(id)
			}
		}
	}

	r.postsCacheSorted = visible
	r.postsCache.SetTo(postMap)
	return nil
}

// Refresh loops forever: it promotes due scheduled posts, then reloads the
// cache when anything was modified since the last pass.
func (r *DBPostRepository) Refresh() {
	for {
		promoted, err := r.publishDue(time.Now().UTC())
		if err != nil {
			repoLogger.Error().Err(err).Msg("Error promoting scheduled posts")
		}

		latestTime, err := r.GetLatestModifiedTime()
		if err != nil {
			repoLogger.Error().Err(err).Msg("Error checking latest modification time")
			time.Sleep(r.refreshInterval)
			continue
		}

		// If we have a cached time and nothing has changed, skip
		if promoted == 0 && r.lastModifiedTime != nil && latestTime != nil && !latestTime.After(*r.lastModifiedTime) {
			repoLogger.Debug().Msg("No posts modified, skipping reload")
			time.Sleep(r.refreshInterval)
			continue
		}

		repoLogger.Debug().Msg("Posts may have changed, performing full reload")

		if err := r.reload(); err != nil {
			repoLogger.Error().Err(err).Msg("Error reloading posts")
		}

		time.Sleep(r.refreshInterval)
	}
}

// publishDue flips SCHEDULED posts whose publication time has passed to
// PUBLISHED. This is the only scheduled job in the system.
func (r *DBPostRepository) publishDue(now time.Time) (int64, error) {
	res, err := r.db.Exec(
		`UPDATE posts SET status = ?, modified_at = ? WHERE status = ? AND published_at IS NOT NULL AND published_at <= ?`,
		model.StatusPublished, now, model.StatusScheduled, now,
	)
	if err != nil {
		return 0, fmt.Errorf("error publishing due posts: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		repoLogger.Info().Int64("count", n).Msg("Promoted scheduled posts")
	}
	return n, nil
}

func (r *DBPostRepository) SetReloadNotifier(notifier func(model.PostID)) {
	r.reloadNotifier = notifier
}

func (r *DBPostRepository) NewPost() *model.Post {
	now := time.Now().UTC()

	return &model.Post{
		Status: model.StatusDraft,

		CreatedDate:  now,
		ModifiedDate: now,
	}
}

// SavePost inserts a new post and fills in its assigned id.
func (r *DBPostRepository) SavePost(post *model.Post) error {
	compressed, err := r.compressor.Compress(post.Markdown)
	if err != nil {
		return fmt.Errorf("error compressing content: %w", err)
	}

	post.BodyHash = util.ContentHash(compressed)
	if post.Slug == "" {
		post.Slug = util.Slugify(post.Title)
	}

	res, err := r.db.Exec(
		`INSERT INTO posts (title, slug, excerpt, body, body_hash, featured_image, status, published_at, created_at, modified_at, user_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.Title, post.Slug, post.Excerpt, compressed, post.BodyHash, post.FeaturedImage,
		post.Status, post.PublishedAt, post.CreatedDate, post.ModifiedDate, post.Owner,
	)
	if err != nil {
		return fmt.Errorf("error saving post: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading new post id: %w", err)
	}
	post.ID = model.PostID(id)

	if err := r.saveTaxonomy(post); err != nil {
		return err
	}

	repoLogger.Debug().Int64("post_id", id).Msg("Post saved")

	return nil
}

// SetPostContent updates an existing post in place.
func (r *DBPostRepository) SetPostContent(post *model.Post) error {
	compressed, err := r.compressor.Compress(post.Markdown)
	if err != nil {
		return fmt.Errorf("error compressing content: %w", err)
	}

	post.BodyHash = util.ContentHash(compressed)
	post.ModifiedDate = time.Now().UTC()

	res, err := r.db.Exec(
		`UPDATE posts SET title = ?, slug = ?, excerpt = ?, body = ?, body_hash = ?, featured_image = ?, status = ?, published_at = ?, modified_at = ? WHERE id = ?`,
		post.Title, post.Slug, post.Excerpt, compressed, post.BodyHash, post.FeaturedImage,
		post.Status, post.PublishedAt, post.ModifiedDate, post.ID,
	)
	if err != nil {
		return fmt.Errorf("error saving post: %w", err)
	}

	if err := r.saveTaxonomy(post); err != nil {
		return err
	}

	repoLogger.Debug().Interface("result", res).Msg("Post content set")

	return nil
}

// PublishPost flips a post to PUBLISHED at the given time.
func (r *DBPostRepository) PublishPost(id model.PostID, at time.Time) error {
	res, err := r.db.Exec(
		`UPDATE posts SET status = ?, published_at = ?, modified_at = ? WHERE id = ?`,
		model.StatusPublished, at, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("error publishing post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func (r *DBPostRepository) saveTaxonomy(post *model.Post) error {
	if _, err := r.db.Exec(`DELETE FROM post_categories WHERE post_id = ?`, post.ID); err != nil {
		return fmt.Errorf("error clearing post categories: %w", err)
	}
	for _, cat := range post.Categories {
		if _, err := r.db.Exec(`INSERT OR IGNORE INTO post_categories (post_id, category_id) VALUES (?, ?)`, post.ID, cat.ID); err != nil {
			return fmt.Errorf("error saving post category: %w", err)
		}
	}

	if _, err := r.db.Exec(`DELETE FROM post_tags WHERE post_id = ?`, post.ID); err != nil {
		return fmt.Errorf("error clearing post tags: %w", err)
	}
	for _, tag := range post.Tags {
		if _, err := r.db.Exec(`INSERT OR IGNORE INTO post_tags (post_id, tag_id) VALUES (?, ?)`, post.ID, tag.ID); err != nil {
			return fmt.Errorf("error saving post tag: %w", err)
		}
	}

	return nil
}
