// Command import migrates a directory of markdown files with TOML front
// matter into the posts table, resolving (and creating) categories and tags
// along the way.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/kalmarr/matrixcbs/internal/db"
	"github.com/kalmarr/matrixcbs/internal/model"
	"github.com/kalmarr/matrixcbs/internal/repository"
	"github.com/kalmarr/matrixcbs/internal/util"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	path := flag.String("path", "", "Path to the directory containing .md files")
	ownerID := flag.String("owner-id", "", "Owner user ID for the posts")
	dbPath := flag.String("db", "", "Path to the SQLite database file")
	publish := flag.Bool("publish", false, "Publish imported posts using the front matter date")
	flag.Parse()

	if *path == "" || *ownerID == "" {
		log.Fatal("Both --path and --owner-id flags are required")
	}

	database := db.NewSQLite(*dbPath)
	if err := database.InitDB(); err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	defer database.Close()

	repo := repository.NewDBPostRepository(database, 0)

	files, err := os.ReadDir(*path)
	if err != nil {
		log.Fatalf("Error reading directory %s: %v", *path, err)
	}

	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".md") {
			err := processFile(*path, file, database, repo, *ownerID, *publish)
			if err != nil {
				log.Printf("Error processing file %s: %v", file.Name(), err)
				continue
			}
			log.Printf("Successfully saved post from file: %s", file.Name())
		}
	}
}

// processFile imports a single .md file as a post.
func processFile(dirPath string, file os.DirEntry, database db.DB, repo repository.PostRepository, ownerID string, publish bool) error {
	filePath := filepath.Join(dirPath, file.Name())

	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	meta, err := util.GetFrontMatter(content)
	if err != nil {
		log.Printf("No usable front matter in %s: %v", file.Name(), err)
		meta = nil
	}

	title := strings.TrimSuffix(file.Name(), ".md")
	if meta != nil && meta.Title != "" {
		title = meta.Title
	}

	fileInfo, err := file.Info()
	if err != nil {
		return err
	}
	modTime := fileInfo.ModTime().UTC()

	createdDate := modTime
	if meta != nil && !meta.Date.IsZero() {
		createdDate = meta.Date.UTC()
	}

	post := repo.NewPost()
	post.Title = title
	post.Markdown = content
	post.CreatedDate = createdDate
	post.ModifiedDate = modTime
	post.Owner = model.UserID(ownerID)

	if meta != nil {
		post.Slug = meta.Slug
		post.Excerpt = meta.Excerpt
		post.FeaturedImage = meta.FeaturedImage

		// Body starts after the front matter block.
		post.Markdown = content[meta.Consumed:]

		for _, name := range meta.Categories {
			id, err := resolveTaxonomy(database, "categories", name)
			if err != nil {
				return err
			}
			post.Categories = append(post.Categories, model.Category{ID: id})
		}
		for _, name := range meta.Tags {
			id, err := resolveTaxonomy(database, "tags", name)
			if err != nil {
				return err
			}
			post.Tags = append(post.Tags, model.Tag{ID: id})
		}
	}

	if publish {
		post.Status = model.StatusPublished
		at := createdDate
		post.PublishedAt = &at
	}

	return repo.SavePost(post)
}

// resolveTaxonomy returns the id of the named category or tag, inserting it
// when it does not exist yet.
func resolveTaxonomy(database db.DB, table, name string) (int64, error) {
	slug := util.Slugify(name)

	var id int64
	row := database.Get().QueryRow(`SELECT id FROM `+table+` WHERE slug = ?`, slug)
	if err := row.Scan(&id); err == nil {
		return id, nil
	}

	res, err := database.Exec(`INSERT INTO `+table+` (name, slug) VALUES (?, ?)`, name, slug)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
