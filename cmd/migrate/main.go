// Command migrate creates the database schema and seeds the baseline
// taxonomy used by the marketing site.
package main

import (
	"flag"
	"log"

	"github.com/kalmarr/matrixcbs/internal/db"
	"github.com/kalmarr/matrixcbs/internal/util"
	_ "github.com/mattn/go-sqlite3"
)

type seedEntry struct {
	name  string
	color string
}

var seedCategories = []seedEntry{
	{"Képzések", "#0044cc"},
	{"Workshopok", "#008844"},
	{"Hírek", "#cc4400"},
	{"Esettanulmányok", "#884488"},
}

var seedTags = []string{
	"excel", "projektmenedzsment", "soft-skill", "vezetőképzés", "online",
}

func main() {
	dbPath := flag.String("db", "", "Path to the SQLite database file")
	flag.Parse()

	database := db.NewSQLite(*dbPath)
	if err := database.InitDB(); err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	defer database.Close()

	for _, c := range seedCategories {
		_, err := database.Exec(
			`INSERT OR IGNORE INTO categories (name, slug, color) VALUES (?, ?, ?)`,
			c.name, util.Slugify(c.name), c.color,
		)
		if err != nil {
			log.Fatalf("Error seeding category %q: %v", c.name, err)
		}
	}

	for _, t := range seedTags {
		_, err := database.Exec(
			`INSERT OR IGNORE INTO tags (name, slug) VALUES (?, ?)`,
			t, util.Slugify(t),
		)
		if err != nil {
			log.Fatalf("Error seeding tag %q: %v", t, err)
		}
	}

	log.Println("Schema created and taxonomy seeded.")
}
