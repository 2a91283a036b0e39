package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"

	httpapi "github.com/example/plasma-match/internal/http"
)

func main() {
	addr := getenv("HTTP_ADDR", ":8080")
	srv := httpapi.NewServerFromEnv()
	// optional migrations: apply migrations/*.sql in order if requested
	if dsn := os.Getenv("PG_DSN"); dsn != "" && os.Getenv("MIGRATE") == "true" {
		if db, err := sql.Open("postgres", dsn); err == nil {
			files, _ := filepath.Glob(filepath.Join("migrations", "*.sql"))
			for _, f := range files {
				b, err := os.ReadFile(f)
				if err != nil {
					continue
				}
				if _, err := db.Exec(string(b)); err != nil {
					log.Printf("migration exec error (%s): %v", f, err)
				} else {
					log.Printf("migration applied: %s", filepath.Base(f))
				}
			}
			_ = db.Close()
		} else {
			log.Printf("migration db open error: %v", err)
		}
	}
	log.Printf("plasma-match listening on %s", addr)
	if err := http.ListenAndServe(addr, srv); err != nil {
		log.Fatal(err)
	}
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
