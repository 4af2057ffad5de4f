package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"course-entitlements/internal/config"
	"course-entitlements/internal/domain/ports/repository"
	pg "course-entitlements/internal/infra/db/postgres"
	"course-entitlements/internal/infra/logging"
	red "course-entitlements/internal/infra/redis"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"
)

type seedProduct struct {
	ID    string
	Title string
	Price decimal.Decimal
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	catalog := pg.NewCatalogRepo(pool)

	// If the catalog already has courses, do nothing
	courses, err := catalog.ListCourses(ctx, repository.NoTX)
	if err != nil {
		log.Fatalf("list courses: %v", err)
	}
	if len(courses) > 0 {
		fmt.Printf("%d courses already present. No changes.\n", len(courses))
		for _, c := range courses {
			fmt.Printf("  - %s (id=%s, price=%s)\n", c.Title, c.ID, c.Price)
		}
		return
	}

	seedCourses := []seedProduct{
		{"course-go-basics", "Go Basics", decimal.RequireFromString("49.90")},
		{"course-go-concurrency", "Go Concurrency in Practice", decimal.RequireFromString("79.90")},
		{"course-postgres", "PostgreSQL for Developers", decimal.RequireFromString("59.90")},
	}
	bundle := seedProduct{"bundle-backend", "Backend Developer Bundle", decimal.RequireFromString("149.90")}

	tm := pg.NewTxManager(pool)
	err = tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ptx := tx.(pgx.Tx)
		for _, c := range seedCourses {
			if _, err := ptx.Exec(ctx,
				`INSERT INTO courses (id, title, price) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
				c.ID, c.Title, c.Price); err != nil {
				return fmt.Errorf("course %q: %w", c.Title, err)
			}
		}
		if _, err := ptx.Exec(ctx,
			`INSERT INTO bundles (id, title, price) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			bundle.ID, bundle.Title, bundle.Price); err != nil {
			return fmt.Errorf("bundle %q: %w", bundle.Title, err)
		}
		for i, c := range seedCourses {
			if _, err := ptx.Exec(ctx,
				`INSERT INTO bundle_courses (bundle_id, course_id, position) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				bundle.ID, c.ID, i); err != nil {
				return fmt.Errorf("bundle member %q: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed catalog: %v", err)
	}

	// The app caches the catalog listings; drop them so new products match at once.
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Printf("redis: %v (catalog cache expires after %s)", err, cfg.Redis.TTL)
	} else {
		defer redisClient.Close()
		cached := pg.NewCatalogRepoCacheDecorator(catalog, redisClient, cfg.Redis.TTL, logging.New(cfg.Log, cfg.Runtime.Dev))
		if err := cached.Invalidate(ctx); err != nil {
			log.Printf("invalidate catalog cache: %v", err)
		}
	}

	for _, c := range seedCourses {
		fmt.Printf("seeded course: %s (id=%s, price=%s)\n", c.Title, c.ID, c.Price)
	}
	fmt.Printf("seeded bundle: %s (id=%s, price=%s, courses=%d)\n", bundle.Title, bundle.ID, bundle.Price, len(seedCourses))
	fmt.Println("Seeding complete.")
}
