package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/covu-ng/covu-core/internal/config"
	"github.com/covu-ng/covu-core/internal/db"
)

// seedutil inserts a catalog product and makes sure the seller has a
// wallet. Meant for local development and staging.
func main() {
	ref := flag.String("ref", "", "product reference")
	name := flag.String("name", "", "product name")
	seller := flag.String("seller", "", "seller user ID")
	price := flag.Int64("price", 0, "price in naira")
	flag.Parse()

	if *ref == "" || *name == "" || *seller == "" || *price <= 0 {
		log.Fatalf("usage: seedutil -ref PROD_1 -name \"Hand-carved bowl\" -seller <user-id> -price 5000")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO products (ref, name, seller_id, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ref) DO UPDATE SET name = $2, seller_id = $3, price = $4`,
		*ref, *name, *seller, *price)
	if err != nil {
		log.Fatalf("insert product: %v", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO wallets (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		uuid.New().String(), *seller)
	if err != nil {
		log.Fatalf("ensure wallet: %v", err)
	}

	fmt.Printf("Seeded product %s for seller %s at %d.\n", *ref, *seller, *price)
}
