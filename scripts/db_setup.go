// db_setup is an operator utility for inspecting and resetting the
// persistence store outside of a live run: print the dev_histories row
// count and, with --wipe, drop every table and recreate the schema empty
// via Store.Reset.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/web3guy0/curvesniper/internal/persist"
)

func main() {
	_ = godotenv.Load()

	driver := os.Getenv("PERSIST_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	dsn := os.Getenv("PERSIST_DSN")
	if dsn == "" {
		dsn = "data/sniper.db"
	}

	fmt.Printf("connecting: driver=%s dsn=%s\n", driver, dsn)
	store, err := persist.Open(driver, dsn)
	if err != nil {
		fmt.Printf("connection error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("connected")

	devs, err := store.LoadDevHistories()
	if err != nil {
		fmt.Printf("query error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("dev_histories: %d rows\n", len(devs))

	if len(os.Args) > 1 && os.Args[1] == "--wipe" {
		fmt.Println("wiping tables...")
		if err := store.Reset(); err != nil {
			fmt.Printf("wipe error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("schema reset, tables recreated empty")
	} else {
		fmt.Println("pass --wipe to drop and recreate all tables")
	}
}
