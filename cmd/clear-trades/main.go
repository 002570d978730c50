// clear-trades - delete all trades and signals archived today, for
// starting a clean paper-trading session.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/ashare/tradeengine/internal/config"
)

func main() {
	configPath := flag.String("config", "config/config.json", "Path to config file")
	confirmFlag := flag.Bool("confirm", false, "Confirm deletion (must be explicit)")
	flag.Parse()

	if !*confirmFlag {
		fmt.Println("SAFETY CHECK - must confirm deletion")
		fmt.Println("")
		fmt.Println("This will DELETE all trades and signals archived TODAY:")
		fmt.Println("")
		fmt.Printf("Date: %s\n", time.Now().Format("2006-01-02"))
		fmt.Println("")
		fmt.Println("To proceed, run:")
		fmt.Println("  go run ./cmd/clear-trades --confirm")
		fmt.Println("")
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	today := time.Now().Format("2006-01-02")
	fmt.Printf("deleting all archive rows created on: %s\n", today)
	fmt.Println("")

	result, err := db.Exec(`DELETE FROM trades WHERE DATE(created_at) = $1`, today)
	if err != nil {
		log.Fatalf("failed to delete trades: %v", err)
	}
	tradesDeleted, _ := result.RowsAffected()
	fmt.Printf("  deleted %d trades\n", tradesDeleted)

	result, err = db.Exec(`DELETE FROM signals WHERE DATE(created_at) = $1`, today)
	if err != nil {
		log.Fatalf("failed to delete signals: %v", err)
	}
	signalsDeleted, _ := result.RowsAffected()
	fmt.Printf("  deleted %d signals\n", signalsDeleted)

	fmt.Println("")
	fmt.Println("clean slate ready.")
	fmt.Println("")
	fmt.Println("You can now run:")
	fmt.Println("  go run ./cmd/engine --mode run")
	fmt.Println("")
}
