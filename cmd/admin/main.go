package main

import (
	"fmt"
	"log"
	"os"

	"opscheck/backend/internal/authority"
	"opscheck/backend/internal/lifecycle"
	"opscheck/backend/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	storageSvc := storage.NewStorageService(db, nil) // No redis needed for admin CLI
	engine := lifecycle.NewService(storageSvc, authority.NewService(storageSvc))

	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <command> [args]")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "waive":
		if len(os.Args) != 6 {
			fmt.Println("Usage: admin waive <violation_id> <actor_id> <org_id> <reason>")
			os.Exit(1)
		}
		res, err := engine.Waive(os.Args[2], os.Args[3], os.Args[5], os.Args[4])
		if err != nil {
			log.Fatalf("Error waiving violation: %v", err)
		}
		if !res.Success {
			fmt.Printf("Waive rejected (%s): %s\n", res.FailureKind, res.Message)
			os.Exit(1)
		}
		fmt.Printf("Violation %s waived (%s -> %s).\n", res.ViolationID, res.FromStatus, res.ToStatus)
	case "legacy-resolve":
		if len(os.Args) < 4 {
			fmt.Println("Usage: admin legacy-resolve <violation_id> <actor_id> [note]")
			os.Exit(1)
		}
		note := ""
		if len(os.Args) > 4 {
			note = os.Args[4]
		}
		res, err := engine.LegacyResolve(os.Args[2], os.Args[3], note)
		if err != nil {
			log.Fatalf("Error resolving violation: %v", err)
		}
		if !res.Success {
			fmt.Printf("Resolve rejected (%s): %s\n", res.FailureKind, res.Message)
			os.Exit(1)
		}
		if res.FromStatus == res.ToStatus {
			fmt.Printf("Violation %s already closed (%s).\n", res.ViolationID, res.ToStatus)
		} else {
			fmt.Printf("Violation %s resolved (%s -> %s).\n", res.ViolationID, res.FromStatus, res.ToStatus)
		}
	case "history":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin history <violation_id>")
			os.Exit(1)
		}
		events, err := storageSvc.GetEventsForViolation(os.Args[2])
		if err != nil {
			log.Fatalf("Error loading history: %v", err)
		}
		for _, e := range events {
			actor := "system"
			if e.ActorID != nil {
				actor = *e.ActorID
			}
			from, to := "-", "-"
			if e.FromStatus != nil {
				from = string(*e.FromStatus)
			}
			if e.ToStatus != nil {
				to = string(*e.ToStatus)
			}
			fmt.Printf("%s  %-18s %s -> %s  by %s  %s\n",
				e.OccurredAt.Format("2006-01-02 15:04:05"), e.EventType, from, to, actor, e.Metadata)
		}
	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}
