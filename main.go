package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "colony.db", "Path to SQLite database")
	adminPass := flag.String("admin-pass", "", "Set the admin password (stored hashed)")
	clientDir := flag.String("client", "", "Path to debug overlay directory (optional)")
	ants := flag.Int("ants", DefaultAnts, "Ants to spawn when the world is empty")
	resources := flag.Int("resources", DefaultResources, "Resource nodes to spawn when the world is empty")
	flag.Parse()

	db, err := OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	auth, err := NewAuth(db, *adminPass)
	if err != nil {
		log.Fatalf("auth setup: %v", err)
	}
	if auth == nil {
		log.Println("no admin password configured; metrics API is open")
	}

	metrics := NewMetrics(db)
	world := NewWorld(metrics)

	// Restore the persisted world, or seed a fresh one
	seed, err := db.LoadWorldEntities()
	if err != nil {
		log.Fatalf("load world: %v", err)
	}
	if len(seed) > 0 {
		world.LoadEntities(seed)
		log.Printf("restored %d entities", len(seed))
	} else {
		world.Populate(*ants, *resources)
		if err := db.SaveWorldEntities(world.SeedRows()); err != nil {
			log.Printf("warning: could not persist world seed: %v", err)
		}
		log.Printf("seeded %d ants, %d resources", *ants, *resources)
	}
	go world.Run()

	hub := NewHub(world, db, auth)
	go hub.Run()

	mux := SetupRoutes(hub, *clientDir)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Printf("Server starting on %s", *addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	world.Stop()
	if err := db.SaveWorldEntities(world.SeedRows()); err != nil {
		log.Printf("warning: could not persist world: %v", err)
	}
	metrics.Stop()
	server.Close()
}
