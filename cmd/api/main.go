package main

import (
	"log"
	"net/http"

	"github.com/heritagebank/ledgercore/internal/api"
	"github.com/heritagebank/ledgercore/internal/approval"
	"github.com/heritagebank/ledgercore/internal/authgate"
	"github.com/heritagebank/ledgercore/internal/config"
	"github.com/heritagebank/ledgercore/internal/events"
	"github.com/heritagebank/ledgercore/internal/events/kafka"
	"github.com/heritagebank/ledgercore/internal/ledger"
	"github.com/heritagebank/ledgercore/internal/recorder"
	"github.com/heritagebank/ledgercore/internal/store"
	"github.com/heritagebank/ledgercore/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var st store.Store
	if cfg.DBSource != "" {
		pg, err := store.NewPostgresStore(cfg.DBSource)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		defer pg.Close()
		st = pg
	} else {
		log.Println("DB_SOURCE not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	var pub events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, events.TopicTransferCommitted)
		defer kp.Close()
		pub = kp
	}

	// Initialize Layers
	ldg := ledger.New(st)
	gate := authgate.New(st)
	rec := recorder.New(st)
	workflows := workflow.NewManager(ldg, gate, rec, pub)
	approvals := approval.New(st, rec)

	handler := api.NewHandler(st, ldg, gate, rec, workflows, approvals)
	router := api.NewRouter(handler)

	log.Printf("Server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal(err)
	}
}
