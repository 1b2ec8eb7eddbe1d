package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"ruuvigate/config"
	"ruuvigate/models"
	"ruuvigate/services"
	"ruuvigate/storage"

	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var (
	dataDir = flag.String("data", "", "Gateway data directory (default: DATA_DIR)")
	backend = flag.String("backend", "", "Checkpoint backend, bolt or badger (default: CHECKPOINT_BACKEND)")
	reset   = flag.Bool("reset", false, "Force recovery state back to NORMAL and clear the error flag")
	remote  = flag.Bool("remote", false, "Also print the status mirrored to the Realtime Database")
)

func main() {
	flag.Parse()

	// Same environment and .env file as the gateway, so paths cannot drift
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *backend != "" {
		cfg.CheckpointBackend = *backend
	}

	printCheckpoint(cfg)
	printDocuments(cfg)

	if *remote {
		printRemoteStatus(cfg)
	}
}

func printCheckpoint(cfg *config.Config) {
	store, err := storage.Open(cfg.CheckpointBackend, cfg.CheckpointPath())
	if err != nil {
		log.Fatalf("Error opening checkpoint store: %v", err)
	}
	defer store.Close()

	cp := store.Load()
	fmt.Println("Checkpoint")
	fmt.Printf("  boot_count:        %d\n", cp.BootCount)
	fmt.Printf("  error_flag:        %t\n", cp.ErrorFlag)
	fmt.Printf("  first_boot:        %t\n", cp.FirstBoot)
	fmt.Printf("  recovery_state:    %s\n", cp.RecoveryState)
	fmt.Printf("  recovery_attempts: %d\n", cp.RecoveryAttempts)

	if *reset {
		cp.RecoveryState = models.StateNormal
		cp.RecoveryAttempts = 0
		cp.ErrorFlag = false
		if err := store.Save(cp); err != nil {
			log.Fatalf("Error saving checkpoint: %v", err)
		}
		fmt.Println("  -> reset to NORMAL")
	}
	fmt.Println("---")
}

func printDocuments(cfg *config.Config) {
	acc, err := services.NewAccumulator(cfg.DocumentsDir(), time.Local, nil, zap.NewNop())
	if err != nil {
		log.Fatalf("Error opening documents: %v", err)
	}
	names, err := acc.List()
	if err != nil {
		log.Fatalf("Error listing documents: %v", err)
	}

	fmt.Printf("Pending documents: %d\n", len(names))
	for _, name := range names {
		doc, err := acc.Read(name)
		if err != nil {
			fmt.Printf("  %s: unreadable (%v)\n", name, err)
			continue
		}
		fmt.Printf("  %s -> %s\n", name, services.RemoteKey(doc))
		fmt.Printf("    tag: %s  day: %s  readings: %d  battery: %d mV (%d%%)\n",
			doc.DeviceID, doc.Day, len(doc.Readings), doc.BatteryMV, doc.BatteryLevel)
		if n := len(doc.Readings); n > 0 {
			last := doc.Readings[n-1]
			fmt.Printf("    last: %.2f °C  %.2f %%RH  at %s\n", last.Temperature, last.Humidity, last.Timestamp)
		}
	}
	fmt.Println("---")
}

func printRemoteStatus(cfg *config.Config) {
	serviceAccountJSON := cfg.FirebaseServiceAccountJSON
	dbURL := cfg.FirebaseDbUrl
	gatewayID := cfg.GatewayID

	// Validate environment variables
	if serviceAccountJSON == "" {
		log.Fatal("FIREBASE_SERVICE_ACCOUNT_JSON environment variable is not set")
	}
	if dbURL == "" {
		log.Fatal("FIREBASE_DB_URL environment variable is not set")
	}

	// Initialize Firebase app
	conf := &firebase.Config{
		DatabaseURL: dbURL,
	}
	opt := option.WithCredentialsJSON([]byte(serviceAccountJSON))
	app, err := firebase.NewApp(context.Background(), conf, opt)
	if err != nil {
		log.Fatalf("Error initializing Firebase app: %v", err)
	}

	// Get database client
	client, err := app.Database(context.Background())
	if err != nil {
		log.Fatalf("Error getting database client: %v", err)
	}

	var st services.GatewayStatus
	if err := client.NewRef(services.StatusPath(gatewayID)).Get(context.Background(), &st); err != nil {
		log.Fatalf("Error reading gateway status: %v", err)
	}

	fmt.Printf("Remote status for %s (updated %s)\n", gatewayID, st.UpdatedAt)
	fmt.Printf("  checkpoint: %+v\n", st.Checkpoint)
	if st.LastFlush != nil {
		fmt.Printf("  last flush: %s %s (%d sent, %d failed of %d)\n",
			st.LastFlush.GetOutcomeEmoji(), st.LastFlush.Outcome, st.LastFlush.Sent, st.LastFlush.Failed, st.LastFlush.Total)
	}
	fmt.Printf("  battery:    %s %d mV (%d%%)\n", st.Battery.GetBatteryEmoji(), st.Battery.VoltageMV, st.Battery.Level)
}
