package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/agroscan/agroscan-core/src/api"
	"github.com/agroscan/agroscan-core/src/authservice"
	"github.com/agroscan/agroscan-core/src/config"
	"github.com/agroscan/agroscan-core/src/identity"
	"github.com/agroscan/agroscan-core/src/session"
	"github.com/agroscan/agroscan-core/src/store"
	"github.com/agroscan/agroscan-core/src/token"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	} else {
		log.Println("✅ Loaded .env file")
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `AgroScan session core demo

Usage: agroscan <command>

Commands:
  login         interactive Google sign-in
  status        local session snapshot (no network)
  whoami        verify the session against the backend
  logout        sign out everywhere
  fake-backend  run a canned auth backend for local testing
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]

	if command == "fake-backend" {
		runFakeBackend()
		return
	}

	if os.Getenv("GOOGLE_CLIENT_ID") == "" {
		log.Fatal("❌ GOOGLE_CLIENT_ID not set in environment or .env file")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("✓ Config loaded successfully")

	credStore, err := store.New(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer credStore.Close()
	log.Printf("✓ Redis connected")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deviceID, err := credStore.DeviceID(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize device ID: %v", err)
	}

	sess := session.New()
	tokens := token.NewManager(&cfg.API, credStore, sess)
	client := api.NewClient(&cfg.API, tokens, deviceID)
	provider := identity.NewGoogleProvider(&cfg.Google)

	service := authservice.New(ctx, credStore, tokens, client, provider, sess)
	log.Printf("✓ Session core initialized (device %s)", deviceID)

	switch command {
	case "login":
		runLogin(ctx, service)
	case "status":
		runStatus(ctx, service)
	case "whoami":
		runWhoami(ctx, service)
	case "logout":
		runLogout(ctx, service)
	default:
		usage()
	}
}

func runLogin(ctx context.Context, service *authservice.Service) {
	log.Printf("🔑 Starting Google sign-in, waiting for the browser...")

	profile, err := service.SignInWithGoogle(ctx)
	if err != nil {
		log.Fatalf("Sign-in failed: %v", err)
	}

	log.Printf("✅ Signed in as %s", profile.Email)
	if profile.Name != "" {
		log.Printf("   Name: %s", profile.Name)
	}
}

func runStatus(ctx context.Context, service *authservice.Service) {
	if !service.IsAuthenticated(ctx) {
		log.Printf("ℹ️  Not authenticated")
		return
	}

	log.Printf("✅ Authenticated")
	if user := service.CurrentUser(); user != nil {
		log.Printf("   Last known user: %s", user.Email)
	}
}

func runWhoami(ctx context.Context, service *authservice.Service) {
	ok, err := service.CheckAuthStatus(ctx)
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	if !ok {
		log.Printf("ℹ️  Not authenticated")
		return
	}

	user := service.CurrentUser()
	log.Printf("✅ Verified as %s", user.Email)
	if user.Name != "" {
		log.Printf("   Name: %s", user.Name)
	}
	if user.Picture != "" {
		log.Printf("   Picture: %s", user.Picture)
	}
}

func runLogout(ctx context.Context, service *authservice.Service) {
	if err := service.Logout(ctx); err != nil {
		log.Fatalf("Logout failed: %v", err)
	}
	log.Printf("✅ Signed out")
}
