package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/config"
	"github.com/matheus3301/chatd/internal/daemon"
	"github.com/matheus3301/chatd/internal/lock"
)

func main() {
	configFlag := flag.String("config", config.DefaultPath(), "path to config.toml")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "init":
		cmdInit(*configFlag)
	case "status":
		cmdStatus(loadConfig(*configFlag), *jsonFlag)
	case "token":
		fs := flag.NewFlagSet("token", flag.ExitOnError)
		ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
		_ = fs.Parse(args[1:])
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: chatctl token [--ttl 24h] <user-id>")
			os.Exit(1)
		}
		cmdToken(loadConfig(*configFlag), fs.Arg(0), *ttl)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--config <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  init             Write a default config with a fresh secret")
	fmt.Fprintln(os.Stderr, "  status           Show daemon health")
	fmt.Fprintln(os.Stderr, "  token <user-id>  Mint a session token (development)")
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func cmdInit(path string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "error: %s already exists\n", path)
		os.Exit(1)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = hex.EncodeToString(secret)
	if err := config.Save(path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", path)
}

type statusOutput struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
	Socket string `json:"socket"`
}

func cmdStatus(cfg *config.Config, jsonOut bool) {
	out := statusOutput{Status: "STOPPED", Socket: cfg.SocketPath(), PID: lock.Holder(cfg.DataDir)}

	status, err := checkHealth(cfg.SocketPath())
	if err == nil {
		out.Status = status
	} else if out.PID != 0 {
		out.Status = "UNREACHABLE"
	}

	if jsonOut {
		outputJSON(out)
	} else {
		fmt.Printf("Status: %s\n", out.Status)
		if out.PID != 0 {
			fmt.Printf("PID:    %d\n", out.PID)
		}
		fmt.Printf("Socket: %s\n", out.Socket)
	}
	if out.Status != healthpb.HealthCheckResponse_SERVING.String() {
		os.Exit(1)
	}
}

func checkHealth(socketPath string) (string, error) {
	if _, err := os.Stat(socketPath); err != nil {
		return "", errors.New("daemon not running")
	}
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: daemon.ServiceName})
	if err != nil {
		return "", err
	}
	return resp.Status.String(), nil
}

func cmdToken(cfg *config.Config, userID string, ttl time.Duration) {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	token, err := auth.NewVerifier(cfg.Auth.JWTSecret).Issue(userID, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
