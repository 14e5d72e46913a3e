package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "ai-voice-relay-service/internal/api/grpc"
)

func main() {
	audioFile := flag.String("audio", "testdata/sample.ogg", "Path to a recorded voice note")
	server := flag.String("server", "http://localhost:8080", "Relay HTTP base URL")
	grpcAddr := flag.String("grpc", "", "gRPC address to health check before relaying (optional)")
	outFile := flag.String("out", "reply.ogg", "Where to write the spoken reply")
	mimeType := flag.String("type", "audio/ogg", "Content-Type of the recording")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall request timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *grpcAddr != "" {
		if err := checkHealth(ctx, *grpcAddr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		log.Printf("Relay service is serving at %s", *grpcAddr)
	}

	recording, err := os.ReadFile(*audioFile)
	if err != nil {
		log.Fatalf("Failed to read audio file: %v", err)
	}
	log.Printf("Relaying %s (%d bytes)", *audioFile, len(recording))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *server+"/v1/relay", bytes.NewReader(recording))
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", *mimeType)

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Relay request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read reply: %v", err)
	}

	relayID := resp.Header.Get("X-Relay-Id")
	attempts := resp.Header.Get("X-Relay-Attempts")
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		log.Printf("No response generated: relayId=%s attempts=%s", relayID, attempts)
		return
	default:
		log.Fatalf("Relay failed: status=%d relayId=%s attempts=%s body=%s", resp.StatusCode, relayID, attempts, body)
	}

	if err := os.WriteFile(*outFile, body, 0o644); err != nil {
		log.Fatalf("Failed to write reply: %v", err)
	}
	log.Printf("Reply written to %s: %d bytes, %s, relayId=%s session=%s attempts=%s in %v",
		*outFile, len(body), resp.Header.Get("Content-Type"), relayID,
		resp.Header.Get("X-Relay-Session-Id"), attempts, time.Since(start))
}

func checkHealth(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: grpcapi.ServiceName})
	if err != nil {
		return err
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("service %s is %s", grpcapi.ServiceName, resp.Status)
	}
	return nil
}
