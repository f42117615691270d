package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/ecoclassify/internal/domain"
	"github.com/example/ecoclassify/internal/grpcapi"
	"github.com/example/ecoclassify/internal/handlers"
)

// blockingClassifier holds every ClassifyURL call until release is closed.
type blockingClassifier struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingClassifier() *blockingClassifier {
	return &blockingClassifier{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingClassifier) ClassifyURL(ctx context.Context, imageURL string) (*domain.ClassificationResult, error) {
	select {
	case <-b.started:
	default:
		close(b.started)
	}
	<-b.release
	return &domain.ClassificationResult{
		Category:      domain.CategoryPotholes,
		Severity:      70,
		SeverityLevel: domain.LevelModerateHigh,
		Scale:         "several deep potholes",
	}, nil
}

func (b *blockingClassifier) ClassifyUpload(ctx context.Context, data []byte, contentType string) (*domain.ClassificationResult, error) {
	result := domain.RejectResult()
	return &result, nil
}

func TestRunServersFinishesInFlightRequestOnSignal(t *testing.T) {
	logger := zap.NewNop()
	uc := newBlockingClassifier()
	defer func() {
		select {
		case <-uc.release:
		default:
			close(uc.release)
		}
	}()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: handlers.NewRouter(uc, handlers.Options{Logger: logger})}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- runServers(server, listener, nil, nil, 2*time.Second, logger, signalCh)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	client := &http.Client{Timeout: 3 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		body := bytes.NewBufferString(`{"image_url":"https://example.com/road.jpg"}`)
		resp, err := client.Post("http://"+addr+"/classify", "application/json", body)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-uc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not reach the classifier in time")
	}

	signalCh <- syscall.SIGTERM
	time.Sleep(50 * time.Millisecond)
	close(uc.release)

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
		var result domain.ClassificationResult
		if err := json.Unmarshal(body, &result); err != nil {
			t.Fatalf("invalid response body %q: %v", string(body), err)
		}
		if result.Category != domain.CategoryPotholes || result.Severity != 70 {
			t.Fatalf("unexpected result: %+v", result)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatal("expected X-Request-ID header")
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}

	if _, err := net.DialTimeout("tcp", addr, 100*time.Millisecond); err == nil {
		t.Fatal("listener still accepting connections after shutdown")
	}
}

type fixedClassifier struct{}

func (fixedClassifier) ClassifyURL(ctx context.Context, imageURL string) (*domain.ClassificationResult, error) {
	result := domain.RejectResult()
	return &result, nil
}

func (fixedClassifier) ClassifyUpload(ctx context.Context, data []byte, contentType string) (*domain.ClassificationResult, error) {
	result := domain.RejectResult()
	return &result, nil
}

func TestRunServersStopsBothServersOnSignal(t *testing.T) {
	logger := zap.NewNop()

	httpListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create HTTP listener: %v", err)
	}
	grpcListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create gRPC listener: %v", err)
	}

	httpServer := &http.Server{Handler: handlers.NewRouter(fixedClassifier{}, handlers.Options{Logger: logger})}
	grpcServer := grpcapi.NewGRPCServer(fixedClassifier{}, logger)

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- runServers(httpServer, httpListener, grpcServer, grpcListener, 2*time.Second, logger, signalCh)
	}()

	waitForServer(t, httpListener.Addr().String())
	waitForServer(t, grpcListener.Addr().String())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, conn, err := grpcapi.DialClassifier(ctx, grpcListener.Addr().String(), logger)
	if err != nil {
		t.Fatalf("failed to dial gRPC server: %v", err)
	}
	result, err := client.ClassifyURL(ctx, "https://example.com/a.jpg")
	if err != nil {
		t.Fatalf("gRPC call failed: %v", err)
	}
	if result.Category != domain.CategoryReject {
		t.Fatalf("unexpected result: %+v", result)
	}
	conn.Close()

	signalCh <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("servers did not shutdown cleanly: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("servers did not exit after shutdown")
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
