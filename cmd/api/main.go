package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platerecon/platerecon/internal/container"
	"github.com/platerecon/platerecon/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	c, err := container.New()
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	router := transport.NewHandler(c.Handler)

	server := &http.Server{
		Addr:         c.Config.ServerAddress(),
		Handler:      router,
		ReadTimeout:  c.Config.RequestTimeout,
		WriteTimeout: c.Config.RequestTimeout + 5*time.Second,
	}

	// The job runner processes queued recognition jobs in-process alongside
	// the HTTP surface, since the job store and queue are in-memory and
	// process-local; splitting them across processes needs a durable store
	// and broker behind the same jobstore.Store/queue.Queue interfaces.
	c.Pool.Start()

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	c.Pool.Close()
	log.Println("Server exited properly")
}
