package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"crpt-gateway/crpt"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// Servidor falso da API da CRPT, útil para exercitar o gateway e o cmd/crpt localmente.
func main() {
	log := logrus.New()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var received atomic.Int64

	r := chi.NewRouter()
	r.Post(crpt.CreateDocumentPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Signature") == "" {
			http.Error(w, `{"error_message":"signature is required"}`, http.StatusUnauthorized)
			return
		}

		var doc crpt.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			http.Error(w, `{"error_message":"invalid document"}`, http.StatusBadRequest)
			return
		}

		n := received.Add(1)
		log.WithFields(logrus.Fields{"doc_id": doc.DocID, "total": n}).Info("document received")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"value": doc.DocID})
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("example crpt server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
