package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jsalverda/disentangle/internal/config"
	"github.com/jsalverda/disentangle/internal/db"
	"github.com/jsalverda/disentangle/internal/export"
	"github.com/jsalverda/disentangle/internal/importer"
	"github.com/jsalverda/disentangle/internal/middleware"
	"github.com/jsalverda/disentangle/internal/projects"
	"github.com/jsalverda/disentangle/internal/repository"
	"github.com/jsalverda/disentangle/internal/rooms"

	"github.com/rs/cors"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	projectRepo := repository.NewProjectRepository(conn.Pool)
	containerRepo := repository.NewContainerRepository(conn.Pool)
	turnRepo := repository.NewTurnRepository(conn)
	annotationRepo := repository.NewAnnotationRepository(conn.Pool)
	importJobRepo := repository.NewImportJobRepository(conn.Pool)
	exportJobRepo := repository.NewExportJobRepository(conn.Pool)

	// Create services
	importService := importer.NewService(
		projectRepo,
		containerRepo,
		turnRepo,
		importJobRepo,
		importer.WithUploadDirectory(cfg.Import.UploadDir),
		importer.WithBatchSize(cfg.Import.BatchSize),
		importer.WithMaxErrorRate(cfg.Import.MaxErrorRate),
		importer.WithJobTimeout(cfg.Import.JobTimeout),
		importer.WithPreviewRows(cfg.Import.PreviewRows),
	)
	roomService := rooms.NewService(containerRepo, turnRepo, annotationRepo)
	exportService := export.NewService(
		containerRepo,
		turnRepo,
		annotationRepo,
		exportJobRepo,
		export.WithExportDirectory(cfg.Export.Dir),
		export.WithPageSize(cfg.Export.PageSize),
		export.WithJobTimeout(cfg.Export.JobTimeout),
	)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	mount := func(pattern string, handler http.Handler) {
		http.Handle(pattern, corsHandler.Handler(middleware.LoggingMiddleware(handler)))
	}
	mount("/projects", projects.NewHTTPHandler(projectRepo))
	mount("/projects/", projects.NewHTTPHandler(projectRepo))
	mount("/imports", importer.NewHTTPHandler(importService))
	mount("/imports/", importer.NewHTTPHandler(importService))
	mount("/rooms", rooms.NewHTTPHandler(roomService))
	mount("/rooms/", rooms.NewHTTPHandler(roomService))
	mount("/exports", export.NewHTTPHandler(exportService))
	mount("/exports/", export.NewHTTPHandler(exportService))

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting annotation backend on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
