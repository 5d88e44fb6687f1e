package server

import (
	"context"
	"log"
	"net/http"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"baladi-api/internal/backend"
	"baladi-api/internal/config"
	"baladi-api/internal/handlers"
	"baladi-api/internal/middleware"
	"baladi-api/internal/models"
	"baladi-api/internal/realtime"
	"baladi-api/internal/router"
	"baladi-api/internal/services"
)

// Services holds all initialized collaborators for the application.
type Services struct {
	Rows      *backend.FirestoreStore
	Objects   *backend.CloudStorage
	Resolver  *services.MediaResolver
	Feeds     *services.FeedSubscriber
	Assembler *services.Assembler
	Ingestor  *services.Ingestor
	Geocoder  *services.GeocodingService
	Hub       *realtime.Hub

	firestoreClient *firestore.Client
	storageClient   *storage.Client
}

// InitServices initializes all application services based on configuration.
// Returns the initialized services or an error if initialization fails.
func InitServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Configure Firebase credentials
	var opts []option.ClientOption
	if cfg.FirebaseCredentialsJSON != "" {
		// Use JSON credentials from environment variable (preferred for serverless)
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJSON)))
	} else {
		// Use credentials file (for local development)
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsPath))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProjectID, opts...)
	if err != nil {
		storageClient.Close()
		return nil, err
	}

	rows := backend.NewFirestoreStore(firestoreClient)
	objects := backend.NewCloudStorage(storageClient)

	resolver := services.NewMediaResolver(objects, cfg.PlaceholderImageURL)
	resolver.StartCleanup(ctx, cfg.ResolverCleanupInterval)

	feeds := services.NewFeedSubscriber(rows)
	assembler := services.NewAssembler(rows, resolver, feeds, backend.ContextAuth{}, services.AssemblerConfig{
		Table:        cfg.ListingsCollection,
		SignedURLTTL: cfg.SignedURLTTL,
		FetchTimeout: cfg.FetchTimeout,
	})

	ingestor := services.NewIngestor(services.IngestConfig{
		MaxBytes:         cfg.MaxUploadBytes,
		MaxDimensionPx:   cfg.MaxImageDimension,
		MinQuality:       cfg.MinJPEGQuality,
		WatermarkOpacity: cfg.WatermarkOpacity,
	})

	return &Services{
		Rows:            rows,
		Objects:         objects,
		Resolver:        resolver,
		Feeds:           feeds,
		Assembler:       assembler,
		Ingestor:        ingestor,
		Geocoder:        services.NewGeocodingService(),
		Hub:             realtime.NewHub(cfg.AllowedOrigins),
		firestoreClient: firestoreClient,
		storageClient:   storageClient,
	}, nil
}

// Close releases the backend clients. Call on shutdown.
func (s *Services) Close() {
	if s.firestoreClient != nil {
		s.firestoreClient.Close()
	}
	if s.storageClient != nil {
		s.storageClient.Close()
	}
}

// CreateHandler creates an HTTP handler with all middleware applied.
func CreateHandler(cfg *config.Config, svcs *Services) http.Handler {
	h := handlers.New(
		cfg,
		svcs.Rows,
		svcs.Objects,
		svcs.Resolver,
		svcs.Assembler,
		svcs.Ingestor,
		backend.ContextAuth{},
		svcs.Geocoder,
		svcs.Hub,
	)

	mux := router.Setup(h)

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	// Apply global middleware, innermost first
	wrappedHandler := middleware.MerchantAuth(cfg.MerchantAPIKeys)(mux)
	wrappedHandler = limiter.Limit(wrappedHandler)
	wrappedHandler = middleware.CORS(wrappedHandler, cfg.AllowedOrigins)
	wrappedHandler = middleware.RequestID(wrappedHandler)
	wrappedHandler = middleware.Logger(wrappedHandler)

	return wrappedHandler
}

// StartRealtimeBridge subscribes to the listings change feed and fans
// refresh hints out to websocket clients. Degraded-mode transitions are
// broadcast too so clients can flag possibly stale views. Returns the
// subscription; the caller owns closing it.
func StartRealtimeBridge(ctx context.Context, cfg *config.Config, svcs *Services) (*services.Subscription, error) {
	table := cfg.ListingsCollection

	sub, err := svcs.Feeds.Subscribe(ctx, table, models.ListingFilter{}, func() {
		svcs.Hub.Broadcast(realtime.RefreshHint{Table: table})
	}, &services.SubscriptionOptions{
		OnDegraded: func() {
			log.Printf("[Bridge] Change feed for %s degraded", table)
			svcs.Hub.Broadcast(realtime.RefreshHint{Table: table, Degraded: true, Stale: true})
		},
		OnRecovered: func() {
			log.Printf("[Bridge] Change feed for %s recovered", table)
			svcs.Hub.Broadcast(realtime.RefreshHint{Table: table})
		},
	})
	if err != nil {
		return nil, err
	}

	return sub, nil
}
