package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	emtaggregator "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Aggregator"
	"gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.ApiService/controllers"
	container "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Container"
	emtreceiver "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Receiver"
	implementation "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Repository/Implementation"
	emtviewer "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Viewer"
)

func main() {
	ctr, err := container.NewContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	log := ctr.GetLogger()
	log.Info("Starting energy meter receiver service")

	cfg := ctr.GetConfig()

	readingColl, err := ctr.GetReadingCollection()
	if err != nil {
		log.FatalWithError(err, "Failed to open reading collection")
	}
	demandColl, err := ctr.GetMaxDemandCollection()
	if err != nil {
		log.FatalWithError(err, "Failed to open maximum demand collection")
	}

	readingRepo := implementation.NewMongoReadingRepository(readingColl)
	demandRepo := implementation.NewMongoMaximumDemandRepository(demandColl)
	registry := implementation.NewRegistryClient(cfg.Registry.URL, cfg.Registry.Timeout)

	scheme, err := emtreceiver.SchemeByName(cfg.Ingest.IdentityScheme)
	if err != nil {
		log.FatalWithError(err, "Invalid identity scheme")
	}

	tracker := emtreceiver.NewTracker(cfg.Ingest.GracePeriod)
	pool := emtreceiver.NewPool(registry, scheme, log)

	hub := emtviewer.NewHub(log)
	hub.SetStatusFunc(tracker.Status)

	receiver := emtreceiver.NewReceiver(cfg, pool, tracker, hub, scheme, log)

	var enrich emtreceiver.Enricher
	if cfg.Ingest.EnableAnomalyDetection {
		enrich = emtreceiver.DetectAnomalies
	}
	pipeline := emtreceiver.NewPipeline(
		readingRepo, pool, tracker, hub, receiver, scheme, enrich,
		emtreceiver.PipelineConfig{
			MinGapSeconds:         cfg.Ingest.MinGapSeconds,
			TimezoneOffsetMinutes: cfg.Ingest.TimezoneOffsetMinutes,
		},
		log,
	)
	receiver.SetPipeline(pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := receiver.Start(ctx); err != nil {
		log.FatalWithError(err, "Failed to start MQTT receiver")
	}
	defer receiver.Stop()

	aggregator := emtaggregator.New(readingRepo, log)

	maxDemand := emtaggregator.NewMaxDemandProcessor(readingRepo, demandRepo, log)
	go maxDemand.Run(ctx, time.Minute, 500)

	router := buildRouter(ctr, cfg.Ingest.TimezoneOffsetMinutes, aggregator, readingRepo, demandRepo, receiver, hub)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info("HTTP server listening on port " + cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.FatalWithError(err, "HTTP server failed")
		}
	}()

	log.Info("Receiver running... press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorWithError(err, "HTTP server shutdown failed")
	}
}

func buildRouter(
	ctr *container.Container,
	offsetMinutes int,
	aggregator *emtaggregator.Aggregator,
	readingRepo *implementation.MongoReadingRepository,
	demandRepo *implementation.MongoMaximumDemandRepository,
	receiver *emtreceiver.Receiver,
	hub *emtviewer.Hub,
) *gin.Engine {
	log := ctr.GetLogger()

	if ctr.GetConfig().Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := ctr.GetConfig().CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsCfg.AllowedOrigins,
		AllowMethods:     corsCfg.AllowedMethods,
		AllowHeaders:     corsCfg.AllowedHeaders,
		ExposeHeaders:    corsCfg.ExposedHeaders,
		AllowCredentials: corsCfg.AllowCredentials,
		MaxAge:           time.Duration(corsCfg.MaxAge) * time.Second,
	}))

	hub.RegisterRoutes(router)

	reportController := controllers.NewReportController(aggregator, readingRepo, demandRepo, receiver, offsetMinutes, log)
	reportController.RegisterRoutes(router)

	healthController := controllers.NewHealthController(
		receiver.IsConnected,
		func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ctr.StoreConnected(ctx)
		},
	)
	healthController.RegisterRoutes(router)

	return router
}
