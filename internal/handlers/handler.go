package handlers

import (
	"baladi-api/internal/backend"
	"baladi-api/internal/config"
	"baladi-api/internal/realtime"
	"baladi-api/internal/services"
)

type Handler struct {
	cfg       *config.Config
	rows      backend.RowStore
	objects   backend.ObjectStore
	resolver  *services.MediaResolver
	assembler *services.Assembler
	ingestor  *services.Ingestor
	auth      backend.Auth
	geocoder  *services.GeocodingService
	hub       *realtime.Hub
}

func New(
	cfg *config.Config,
	rows backend.RowStore,
	objects backend.ObjectStore,
	resolver *services.MediaResolver,
	assembler *services.Assembler,
	ingestor *services.Ingestor,
	auth backend.Auth,
	geocoder *services.GeocodingService,
	hub *realtime.Hub,
) *Handler {
	return &Handler{
		cfg:       cfg,
		rows:      rows,
		objects:   objects,
		resolver:  resolver,
		assembler: assembler,
		ingestor:  ingestor,
		auth:      auth,
		geocoder:  geocoder,
		hub:       hub,
	}
}
