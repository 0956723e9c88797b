// seeditems loads a small demo catalogue through the item service, so the
// usual validation and stock movement audit apply. Items that already exist
// are skipped.
// Usage: go run ./cmd/seeditems
package main

import (
	"context"
	"errors"

	"estoque/internal/config"
	"estoque/internal/dto"
	"estoque/internal/infra"
	"estoque/internal/repository"
	"estoque/internal/service"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var demo = []dto.CreateItemRequest{
	{Name: "Caderno 96 folhas", Supplier: "Papelaria Sol", Quantity: 40, CostPrice: decimal.RequireFromString("7.50"), SalePrice: decimal.RequireFromString("14.90")},
	{Name: "Caneta azul", Supplier: "Papelaria Sol", Quantity: 200, CostPrice: decimal.RequireFromString("0.90"), SalePrice: decimal.RequireFromString("2.50")},
	{Name: "Mochila escolar", Supplier: "Bolsas Brasil", Quantity: 12, CostPrice: decimal.RequireFromString("45.00"), SalePrice: decimal.RequireFromString("89.90")},
	{Name: "Garrafa térmica", Supplier: "Casa & Cia", Quantity: 4, CostPrice: decimal.RequireFromString("22.00"), SalePrice: decimal.RequireFromString("39.90")},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	svc := service.NewItemService(repository.NewItemRepository(db), repository.NewStockMovementRepository(db), cfg.LowStockThreshold)
	ctx := context.Background()
	for _, req := range demo {
		it, err := svc.Create(ctx, req)
		var dup *service.DuplicateItemError
		switch {
		case errors.As(err, &dup):
			log.Info().Str("name", req.Name).Msg("already present, skipped")
		case err != nil:
			log.Fatal().Err(err).Str("name", req.Name).Msg("seed failed")
		default:
			log.Info().Str("id", it.ID).Str("name", it.Name).Int("quantity", it.Quantity).Msg("item created")
		}
	}
}
