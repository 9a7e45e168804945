package main

import (
	"context"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerdesk/ledgerdesk/internal/server"
	corepersistence "github.com/ledgerdesk/ledgerdesk/modules/core/infrastructure/persistence"
	coreservices "github.com/ledgerdesk/ledgerdesk/modules/core/services"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/handlers"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/infrastructure/persistence"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/infrastructure/storage"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/configuration"
	"github.com/ledgerdesk/ledgerdesk/pkg/eventbus"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}

	bus := eventbus.NewEventPublisher(logger)

	userRepo := corepersistence.NewUserRepository()
	currencyRepo := corepersistence.NewCurrencyRepository()
	invoiceRepo := persistence.NewInvoiceRepository()
	vendorRepo := persistence.NewVendorRepository()
	paymentRepo := persistence.NewPaymentRepository()
	requestRepo := persistence.NewMasterDataRepository()
	categoryRepo := persistence.NewCategoryRepository()
	paymentTypeRepo := persistence.NewPaymentTypeRepository()
	profileRepo := persistence.NewProfileRepository()

	cfg := services.Config{
		MinReasonLength: conf.MinReasonLength,
		DueSoonDays:     conf.DueSoonDays,
		UploadsPath:     conf.UploadsPath,
		ArchivePath:     conf.ArchivePath,
		DeletedPath:     conf.DeletedPath,
	}

	userService := coreservices.NewUserService(userRepo, bus)
	currencyService := coreservices.NewCurrencyService(currencyRepo)
	invoiceService := services.NewInvoiceService(
		invoiceRepo, vendorRepo, paymentRepo, requestRepo, categoryRepo, profileRepo,
		storage.NewLocalRelocator(), bus, logger, cfg,
	)
	vendorService := services.NewVendorService(vendorRepo, invoiceRepo, bus, cfg)
	paymentService := services.NewPaymentService(paymentRepo, invoiceRepo, bus, cfg)
	masterDataService := services.NewMasterDataService(
		requestRepo, vendorRepo, categoryRepo, paymentTypeRepo, profileRepo,
		invoiceService, bus, cfg,
	)
	queryService := services.NewInvoiceQueryService(invoiceRepo, paymentService, cfg)

	handlers.RegisterNotificationHandler(bus, logger)

	srv, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Pool:          pool,
		Services: &server.Services{
			Users:      userService,
			Currencies: currencyService,
			Invoices:   invoiceService,
			Vendors:    vendorService,
			Payments:   paymentService,
			MasterData: masterDataService,
			Queries:    queryService,
		},
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := srv.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
