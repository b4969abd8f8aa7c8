package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/headlight-network/headlight/headlight-app/config"
	"github.com/headlight-network/headlight/metrics"
	apisrv "github.com/headlight-network/headlight/server/api"
	apimw "github.com/headlight-network/headlight/server/api/middleware"
	"github.com/headlight-network/headlight/x/gateway"
	"github.com/headlight-network/headlight/x/keeper"
	"github.com/headlight-network/headlight/x/lightclient"
	lchttp "github.com/headlight-network/headlight/x/lightclient/http"
	"github.com/headlight-network/headlight/x/lightclient/store"
)

// App represents the headlight application
type App struct {
	cfg             *config.Config
	coordinator     *lightclient.Coordinator
	state           *store.State
	gatewayCallback *gateway.CallbackHandler
	keeper          *keeper.Keeper
	apiServer       *apisrv.Server
	log             zerolog.Logger

	cancel context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg: cfg,
		log: log.With().Str("component", "app").Logger(),
	}

	if err := app.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the application components
func (a *App) initialize(_ context.Context) error {
	if err := a.initializeLightClient(); err != nil {
		return err
	}
	if err := a.initializeKeeper(); err != nil {
		return err
	}
	return a.initializeAPIServer()
}

// initializeKeeper builds the optional automatic head-advance loop.
func (a *App) initializeKeeper() error {
	if !a.cfg.Keeper.Enabled {
		return nil
	}

	interval, err := a.cfg.KeeperInterval()
	if err != nil {
		return err
	}
	payment, err := a.cfg.KeeperPayment()
	if err != nil {
		return err
	}

	kCfg := keeper.DefaultKeeperConfig(a.log)
	kCfg.Interval = interval
	kCfg.Step = a.cfg.Keeper.Step
	kCfg.Payment = payment

	a.keeper = keeper.New(kCfg, a.coordinator, a.state)
	return nil
}

// initializeLightClient builds the state, gateway, and coordinator.
func (a *App) initializeLightClient() error {
	headerRangeFn, err := a.cfg.HeaderRangeFunctionID()
	if err != nil {
		return err
	}
	rotateFn, err := a.cfg.RotateFunctionID()
	if err != nil {
		return err
	}

	a.state = store.NewState(store.Config{
		GatewayID:             a.cfg.Gateway.Endpoint,
		HeaderRangeFunctionID: headerRangeFn,
		RotateFunctionID:      rotateFn,
	})

	if a.cfg.HasGenesis() {
		genesisHeader, err := a.cfg.GenesisHeaderHash()
		if err != nil {
			return err
		}
		genesisAuthority, err := a.cfg.GenesisAuthorityHash()
		if err != nil {
			return err
		}
		err = a.state.Bootstrap(
			a.cfg.Client.GenesisHeight,
			genesisHeader,
			a.cfg.Client.GenesisAuthoritySetID,
			genesisAuthority,
		)
		if err != nil {
			return fmt.Errorf("bootstrap genesis: %w", err)
		}
		a.log.Info().
			Uint32("genesis_height", a.cfg.Client.GenesisHeight).
			Uint64("genesis_authority_set_id", a.cfg.Client.GenesisAuthoritySetID).
			Msg("Genesis state bootstrapped from config")
	}

	gw, err := gateway.New(a.cfg.Gateway.Endpoint, a.cfg.Gateway.BearerToken, nil, a.log)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	coordinator, err := lightclient.New(
		a.log,
		a.state,
		gw,
		lightclient.WithAuthorizer(lightclient.NewAllowList(a.cfg.Client.AdminKeys...)),
		lightclient.WithGasBudget(a.cfg.Gateway.GasBudget),
		lightclient.WithMetrics(a.cfg.Metrics.Enabled),
	)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	a.coordinator = coordinator

	a.gatewayCallback = gateway.NewCallbackHandler(gw, coordinator, a.cfg.Gateway.BearerToken, a.log)
	return nil
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer() error {
	s := apisrv.NewServer(a.cfg.API, a.log)
	s.Use(apimw.Recover(a.log))
	s.Use(apimw.RequestID())
	s.Use(apimw.Logger(a.log))
	if a.cfg.API.EnableCORS {
		s.EnableCORS()
	}

	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	if a.cfg.Metrics.Enabled {
		s.Router.Handle(a.cfg.Metrics.Path,
			promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	lcHandler := lchttp.NewHandler(a.coordinator, a.log)
	lcHandler.RegisterMux(s.Router)

	a.gatewayCallback.RegisterMux(s.Router)

	a.apiServer = s
	return nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		if err := a.apiServer.Start(runCtx); err != nil {
			a.log.Error().Err(err).Msg("API server error")
		}
	}()

	if a.keeper != nil {
		if err := a.keeper.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start keeper: %w", err)
		}
		defer a.keeper.Stop(context.Background())
	}

	go a.statsReporter(runCtx)

	return a.runWithGracefulShutdown(runCtx)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info().Msg("Headlight started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}

	a.log.Info().Msg("Graceful shutdown complete")
	return nil
}

// handleHealth responds to health check requests.
func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// statsReporter periodically reports light client state.
func (a *App) statsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.log.Info().
				Uint32("head", a.state.Head()).
				Bool("bootstrapped", a.state.Bootstrapped()).
				Msg("Headlight statistics")
		}
	}
}
