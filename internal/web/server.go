package web

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elys-network/dlprewards/internal/amm"
	"github.com/elys-network/dlprewards/internal/chain"
	"github.com/elys-network/dlprewards/internal/logger"
	"github.com/elys-network/dlprewards/internal/state"
	"github.com/elys-network/dlprewards/internal/types"
	"github.com/elys-network/dlprewards/internal/utils"
)

var webLogger = logger.GetForComponent("web_server")

// EpochReader is the read side of the epoch manager.
type EpochReader interface {
	Epochs() []types.Epoch
	Epoch(id uint64) (types.Epoch, error)
	EpochsCount() uint64
	LastEpoch() uint64
	EpochDlp(epochID uint64, dlpID types.DlpID) types.EpochDlp
	EpochDlpIDs(epochID uint64) []types.DlpID
}

// PerformanceReader is the read side of the performance scorer.
type PerformanceReader interface {
	Paused() bool
	MetricWeights() types.MetricWeights
	EpochDlpPerformance(epochID uint64, dlpID types.DlpID) (types.DlpPerformance, error)
}

// DistributionReader is the read side of the tranche distributor.
type DistributionReader interface {
	EpochRewardConfig(epochID uint64) (types.RewardDistributionConfig, bool)
	DlpDistribution(epochID uint64, dlpID types.DlpID) types.DlpDistribution
	InitializedEpochs() []uint64
	RewardParameters() (rewardPercentage, maxSlippage sdkmath.LegacyDec)
}

// RegistryReader lists registered DLPs.
type RegistryReader interface {
	All() []types.DlpInfo
}

type Options struct {
	ListenAddr   string
	Epochs       EpochReader
	Performance  PerformanceReader
	Distribution DistributionReader
	Registry     RegistryReader
	Blocks       chain.BlockSource
	// Pools that can be quoted, keyed by address.
	Pools map[common.Address]amm.PoolReader

	// Write routes are registered only for the components provided here. Callers sign every
	// request; MaxClockSkew bounds the age of the signed timestamp.
	EpochAdmin        EpochAdmin
	PerformanceAdmin  PerformanceAdmin
	DistributionAdmin DistributionAdmin
	MaxClockSkew      time.Duration
}

// WebServer serves the rewards API.
type WebServer struct {
	router *mux.Router
	opts   Options
}

// NewWebServer creates a new web server instance
func NewWebServer(opts Options) *WebServer {
	if opts.ListenAddr == "" {
		opts.ListenAddr = ":8080"
	}
	if opts.MaxClockSkew <= 0 {
		opts.MaxClockSkew = defaultMaxClockSkew
	}

	server := &WebServer{
		router: mux.NewRouter(),
		opts:   opts,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/epochs", ws.handleGetEpochs).Methods("GET")
	api.HandleFunc("/epochs/{id:[0-9]+}", ws.handleGetEpoch).Methods("GET")
	api.HandleFunc("/epochs/{id:[0-9]+}/dlps/{dlp:[0-9]+}", ws.handleGetEpochDlp).Methods("GET")
	api.HandleFunc("/epochs/{id:[0-9]+}/receipts", ws.handleGetEpochReceipts).Methods("GET")
	api.HandleFunc("/dlps", ws.handleGetDlps).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")
	api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/pools/{address}/quote", ws.handleGetQuote).Methods("GET")
	ws.setupAdminRoutes(api)

	ws.router.Use(ws.loggingMiddleware)
}

// Handler is the router behind CORS handling.
func (ws *WebServer) Handler() http.Handler {
	return ws.corsMiddleware(ws.router)
}

// Start serves until ctx is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("addr", ws.opts.ListenAddr).Msg("Starting web server")

	server := &http.Server{
		Addr:         ws.opts.ListenAddr,
		Handler:      ws.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			webLogger.Error().Err(err).Msg("Web server shutdown failed")
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var hasErrors bool
	blockInfo := map[string]interface{}{}
	if ws.opts.Blocks != nil {
		block, err := ws.opts.Blocks.BlockNumber(r.Context())
		if err != nil {
			hasErrors = true
			blockInfo["error"] = err.Error()
		} else {
			blockInfo["block_number"] = block
		}
	}

	dbStatus := "healthy"
	if err := state.TestDBConnection(); err != nil {
		if errors.Is(err, state.ErrNoDatabase) {
			dbStatus = "disabled"
		} else {
			dbStatus = "unhealthy"
			hasErrors = true
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
		},
		"rewards": map[string]interface{}{
			"database":       dbStatus,
			"chain":          blockInfo,
			"epochs_count":   ws.opts.Epochs.EpochsCount(),
			"last_epoch":     ws.opts.Epochs.LastEpoch(),
			"scoring_paused": ws.opts.Performance.Paused(),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetEpochs(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.opts.Epochs.Epochs())
}

// epochView is an epoch with its per-DLP allocations and tranche schedule.
type epochView struct {
	types.Epoch
	Dlps         []types.EpochDlp                `json:"dlps"`
	Distribution *types.RewardDistributionConfig `json:"distribution,omitempty"`
}

func (ws *WebServer) handleGetEpoch(w http.ResponseWriter, r *http.Request) {
	epochID, ok := ws.pathUint(w, r, "id")
	if !ok {
		return
	}
	epoch, err := ws.opts.Epochs.Epoch(epochID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	view := epochView{Epoch: epoch, Dlps: make([]types.EpochDlp, 0)}
	for _, dlpID := range ws.opts.Epochs.EpochDlpIDs(epochID) {
		view.Dlps = append(view.Dlps, ws.opts.Epochs.EpochDlp(epochID, dlpID))
	}
	if cfg, ok := ws.opts.Distribution.EpochRewardConfig(epochID); ok {
		view.Distribution = &cfg
	}
	ws.writeJSONResponse(w, http.StatusOK, view)
}

func (ws *WebServer) handleGetEpochDlp(w http.ResponseWriter, r *http.Request) {
	epochID, ok := ws.pathUint(w, r, "id")
	if !ok {
		return
	}
	dlp, ok := ws.pathUint(w, r, "dlp")
	if !ok {
		return
	}
	dlpID := types.DlpID(dlp)
	if _, err := ws.opts.Epochs.Epoch(epochID); err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	response := map[string]interface{}{
		"allocation":   ws.opts.Epochs.EpochDlp(epochID, dlpID),
		"distribution": ws.opts.Distribution.DlpDistribution(epochID, dlpID),
	}
	if perf, err := ws.opts.Performance.EpochDlpPerformance(epochID, dlpID); err == nil {
		response["performance"] = perf
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetDlps(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.opts.Registry.All())
}

func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	rewardPercentage, maxSlippage := ws.opts.Distribution.RewardParameters()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"metric_weights":              ws.opts.Performance.MetricWeights(),
		"reward_percentage":           rewardPercentage,
		"maximum_slippage_percentage": maxSlippage,
		"initialized_epochs":          ws.opts.Distribution.InitializedEpochs(),
	})
}

func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := state.GetRecentReceipts(r.Context(), queryLimit(r))
	if err != nil {
		ws.writeStateError(w, err, "Failed to retrieve receipts")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipts)
}

func (ws *WebServer) handleGetEpochReceipts(w http.ResponseWriter, r *http.Request) {
	epochID, ok := ws.pathUint(w, r, "id")
	if !ok {
		return
	}
	receipts, err := state.GetEpochReceipts(r.Context(), epochID)
	if err != nil {
		ws.writeStateError(w, err, "Failed to retrieve receipts")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipts)
}

func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := state.GetDistributionSummary(r.Context())
	if err != nil {
		ws.writeStateError(w, err, "Failed to retrieve distribution summary")
		return
	}
	epochs, err := state.GetEpochDistributions(r.Context(), queryLimit(r))
	if err != nil {
		ws.writeStateError(w, err, "Failed to retrieve epoch distributions")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"summary": summary,
		"epochs":  epochs,
	})
}

func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := state.GetRecentCycles(r.Context(), queryLimit(r))
	if err != nil {
		ws.writeStateError(w, err, "Failed to retrieve cycles")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycles)
}

func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := state.GetLatestCycle(r.Context())
	if err != nil {
		ws.writeStateError(w, err, "Failed to retrieve latest cycle")
		return
	}
	if cycle == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles recorded")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

// handleGetQuote quotes a slippage-bounded sale of amount_in of token_in into a pool.
func (ws *WebServer) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !common.IsHexAddress(address) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool address")
		return
	}
	pool, ok := ws.opts.Pools[common.HexToAddress(address)]
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "Unknown pool")
		return
	}

	query := r.URL.Query()
	tokenIn := query.Get("token_in")
	if !common.IsHexAddress(tokenIn) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid token_in")
		return
	}
	amountIn, ok := new(big.Int).SetString(query.Get("amount_in"), 10)
	if !ok || amountIn.Sign() < 0 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount_in")
		return
	}
	var maxSlippage sdkmath.LegacyDec
	if raw := query.Get("max_slippage"); raw != "" {
		parsed, err := utils.ParseFraction(raw)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid max_slippage")
			return
		}
		maxSlippage = parsed
	} else {
		_, maxSlippage = ws.opts.Distribution.RewardParameters()
	}

	quote, err := amm.QuoteSlippageExactInputSingle(r.Context(), pool, common.HexToAddress(tokenIn), amountIn, maxSlippage)
	if err != nil {
		if errors.Is(err, amm.ErrTokenNotInPool) {
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		webLogger.Error().Err(err).Str("pool", address).Msg("Failed to quote swap")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to quote swap")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, quote)
}

func (ws *WebServer) pathUint(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return v, true
}

func queryLimit(r *http.Request) int {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	return limit
}

func (ws *WebServer) writeStateError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, state.ErrNoDatabase) {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Database not configured")
		return
	}
	webLogger.Error().Err(err).Msg(message)
	ws.writeErrorResponse(w, http.StatusInternalServerError, message)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+HeaderCaller+", "+HeaderTimestamp+", "+HeaderSignature)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
