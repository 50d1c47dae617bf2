package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/elys-network/dlprewards/internal/access"
	"github.com/elys-network/dlprewards/internal/distributor"
	"github.com/elys-network/dlprewards/internal/epoch"
	"github.com/elys-network/dlprewards/internal/performance"
	"github.com/elys-network/dlprewards/internal/types"
)

const maxRequestBody = 1 << 20

// EpochAdmin is the maintainer side of the epoch manager.
type EpochAdmin interface {
	AddEpochDlpBonusAmount(ctx context.Context, caller common.Address, epochID uint64, dlpID types.DlpID, amount sdkmath.Int) error
	OverrideEpochDlpBonusAmount(ctx context.Context, caller common.Address, epochID uint64, dlpID types.DlpID, amount sdkmath.Int) error
	SetLastEpoch(ctx context.Context, caller common.Address, n uint64) error
}

// PerformanceAdmin is the scoring manager and maintainer side of the scorer.
type PerformanceAdmin interface {
	SaveEpochPerformances(ctx context.Context, caller common.Address, epochID uint64, entries []types.PerformanceInput) error
	UpdateMetricWeights(ctx context.Context, caller common.Address, weights types.MetricWeights) error
	ConfirmEpochFinalScores(ctx context.Context, caller common.Address, epochID uint64) error
	Pause(ctx context.Context, caller common.Address) error
	Unpause(ctx context.Context, caller common.Address) error
}

// DistributionAdmin is the maintainer and reward deployer side of the distributor.
type DistributionAdmin interface {
	InitializeEpochRewards(ctx context.Context, caller common.Address, epochID, intervalBlocks, numberOfTranches, remediationWindowBlocks uint64) error
	DistributeRewards(ctx context.Context, caller common.Address, epochID uint64, dlpIDs []types.DlpID) ([]types.TrancheReceipt, error)
	SetRewardParameters(ctx context.Context, caller common.Address, rewardPercentage, maxSlippage sdkmath.LegacyDec) error
}

type signedHandler func(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte)

type bonusRequest struct {
	Amount sdkmath.Int `json:"amount"`
}

type lastEpochRequest struct {
	LastEpoch uint64 `json:"last_epoch"`
}

type performancesRequest struct {
	Performances []types.PerformanceInput `json:"performances"`
}

type initializeRequest struct {
	IntervalBlocks          uint64 `json:"interval_blocks"`
	NumberOfTranches        uint64 `json:"number_of_tranches"`
	RemediationWindowBlocks uint64 `json:"remediation_window_blocks"`
}

type distributeRequest struct {
	DlpIDs []types.DlpID `json:"dlp_ids"`
}

type rewardParametersRequest struct {
	RewardPercentage          sdkmath.LegacyDec `json:"reward_percentage"`
	MaximumSlippagePercentage sdkmath.LegacyDec `json:"maximum_slippage_percentage"`
}

// setupAdminRoutes registers the signed write routes of every component that was provided.
func (ws *WebServer) setupAdminRoutes(api *mux.Router) {
	if ws.opts.EpochAdmin != nil {
		api.HandleFunc("/epochs/{id:[0-9]+}/dlps/{dlp:[0-9]+}/bonus", ws.signed(ws.handleAddBonus)).Methods("POST")
		api.HandleFunc("/epochs/{id:[0-9]+}/dlps/{dlp:[0-9]+}/bonus", ws.signed(ws.handleOverrideBonus)).Methods("PUT")
		api.HandleFunc("/last-epoch", ws.signed(ws.handleSetLastEpoch)).Methods("PUT")
	}
	if ws.opts.PerformanceAdmin != nil {
		api.HandleFunc("/epochs/{id:[0-9]+}/performances", ws.signed(ws.handleSavePerformances)).Methods("POST")
		api.HandleFunc("/epochs/{id:[0-9]+}/finalize", ws.signed(ws.handleConfirmScores)).Methods("POST")
		api.HandleFunc("/metric-weights", ws.signed(ws.handleUpdateWeights)).Methods("PUT")
		api.HandleFunc("/scoring/pause", ws.signed(ws.handlePause)).Methods("POST")
		api.HandleFunc("/scoring/unpause", ws.signed(ws.handleUnpause)).Methods("POST")
	}
	if ws.opts.DistributionAdmin != nil {
		api.HandleFunc("/epochs/{id:[0-9]+}/rewards", ws.signed(ws.handleInitializeRewards)).Methods("POST")
		api.HandleFunc("/epochs/{id:[0-9]+}/distribute", ws.signed(ws.handleDistribute)).Methods("POST")
		api.HandleFunc("/parameters", ws.signed(ws.handleSetRewardParameters)).Methods("PUT")
	}
}

// signed reads the body, verifies the caller's signature over it and hands the recovered caller on.
// Role checks stay with the component being called.
func (ws *WebServer) signed(next signedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		caller, err := verifyRequest(r.Method, r.URL.Path,
			r.Header.Get(HeaderCaller), r.Header.Get(HeaderTimestamp), r.Header.Get(HeaderSignature),
			body, time.Now(), ws.opts.MaxClockSkew)
		if err != nil {
			webLogger.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected unsigned request")
			ws.writeErrorResponse(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r, caller, body)
	}
}

func (ws *WebServer) handleAddBonus(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	ws.handleBonus(w, r, caller, body, ws.opts.EpochAdmin.AddEpochDlpBonusAmount)
}

func (ws *WebServer) handleOverrideBonus(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	ws.handleBonus(w, r, caller, body, ws.opts.EpochAdmin.OverrideEpochDlpBonusAmount)
}

func (ws *WebServer) handleBonus(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte,
	apply func(context.Context, common.Address, uint64, types.DlpID, sdkmath.Int) error,
) {
	epochID, ok := ws.pathUint(w, r, "id")
	if !ok {
		return
	}
	dlp, ok := ws.pathUint(w, r, "dlp")
	if !ok {
		return
	}
	var req bonusRequest
	if !ws.decodeBody(w, body, &req) {
		return
	}
	if req.Amount.IsNil() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Missing amount")
		return
	}
	if err := apply(r.Context(), caller, epochID, types.DlpID(dlp), req.Amount); err != nil {
		ws.writeCommandError(w, err, "Failed to update bonus")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.opts.Epochs.EpochDlp(epochID, types.DlpID(dlp)))
}

func (ws *WebServer) handleSetLastEpoch(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	var req lastEpochRequest
	if !ws.decodeBody(w, body, &req) {
		return
	}
	if err := ws.opts.EpochAdmin.SetLastEpoch(r.Context(), caller, req.LastEpoch); err != nil {
		ws.writeCommandError(w, err, "Failed to set last epoch")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"last_epoch": ws.opts.Epochs.LastEpoch()})
}

func (ws *WebServer) handleSavePerformances(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	epochID, ok := ws.pathUint(w, r, "id")
	if !ok {
		return
	}
	var req performancesRequest
	if !ws.decodeBody(w, body, &req) {
		return
	}
	if err := ws.opts.PerformanceAdmin.SaveEpochPerformances(r.Context(), caller, epochID, req.Performances); err != nil {
		ws.writeCommandError(w, err, "Failed to save performances")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"epoch_id": epochID,
		"saved":    len(req.Performances),
	})
}

func (ws *WebServer) handleConfirmScores(w http.ResponseWriter, r *http.Request, caller common.Address, _ []byte) {
	epochID, ok := ws.pathUint(w, r, "id")
	if !ok {
		return
	}
	if err := ws.opts.PerformanceAdmin.ConfirmEpochFinalScores(r.Context(), caller, epochID); err != nil {
		ws.writeCommandError(w, err, "Failed to confirm final scores")
		return
	}
	finalized, err := ws.opts.Epochs.Epoch(epochID)
	if err != nil {
		ws.writeCommandError(w, err, "Failed to read epoch")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, finalized)
}

func (ws *WebServer) handleUpdateWeights(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	var weights types.MetricWeights
	if !ws.decodeBody(w, body, &weights) {
		return
	}
	if weights.TradingVolume.IsNil() || weights.UniqueContributors.IsNil() || weights.DataAccessFees.IsNil() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "All three metric weights are required")
		return
	}
	if err := ws.opts.PerformanceAdmin.UpdateMetricWeights(r.Context(), caller, weights); err != nil {
		ws.writeCommandError(w, err, "Failed to update metric weights")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.opts.Performance.MetricWeights())
}

func (ws *WebServer) handlePause(w http.ResponseWriter, r *http.Request, caller common.Address, _ []byte) {
	if err := ws.opts.PerformanceAdmin.Pause(r.Context(), caller); err != nil {
		ws.writeCommandError(w, err, "Failed to pause scoring")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"paused": ws.opts.Performance.Paused()})
}

func (ws *WebServer) handleUnpause(w http.ResponseWriter, r *http.Request, caller common.Address, _ []byte) {
	if err := ws.opts.PerformanceAdmin.Unpause(r.Context(), caller); err != nil {
		ws.writeCommandError(w, err, "Failed to unpause scoring")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"paused": ws.opts.Performance.Paused()})
}

func (ws *WebServer) handleInitializeRewards(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	epochID, ok := ws.pathUint(w, r, "id")
	if !ok {
		return
	}
	var req initializeRequest
	if !ws.decodeBody(w, body, &req) {
		return
	}
	err := ws.opts.DistributionAdmin.InitializeEpochRewards(r.Context(), caller, epochID,
		req.IntervalBlocks, req.NumberOfTranches, req.RemediationWindowBlocks)
	if err != nil {
		ws.writeCommandError(w, err, "Failed to initialize epoch rewards")
		return
	}
	cfg, _ := ws.opts.Distribution.EpochRewardConfig(epochID)
	ws.writeJSONResponse(w, http.StatusOK, cfg)
}

func (ws *WebServer) handleDistribute(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	epochID, ok := ws.pathUint(w, r, "id")
	if !ok {
		return
	}
	var req distributeRequest
	if !ws.decodeBody(w, body, &req) {
		return
	}
	if len(req.DlpIDs) == 0 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "dlp_ids is required")
		return
	}
	receipts, err := ws.opts.DistributionAdmin.DistributeRewards(r.Context(), caller, epochID, req.DlpIDs)
	if err != nil {
		ws.writeCommandError(w, err, "Failed to distribute rewards")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipts)
}

func (ws *WebServer) handleSetRewardParameters(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	var req rewardParametersRequest
	if !ws.decodeBody(w, body, &req) {
		return
	}
	if req.RewardPercentage.IsNil() || req.MaximumSlippagePercentage.IsNil() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Both reward parameters are required")
		return
	}
	err := ws.opts.DistributionAdmin.SetRewardParameters(r.Context(), caller, req.RewardPercentage, req.MaximumSlippagePercentage)
	if err != nil {
		ws.writeCommandError(w, err, "Failed to set reward parameters")
		return
	}
	ws.handleGetParameters(w, r)
}

func (ws *WebServer) decodeBody(w http.ResponseWriter, body []byte, v interface{}) bool {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeCommandError maps component errors onto HTTP statuses. Everything the components reject
// that is not an authorization, lookup or ordering problem is reported as unprocessable.
func (ws *WebServer) writeCommandError(w http.ResponseWriter, err error, message string) {
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, epoch.ErrEpochNotFound),
		errors.Is(err, performance.ErrPerformanceNotFound),
		errors.Is(err, distributor.ErrNotInitialized):
		status = http.StatusNotFound
	case errors.Is(err, epoch.ErrEpochAlreadyFinalized),
		errors.Is(err, epoch.ErrLastEpochAlreadySet),
		errors.Is(err, performance.ErrPaused),
		errors.Is(err, performance.ErrNotPaused),
		errors.Is(err, performance.ErrEpochNotEnded),
		errors.Is(err, distributor.ErrEpochNotFinalized),
		errors.Is(err, distributor.ErrAlreadyInitialized),
		errors.Is(err, distributor.ErrNotYetEligible),
		errors.Is(err, distributor.ErrDistributionCompleted):
		status = http.StatusConflict
	}
	webLogger.Warn().Err(err).Int("status", status).Msg(message)
	ws.writeErrorResponse(w, status, message+": "+err.Error())
}
