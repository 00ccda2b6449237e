package api

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pairdex/internal/ledger"
	"pairdex/internal/model"
)

var errInvalidCaller = errors.New("invalid caller")

type paymentRequest struct {
	Asset  string `json:"asset" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (r paymentRequest) payment() (model.Payment, error) {
	amount, err := model.ParseAmount(strings.TrimSpace(r.Amount))
	if err != nil {
		return model.Payment{}, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	return model.Payment{Asset: r.Asset, Amount: amount}, nil
}

type swapResponse struct {
	TokenID          string `json:"token_id"`
	AssetIn          string `json:"asset_in"`
	AmountIn         string `json:"amount_in"`
	AssetOut         string `json:"asset_out"`
	AmountOut        string `json:"amount_out"`
	Fee              string `json:"fee"`
	Correction       string `json:"correction"`
	CorrectionAmount string `json:"correction_amount"`
	K                string `json:"k"`
	InitialK         string `json:"initial_k"`
}

func newSwapResponse(r ledger.SwapResult) swapResponse {
	return swapResponse{
		TokenID:          r.TokenID,
		AssetIn:          r.AssetIn,
		AmountIn:         r.AmountIn.String(),
		AssetOut:         r.AssetOut,
		AmountOut:        r.AmountOut.String(),
		Fee:              r.Fee.String(),
		Correction:       r.Correction,
		CorrectionAmount: r.CorrectionAmount.String(),
		K:                r.K.String(),
		InitialK:         r.InitialK.String(),
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleFeeRate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"fee_rate":   s.ledger.FeeRate(),
		"base_asset": s.ledger.BaseAsset(),
		"owner":      s.ledger.Owner().Hex(),
	})
}

func (s *Server) handleListPairs(c *gin.Context) {
	pairs := s.ledger.Pairs()
	views := make([]model.PairView, 0, len(pairs))
	for _, p := range pairs {
		views = append(views, p.View())
	}
	c.JSON(http.StatusOK, gin.H{"pairs": views})
}

func (s *Server) handleGetPair(c *gin.Context) {
	p, err := s.ledger.Pair(c.Param("token"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p.View())
}

func (s *Server) handleStatus(c *gin.Context) {
	token := c.Param("token")
	c.JSON(http.StatusOK, gin.H{"token_id": token, "status": s.ledger.Status(token)})
}

func (s *Server) handleK(c *gin.Context) {
	token := c.Param("token")
	c.JSON(http.StatusOK, gin.H{"token_id": token, "k": s.ledger.CalculateK(token).String()})
}

func (s *Server) handleRatio(c *gin.Context) {
	token := c.Param("token")
	r, err := s.ledger.Ratio(token)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_id": token, "ratio": r.String()})
}

func (s *Server) handlePrice(c *gin.Context) {
	token := c.Param("token")
	dir, qty, ok := s.quoteParams(c)
	if !ok {
		return
	}
	withFee := true
	if raw := c.Query("fee"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			s.fail(c, fmt.Errorf("%w: fee must be true or false", ledger.ErrInvalidAmount))
			return
		}
		withFee = parsed
	}

	out, err := s.ledger.Quote(token, dir, qty, withFee)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token_id":   token,
		"direction":  dir,
		"qty":        qty.String(),
		"with_fee":   withFee,
		"amount_out": out.String(),
	})
}

func (s *Server) handleFee(c *gin.Context) {
	token := c.Param("token")
	dir, qty, ok := s.quoteParams(c)
	if !ok {
		return
	}
	fee, err := s.ledger.Fee(token, dir, qty)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token_id":  token,
		"direction": dir,
		"qty":       qty.String(),
		"fee":       fee.String(),
	})
}

func (s *Server) handlePriceParts(c *gin.Context) {
	token := c.Param("token")
	qty, ok := s.qtyParam(c)
	if !ok {
		return
	}
	num, err := s.ledger.PriceTokenToBaseNumerator(token, qty)
	if err != nil {
		s.fail(c, err)
		return
	}
	den, err := s.ledger.PriceTokenToBaseDenominator(token, qty)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token_id":    token,
		"qty":         qty.String(),
		"numerator":   num.String(),
		"denominator": den.String(),
	})
}

func (s *Server) handleEarnings(c *gin.Context) {
	asset := c.Param("asset")
	c.JSON(http.StatusOK, gin.H{"asset": asset, "earnings": s.ledger.Earnings(asset).String()})
}

func (s *Server) handleDepositToken(c *gin.Context) {
	caller, payment, ok := s.paymentCall(c)
	if !ok {
		return
	}
	if err := s.ledger.DepositToken(c.Request.Context(), caller, payment); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_id": payment.Asset, "status": s.ledger.Status(payment.Asset)})
}

func (s *Server) handleDepositBase(c *gin.Context) {
	token := c.Param("token")
	caller, payment, ok := s.paymentCall(c)
	if !ok {
		return
	}
	if err := s.ledger.DepositBase(c.Request.Context(), caller, token, payment); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_id": token, "status": s.ledger.Status(token)})
}

func (s *Server) handleWithdrawToken(c *gin.Context) {
	s.withdraw(c, s.ledger.WithdrawToken)
}

func (s *Server) handleWithdrawBase(c *gin.Context) {
	s.withdraw(c, s.ledger.WithdrawBase)
}

func (s *Server) handleSwapBaseForToken(c *gin.Context) {
	caller, payment, ok := s.paymentCall(c)
	if !ok {
		return
	}
	res, err := s.ledger.SwapBaseForToken(c.Request.Context(), caller, c.Param("token"), payment)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSwapResponse(res))
}

func (s *Server) handleSwapTokenForBase(c *gin.Context) {
	caller, payment, ok := s.paymentCall(c)
	if !ok {
		return
	}
	res, err := s.ledger.SwapTokenForBase(c.Request.Context(), caller, payment)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSwapResponse(res))
}

func (s *Server) handleClaimEarnings(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	asset := c.Param("asset")
	amount, err := s.ledger.ClaimEarnings(c.Request.Context(), caller, asset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset, "amount": amount.String()})
}

type withdrawFunc func(ctx context.Context, caller common.Address, tokenID string) (*big.Int, error)

func (s *Server) withdraw(c *gin.Context, fn withdrawFunc) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	token := c.Param("token")
	amount, err := fn(c.Request.Context(), caller, token)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_id": token, "amount": amount.String(), "status": s.ledger.Status(token)})
}

func (s *Server) caller(c *gin.Context) (common.Address, bool) {
	raw := strings.TrimSpace(c.GetHeader(CallerHeader))
	if !common.IsHexAddress(raw) {
		s.fail(c, fmt.Errorf("%w: %s header must be a hex address", errInvalidCaller, CallerHeader))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) paymentCall(c *gin.Context) (common.Address, model.Payment, bool) {
	caller, ok := s.caller(c)
	if !ok {
		return common.Address{}, model.Payment{}, false
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err))
		return common.Address{}, model.Payment{}, false
	}
	payment, err := req.payment()
	if err != nil {
		s.fail(c, err)
		return common.Address{}, model.Payment{}, false
	}
	return caller, payment, true
}

func (s *Server) quoteParams(c *gin.Context) (ledger.Direction, *big.Int, bool) {
	dir, err := ledger.ParseDirection(c.Param("direction"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_direction", "message": err.Error()})
		return "", nil, false
	}
	qty, ok := s.qtyParam(c)
	return dir, qty, ok
}

func (s *Server) qtyParam(c *gin.Context) (*big.Int, bool) {
	raw := c.Query("qty")
	if raw == "" {
		s.fail(c, fmt.Errorf("%w: qty is required", ledger.ErrInvalidAmount))
		return nil, false
	}
	qty, err := model.ParseAmount(raw)
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err))
		return nil, false
	}
	return qty, true
}

func (s *Server) fail(c *gin.Context, err error) {
	kind := ledger.Kind(err)
	if errors.Is(err, errInvalidCaller) {
		kind = "invalid_caller"
	}
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("api call failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": kind, "message": err.Error()})
}

func statusFor(kind string) int {
	switch kind {
	case "unauthorized":
		return http.StatusForbidden
	case "pair_already_funded", "pair_still_funding":
		return http.StatusConflict
	case "asset_mismatch", "invalid_amount", "invalid_caller":
		return http.StatusBadRequest
	case "unknown_pair":
		return http.StatusNotFound
	case "insufficient_liquidity":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
