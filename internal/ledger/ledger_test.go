package ledger

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pairdex/internal/metrics"
	"pairdex/internal/model"
)

const (
	base  = "NATIVE"
	token = "TOK-a1b2c3"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	trader = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type recordingSink struct {
	mu        sync.Mutex
	transfers []model.Transfer
	err       error
}

func (s *recordingSink) Transfer(_ context.Context, t model.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.transfers = append(s.transfers, t)
	return nil
}

func (s *recordingSink) all() []model.Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Transfer(nil), s.transfers...)
}

type memStore struct {
	mu      sync.Mutex
	pairs   map[string]model.Pair
	feeRate *uint32
	err     error
	failOn  string
}

func newMemStore() *memStore {
	return &memStore{pairs: make(map[string]model.Pair)}
}

func (m *memStore) LoadPairs(context.Context) ([]model.Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Pair, 0, len(m.pairs))
	for _, p := range m.pairs {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *memStore) SavePair(ctx context.Context, p model.Pair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.failOn != "" && m.failOn == p.TokenID {
		return errors.New("write failed for " + p.TokenID)
	}
	m.pairs[p.TokenID] = p.Clone()
	return nil
}

func (m *memStore) LoadFeeRate(context.Context) (uint32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.feeRate == nil {
		return 0, false, nil
	}
	return *m.feeRate, true, nil
}

func (m *memStore) SaveFeeRate(_ context.Context, fee uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeRate = &fee
	return nil
}

// cancelingSink cancels the caller's context and fails, like a client that disconnects mid-settlement.
type cancelingSink struct {
	cancel context.CancelFunc
}

func (s cancelingSink) Transfer(ctx context.Context, _ model.Transfer) error {
	s.cancel()
	return ctx.Err()
}

func (m *memStore) pair(id string) model.Pair {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pairs[id].Clone()
}

func newTestLedger(t *testing.T, fee uint32) (*Ledger, *recordingSink, *memStore) {
	t.Helper()
	sink := &recordingSink{}
	store := newMemStore()
	l, err := Open(context.Background(), Config{Owner: owner, FeeRate: fee, BaseAsset: base}, store, sink, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	require.NoError(t, err)
	return l, sink, store
}

func pay(asset string, amount int64) model.Payment {
	return model.Payment{Asset: asset, Amount: big.NewInt(amount)}
}

func fund(t *testing.T, l *Ledger, tokenID string, tokenLiq, baseLiq int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, l.DepositToken(ctx, owner, pay(tokenID, tokenLiq)))
	require.NoError(t, l.DepositBase(ctx, owner, tokenID, pay(base, baseLiq)))
	require.Equal(t, model.StatusSuccessful, l.Status(tokenID))
}

func requireInt(t *testing.T, want int64, got *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	require.NotNil(t, got, msgAndArgs...)
	require.Equal(t, big.NewInt(want).String(), got.String(), msgAndArgs...)
}

func TestReferenceSwapBaseForToken(t *testing.T) {
	l, sink, store := newTestLedger(t, 5)
	fund(t, l, token, 1_000_000, 10_000)

	withFee, err := l.PriceBaseToToken(token, big.NewInt(100))
	require.NoError(t, err)
	requireInt(t, 9851, withFee)
	noFee, err := l.PriceBaseToTokenNoFee(token, big.NewInt(100))
	require.NoError(t, err)
	requireInt(t, 9900, noFee)
	fee, err := l.FeeBaseToToken(token, big.NewInt(100))
	require.NoError(t, err)
	requireInt(t, 49, fee)

	res, err := l.SwapBaseForToken(context.Background(), trader, token, pay(base, 100))
	require.NoError(t, err)
	requireInt(t, 9851, res.AmountOut)
	requireInt(t, 49, res.Fee)
	require.Equal(t, CorrectionDown, res.Correction)
	requireInt(t, 98, res.CorrectionAmount)
	requireInt(t, 9_999_020_200, res.K)
	requireInt(t, 10_000_000_000, res.InitialK)

	p, err := l.Pair(token)
	require.NoError(t, err)
	requireInt(t, 990_002, p.TokenLiquidity)
	requireInt(t, 10_100, p.BaseLiquidity)
	requireInt(t, 147, p.TokenEarnings)
	requireInt(t, 0, p.BaseEarnings)
	requireInt(t, 10_000_000_000, p.InitialK)

	transfers := sink.all()
	require.Len(t, transfers, 1)
	require.Equal(t, trader.Hex(), transfers[0].Recipient)
	require.Equal(t, token, transfers[0].Asset)
	require.Equal(t, "9851", transfers[0].Amount)
	require.Equal(t, model.ReasonSwapOut, transfers[0].Reason)

	requireInt(t, 990_002, store.pair(token).TokenLiquidity)
}

func TestSwapTokenForBase(t *testing.T) {
	l, sink, _ := newTestLedger(t, 5)
	fund(t, l, token, 1_000_000, 10_000)

	res, err := l.SwapTokenForBase(context.Background(), trader, pay(token, 10_000))
	require.NoError(t, err)
	requireInt(t, 98, res.AmountOut)
	require.Equal(t, base, res.AssetOut)
	require.Equal(t, CorrectionDown, res.Correction)

	p, err := l.Pair(token)
	require.NoError(t, err)
	requireInt(t, 1_010_000, p.TokenLiquidity)
	requireInt(t, 9_799, p.BaseLiquidity)
	requireInt(t, 0, p.TokenEarnings)
	requireInt(t, 103, p.BaseEarnings)

	transfers := sink.all()
	require.Len(t, transfers, 1)
	require.Equal(t, base, transfers[0].Asset)
	require.Equal(t, "98", transfers[0].Amount)
}

func TestRoundTripDoesNotFavorTrader(t *testing.T) {
	cases := []struct {
		name          string
		fee           uint32
		tokenLiq      int64
		baseLiq       int64
		in            int64
		wantOut       int64
		wantBack      int64
		wantBackKind  string
		wantTokenLiq  int64
		wantBaseLiq   int64
		wantTokenEarn int64
		wantBaseEarn  int64
	}{
		{"skewed", 5, 1_000_000, 10_000, 100, 9851, 99, CorrectionUpClamped, 999_853, 10_001, 147, 0},
		{"balanced", 3, 1_000_000, 1_000_000, 10_000, 9871, 9940, CorrectionUp, 999_970, 1_000_031, 30, 29},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _, _ := newTestLedger(t, tc.fee)
			fund(t, l, token, tc.tokenLiq, tc.baseLiq)
			ctx := context.Background()

			out, err := l.SwapBaseForToken(ctx, trader, token, pay(base, tc.in))
			require.NoError(t, err)
			requireInt(t, tc.wantOut, out.AmountOut)

			back, err := l.SwapTokenForBase(ctx, trader, model.Payment{Asset: token, Amount: out.AmountOut})
			require.NoError(t, err)
			requireInt(t, tc.wantBack, back.AmountOut)
			require.LessOrEqual(t, back.AmountOut.Int64(), tc.in)
			require.Equal(t, tc.wantBackKind, back.Correction)

			p, err := l.Pair(token)
			require.NoError(t, err)
			requireInt(t, tc.wantTokenLiq, p.TokenLiquidity)
			requireInt(t, tc.wantBaseLiq, p.BaseLiquidity)
			requireInt(t, tc.wantTokenEarn, p.TokenEarnings)
			requireInt(t, tc.wantBaseEarn, p.BaseEarnings)
		})
	}
}

func TestFundingTransitionFreezesInitialK(t *testing.T) {
	l, _, _ := newTestLedger(t, 3)
	ctx := context.Background()

	require.NoError(t, l.DepositToken(ctx, owner, pay(token, 500)))
	require.Equal(t, model.StatusFunding, l.Status(token))
	p, err := l.Pair(token)
	require.NoError(t, err)
	requireInt(t, 0, p.InitialK)

	require.NoError(t, l.DepositToken(ctx, owner, pay(token, 500)))
	require.NoError(t, l.DepositBase(ctx, owner, token, pay(base, 2_000)))
	require.Equal(t, model.StatusSuccessful, l.Status(token))

	p, err = l.Pair(token)
	require.NoError(t, err)
	requireInt(t, 2_000_000, p.InitialK)

	for i := 0; i < 20; i++ {
		_, err := l.SwapBaseForToken(ctx, trader, token, pay(base, 7))
		require.NoError(t, err)
		_, err = l.SwapTokenForBase(ctx, trader, pay(token, 3))
		require.NoError(t, err)
	}
	p, err = l.Pair(token)
	require.NoError(t, err)
	requireInt(t, 2_000_000, p.InitialK)
}

func TestZeroDepositNeverFunds(t *testing.T) {
	l, _, _ := newTestLedger(t, 3)
	ctx := context.Background()

	require.NoError(t, l.DepositToken(ctx, owner, pay(token, 0)))
	require.NoError(t, l.DepositBase(ctx, owner, token, pay(base, 0)))
	require.Equal(t, model.StatusFunding, l.Status(token))

	require.NoError(t, l.DepositToken(ctx, owner, pay(token, 100)))
	require.NoError(t, l.DepositBase(ctx, owner, token, pay(base, 0)))
	require.Equal(t, model.StatusFunding, l.Status(token))

	p, err := l.Pair(token)
	require.NoError(t, err)
	requireInt(t, 0, p.InitialK)
}

func TestDepositAfterFundedRejected(t *testing.T) {
	l, _, store := newTestLedger(t, 3)
	fund(t, l, token, 1_000, 1_000)
	ctx := context.Background()
	before := store.pair(token)

	err := l.DepositToken(ctx, owner, pay(token, 10))
	require.ErrorIs(t, err, ErrPairAlreadyFunded)
	err = l.DepositBase(ctx, owner, token, pay(base, 10))
	require.ErrorIs(t, err, ErrPairAlreadyFunded)
	require.Equal(t, "pair_already_funded", Kind(err))

	p, err := l.Pair(token)
	require.NoError(t, err)
	require.Equal(t, before.View(), p.View())
}

func TestOwnerOnlyOperations(t *testing.T) {
	l, sink, _ := newTestLedger(t, 3)
	fund(t, l, token, 1_000_000, 10_000)
	ctx := context.Background()
	_, err := l.SwapBaseForToken(ctx, trader, token, pay(base, 100))
	require.NoError(t, err)
	before, err := l.Pair(token)
	require.NoError(t, err)
	transfers := len(sink.all())

	require.ErrorIs(t, l.DepositToken(ctx, trader, pay("OTHER", 1)), ErrUnauthorized)
	require.ErrorIs(t, l.DepositBase(ctx, trader, "OTHER", pay(base, 1)), ErrUnauthorized)
	_, err = l.WithdrawToken(ctx, trader, token)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = l.WithdrawBase(ctx, trader, token)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = l.ClaimEarnings(ctx, trader, token)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = l.ClaimEarnings(ctx, trader, base)
	require.ErrorIs(t, err, ErrUnauthorized)

	after, err := l.Pair(token)
	require.NoError(t, err)
	require.Equal(t, before.View(), after.View())
	require.Len(t, sink.all(), transfers)
	require.Equal(t, model.StatusFunding, l.Status("OTHER"))
}

func TestAssetMismatch(t *testing.T) {
	l, _, _ := newTestLedger(t, 3)
	fund(t, l, token, 1_000, 1_000)
	ctx := context.Background()

	require.ErrorIs(t, l.DepositToken(ctx, owner, pay(base, 10)), ErrAssetMismatch)
	require.ErrorIs(t, l.DepositBase(ctx, owner, "OTHER", pay("OTHER", 10)), ErrAssetMismatch)
	_, err := l.SwapBaseForToken(ctx, trader, token, pay(token, 10))
	require.ErrorIs(t, err, ErrAssetMismatch)
	_, err = l.SwapTokenForBase(ctx, trader, pay(base, 10))
	require.ErrorIs(t, err, ErrAssetMismatch)
	require.Equal(t, "asset_mismatch", Kind(err))
}

func TestSwapWhileFunding(t *testing.T) {
	l, sink, _ := newTestLedger(t, 3)
	ctx := context.Background()

	_, err := l.SwapBaseForToken(ctx, trader, token, pay(base, 10))
	require.ErrorIs(t, err, ErrPairStillFunding)

	require.NoError(t, l.DepositToken(ctx, owner, pay(token, 1_000)))
	_, err = l.SwapTokenForBase(ctx, trader, pay(token, 10))
	require.ErrorIs(t, err, ErrPairStillFunding)
	_, err = l.SwapBaseForToken(ctx, trader, token, pay(base, 10))
	require.ErrorIs(t, err, ErrPairStillFunding)

	p, err := l.Pair(token)
	require.NoError(t, err)
	requireInt(t, 1_000, p.TokenLiquidity)
	require.Empty(t, sink.all())

	_, err = l.Ratio(token)
	require.ErrorIs(t, err, ErrPairStillFunding)
}

func TestInvalidAmounts(t *testing.T) {
	l, _, _ := newTestLedger(t, 3)
	fund(t, l, token, 1_000, 1_000)
	ctx := context.Background()

	_, err := l.SwapBaseForToken(ctx, trader, token, pay(base, 0))
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = l.SwapTokenForBase(ctx, trader, model.Payment{Asset: token})
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.ErrorIs(t, l.DepositToken(ctx, owner, pay("OTHER", -1)), ErrInvalidAmount)
	_, err = l.PriceTokenToBase(token, big.NewInt(-5))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestClaimEarningsIdempotent(t *testing.T) {
	l, sink, _ := newTestLedger(t, 5)
	fund(t, l, token, 1_000_000, 10_000)
	ctx := context.Background()

	_, err := l.SwapBaseForToken(ctx, trader, token, pay(base, 100))
	require.NoError(t, err)
	_, err = l.SwapTokenForBase(ctx, trader, pay(token, 10_000))
	require.NoError(t, err)

	tokenEarned := l.Earnings(token)
	require.Positive(t, tokenEarned.Sign())

	claimed, err := l.ClaimEarnings(ctx, owner, token)
	require.NoError(t, err)
	require.Equal(t, tokenEarned.String(), claimed.String())

	again, err := l.ClaimEarnings(ctx, owner, token)
	require.NoError(t, err)
	requireInt(t, 0, again)

	baseEarned := l.Earnings(base)
	require.Positive(t, baseEarned.Sign())
	claimed, err = l.ClaimEarnings(ctx, owner, base)
	require.NoError(t, err)
	require.Equal(t, baseEarned.String(), claimed.String())
	again, err = l.ClaimEarnings(ctx, owner, base)
	require.NoError(t, err)
	requireInt(t, 0, again)

	transfers := sink.all()
	require.Len(t, transfers, 4)
	require.Equal(t, model.ReasonClaimEarnings, transfers[2].Reason)
	require.Equal(t, owner.Hex(), transfers[2].Recipient)
	require.Equal(t, base, transfers[3].Asset)

	unknown, err := l.ClaimEarnings(ctx, owner, "NOPE")
	require.NoError(t, err)
	requireInt(t, 0, unknown)
}

func TestClaimBaseEarningsSweepsAllPairs(t *testing.T) {
	l, sink, _ := newTestLedger(t, 30)
	fund(t, l, "AAA", 1_000_000, 1_000_000)
	fund(t, l, "BBB", 1_000_000, 1_000_000)
	ctx := context.Background()

	_, err := l.SwapTokenForBase(ctx, trader, pay("AAA", 50_000))
	require.NoError(t, err)
	_, err = l.SwapTokenForBase(ctx, trader, pay("BBB", 20_000))
	require.NoError(t, err)

	a, err := l.Pair("AAA")
	require.NoError(t, err)
	b, err := l.Pair("BBB")
	require.NoError(t, err)
	want := new(big.Int).Add(a.BaseEarnings, b.BaseEarnings)
	require.Positive(t, a.BaseEarnings.Sign())
	require.Positive(t, b.BaseEarnings.Sign())

	claimed, err := l.ClaimEarnings(ctx, owner, base)
	require.NoError(t, err)
	require.Equal(t, want.String(), claimed.String())

	for _, id := range []string{"AAA", "BBB"} {
		p, err := l.Pair(id)
		require.NoError(t, err)
		requireInt(t, 0, p.BaseEarnings)
	}
	transfers := sink.all()
	require.Equal(t, want.String(), transfers[len(transfers)-1].Amount)
}

func TestWithdrawResetsToFunding(t *testing.T) {
	l, sink, _ := newTestLedger(t, 3)
	fund(t, l, token, 1_000, 4_000)
	ctx := context.Background()

	got, err := l.WithdrawToken(ctx, owner, token)
	require.NoError(t, err)
	requireInt(t, 1_000, got)
	require.Equal(t, model.StatusFunding, l.Status(token))

	again, err := l.WithdrawToken(ctx, owner, token)
	require.NoError(t, err)
	requireInt(t, 0, again)

	p, err := l.Pair(token)
	require.NoError(t, err)
	requireInt(t, 0, p.InitialK)
	requireInt(t, 4_000, p.BaseLiquidity)

	require.NoError(t, l.DepositToken(ctx, owner, pay(token, 10)))
	p, err = l.Pair(token)
	require.NoError(t, err)
	requireInt(t, 40_000, p.InitialK)

	baseOut, err := l.WithdrawBase(ctx, owner, token)
	require.NoError(t, err)
	requireInt(t, 4_000, baseOut)

	transfers := sink.all()
	require.Len(t, transfers, 2)
	require.Equal(t, model.ReasonWithdrawToken, transfers[0].Reason)
	require.Equal(t, token, transfers[0].Asset)
	require.Equal(t, model.ReasonWithdrawBase, transfers[1].Reason)
	require.Equal(t, base, transfers[1].Asset)
}

func TestSettlementFailureRollsBack(t *testing.T) {
	l, sink, store := newTestLedger(t, 5)
	fund(t, l, token, 1_000_000, 10_000)
	ctx := context.Background()
	before := store.pair(token).View()

	sink.err = errors.New("transfer rejected")
	_, err := l.SwapBaseForToken(ctx, trader, token, pay(base, 100))
	require.Error(t, err)
	_, err = l.WithdrawBase(ctx, owner, token)
	require.Error(t, err)

	p, err := l.Pair(token)
	require.NoError(t, err)
	require.Equal(t, before, p.View())
	require.Equal(t, before, store.pair(token).View())
}

func TestPersistFailureRollsBack(t *testing.T) {
	l, sink, store := newTestLedger(t, 5)
	fund(t, l, token, 1_000_000, 10_000)
	ctx := context.Background()
	before, err := l.Pair(token)
	require.NoError(t, err)

	store.err = errors.New("disk full")
	_, err = l.SwapBaseForToken(ctx, trader, token, pay(base, 100))
	require.Error(t, err)
	require.Equal(t, "internal", Kind(err))

	after, err := l.Pair(token)
	require.NoError(t, err)
	require.Equal(t, before.View(), after.View())
	require.Empty(t, sink.all())
}

func TestOpenRestoresState(t *testing.T) {
	l, _, store := newTestLedger(t, 5)
	fund(t, l, token, 1_000_000, 10_000)
	_, err := l.SwapBaseForToken(context.Background(), trader, token, pay(base, 100))
	require.NoError(t, err)
	want, err := l.Pair(token)
	require.NoError(t, err)

	reopened, err := Open(context.Background(), Config{Owner: owner, FeeRate: 30, BaseAsset: base}, store, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(5), reopened.FeeRate())

	got, err := reopened.Pair(token)
	require.NoError(t, err)
	require.Equal(t, want.View(), got.View())
}

func TestOpenValidation(t *testing.T) {
	_, err := Open(context.Background(), Config{FeeRate: 3}, nil, nil, nil, nil)
	require.Error(t, err)
	_, err = Open(context.Background(), Config{Owner: owner, FeeRate: 1000}, nil, nil, nil, nil)
	require.Error(t, err)

	l, err := Open(context.Background(), Config{Owner: owner}, nil, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultBaseAsset, l.BaseAsset())
}

func TestSwapsConserveBalances(t *testing.T) {
	l, sink, _ := newTestLedger(t, 3)
	const tokenLiq, baseLiq = 50_000_000, 2_000_000
	fund(t, l, token, tokenLiq, baseLiq)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	tokenIn, baseIn := new(big.Int), new(big.Int)
	for i := 0; i < 500; i++ {
		amount := big.NewInt(rng.Int63n(50_000) + 1)
		if rng.Intn(2) == 0 {
			_, err := l.SwapBaseForToken(ctx, trader, token, model.Payment{Asset: base, Amount: amount})
			if errors.Is(err, ErrInsufficientLiquidity) {
				continue
			}
			require.NoError(t, err)
			baseIn.Add(baseIn, amount)
		} else {
			_, err := l.SwapTokenForBase(ctx, trader, model.Payment{Asset: token, Amount: amount})
			if errors.Is(err, ErrInsufficientLiquidity) {
				continue
			}
			require.NoError(t, err)
			tokenIn.Add(tokenIn, amount)
		}

		p, err := l.Pair(token)
		require.NoError(t, err)
		for _, v := range []*big.Int{p.TokenLiquidity, p.BaseLiquidity, p.TokenEarnings, p.BaseEarnings} {
			require.GreaterOrEqual(t, v.Sign(), 0)
		}
		requireInt(t, tokenLiq*baseLiq, p.InitialK)
	}

	paid := map[string]*big.Int{token: new(big.Int), base: new(big.Int)}
	for _, tr := range sink.all() {
		amount, ok := new(big.Int).SetString(tr.Amount, 10)
		require.True(t, ok)
		paid[tr.Asset].Add(paid[tr.Asset], amount)
	}

	p, err := l.Pair(token)
	require.NoError(t, err)
	tokenHeld := new(big.Int).Add(p.TokenLiquidity, p.TokenEarnings)
	tokenHeld.Add(tokenHeld, paid[token])
	require.Equal(t, new(big.Int).Add(big.NewInt(tokenLiq), tokenIn).String(), tokenHeld.String())

	baseHeld := new(big.Int).Add(p.BaseLiquidity, p.BaseEarnings)
	baseHeld.Add(baseHeld, paid[base])
	require.Equal(t, new(big.Int).Add(big.NewInt(baseLiq), baseIn).String(), baseHeld.String())
}

func TestConcurrentSwapsAcrossPairs(t *testing.T) {
	l, sink, _ := newTestLedger(t, 3)
	ids := []string{"AAA", "BBB", "CCC"}
	for _, id := range ids {
		fund(t, l, id, 10_000_000, 10_000_000)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := ids[(w+i)%len(ids)]
				if i%2 == 0 {
					_, _ = l.SwapBaseForToken(ctx, trader, id, pay(base, 1_000))
				} else {
					_, _ = l.SwapTokenForBase(ctx, trader, pay(id, 1_000))
				}
			}
		}(w)
	}
	wg.Wait()

	paid := make(map[string]*big.Int)
	for _, tr := range sink.all() {
		key := tr.TokenID + "/" + tr.Asset
		if paid[key] == nil {
			paid[key] = new(big.Int)
		}
		amount, _ := new(big.Int).SetString(tr.Amount, 10)
		paid[key].Add(paid[key], amount)
	}

	var swaps float64
	for _, id := range ids {
		swaps += testutil.ToFloat64(l.metrics.SwapsTotal.WithLabelValues(id, string(BaseToToken)))
		swaps += testutil.ToFloat64(l.metrics.SwapsTotal.WithLabelValues(id, string(TokenToBase)))

		p, err := l.Pair(id)
		require.NoError(t, err)
		requireInt(t, 100_000_000_000_000, p.InitialK)

		ins := testutil.ToFloat64(l.metrics.SwapVolume.WithLabelValues(id, base))
		held := new(big.Int).Add(p.BaseLiquidity, p.BaseEarnings)
		if v := paid[id+"/"+base]; v != nil {
			held.Add(held, v)
		}
		require.Equal(t, int64(10_000_000+ins), held.Int64())
	}
	require.Equal(t, float64(8*50), swaps)
}

func TestRejectionsAreCounted(t *testing.T) {
	l, _, _ := newTestLedger(t, 3)
	_, err := l.SwapBaseForToken(context.Background(), trader, token, pay(base, 10))
	require.ErrorIs(t, err, ErrPairStillFunding)
	require.Equal(t, float64(1), testutil.ToFloat64(l.metrics.Rejections.WithLabelValues("swap_base_for_token", "pair_still_funding")))
}

func TestQueriesExposeSupplementaryViews(t *testing.T) {
	l, _, _ := newTestLedger(t, 5)
	fund(t, l, token, 1_000_000, 10_000)

	requireInt(t, 10_000_000_000, l.CalculateK(token))
	r, err := l.Ratio(token)
	require.NoError(t, err)
	requireInt(t, 100, r)

	num, err := l.PriceTokenToBaseNumerator(token, big.NewInt(10_000))
	require.NoError(t, err)
	requireInt(t, 99_500_000_000, num)
	den, err := l.PriceTokenToBaseDenominator(token, big.NewInt(10_000))
	require.NoError(t, err)
	requireInt(t, 1_009_950_000, den)

	price, err := l.PriceTokenToBase(token, big.NewInt(10_000))
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Quo(num, den).String(), price.String())

	noFee, err := l.Quote(token, TokenToBase, big.NewInt(10_000), false)
	require.NoError(t, err)
	fee, err := l.Fee(token, TokenToBase, big.NewInt(10_000))
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Sub(noFee, price).String(), fee.String())

	_, err = l.Ratio("NOPE")
	require.ErrorIs(t, err, ErrPairStillFunding)
	_, err = l.Pair("NOPE")
	require.ErrorIs(t, err, ErrUnknownPair)
	require.Len(t, l.Pairs(), 1)
}

func TestCanceledSettlementRollsBackDurableState(t *testing.T) {
	l, _, store := newTestLedger(t, 5)
	fund(t, l, token, 1_000_000, 10_000)
	before := store.pair(token).View()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.sink = cancelingSink{cancel: cancel}

	_, err := l.SwapBaseForToken(ctx, trader, token, pay(base, 100))
	require.ErrorIs(t, err, context.Canceled)

	p, err := l.Pair(token)
	require.NoError(t, err)
	require.Equal(t, before, p.View())
	require.Equal(t, before, store.pair(token).View())

	reopened, err := Open(context.Background(), Config{Owner: owner, FeeRate: 5, BaseAsset: base}, store, nil, nil, nil)
	require.NoError(t, err)
	p, err = reopened.Pair(token)
	require.NoError(t, err)
	require.Equal(t, before, p.View())
}

func TestClaimPersistFailureRestoresEarlierPairs(t *testing.T) {
	l, sink, store := newTestLedger(t, 30)
	ids := []string{"AAA", "BBB", "CCC"}
	ctx := context.Background()
	for _, id := range ids {
		fund(t, l, id, 1_000_000, 1_000_000)
		_, err := l.SwapTokenForBase(ctx, trader, pay(id, 50_000))
		require.NoError(t, err)
	}

	before := make(map[string]model.PairView)
	for _, id := range ids {
		require.Positive(t, store.pair(id).BaseEarnings.Sign())
		before[id] = store.pair(id).View()
	}
	transfers := len(sink.all())

	store.mu.Lock()
	store.failOn = "BBB"
	store.mu.Unlock()

	_, err := l.ClaimEarnings(ctx, owner, base)
	require.Error(t, err)

	for _, id := range ids {
		require.Equal(t, before[id], store.pair(id).View(), id)
		p, err := l.Pair(id)
		require.NoError(t, err)
		require.Equal(t, before[id], p.View(), id)
	}
	require.Len(t, sink.all(), transfers)
}

func TestFeeMetricCountsSwapFeesOnly(t *testing.T) {
	l, _, _ := newTestLedger(t, 5)
	fund(t, l, token, 1_000_000, 10_000)

	res, err := l.SwapBaseForToken(context.Background(), trader, token, pay(base, 100))
	require.NoError(t, err)
	require.Equal(t, CorrectionDown, res.Correction)

	p, err := l.Pair(token)
	require.NoError(t, err)
	requireInt(t, 147, p.TokenEarnings)
	require.Equal(t, float64(49), testutil.ToFloat64(l.metrics.FeesEarned.WithLabelValues(token, token)))
}

func TestZeroDepositForUnknownPairLeavesNoTrace(t *testing.T) {
	l, _, store := newTestLedger(t, 3)
	ctx := context.Background()

	require.NoError(t, l.DepositToken(ctx, owner, pay("NEW", 0)))
	require.NoError(t, l.DepositBase(ctx, owner, "OTHER", pay(base, 0)))

	require.Nil(t, l.lookup("NEW", false))
	require.Nil(t, l.lookup("OTHER", false))
	require.Empty(t, l.sortedSlots())

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Empty(t, store.pairs)
}

func TestTransfersCarryUniqueIDs(t *testing.T) {
	l, sink, _ := newTestLedger(t, 5)
	fund(t, l, token, 1_000_000, 10_000)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.SwapBaseForToken(ctx, trader, token, pay(base, 100))
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	for _, tr := range sink.all() {
		require.NotEmpty(t, tr.ID)
		require.False(t, seen[tr.ID], "duplicate transfer id %s", tr.ID)
		seen[tr.ID] = true
	}
	require.Len(t, seen, 5)
}
