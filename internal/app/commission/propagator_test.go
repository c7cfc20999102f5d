package commission

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
)

type profiles map[string]ledger.Profile

func (p profiles) GetProfile(_ context.Context, id string) (ledger.Profile, error) {
	prof, ok := p[id]
	if !ok {
		return ledger.Profile{}, fmt.Errorf("profile %s not found", id)
	}
	return prof, nil
}

func ref(id string) *string { return &id }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// chain builds p0 <- p1 <- ... where p0 is the depositor and each profile is
// referred by the next one.
func chain(ranks []rates.Rank, nodes []rates.NodeType) profiles {
	out := profiles{}
	for i := range ranks {
		p := ledger.Profile{
			ID:            fmt.Sprintf("p%d", i),
			WalletAddress: fmt.Sprintf("0x%040d", i),
			Rank:          ranks[i],
			NodeType:      nodes[i],
		}
		if i+1 < len(ranks) {
			p.ReferrerID = ref(fmt.Sprintf("p%d", i+1))
		}
		out[p.ID] = p
	}
	return out
}

func event(src ledger.Profile, amount string) Event {
	return Event{SourceTxID: "tx-1", Source: src, Amount: dec(amount), At: time.Unix(0, 0).UTC()}
}

func TestDirectReferralOnly(t *testing.T) {
	ps := chain([]rates.Rank{rates.RankNone, rates.RankV1}, []rates.NodeType{rates.NodeNone, rates.NodeMini})
	p := NewPropagator(rates.Default())

	res := p.Propagate(context.Background(), ps, event(ps["p0"], "500"))
	require.NoError(t, res.Err)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, "p1", rec.RecipientID)
	assert.Equal(t, ledger.CommissionDirect, rec.Type)
	assert.Equal(t, 1, rec.Depth)
	assert.True(t, rec.Amount.Equal(dec("25")), "amount %s", rec.Amount)
	assert.Equal(t, "tx-1", rec.SourceTxID)
}

func TestDifferentialUpTheChain(t *testing.T) {
	ps := chain(
		[]rates.Rank{rates.RankNone, rates.RankV1, rates.RankV1, rates.RankV3, rates.RankV2, rates.RankV6},
		[]rates.NodeType{rates.NodeNone, rates.NodeMax, rates.NodeNone, rates.NodeNone, rates.NodeNone, rates.NodeNone},
	)
	p := NewPropagator(rates.Default())

	res := p.Propagate(context.Background(), ps, event(ps["p0"], "1000"))
	require.NoError(t, res.Err)
	require.Len(t, res.Records, 3)

	// p1 direct 10%, p2 equal rank pays nothing, p3 V3 20%-10%, p4 below
	// watermark, p5 V6 40%-20%.
	assert.Equal(t, "p1", res.Records[0].RecipientID)
	assert.True(t, res.Records[0].Amount.Equal(dec("100")))
	assert.Equal(t, "p3", res.Records[1].RecipientID)
	assert.Equal(t, 3, res.Records[1].Depth)
	assert.True(t, res.Records[1].Amount.Equal(dec("100")))
	assert.Equal(t, "p5", res.Records[2].RecipientID)
	assert.True(t, res.Records[2].Amount.Equal(dec("200")))
	assert.True(t, res.Total().Equal(dec("400")))
}

func TestConservationAcrossRankChains(t *testing.T) {
	all := []rates.Rank{rates.RankNone, rates.RankV1, rates.RankV2, rates.RankV3, rates.RankV4, rates.RankV5, rates.RankV6, rates.RankV7}
	nodes := []rates.NodeType{rates.NodeNone, rates.NodeMini, rates.NodeMax}
	tbl := rates.Default()
	p := NewPropagator(tbl)
	amount := dec("1000")

	for _, r1 := range all {
		for _, r2 := range all {
			for _, r3 := range all {
				for _, nt := range nodes {
					ranks := []rates.Rank{rates.RankNone, r1, r2, r3}
					ps := chain(ranks, []rates.NodeType{rates.NodeNone, nt, rates.NodeNone, rates.NodeNone})
					res := p.Propagate(context.Background(), ps, event(ps["p0"], "1000"))
					require.NoError(t, res.Err)

					maxRate := tbl.DirectRate(nt)
					for _, r := range ranks {
						maxRate = decimal.Max(maxRate, tbl.RankRate(r))
					}
					assert.Truef(t, res.Total().LessThanOrEqual(amount.Mul(maxRate)),
						"ranks %v node %s paid %s", ranks, nt, res.Total())
					assert.True(t, res.Total().LessThanOrEqual(amount))
				}
			}
		}
	}
}

func TestCycleIsDetected(t *testing.T) {
	ps := profiles{
		"a": {ID: "a", ReferrerID: ref("b"), NodeType: rates.NodeNone},
		"b": {ID: "b", ReferrerID: ref("c"), NodeType: rates.NodeMini, Rank: rates.RankV1},
		"c": {ID: "c", ReferrerID: ref("b"), NodeType: rates.NodeNone, Rank: rates.RankV2},
	}
	p := NewPropagator(rates.Default())
	res := p.Propagate(context.Background(), ps, event(ps["a"], "100"))
	assert.True(t, errors.Is(res.Err, ErrReferralCycle))
	assert.Len(t, res.Records, 2)
}

func TestDepthGuard(t *testing.T) {
	tbl := rates.Default()
	tbl.MaxReferralDepth = 3
	n := 8
	ranks := make([]rates.Rank, n)
	nodes := make([]rates.NodeType, n)
	for i := range ranks {
		ranks[i] = rates.RankNone
		nodes[i] = rates.NodeNone
	}
	ranks[n-1] = rates.RankV7
	ps := chain(ranks, nodes)

	res := NewPropagator(tbl).Propagate(context.Background(), ps, event(ps["p0"], "100"))
	assert.True(t, res.Truncated)
	assert.Empty(t, res.Records)
}

func TestLookupFailureKeepsEarlierCredits(t *testing.T) {
	ps := profiles{
		"a": {ID: "a", ReferrerID: ref("b")},
		"b": {ID: "b", ReferrerID: ref("missing"), NodeType: rates.NodeMax},
	}
	res := NewPropagator(rates.Default()).Propagate(context.Background(), ps, event(ps["a"], "100"))
	assert.Error(t, res.Err)
	require.Len(t, res.Records, 1)
	assert.True(t, res.Records[0].Amount.Equal(dec("10")))
}

func TestNoReferrerNoCommission(t *testing.T) {
	res := NewPropagator(rates.Default()).Propagate(context.Background(), profiles{}, event(ledger.Profile{ID: "solo"}, "100"))
	assert.Empty(t, res.Records)
	assert.NoError(t, res.Err)
}
