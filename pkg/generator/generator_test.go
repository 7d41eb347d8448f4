package generator

import (
	"math/rand"
	"testing"

	"churngen/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGenerator(t *testing.T, cfg models.Config) *Generator {
	t.Helper()
	g, err := New(cfg, nil)
	require.NoError(t, err)
	return g
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.SegmentWeights = models.PerSegment{0.5, 0.5, 0.5}
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestRunProperties(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.Customers = 2000
	res, err := newGenerator(t, cfg).Run()
	require.NoError(t, err)

	cal := cfg.Calendar
	customers := res.Dataset.Customers
	require.Len(t, customers, cfg.Customers)
	require.Len(t, res.Latent, cfg.Customers)

	regEarliest := cal.ReferenceDate.AddDate(0, 0, -cfg.Registration.Max)
	regLatest := cal.ReferenceDate.AddDate(0, 0, -cfg.Registration.Min)
	segmentOf := map[string]models.Segment{}
	for _, c := range customers {
		assert.False(t, c.RegistrationDate.Before(regEarliest), "%s registered %s", c.ID, c.RegistrationDate)
		assert.False(t, c.RegistrationDate.After(regLatest), "%s registered %s", c.ID, c.RegistrationDate)
		segmentOf[c.ID] = c.Segment
	}
	require.Len(t, segmentOf, len(customers), "customer ids must be unique")

	type counts struct{ firstHalf, afterCutoff, total int }
	perCustomer := map[string]*counts{}
	for _, o := range res.Dataset.Orders {
		seg, ok := segmentOf[o.CustomerID]
		require.True(t, ok, "orphan order %s -> %s", o.ID, o.CustomerID)

		base := cfg.BaseAmount[seg]
		assert.GreaterOrEqual(t, o.Amount, 0.5*base, o.ID)
		assert.LessOrEqual(t, o.Amount, 1.5*base, o.ID)

		c := perCustomer[o.CustomerID]
		if c == nil {
			c = &counts{}
			perCustomer[o.CustomerID] = c
		}
		c.total++
		if cal.InFirstHalf(o.OrderDate) {
			c.firstHalf++
		}
		if cal.AfterCutoff(o.OrderDate) {
			c.afterCutoff++
		}
	}

	for i, cust := range customers {
		c := perCustomer[cust.ID]
		require.NotNil(t, c, "%s has no order", cust.ID)
		assert.GreaterOrEqual(t, c.firstHalf, 1, cust.ID)
		if res.Latent[i] {
			assert.Zero(t, c.afterCutoff, "churned %s ordered after the cutoff", cust.ID)
		} else {
			assert.GreaterOrEqual(t, c.total, 2, cust.ID)
			assert.GreaterOrEqual(t, c.afterCutoff, 1, "retained %s never ordered after the cutoff", cust.ID)
		}
	}

	assert.Equal(t, len(customers), res.Agreement)
	for i, cust := range customers {
		assert.Equal(t, res.Latent[i], res.Report.Labels[cust.ID], cust.ID)
	}
}

func TestOrderIDsAreGlobalAndSequential(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.Customers = 50
	res, err := newGenerator(t, cfg).Run()
	require.NoError(t, err)

	require.NotEmpty(t, res.Dataset.Orders)
	assert.Equal(t, "CUST_00001", res.Dataset.Customers[0].ID)
	assert.Equal(t, "ORD_000001", res.Dataset.Orders[0].ID)
	last := res.Dataset.Orders[len(res.Dataset.Orders)-1]
	assert.Equal(t, "CUST_00050", last.CustomerID)
}

func TestSameSeedSameDataset(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.Customers = 300

	a, err := newGenerator(t, cfg).Run()
	require.NoError(t, err)
	b, err := newGenerator(t, cfg).Run()
	require.NoError(t, err)
	assert.Equal(t, a.Dataset, b.Dataset)
	assert.Equal(t, a.Latent, b.Latent)

	cfg.Seed++
	c, err := newGenerator(t, cfg).Run()
	require.NoError(t, err)
	assert.NotEqual(t, a.Dataset, c.Dataset)
}

// hundredCustomers mirrors the documented 100-customer scenario.
func hundredCustomers() models.Config {
	cfg := models.DefaultConfig()
	cfg.Customers = 100
	cfg.ChurnProb = models.PerSegment{models.Premium: 0.15, models.Standard: 0.35, models.Basic: 0.5}
	cfg.SegmentWeights = models.PerSegment{models.Premium: 0.2, models.Standard: 0.5, models.Basic: 0.3}
	return cfg
}

func TestFixedSeedRateInBand(t *testing.T) {
	cfg := hundredCustomers()
	cfg.Seed = 42

	res, err := newGenerator(t, cfg).Run()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Report.Rate, 0.25)
	assert.LessOrEqual(t, res.Report.Rate, 0.45)

	again, err := newGenerator(t, cfg).Run()
	require.NoError(t, err)
	assert.Equal(t, res.Report.Rate, again.Report.Rate)
}

func TestRealizedRateNearDesignTarget(t *testing.T) {
	cfg := hundredCustomers()

	sum := 0.0
	const runs = 10
	for seed := int64(1); seed <= runs; seed++ {
		cfg.Seed = seed
		res, err := newGenerator(t, cfg).Run()
		require.NoError(t, err)
		assert.Equal(t, cfg.Customers, res.Report.FirstHalfCustomers)
		assert.InDelta(t, 0.355, res.Report.Rate, 0.2, "seed %d", seed)
		sum += res.Report.Rate
	}
	avg := sum / runs
	assert.GreaterOrEqual(t, avg, 0.25)
	assert.LessOrEqual(t, avg, 0.45)
}

func TestSingleChurnedBasicCustomerGetsOneFirstHalfOrder(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.Customers = 1
	cfg.BaseOrders[models.Basic] = 0
	g := newGenerator(t, cfg)

	customers := []models.Customer{{ID: "CUST_00001", Segment: models.Basic}}
	orders, err := g.GenerateOrders(customers, []bool{true})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, cfg.Calendar.InFirstHalf(orders[0].OrderDate), orders[0].OrderDate)

	report := DeriveChurn(orders, cfg.Calendar)
	assert.True(t, report.Labels["CUST_00001"])
	assert.Equal(t, 1, report.Churned)
	assert.Equal(t, 1.0, report.Rate)
}

func TestRetainedFloorForcesBothWindows(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.BaseOrders = models.PerSegment{}
	g := newGenerator(t, cfg)

	customers := []models.Customer{{ID: "CUST_00001", Segment: models.Premium}}
	orders, err := g.GenerateOrders(customers, []bool{false})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.True(t, cfg.Calendar.AfterCutoff(orders[0].OrderDate))
	assert.True(t, cfg.Calendar.InFirstHalf(orders[1].OrderDate))
	assert.False(t, DeriveChurn(orders, cfg.Calendar).Labels["CUST_00001"])
}

func TestGenerateOrdersLengthMismatch(t *testing.T) {
	g := newGenerator(t, models.DefaultConfig())
	_, err := g.GenerateOrders([]models.Customer{{ID: "CUST_00001"}}, nil)
	require.Error(t, err)
}

func TestPoissonMean(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	assert.Zero(t, poisson(rng, 0))

	for _, lambda := range []float64{0.6, 8, 1200} {
		const n = 5000
		sum := 0
		for i := 0; i < n; i++ {
			sum += poisson(rng, lambda)
		}
		assert.InEpsilon(t, lambda, float64(sum)/n, 0.1, "lambda=%v", lambda)
	}
}

func TestAmountInSmallestBase(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 1000; i++ {
		v := amountIn(rng, 0.02)
		require.GreaterOrEqual(t, v, 0.01)
		require.LessOrEqual(t, v, 0.03)
	}
}

func TestPickSkipsZeroWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	w := []float64{0, 1, 0}
	for i := 0; i < 500; i++ {
		require.Equal(t, 1, pick(rng, w))
	}
}

func TestDeriveChurnEmpty(t *testing.T) {
	report := DeriveChurn(nil, models.DefaultConfig().Calendar)
	assert.Zero(t, report.FirstHalfCustomers)
	assert.Zero(t, report.Rate)
	assert.Empty(t, report.Labels)
}
