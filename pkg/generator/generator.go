package generator

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"churngen/pkg/models"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Generator owns the only random source of a run. Two generators built from
// the same Config produce identical datasets.
type Generator struct {
	cfg      models.Config
	rng      *rand.Rand
	log      *zap.Logger
	progress io.Writer
}

// Result is everything a run produces. Latent never leaves the process.
type Result struct {
	Dataset   models.Dataset
	Latent    []bool
	Report    models.ChurnReport
	Agreement int // customers whose derived label equals the latent one
}

// New validates cfg and seeds the generator. Nothing is drawn on error.
func New(cfg models.Config, log *zap.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		log:      log,
		progress: io.Discard,
	}, nil
}

// WithProgress renders a progress bar on w while orders are generated.
func (g *Generator) WithProgress(w io.Writer) *Generator {
	if w == nil {
		w = io.Discard
	}
	g.progress = w
	return g
}

// Run generates customers, latent churn and orders, then re-derives churn
// from the order dates and checks it against the latent vector.
func (g *Generator) Run() (*Result, error) {
	customers := g.GenerateCustomers()
	g.log.Info("customers generated", zap.Int("count", len(customers)))

	latent := g.AssignLatentChurn(customers)
	g.log.Info("latent churn assigned", zap.Float64("design_rate", mean(latent)))

	orders, err := g.GenerateOrders(customers, latent)
	if err != nil {
		return nil, err
	}
	g.log.Info("orders generated", zap.Int("count", len(orders)))

	report := DeriveChurn(orders, g.cfg.Calendar)
	agreement := Agreement(report, customers, latent)
	g.log.Info("churn derived from order dates",
		zap.Int("first_half_customers", report.FirstHalfCustomers),
		zap.Int("churned", report.Churned),
		zap.Float64("realized_rate", report.Rate),
		zap.Int("agreement", agreement),
		zap.Int("customers", len(customers)),
	)
	if agreement != len(customers) {
		g.log.Warn("derived churn disagrees with latent churn",
			zap.Int("mismatches", len(customers)-agreement))
	}

	return &Result{
		Dataset:   models.Dataset{Customers: customers, Orders: orders},
		Latent:    latent,
		Report:    report,
		Agreement: agreement,
	}, nil
}

// GenerateCustomers draws cfg.Customers rows with sequential ids.
func (g *Generator) GenerateCustomers() []models.Customer {
	out := make([]models.Customer, 0, g.cfg.Customers)
	for i := 1; i <= g.cfg.Customers; i++ {
		seg := models.Segment(pick(g.rng, g.cfg.SegmentWeights[:]))
		reg := daysBefore(g.rng, g.cfg.Calendar.ReferenceDate, g.cfg.Registration)
		region := models.Region(pick(g.rng, g.cfg.RegionWeights[:]))
		out = append(out, models.Customer{
			ID:               fmt.Sprintf("CUST_%05d", i),
			Segment:          seg,
			RegistrationDate: reg,
			Region:           region,
		})
	}
	return out
}

// AssignLatentChurn draws one independent boolean per customer. The realized
// rate is statistical; no draw is corrected toward a target.
func (g *Generator) AssignLatentChurn(customers []models.Customer) []bool {
	out := make([]bool, len(customers))
	for i, c := range customers {
		out[i] = g.rng.Float64() < g.cfg.ChurnProb[c.Segment]
	}
	return out
}

// GenerateOrders emits every customer's orders in customer order. Order ids
// come from one global counter.
func (g *Generator) GenerateOrders(customers []models.Customer, latent []bool) ([]models.Order, error) {
	if len(customers) != len(latent) {
		return nil, fmt.Errorf("latent churn has %d entries for %d customers", len(latent), len(customers))
	}

	bar := progressbar.NewOptions(len(customers),
		progressbar.OptionSetWriter(g.progress),
		progressbar.OptionSetDescription("orders"),
		progressbar.OptionShowCount(),
	)

	var orders []models.Order
	seq := 0
	for i, c := range customers {
		churned := latent[i]
		n := g.orderCount(c.Segment, churned)
		for idx := 0; idx < n; idx++ {
			seq++
			orders = append(orders, models.Order{
				ID:         fmt.Sprintf("ORD_%06d", seq),
				CustomerID: c.ID,
				OrderDate:  g.orderDate(churned, idx),
				Amount:     amountIn(g.rng, g.cfg.BaseAmount[c.Segment]),
				Status:     g.status(churned),
			})
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return orders, nil
}

func (g *Generator) orderCount(seg models.Segment, churned bool) int {
	lambda := g.cfg.BaseOrders[seg]
	floor := g.cfg.RetainedMinOrders
	if churned {
		lambda *= g.cfg.ChurnedOrderFactor
		floor = g.cfg.ChurnedMinOrders
	}
	return max(floor, poisson(g.rng, lambda))
}

// orderDate places the idx-th order of a customer.
//
// churned:  #0 in the first half, the rest ChurnedHistory days before the cutoff.
// retained: #0 in the second half, #1 in the first half, the rest
// RetainedHistory days before the end of the second half.
//
// Validate guarantees the floors cover every forced slot.
func (g *Generator) orderDate(churned bool, idx int) time.Time {
	cal := g.cfg.Calendar
	if churned {
		if idx == 0 {
			return dayIn(g.rng, cal.FirstHalfStart, cal.Cutoff)
		}
		return daysBefore(g.rng, cal.Cutoff, g.cfg.ChurnedHistory)
	}
	switch idx {
	case 0:
		return dayIn(g.rng, cal.SecondHalfStart(), cal.SecondHalfEnd)
	case 1:
		return dayIn(g.rng, cal.FirstHalfStart, cal.Cutoff)
	default:
		return daysBefore(g.rng, cal.SecondHalfEnd, g.cfg.RetainedHistory)
	}
}

func (g *Generator) status(churned bool) models.Status {
	if churned {
		return models.Status(pick(g.rng, g.cfg.ChurnedStatus[:]))
	}
	return models.Status(pick(g.rng, g.cfg.RetainedStatus[:]))
}

func mean(v []bool) float64 {
	if len(v) == 0 {
		return 0
	}
	n := 0
	for _, b := range v {
		if b {
			n++
		}
	}
	return float64(n) / float64(len(v))
}
