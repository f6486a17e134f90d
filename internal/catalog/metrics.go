package catalog

import (
	"context"
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics adds gauge catalog_products to reg. The value is counted from
// the store on every scrape, so it never drifts from concurrent writes.
func RegisterMetrics(s Store, reg prometheus.Registerer) error {
	return reg.Register(newProductsGauge(s))
}

func newProductsGauge(s Store) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "catalog_products",
		Help: "Products currently in the catalog",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()

		n, err := s.Count(ctx)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	})
}
