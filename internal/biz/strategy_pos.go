package biz

import (
	"context"
	"time"

	"SyncGuard/internal/data"
	"SyncGuard/pkg/metadata"

	"github.com/go-kratos/kratos/v2/log"
)

// POS metric codes, in sync order.
const (
	MetricDailyRevenue         = "daily_revenue"
	MetricAverageCheck         = "average_check"
	MetricTableTurnoverRate    = "table_turnover_rate"
	MetricOrderFulfillmentTime = "order_fulfillment_time"
	MetricCustomerCount        = "customer_count"
	MetricRepeatCustomerRate   = "repeat_customer_rate"
	MetricProductReturnRate    = "product_return_rate"
	MetricRevenuePerCustomer   = "revenue_per_customer"
	MetricPeakHoursRevenue     = "peak_hours_revenue"
	MetricMenuItemSales        = "menu_item_sales"
	MetricInventoryTurnover    = "inventory_turnover"
	MetricWastePercentage      = "waste_percentage"
	MetricLaborCostPercentage  = "labor_cost_percentage"
	MetricGrossProfitMargin    = "gross_profit_margin"
)

const unknownProvider = "unknown"

// peakWindows are the lunch and dinner rushes as inclusive [from, to] times of day.
var peakWindows = [][2]time.Duration{
	{12 * time.Hour, 14 * time.Hour},
	{19 * time.Hour, 21 * time.Hour},
}

type posSource struct {
	tenantID    int64
	integration *data.Integration
	meta        *metadata.SyncMetadata
}

// PosStrategy computes KPIs from mirrored point-of-sale transactions.
type PosStrategy struct {
	mirror   PosMirror
	formulas *formulaTable[*posSource]
	logger   *log.Helper
}

// NewPosStrategy creates the pos_system strategy.
func NewPosStrategy(mirror PosMirror, logger log.Logger) *PosStrategy {
	s := &PosStrategy{
		mirror: mirror,
		logger: log.NewHelper(logger),
	}
	s.formulas = newFormulaTable[*posSource]().
		add(MetricDailyRevenue, s.dailyRevenue).
		add(MetricAverageCheck, s.averageCheck).
		add(MetricTableTurnoverRate, s.tableTurnoverRate).
		add(MetricOrderFulfillmentTime, s.orderFulfillmentTime).
		add(MetricCustomerCount, s.customerCount).
		add(MetricRepeatCustomerRate, s.repeatCustomerRate).
		add(MetricProductReturnRate, s.productReturnRate).
		add(MetricRevenuePerCustomer, s.revenuePerCustomer).
		add(MetricPeakHoursRevenue, s.peakHoursRevenue).
		add(MetricMenuItemSales, s.menuItemSales).
		add(MetricInventoryTurnover, noData[*posSource]).
		add(MetricWastePercentage, noData[*posSource]).
		add(MetricLaborCostPercentage, s.laborCostPercentage).
		add(MetricGrossProfitMargin, s.grossProfitMargin)
	return s
}

// ServiceName implements SyncStrategy.
func (s *PosStrategy) ServiceName() string { return ServicePOS }

// SupportedMetrics implements SyncStrategy.
func (s *PosStrategy) SupportedMetrics() []string { return s.formulas.supported() }

// IsAvailable reports whether the tenant has an active POS integration.
func (s *PosStrategy) IsAvailable(ctx context.Context, tenantID int64) (bool, error) {
	in, err := s.mirror.ActiveIntegration(ctx, tenantID, data.IntegrationTypePOS)
	if err != nil {
		return false, err
	}
	return in != nil, nil
}

// SyncOneMetric implements SyncStrategy.
func (s *PosStrategy) SyncOneMetric(ctx context.Context, tenantID int64, metricCode string, date time.Time) (*MetricResult, error) {
	in, err := s.mirror.ActiveIntegration(ctx, tenantID, data.IntegrationTypePOS)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return &MetricResult{MetricCode: metricCode, Message: "pos system not connected"}, nil
	}

	provider := in.Provider
	if provider == "" {
		provider = unknownProvider
	}
	src := &posSource{
		tenantID:    tenantID,
		integration: in,
		meta: &metadata.SyncMetadata{
			SourceAccountID:   in.ID,
			SourceAccountName: provider,
		},
	}
	return s.formulas.evaluate(ctx, metricCode, src, date, src.meta)
}

// transactions returns every transaction of the day and the completed subset.
func (s *PosStrategy) transactions(ctx context.Context, src *posSource, date time.Time) ([]data.PosTransaction, []data.PosTransaction, error) {
	all, err := s.mirror.PosTransactions(ctx, src.tenantID, date)
	if err != nil {
		return nil, nil, err
	}

	completed := make([]data.PosTransaction, 0, len(all))
	for _, t := range all {
		if t.Status == data.PosStatusCompleted {
			completed = append(completed, t)
		}
	}
	src.meta.RecordCount = len(completed)
	return all, completed, nil
}

func (s *PosStrategy) completed(ctx context.Context, src *posSource, date time.Time) ([]data.PosTransaction, error) {
	_, completed, err := s.transactions(ctx, src, date)
	return completed, err
}

// completedItems returns the line items of the day's completed transactions.
func (s *PosStrategy) completedItems(ctx context.Context, src *posSource, completed []data.PosTransaction) ([]data.PosTransactionItem, error) {
	if len(completed) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(completed))
	for i, t := range completed {
		ids[i] = t.ID
	}
	return s.mirror.PosItems(ctx, ids)
}

func revenueOf(txs []data.PosTransaction) float64 {
	var sum float64
	for _, t := range txs {
		sum += t.TotalAmount
	}
	return sum
}

func customersOf(txs []data.PosTransaction) int64 {
	var sum int64
	for _, t := range txs {
		sum += t.CustomerCount
	}
	return sum
}

func (s *PosStrategy) dailyRevenue(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	completed, err := s.completed(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}
	return positive(revenueOf(completed))
}

func (s *PosStrategy) averageCheck(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	completed, err := s.completed(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}
	return ratio(revenueOf(completed), float64(len(completed)))
}

// tableTurnoverRate = distinct tables served / active tables * 100.
// A tenant without active tables has no rate; one whose tables sat empty all
// day reports 0.
func (s *PosStrategy) tableTurnoverRate(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	active, err := s.mirror.ActiveTableCount(ctx, src.tenantID)
	if err != nil {
		return nil, 0, err
	}
	if active == 0 {
		return nil, 0, nil
	}

	completed, err := s.completed(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}
	tables := make(map[string]struct{})
	for _, t := range completed {
		if t.TableNumber != nil {
			tables[*t.TableNumber] = struct{}{}
		}
	}
	return percent(float64(len(tables)), float64(active))
}

// orderFulfillmentTime is the average preparation time in minutes.
func (s *PosStrategy) orderFulfillmentTime(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	completed, err := s.completed(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}

	var sum float64
	n := 0
	for _, t := range completed {
		if t.PreparationTime == nil {
			continue
		}
		sum += *t.PreparationTime
		n++
	}
	if n == 0 {
		return nil, 0, nil
	}
	return positive(sum / float64(n))
}

func (s *PosStrategy) customerCount(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	completed, err := s.completed(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}
	return positive(float64(customersOf(completed)))
}

// repeatCustomerRate = identified customers with more than one visit / identified customers * 100
func (s *PosStrategy) repeatCustomerRate(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	completed, err := s.completed(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}

	visits := make(map[int64]int)
	for _, t := range completed {
		if t.CustomerID != nil {
			visits[*t.CustomerID]++
		}
	}

	repeat := 0
	for _, n := range visits {
		if n > 1 {
			repeat++
		}
	}
	return percent(float64(repeat), float64(len(visits)))
}

// productReturnRate = refunded / (completed + refunded) * 100
func (s *PosStrategy) productReturnRate(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	all, completed, err := s.transactions(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}

	refunded := 0
	for _, t := range all {
		if t.Status == data.PosStatusRefunded {
			refunded++
		}
	}
	src.meta.RecordCount = len(completed) + refunded
	return percent(float64(refunded), float64(len(completed)+refunded))
}

func (s *PosStrategy) revenuePerCustomer(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	completed, err := s.completed(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}

	revenue := revenueOf(completed)
	customers := customersOf(completed)
	if revenue <= 0 || customers <= 0 {
		return nil, 0, nil
	}
	return ratio(revenue, float64(customers))
}

func inPeakHours(t time.Time) bool {
	h, m, sec := t.Clock()
	tod := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
	for _, w := range peakWindows {
		if tod >= w[0] && tod <= w[1] {
			return true
		}
	}
	return false
}

func (s *PosStrategy) peakHoursRevenue(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	completed, err := s.completed(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}

	var sum float64
	for _, t := range completed {
		if inPeakHours(t.TransactionDate) {
			sum += t.TotalAmount
		}
	}
	return positive(sum)
}

// menuItemSales is the average quantity per sold line item.
func (s *PosStrategy) menuItemSales(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	completed, err := s.completed(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.completedItems(ctx, src, completed)
	if err != nil {
		return nil, 0, err
	}
	if len(items) == 0 {
		return nil, 0, nil
	}

	var qty float64
	for _, it := range items {
		qty += it.Quantity
	}
	return positive(qty / float64(len(items)))
}

// laborCostPercentage = labor cost / revenue * 100
func (s *PosStrategy) laborCostPercentage(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	completed, err := s.completed(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}
	revenue := revenueOf(completed)
	if revenue <= 0 {
		return nil, 0, nil
	}

	labor, err := s.mirror.LaborCost(ctx, src.tenantID, date)
	if err != nil {
		return nil, 0, err
	}
	if labor <= 0 {
		return nil, 0, nil
	}
	return percent(labor, revenue)
}

// grossProfitMargin = (revenue - cost of sold items) / revenue * 100
func (s *PosStrategy) grossProfitMargin(ctx context.Context, src *posSource, date time.Time) (*float64, int, error) {
	completed, err := s.completed(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}
	revenue := revenueOf(completed)
	if revenue <= 0 {
		return nil, 0, nil
	}

	items, err := s.completedItems(ctx, src, completed)
	if err != nil {
		return nil, 0, err
	}
	var cost float64
	for _, it := range items {
		cost += it.Cost
	}
	return percent(revenue-cost, revenue)
}
