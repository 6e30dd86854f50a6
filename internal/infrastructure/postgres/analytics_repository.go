package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/stockflow/internal/domain/repository"
)

var _ repository.AnalyticsRepository = (*AnalyticsRepo)(nil)

// AnalyticsRepo consultas de solo lectura para reportes de ventas.
type AnalyticsRepo struct {
	pool *pgxpool.Pool
}

// NewAnalyticsRepository construye el adaptador de analítica.
func NewAnalyticsRepository(pool *pgxpool.Pool) *AnalyticsRepo {
	return &AnalyticsRepo{pool: pool}
}

// GetSalesTotals totales de pedidos completados en [startDate, endDate).
// Los ítems se suman en una subconsulta para no multiplicar el total por el número de líneas.
func (r *AnalyticsRepo) GetSalesTotals(ctx context.Context, startDate, endDate time.Time) (repository.SalesTotals, error) {
	const query = `
	SELECT
	    COALESCE(SUM(o.total_amount), 0)                     AS total_sales,
	    COUNT(*)                                             AS total_orders,
	    COALESCE(SUM(it.items), 0)::BIGINT                   AS total_items,
	    COUNT(DISTINCT o.customer_id)                        AS unique_customers
	FROM orders o
	LEFT JOIN (
	    SELECT order_id, SUM(quantity) AS items FROM order_items GROUP BY order_id
	) it ON it.order_id = o.id
	WHERE o.status = 'completed'
	  AND o.order_date >= $1 AND o.order_date < $2`

	var t repository.SalesTotals
	if err := r.pool.QueryRow(ctx, query, startDate, endDate).Scan(
		&t.TotalSales, &t.TotalOrders, &t.TotalItemsSold, &t.UniqueCustomers,
	); err != nil {
		return repository.SalesTotals{}, fmt.Errorf("analytics.GetSalesTotals: %w", err)
	}
	return t, nil
}

// GetProductSales agrupa las líneas de pedidos completados por producto, mayor venta primero.
func (r *AnalyticsRepo) GetProductSales(ctx context.Context, startDate, endDate time.Time) ([]repository.ProductSalesResult, error) {
	const query = `
	SELECT
	    oi.product_id,
	    SUM(oi.quantity)::BIGINT          AS total_quantity,
	    SUM(oi.quantity * oi.unit_price)  AS total_sales,
	    COUNT(DISTINCT oi.order_id)       AS order_count
	FROM order_items oi
	JOIN orders o ON o.id = oi.order_id
	WHERE o.status = 'completed'
	  AND o.order_date >= $1 AND o.order_date < $2
	GROUP BY oi.product_id
	ORDER BY total_sales DESC, oi.product_id`

	rows, err := r.pool.Query(ctx, query, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("analytics.GetProductSales: %w", err)
	}
	return scanProductSales(rows)
}

// GetDailySales agrupa por día calendario en loc; solo devuelve días con ventas.
func (r *AnalyticsRepo) GetDailySales(ctx context.Context, startDate, endDate time.Time, loc *time.Location) ([]repository.DailySalesResult, error) {
	if loc == nil {
		loc = time.UTC
	}
	const query = `
	SELECT
	    to_char(o.order_date AT TIME ZONE $3, 'YYYY-MM-DD')  AS sale_day,
	    COALESCE(SUM(o.total_amount), 0)                     AS sales,
	    COUNT(*)                                             AS orders,
	    COALESCE(SUM(it.items), 0)::BIGINT                   AS items_sold
	FROM orders o
	LEFT JOIN (
	    SELECT order_id, SUM(quantity) AS items FROM order_items GROUP BY order_id
	) it ON it.order_id = o.id
	WHERE o.status = 'completed'
	  AND o.order_date >= $1 AND o.order_date < $2
	GROUP BY sale_day
	ORDER BY sale_day`

	rows, err := r.pool.Query(ctx, query, startDate, endDate, loc.String())
	if err != nil {
		return nil, fmt.Errorf("analytics.GetDailySales: %w", err)
	}
	defer rows.Close()

	var results []repository.DailySalesResult
	for rows.Next() {
		var (
			day string
			row repository.DailySalesResult
		)
		if err := rows.Scan(&day, &row.Sales, &row.Orders, &row.ItemsSold); err != nil {
			return nil, fmt.Errorf("analytics.GetDailySales scan: %w", err)
		}
		d, err := time.ParseInLocation("2006-01-02", day, loc)
		if err != nil {
			return nil, fmt.Errorf("analytics.GetDailySales día %q: %w", day, err)
		}
		row.Date = d
		results = append(results, row)
	}
	return results, rows.Err()
}

// GetTopSellers ranking por cantidad vendida sobre todo el historial de pedidos completados.
func (r *AnalyticsRepo) GetTopSellers(ctx context.Context, limit, offset int) ([]repository.ProductSalesResult, error) {
	const query = `
	SELECT
	    oi.product_id,
	    SUM(oi.quantity)::BIGINT          AS total_quantity,
	    SUM(oi.quantity * oi.unit_price)  AS total_sales,
	    COUNT(DISTINCT oi.order_id)       AS order_count
	FROM order_items oi
	JOIN orders o ON o.id = oi.order_id
	WHERE o.status = 'completed'
	GROUP BY oi.product_id
	ORDER BY total_quantity DESC, oi.product_id
	LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("analytics.GetTopSellers: %w", err)
	}
	return scanProductSales(rows)
}

// GetSoldTotals totales de todo lo vendido: base de los porcentajes del ranking.
func (r *AnalyticsRepo) GetSoldTotals(ctx context.Context) (repository.SoldTotals, error) {
	const query = `
	SELECT
	    COALESCE(SUM(oi.quantity), 0)::BIGINT,
	    COALESCE(SUM(oi.quantity * oi.unit_price), 0),
	    COUNT(DISTINCT oi.product_id)
	FROM order_items oi
	JOIN orders o ON o.id = oi.order_id
	WHERE o.status = 'completed'`

	var t repository.SoldTotals
	if err := r.pool.QueryRow(ctx, query).Scan(&t.TotalQuantity, &t.TotalSales, &t.Products); err != nil {
		return repository.SoldTotals{}, fmt.Errorf("analytics.GetSoldTotals: %w", err)
	}
	return t, nil
}

func scanProductSales(rows pgx.Rows) ([]repository.ProductSalesResult, error) {
	defer rows.Close()
	var results []repository.ProductSalesResult
	for rows.Next() {
		var row repository.ProductSalesResult
		if err := rows.Scan(&row.ProductID, &row.TotalQuantity, &row.TotalSales, &row.OrderCount); err != nil {
			return nil, fmt.Errorf("scan product sales: %w", err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
