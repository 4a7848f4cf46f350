package ch

import (
	"context"
	"crypto/tls"
	"fmt"

	"pizzabot/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseDB is the order journal backed by ClickHouse
type ClickHouseDB struct {
	conn clickhouse.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// CheckSchema fails when the migrations have not created the orders table
func (db *ClickHouseDB) CheckSchema(ctx context.Context) error {
	var exists uint8
	if err := db.conn.QueryRow(ctx, "EXISTS TABLE orders").Scan(&exists); err != nil {
		return fmt.Errorf("failed to check orders table: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("orders table is missing, run `migrate up` first")
	}
	return nil
}

// RecordOrder appends a confirmed order to the journal
func (db *ClickHouseDB) RecordOrder(ctx context.Context, order models.OrderRecord) error {
	batch, err := db.conn.PrepareBatch(ctx, `INSERT INTO orders (id, user_key, platform, fulfillment, store_id, store_name, distance_km, delivery_fee, total, currency, payment_method, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare order insert: %w", err)
	}

	err = batch.Append(
		order.ID,
		order.UserKey,
		order.Platform,
		order.Fulfillment,
		order.StoreID,
		order.StoreName,
		order.DistanceKm,
		order.DeliveryFee,
		order.Total,
		order.Currency,
		order.PaymentMethod,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append order: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to record order: %w", err)
	}
	return nil
}

// RecentOrders returns the last N orders
func (db *ClickHouseDB) RecentOrders(ctx context.Context, limit int) ([]models.OrderRecord, error) {
	rows, err := db.conn.Query(ctx, `SELECT id, user_key, platform, fulfillment, store_id, store_name, distance_km, delivery_fee, total, currency, payment_method, created_at
		FROM orders ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent orders: %w", err)
	}
	defer rows.Close()

	var orders []models.OrderRecord
	for rows.Next() {
		var o models.OrderRecord
		if err := rows.Scan(
			&o.ID,
			&o.UserKey,
			&o.Platform,
			&o.Fulfillment,
			&o.StoreID,
			&o.StoreName,
			&o.DistanceKm,
			&o.DeliveryFee,
			&o.Total,
			&o.Currency,
			&o.PaymentMethod,
			&o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
