// Package pg implements commerce.Client on PostgreSQL through gorm, for
// shops that host their own catalog instead of using Moltin.
package pg

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"pizzabot/internal/commerce"
	"pizzabot/internal/models"
)

// Store is the PostgreSQL commerce backend
type Store struct {
	db       *gorm.DB
	currency string
}

// Open connects to PostgreSQL
func Open(dsn, currency string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return &Store{db: db, currency: currency}, nil
}

var _ commerce.Client = (*Store)(nil)

// Migrate creates or updates the tables
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(&productRow{}, &storeRow{}, &cartLineRow{}, &customerEntryRow{})
	if err != nil {
		return fmt.Errorf("failed to migrate commerce tables: %w", err)
	}
	return nil
}

// Seed upserts products and stores. Product order follows the slice order.
func (s *Store) Seed(ctx context.Context, products []models.Product, stores []models.Store, imageURL func(models.Product) string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, p := range products {
			row := productRow{
				ID:          p.ID,
				Name:        p.Name,
				Description: p.Description,
				Price:       p.Price.Amount,
				Position:    i,
			}
			if imageURL != nil {
				row.ImageURL = imageURL(p)
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to seed product %s: %w", p.ID, err)
			}
		}
		for _, st := range stores {
			row := storeRow{
				ID:           st.ID,
				Name:         st.Name,
				Address:      st.Address,
				Lon:          st.Location.Lon,
				Lat:          st.Location.Lat,
				DelivererKey: st.DelivererKey,
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to seed store %s: %w", st.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) ListProducts(ctx context.Context) ([]models.ProductRef, error) {
	var rows []productRow
	if err := s.db.WithContext(ctx).Select("id", "name").Order("position, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	refs := make([]models.ProductRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, models.ProductRef{ID: r.ID, Name: r.Name})
	}
	return refs, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var row productRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", productID).Error; err != nil {
		return nil, s.notFound(err, "product "+productID)
	}
	return &models.Product{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Price:       s.money(row.Price),
		ImageID:     row.ID,
	}, nil
}

// GetImageURL resolves image ids, which are product ids in this backend
func (s *Store) GetImageURL(ctx context.Context, imageID string) (string, error) {
	var row productRow
	if err := s.db.WithContext(ctx).Select("image_url").First(&row, "id = ?", imageID).Error; err != nil {
		return "", s.notFound(err, "image "+imageID)
	}
	if row.ImageURL == "" {
		return "", fmt.Errorf("image %s: %w", imageID, commerce.ErrNotFound)
	}
	return row.ImageURL, nil
}

func (s *Store) AddToCart(ctx context.Context, cartRef, productID string, quantity int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product productRow
		if err := tx.Select("id").First(&product, "id = ?", productID).Error; err != nil {
			return s.notFound(err, "product "+productID)
		}

		line := cartLineRow{CartRef: cartRef, ProductID: productID, Quantity: quantity}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_ref"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{"quantity": gorm.Expr("cart_lines.quantity + EXCLUDED.quantity")}),
		}).Create(&line).Error
		if err != nil {
			return fmt.Errorf("failed to add to cart %s: %w", cartRef, err)
		}
		return nil
	})
}

func (s *Store) CartItems(ctx context.Context, cartRef string) ([]models.CartLine, error) {
	var rows []cartLineRow
	err := s.db.WithContext(ctx).Preload("Product").Where("cart_ref = ?", cartRef).Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get cart %s: %w", cartRef, err)
	}

	lines := make([]models.CartLine, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, models.CartLine{
			ID:        strconv.FormatUint(uint64(r.ID), 10),
			ProductID: r.ProductID,
			Name:      r.Product.Name,
			Quantity:  r.Quantity,
			UnitPrice: s.money(r.Product.Price),
			LineTotal: s.money(r.Product.Price.Mul(decimal.NewFromInt(int64(r.Quantity)))),
		})
	}
	return lines, nil
}

func (s *Store) RemoveCartItem(ctx context.Context, cartRef, lineID string) error {
	id, err := strconv.ParseUint(lineID, 10, 64)
	if err != nil {
		return fmt.Errorf("cart line %s: %w", lineID, commerce.ErrNotFound)
	}

	res := s.db.WithContext(ctx).Where("cart_ref = ?", cartRef).Delete(&cartLineRow{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to remove cart line %s: %w", lineID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("cart line %s: %w", lineID, commerce.ErrNotFound)
	}
	return nil
}

func (s *Store) CartTotal(ctx context.Context, cartRef string) (models.Money, error) {
	lines, err := s.CartItems(ctx, cartRef)
	if err != nil {
		return models.Money{}, err
	}

	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal.Amount)
	}
	return s.money(total), nil
}

func (s *Store) DeleteCart(ctx context.Context, cartRef string) error {
	if err := s.db.WithContext(ctx).Where("cart_ref = ?", cartRef).Delete(&cartLineRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete cart %s: %w", cartRef, err)
	}
	return nil
}

func (s *Store) ListStores(ctx context.Context) ([]models.Store, error) {
	var rows []storeRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}

	stores := make([]models.Store, 0, len(rows))
	for _, r := range rows {
		stores = append(stores, models.Store{
			ID:           r.ID,
			Name:         r.Name,
			Address:      r.Address,
			Location:     models.Coordinates{Lon: r.Lon, Lat: r.Lat},
			DelivererKey: r.DelivererKey,
		})
	}
	return stores, nil
}

func (s *Store) CreateCustomerEntry(ctx context.Context, entry models.CustomerEntry) error {
	row := customerEntryRow{
		OrderRef:     entry.OrderRef,
		CustomerName: entry.CustomerName,
		Lon:          entry.Location.Lon,
		Lat:          entry.Location.Lat,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create customer entry: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) money(amount decimal.Decimal) models.Money {
	return models.Money{Amount: amount, Currency: s.currency}
}

func (s *Store) notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, commerce.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
