// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/your-org/distribution-backend/internal/domain/catalog"
	"github.com/your-org/distribution-backend/internal/domain/order"
	"github.com/your-org/distribution-backend/internal/domain/party"
	"github.com/your-org/distribution-backend/internal/domain/stock"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// Models in dependency order
	models := []interface{}{
		// Catalog and parties first
		&catalog.Item{},
		&party.Party{},

		// Stock accounts and their audit trail
		&stock.StockAccount{},
		&stock.StockMovement{},

		// Order ledger
		&order.Order{},
		&order.OrderLineItem{},
		&order.DispatchEvent{},
		&order.DispatchLine{},
		&order.ReturnEvent{},
	}

	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		// Item indexes
		"CREATE INDEX IF NOT EXISTS idx_items_name_active ON items(name, is_active)",

		// Order indexes
		"CREATE INDEX IF NOT EXISTS idx_orders_party_status ON orders(party_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_order_date ON orders(order_date DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)",

		// Line item indexes
		"CREATE INDEX IF NOT EXISTS idx_order_line_items_order_item ON order_line_items(order_id, item_id)",

		// Dispatch indexes; history queries group by date and challan
		"CREATE INDEX IF NOT EXISTS idx_dispatch_events_order_date ON dispatch_events(order_id, dispatch_date)",
		"CREATE INDEX IF NOT EXISTS idx_dispatch_events_challan ON dispatch_events(challan_no)",
		"CREATE INDEX IF NOT EXISTS idx_dispatch_lines_event ON dispatch_lines(dispatch_event_id)",
		"CREATE INDEX IF NOT EXISTS idx_dispatch_lines_line_item ON dispatch_lines(order_line_item_id)",

		// Return indexes
		"CREATE INDEX IF NOT EXISTS idx_return_events_order_date ON return_events(order_id, return_date)",
		"CREATE INDEX IF NOT EXISTS idx_return_events_line_item ON return_events(order_line_item_id)",
		"CREATE INDEX IF NOT EXISTS idx_return_events_item ON return_events(item_id)",

		// Stock indexes
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_accounts_item ON stock_accounts(item_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_account_created ON stock_movements(stock_account_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_reference ON stock_movements(reference_type, reference_id)",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	return nil
}

// SeedInitialData inserts development fixtures: a small catalog, a couple of
// parties and opening stock for every seeded item.
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	if err := m.seedItems(); err != nil {
		return fmt.Errorf("failed to seed items: %w", err)
	}

	if err := m.seedParties(); err != nil {
		return fmt.Errorf("failed to seed parties: %w", err)
	}

	if err := m.seedOpeningStock(); err != nil {
		return fmt.Errorf("failed to seed opening stock: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

func (m *Migration) seedItems() error {
	log.Println("🏷️ Seeding items...")

	items := []catalog.Item{
		{Name: "TMT Bar", Size: "8mm", UnitWeight: decimal.RequireFromString("0.395"), Price: 52000, IsActive: true},
		{Name: "TMT Bar", Size: "12mm", UnitWeight: decimal.RequireFromString("0.888"), Price: 51000, IsActive: true},
		{Name: "TMT Bar", Size: "16mm", UnitWeight: decimal.RequireFromString("1.580"), Price: 50500, IsActive: true},
		{Name: "MS Angle", Size: "40x40x5", UnitWeight: decimal.RequireFromString("2.970"), Price: 48000, IsActive: true},
		{Name: "MS Flat", Size: "50x6", UnitWeight: decimal.RequireFromString("2.360"), Price: 47500, IsActive: true},
	}

	for _, item := range items {
		var existing catalog.Item
		result := m.db.Where("name = ? AND size = ?", item.Name, item.Size).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&item).Error; err != nil {
				return err
			}
			log.Printf("✅ Created item: %s %s", item.Name, item.Size)
		} else {
			log.Printf("⏭️ Item already exists: %s %s", item.Name, item.Size)
		}
	}

	return nil
}

func (m *Migration) seedParties() error {
	log.Println("👥 Seeding parties...")

	parties := []party.Party{
		{Name: "Sharma Traders", ContactNo: "9800000001", Address: "Main Road, Birgunj"},
		{Name: "Gupta Hardware", ContactNo: "9800000002", Address: "Station Road, Janakpur"},
		{Name: "New Everest Suppliers", ContactNo: "9800000003", Address: "Industrial Area, Biratnagar"},
	}

	for _, p := range parties {
		var existing party.Party
		result := m.db.Where("name = ?", p.Name).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&p).Error; err != nil {
				return err
			}
			log.Printf("✅ Created party: %s", p.Name)
		} else {
			log.Printf("⏭️ Party already exists: %s", p.Name)
		}
	}

	return nil
}

// seedOpeningStock opens a stock account with a starting balance for every
// seeded item that has none yet.
func (m *Migration) seedOpeningStock() error {
	log.Println("📦 Seeding opening stock...")

	var items []catalog.Item
	if err := m.db.Find(&items).Error; err != nil {
		return err
	}

	for _, item := range items {
		var existing stock.StockAccount
		result := m.db.Where("item_id = ?", item.ID).First(&existing)
		if result.Error == nil {
			log.Printf("⏭️ Stock account already exists for item %d", item.ID)
			continue
		}

		account := stock.StockAccount{ItemID: item.ID, AvailableQuantity: 500}
		if err := m.db.Create(&account).Error; err != nil {
			return err
		}

		movement := stock.StockMovement{
			StockAccountID:   account.ID,
			Direction:        stock.DirectionCredit,
			Quantity:         500,
			PreviousQuantity: 0,
			NewQuantity:      500,
			ReferenceType:    stock.ReferenceAdjustment,
			Notes:            "opening balance",
		}
		if err := m.db.Create(&movement).Error; err != nil {
			return err
		}

		log.Printf("✅ Opened stock account for item %d with 500 units", item.ID)
	}

	return nil
}

// DropAllTables drops all tables (use with extreme caution)
func (m *Migration) DropAllTables() error {
	log.Println("⚠️ WARNING: Dropping all database tables...")

	// Reverse dependency order
	tables := []string{
		"stock_movements",
		"stock_accounts",
		"return_events",
		"dispatch_lines",
		"dispatch_events",
		"order_line_items",
		"orders",
		"parties",
		"items",
	}

	for _, table := range tables {
		if err := m.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			log.Printf("⚠️ Failed to drop table %s: %v", table, err)
		} else {
			log.Printf("🗑️ Dropped table: %s", table)
		}
	}

	log.Println("✅ All tables dropped successfully")
	return nil
}

// GetTableInfo returns information about database tables
func (m *Migration) GetTableInfo() error {
	var tables []string

	if err := m.db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename").Scan(&tables).Error; err != nil {
		return err
	}

	log.Println("📊 Database Tables Information:")
	log.Println("================================")

	totalRecords := int64(0)
	for _, table := range tables {
		var count int64
		m.db.Table(table).Count(&count)
		totalRecords += count

		status := "✅"
		if count == 0 {
			status = "📭"
		}

		log.Printf("%s %-25s | %d records", status, table, count)
	}

	log.Println("================================")
	log.Printf("📈 Total records across all tables: %d", totalRecords)
	log.Printf("🗂️ Total tables: %d", len(tables))

	return nil
}
