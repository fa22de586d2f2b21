package database

import (
	"captable-backend/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN. PreferSimpleProtocol disables prepared
// statement caching to avoid 42P05 ("prepared statement already exists")
// when using connection poolers (e.g. PgBouncer). TranslateError lets
// callers match gorm.ErrDuplicatedKey on the ledger's idempotency index.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{TranslateError: true})
}

// AutoMigrate runs migrations for the equity core models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.OptionPool{},
		&domain.CompanyInvestor{},
		&domain.CompanyInvestorEntity{},
		&domain.EquityGrant{},
		&domain.VestingEvent{},
		&domain.EquityGrantTransaction{},
		&domain.TenderOffer{},
		&domain.TenderOfferBid{},
		&domain.DividendRound{},
		&domain.Dividend{},
		&domain.TaxTreatyRate{},
		&domain.Invoice{},
	)
}
