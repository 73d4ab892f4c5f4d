package corporation

import (
	"database/sql"

	"github.com/Ramsey-B/juniper/pkg/database"
	"github.com/Ramsey-B/juniper/pkg/salestax"
)

const (
	settingsTable = "corporation_settings"
)

// SettingsRow is a row of corporation_settings
type SettingsRow struct {
	CorporationID                sql.NullString                   `db:"corporation_id"`
	DefaultProductTaxabilityCode sql.NullString                   `db:"default_product_taxability_code"`
	ShipFrom                     database.JSONB[salestax.Address] `db:"ship_from"`
	CreatedAt                    sql.NullTime                     `db:"created_at"`
	UpdatedAt                    sql.NullTime                     `db:"updated_at"`
}

var settingsStruct = database.NewStruct(new(SettingsRow))

// ToCorporation converts a row to the effective corporation settings
func ToCorporation(row *SettingsRow) salestax.Corporation {
	corporation := salestax.Corporation{ID: row.CorporationID.String}
	if row.DefaultProductTaxabilityCode.Valid && row.DefaultProductTaxabilityCode.String != "" {
		code := row.DefaultProductTaxabilityCode.String
		corporation.DefaultProductTaxabilityCode = &code
	}
	if row.ShipFrom.Valid {
		address := row.ShipFrom.Data
		corporation.ShipFrom = &address
	}
	return corporation
}
