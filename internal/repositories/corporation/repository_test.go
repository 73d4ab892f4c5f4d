package corporation

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/pkg/database"
	"github.com/Ramsey-B/juniper/pkg/salestax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB answers GetContext with a canned row or error
type fakeDB struct {
	database.DB
	row   *SettingsRow
	err   error
	query string
	args  []any
}

func (f *fakeDB) GetContext(_ context.Context, dest any, query string, args ...any) error {
	f.query = query
	f.args = args
	if f.err != nil {
		return f.err
	}
	*(dest.(*SettingsRow)) = *f.row
	return nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestGet(t *testing.T) {
	db := &fakeDB{row: &SettingsRow{
		CorporationID:                sql.NullString{String: "corp_1", Valid: true},
		DefaultProductTaxabilityCode: sql.NullString{String: "FOOD", Valid: true},
		ShipFrom: database.JSONB[salestax.Address]{
			Data:  salestax.Address{City: strPtr("Austin")},
			Valid: true,
		},
	}}

	corporation, err := NewRepository(db, noopLogger()).Get(context.Background(), "corp_1")
	require.NoError(t, err)
	assert.Equal(t, "corp_1", corporation.ID)
	assert.Equal(t, "FOOD", corporation.DefaultTaxabilityCode())
	require.NotNil(t, corporation.ShipFrom)
	assert.Equal(t, "Austin", *corporation.ShipFrom.City)

	assert.Contains(t, db.query, "FROM corporation_settings")
	assert.Contains(t, db.query, "corporation_id = $1")
	assert.Equal(t, []any{"corp_1"}, db.args)
}

func TestGetWithoutOptionalSettings(t *testing.T) {
	db := &fakeDB{row: &SettingsRow{
		CorporationID:                sql.NullString{String: "corp_1", Valid: true},
		DefaultProductTaxabilityCode: sql.NullString{String: "", Valid: true},
	}}

	corporation, err := NewRepository(db, noopLogger()).Get(context.Background(), "corp_1")
	require.NoError(t, err)
	assert.Nil(t, corporation.DefaultProductTaxabilityCode)
	assert.Nil(t, corporation.ShipFrom)
	assert.Equal(t, salestax.DefaultTaxabilityCode, corporation.DefaultTaxabilityCode())
}

func TestGetErrors(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		err      error
		expected int
	}{
		{"missing id", "", nil, http.StatusBadRequest},
		{"not found", "corp_1", sql.ErrNoRows, http.StatusNotFound},
		{"database failure", "corp_1", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRepository(&fakeDB{err: tt.err}, noopLogger()).Get(context.Background(), tt.id)
			require.Error(t, err)
			require.True(t, httperror.IsHTTPError(err))
			assert.Equal(t, tt.expected, httperror.GetStatusCode(err))
		})
	}
}

func strPtr(s string) *string {
	return &s
}
