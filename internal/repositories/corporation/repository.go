package corporation

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/pkg/database"
	"github.com/Ramsey-B/juniper/pkg/salestax"
	"github.com/Ramsey-B/juniper/pkg/tracing"
)

// CorporationRepository reads effective corporation settings
type CorporationRepository interface {
	Get(ctx context.Context, corporationID string) (salestax.Corporation, error)
}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get returns the stored settings for a corporation, or a 404 HTTPError
func (r *Repository) Get(ctx context.Context, corporationID string) (salestax.Corporation, error) {
	ctx, span := tracing.StartSpan(ctx, "CorporationRepository.Get")
	defer span.End()

	if corporationID == "" {
		return salestax.Corporation{}, httperror.NewHTTPError(http.StatusBadRequest, "corporation_id is required")
	}

	sb := settingsStruct.SelectFrom(settingsTable)
	sb.Where(sb.Equal("corporation_id", corporationID))

	query, args := sb.Build()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"corporation_id": corporationID,
	}).Debug("Getting corporation settings")

	var row SettingsRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return salestax.Corporation{}, httperror.NewHTTPError(http.StatusNotFound, "corporation settings not found")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get corporation settings")
		return salestax.Corporation{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get corporation settings")
	}

	return ToCorporation(&row), nil
}
