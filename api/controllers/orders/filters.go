package orders

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/orderflow/api/validators"
	internalorders "github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/pagination"
)

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

// buildFilters reads list filters. Status accepts the legacy names older
// clients still send and maps them onto the canonical lifecycle.
func buildFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters

	status, ok, err := validators.ParseQueryEnum(r, "status", enums.NormalizeOrderStatus)
	if err != nil {
		return filters, err
	}
	if ok {
		filters.Status = &status
	}

	paymentStatus, ok, err := validators.ParseQueryEnum(r, "payment_status", enums.ParsePaymentStatus)
	if err != nil {
		return filters, err
	}
	if ok {
		filters.PaymentStatus = &paymentStatus
	}

	if filters.DateFrom, err = validators.ParseQueryTime(r, "date_from", false); err != nil {
		return filters, err
	}
	if filters.DateTo, err = validators.ParseQueryTime(r, "date_to", true); err != nil {
		return filters, err
	}
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateTo.Before(*filters.DateFrom) {
		return filters, pkgerrors.New(pkgerrors.CodeValidation, "date_to must not be before date_from")
	}
	return filters, nil
}
