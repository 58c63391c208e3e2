package store

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/eleven-am/pantry/internal/model"
)

// costs are NUMERIC(10,2)
var maxCost = decimal.New(1, 8)

func checkCost(op string, cost decimal.Decimal) error {
	switch {
	case cost.IsNegative():
		return invalid(op, "cost", "must not be negative")
	case !cost.Equal(cost.Round(2)):
		return invalid(op, "cost", "must have at most 2 decimal places")
	case cost.GreaterThanOrEqual(maxCost):
		return invalid(op, "cost", "must have at most 10 digits")
	}
	return nil
}

func checkDay(op string, day model.Date) error {
	if day.IsZero() {
		return invalid(op, "date", "is required")
	}
	return nil
}

func priceKey(productID int64, day model.Date) squirrel.Eq {
	return squirrel.Eq{"product_id": productID, "date": day}
}

// RecordPrice adds the cost of a product on a day. A product has at most one
// price per day; correct an existing observation with UpdatePrice.
func (s *Store) RecordPrice(ctx context.Context, productID int64, day model.Date, cost decimal.Decimal) error {
	const op = "RecordPrice"
	if err := checkDay(op, day); err != nil {
		return err
	}
	if err := checkCost(op, cost); err != nil {
		return err
	}

	return s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.requireRef(ctx, op, "prices", "product_id", "products", productID); err != nil {
			return err
		}

		n, err := tx.count(ctx, tx.sb.Select("COUNT(*)").From("prices").Where(priceKey(productID, day)))
		if err != nil {
			return parseError(err, op, "prices")
		}
		if n > 0 {
			return &Error{Op: op, Table: "prices", Err: ErrDuplicate,
				Constraint: "ux_prices_product_id_date",
				Detail:     "a price is already recorded for " + day.String()}
		}

		_, err = tx.insert(ctx, tx.sb.Insert("prices").
			Columns("product_id", "date", "cost").
			Values(productID, day, cost.StringFixed(2)))
		return parseError(err, op, "prices")
	})
}

// UpdatePrice corrects an existing observation
func (s *Store) UpdatePrice(ctx context.Context, productID int64, day model.Date, cost decimal.Decimal) error {
	const op = "UpdatePrice"
	if err := checkDay(op, day); err != nil {
		return err
	}
	if err := checkCost(op, cost); err != nil {
		return err
	}

	n, err := s.execute(ctx, s.sb.Update("prices").Set("cost", cost.StringFixed(2)).Where(priceKey(productID, day)))
	if err != nil {
		return parseError(err, op, "prices")
	}
	if n == 0 {
		return &Error{Op: op, Table: "prices", Err: ErrNotFound, Detail: "no price on " + day.String()}
	}
	return nil
}

// DateRange bounds a price series. Zero bounds are open.
type DateRange struct {
	From model.Date
	To   model.Date
}

// PriceSeries returns the observations of a product in ascending date order.
// Days without an observation are simply absent.
func (s *Store) PriceSeries(ctx context.Context, productID int64, r DateRange) ([]model.PricePoint, error) {
	const op = "PriceSeries"
	if err := s.requireRow(ctx, op, "products", productID); err != nil {
		return nil, err
	}

	q := s.sb.Select("date", "cost").From("prices").Where(squirrel.Eq{"product_id": productID}).OrderBy("date")
	if !r.From.IsZero() {
		q = q.Where(squirrel.GtOrEq{"date": r.From})
	}
	if !r.To.IsZero() {
		q = q.Where(squirrel.LtOrEq{"date": r.To})
	}

	points := []model.PricePoint{}
	if err := s.query(ctx, &points, q); err != nil {
		return nil, parseError(err, op, "prices")
	}
	return points, nil
}

// LatestPrice returns the most recent observation on or before asOf
func (s *Store) LatestPrice(ctx context.Context, productID int64, asOf model.Date) (*model.Price, error) {
	var p model.Price
	q := s.sb.Select("id", "product_id", "date", "cost").
		From("prices").
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.LtOrEq{"date": asOf}).
		OrderBy("date DESC").
		Limit(1)
	if err := s.get(ctx, &p, q); err != nil {
		return nil, parseError(err, "LatestPrice", "prices")
	}
	return &p, nil
}
