package store

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"

	"github.com/eleven-am/pantry/internal/model"
)

var productColumns = []string{"id", "ingredient_id", "brand", "size", "store_id", "department_id", "isle"}

// ProductInput describes a purchasable product. The same item may be
// recorded more than once, e.g. after a store moves it to another isle.
type ProductInput struct {
	IngredientID int64            `db:"ingredient_id" validate:"required"`
	Brand        string           `db:"brand"`
	Size         string           `db:"size"`
	StoreID      int64            `db:"store_id" validate:"required"`
	DepartmentID int64            `db:"department_id" validate:"required"`
	Isle         sql.Null[string] `db:"isle" validate:"-"`
}

// ProductPatch changes the fields that are non-nil
type ProductPatch struct {
	IngredientID *int64
	Brand        *string
	Size         *string
	StoreID      *int64
	DepartmentID *int64
	Isle         *sql.Null[string]
}

func (s *Store) checkProductRefs(ctx context.Context, op string, ingredientID, storeID, departmentID *int64) error {
	refs := []struct {
		column, table string
		id            *int64
	}{
		{"ingredient_id", "ingredients", ingredientID},
		{"store_id", "stores", storeID},
		{"department_id", "departments", departmentID},
	}
	for _, r := range refs {
		if r.id == nil {
			continue
		}
		if err := s.requireRef(ctx, op, "products", r.column, r.table, *r.id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, in ProductInput) (int64, error) {
	const op = "CreateProduct"
	if err := s.check(op, in); err != nil {
		return 0, err
	}

	var id int64
	err := s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.checkProductRefs(ctx, op, &in.IngredientID, &in.StoreID, &in.DepartmentID); err != nil {
			return err
		}
		newID, err := tx.insert(ctx, tx.sb.Insert("products").
			Columns("ingredient_id", "brand", "size", "store_id", "department_id", "isle").
			Values(in.IngredientID, in.Brand, in.Size, in.StoreID, in.DepartmentID, in.Isle))
		if err != nil {
			return parseError(err, op, "products")
		}
		id = newID
		return nil
	})
	return id, err
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) error {
	const op = "UpdateProduct"

	set := map[string]interface{}{}
	if patch.IngredientID != nil {
		set["ingredient_id"] = *patch.IngredientID
	}
	if patch.Brand != nil {
		set["brand"] = *patch.Brand
	}
	if patch.Size != nil {
		set["size"] = *patch.Size
	}
	if patch.StoreID != nil {
		set["store_id"] = *patch.StoreID
	}
	if patch.DepartmentID != nil {
		set["department_id"] = *patch.DepartmentID
	}
	if patch.Isle != nil {
		set["isle"] = *patch.Isle
	}

	return s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.requireRow(ctx, op, "products", id); err != nil {
			return err
		}
		if len(set) == 0 {
			return nil
		}
		if err := tx.checkProductRefs(ctx, op, patch.IngredientID, patch.StoreID, patch.DepartmentID); err != nil {
			return err
		}
		_, err := tx.execute(ctx, tx.sb.Update("products").SetMap(set).Where(squirrel.Eq{"id": id}))
		return parseError(err, op, "products")
	})
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	q := s.sb.Select(productColumns...).From("products").Where(squirrel.Eq{"id": id})
	if err := s.get(ctx, &p, q); err != nil {
		return nil, parseError(err, "GetProduct", "products")
	}
	return &p, nil
}

// ProductFilter narrows ListProducts
type ProductFilter struct {
	IngredientID *int64
	StoreID      *int64
}

func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	q := s.sb.Select(productColumns...).From("products").OrderBy("id")
	if filter.IngredientID != nil {
		q = q.Where(squirrel.Eq{"ingredient_id": *filter.IngredientID})
	}
	if filter.StoreID != nil {
		q = q.Where(squirrel.Eq{"store_id": *filter.StoreID})
	}

	products := []model.Product{}
	if err := s.query(ctx, &products, q); err != nil {
		return nil, parseError(err, "ListProducts", "products")
	}
	return products, nil
}

// DeleteProduct removes a product and its price history
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return s.deleteOwned(ctx, "DeleteProduct", "products", id)
}
