/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures the point-of-sale UI speaks. Field names are
  the UI's (Spanish) names; the domain model keeps its own.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Prices and adjustment values travel as JSON numbers. They are decoded
  straight into decimal.Decimal and encoded from it via json.Number, so no
  float64 ever touches a price.

RULE KINDS:
  "porcentaje" <-> inventory.RulePercentage
  "valor"      <-> inventory.RuleFixed

VALIDATION:
  Validation is done in handlers and the inventory package, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/inventory-engine/inventory"
)

const (
	tipoPorcentaje = "porcentaje"
	tipoValor      = "valor"
)

// ruleKindFromTipo accepts only the wire names; anything else maps to the
// empty kind, which rule validation rejects.
func ruleKindFromTipo(tipo string) inventory.RuleKind {
	switch tipo {
	case tipoPorcentaje:
		return inventory.RulePercentage
	case tipoValor:
		return inventory.RuleFixed
	default:
		return ""
	}
}

func tipoFromRuleKind(kind inventory.RuleKind) string {
	switch kind {
	case inventory.RulePercentage:
		return tipoPorcentaje
	case inventory.RuleFixed:
		return tipoValor
	default:
		return string(kind)
	}
}

// =============================================================================
// CATALOG
// =============================================================================

type CategoryDTO struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
}

type CreateCategoryRequest struct {
	Nombre string `json:"nombre"`
}

type ProductDTO struct {
	ID          int64       `json:"id"`
	Nombre      string      `json:"nombre"`
	Precio      json.Number `json:"precio"`
	Stock       int64       `json:"stock"`
	Categorias  []int64     `json:"categorias"`
	Version     int64       `json:"version"`
	Actualizado string      `json:"actualizado"`
}

type CreateProductRequest struct {
	Nombre     string           `json:"nombre"`
	Precio     *decimal.Decimal `json:"precio"`
	Stock      int64            `json:"stock"`
	Categorias []int64          `json:"categorias"`
}

type SetPriceRequest struct {
	Precio *decimal.Decimal `json:"precio"`
}

// =============================================================================
// BULK PRICE ADJUSTMENT
// =============================================================================

// BulkAdjustmentRequest is the body of POST /api/productos/ajuste-masivo.
// A null categoria_id targets all products.
type BulkAdjustmentRequest struct {
	TipoAjuste  string           `json:"tipo_ajuste"`
	Valor       *decimal.Decimal `json:"valor"`
	CategoriaID *int64           `json:"categoria_id"`
	Observacion string           `json:"observacion"`
}

type BulkAdjustmentResponse struct {
	ID                 int64 `json:"id"`
	ProductosAfectados int   `json:"productos_afectados"`
}

// AdjustmentDTO is one history row.
type AdjustmentDTO struct {
	ID                 int64       `json:"id"`
	Fecha              string      `json:"fecha"`
	TipoAjuste         string      `json:"tipo_ajuste"`
	Valor              json.Number `json:"valor"`
	CategoriaID        *int64      `json:"categoria_id"`
	CategoriaNombre    *string     `json:"categoria_nombre"`
	Observacion        string      `json:"observacion"`
	Revertido          bool        `json:"revertido"`
	ProductosAfectados int         `json:"productos_afectados"`
	Usuario            string      `json:"usuario,omitempty"`
	FechaReversion     *string     `json:"fecha_reversion,omitempty"`
	RevertidoPor       string      `json:"revertido_por,omitempty"`
}

// AdjustmentDetailDTO adds the price snapshot.
type AdjustmentDetailDTO struct {
	AdjustmentDTO
	Productos []SnapshotItemDTO `json:"productos"`
}

type SnapshotItemDTO struct {
	ProductoID     int64       `json:"producto_id"`
	PrecioAnterior json.Number `json:"precio_anterior"`
	PrecioNuevo    json.Number `json:"precio_nuevo"`
}

// =============================================================================
// STOCK
// =============================================================================

// StockAdjustmentRequest is the body of POST /api/productos/{id}/ajuste.
// cantidad must be a non-zero integer.
type StockAdjustmentRequest struct {
	Cantidad json.Number `json:"cantidad"`
	Motivo   string      `json:"motivo"`
}

type StockMovementDTO struct {
	ID            int64  `json:"id"`
	ProductoID    int64  `json:"producto_id"`
	Cantidad      int64  `json:"cantidad"`
	StockAnterior int64  `json:"stock_anterior"`
	StockNuevo    int64  `json:"stock_nuevo"`
	Motivo        string `json:"motivo"`
	Usuario       string `json:"usuario,omitempty"`
	Fecha         string `json:"fecha"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(inventory.PriceScale))
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toCategoryDTO(c inventory.Category) CategoryDTO {
	return CategoryDTO{ID: int64(c.ID), Nombre: c.Name}
}

func toProductDTO(p inventory.Product) ProductDTO {
	cats := make([]int64, len(p.Categories))
	for i, c := range p.Categories {
		cats[i] = int64(c)
	}
	return ProductDTO{
		ID:          int64(p.ID),
		Nombre:      p.Name,
		Precio:      money(p.Price),
		Stock:       p.Stock,
		Categorias:  cats,
		Version:     p.Version,
		Actualizado: timestamp(p.UpdatedAt),
	}
}

func toAdjustmentDTO(rec inventory.AdjustmentRecord) AdjustmentDTO {
	dto := AdjustmentDTO{
		ID:                 int64(rec.ID),
		Fecha:              timestamp(rec.CreatedAt),
		TipoAjuste:         tipoFromRuleKind(rec.Rule.Kind),
		Valor:              number(rec.Rule.Value),
		Observacion:        rec.Note,
		Revertido:          rec.Reverted,
		ProductosAfectados: rec.ProductCount,
		Usuario:            rec.CreatedBy,
		RevertidoPor:       rec.RevertedBy,
	}
	if cid := rec.Rule.Scope.CategoryID; cid != nil {
		id := int64(*cid)
		name := rec.CategoryName
		dto.CategoriaID = &id
		dto.CategoriaNombre = &name
	}
	if rec.RevertedAt != nil {
		at := timestamp(*rec.RevertedAt)
		dto.FechaReversion = &at
	}
	return dto
}

func toAdjustmentDetailDTO(rec inventory.AdjustmentRecord) AdjustmentDetailDTO {
	items := make([]SnapshotItemDTO, len(rec.Snapshot))
	for i, e := range rec.Snapshot {
		items[i] = SnapshotItemDTO{
			ProductoID:     int64(e.ProductID),
			PrecioAnterior: money(e.PriceBefore),
			PrecioNuevo:    money(e.PriceAfter),
		}
	}
	return AdjustmentDetailDTO{AdjustmentDTO: toAdjustmentDTO(rec), Productos: items}
}

func toStockMovementDTO(e inventory.StockEntry) StockMovementDTO {
	return StockMovementDTO{
		ID:            int64(e.ID),
		ProductoID:    int64(e.ProductID),
		Cantidad:      e.Delta,
		StockAnterior: e.StockBefore,
		StockNuevo:    e.StockAfter,
		Motivo:        e.Reason,
		Usuario:       e.CreatedBy,
		Fecha:         timestamp(e.CreatedAt),
	}
}
