package providers

import (
	"context"

	"github.com/dmitrijs2005/esimrouter/internal/airtable"
	"github.com/dmitrijs2005/esimrouter/internal/models"
)

// Airtable field names of the providers table.
const (
	FieldName             = "Provider"
	FieldSMDPDomain       = "smdp_domain"
	FieldRenewable        = "Renewable"
	FieldOrderDescending  = "Order Descending"
	FieldAutomaticRestock = "Automatic Restock"
	FieldStockStatus      = "Stock Status"
	FieldPackage          = "Package"
	FieldNetworks         = "Networks"
	FieldDataGB           = "GB"
	FieldDaysValid        = "Days Valid"
)

// AirtableRepository reads providers from an Airtable view.
type AirtableRepository struct {
	table airtable.Table
	view  string
}

func NewAirtableRepository(t airtable.Table, view string) *AirtableRepository {
	return &AirtableRepository{table: t, view: view}
}

func (r *AirtableRepository) FetchAll(ctx context.Context) ([]models.Provider, error) {
	recs, err := airtable.All(ctx, r.table, r.view)
	if err != nil {
		return nil, err
	}
	out := make([]models.Provider, 0, len(recs))
	for _, rec := range recs {
		f := airtable.Fields(rec.Fields)
		out = append(out, models.Provider{
			ID:               rec.ID,
			Name:             f.String(FieldName),
			SMDPDomains:      f.Strings(FieldSMDPDomain),
			Renewable:        f.Bool(FieldRenewable),
			OrderDescending:  f.Bool(FieldOrderDescending),
			AutomaticRestock: f.Bool(FieldAutomaticRestock),
			StockStatus:      f.String(FieldStockStatus),
			PackageName:      f.String(FieldPackage),
			Networks:         f.Strings(FieldNetworks),
			DataGB:           int(f.Int(FieldDataGB)),
			DaysValid:        int(f.Int(FieldDaysValid)),
		})
	}
	return out, nil
}
