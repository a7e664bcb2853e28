package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/esimrouter/internal/dbx"
	"github.com/dmitrijs2005/esimrouter/internal/models"
)

// PostgresRepository reads providers over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FetchAll returns every provider ordered by name.
func (r *PostgresRepository) FetchAll(ctx context.Context) ([]models.Provider, error) {
	query := `
		SELECT id, name, smdp_domains, renewable, order_descending, automatic_restock,
			stock_status, package_name, networks, data_gb, days_valid
		FROM providers
		ORDER BY name, id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Provider
	for rows.Next() {
		var (
			p        models.Provider
			domains  string
			networks string
		)
		if err := rows.Scan(&p.ID, &p.Name, &domains, &p.Renewable, &p.OrderDescending, &p.AutomaticRestock,
			&p.StockStatus, &p.PackageName, &networks, &p.DataGB, &p.DaysValid); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		p.SMDPDomains = SplitList(domains)
		p.Networks = SplitList(networks)
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

// SplitList splits a comma separated column, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
