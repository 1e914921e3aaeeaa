// Package erp imports the hardware catalog from an Odoo ERP instance over
// XML-RPC. Import is optional at startup and can be re-triggered through
// the admin API; rows are upserted by their ERP product code.
package erp

import (
	"context"
	"fmt"
	"log"

	"github.com/kolo/xmlrpc"

	"github.com/voltlink-io/onboardflow/internal/config"
	"github.com/voltlink-io/onboardflow/internal/models"
	"github.com/voltlink-io/onboardflow/internal/repository"
)

// erpProduct mirrors the fields fetched from product.product
type erpProduct struct {
	DefaultCode string  `xmlrpc:"default_code"`
	Name        string  `xmlrpc:"name"`
	Description string  `xmlrpc:"description_sale"`
	ListPrice   float64 `xmlrpc:"list_price"`
}

// Importer pulls hardware catalog rows from Odoo
type Importer struct {
	cfg      config.ERPConfig
	hardware *repository.HardwareRepository
	uid      int
}

// NewImporter creates an Importer over the ERP configuration
func NewImporter(cfg config.ERPConfig, hardware *repository.HardwareRepository) *Importer {
	return &Importer{cfg: cfg, hardware: hardware}
}

// Configured reports whether an ERP endpoint is set up
func (i *Importer) Configured() bool {
	return i.cfg.URL != "" && i.cfg.Database != ""
}

// authenticate resolves the Odoo user id for subsequent execute_kw calls
func (i *Importer) authenticate() error {
	client, err := xmlrpc.NewClient(fmt.Sprintf("%s/xmlrpc/2/common", i.cfg.URL), nil)
	if err != nil {
		return fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	args := []interface{}{i.cfg.Database, i.cfg.Username, i.cfg.Password, make([]interface{}, 0)}
	var uid int
	if err := client.Call("authenticate", args, &uid); err != nil {
		return fmt.Errorf("ERP authentication failed: %w", err)
	}
	i.uid = uid
	return nil
}

// ImportHardware fetches all sellable hardware products and upserts them
// into the local catalog. Returns the number of rows imported.
func (i *Importer) ImportHardware(ctx context.Context) (int, error) {
	if !i.Configured() {
		return 0, fmt.Errorf("ERP endpoint not configured")
	}
	if err := i.authenticate(); err != nil {
		return 0, err
	}

	client, err := xmlrpc.NewClient(fmt.Sprintf("%s/xmlrpc/2/object", i.cfg.URL), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	args := []interface{}{
		i.cfg.Database,
		i.uid,
		i.cfg.Password,
		"product.product",
		"search_read",
		[]interface{}{[]interface{}{
			[]interface{}{"sale_ok", "=", true},
			[]interface{}{"default_code", "!=", false},
		}},
		map[string]interface{}{
			"fields": []string{"default_code", "name", "description_sale", "list_price"},
		},
	}

	var products []erpProduct
	if err := client.Call("execute_kw", args, &products); err != nil {
		return 0, fmt.Errorf("failed to fetch ERP products: %w", err)
	}

	imported := 0
	for _, p := range products {
		if p.DefaultCode == "" {
			continue
		}
		hw := &models.Hardware{
			Name:        p.Name,
			Code:        p.DefaultCode,
			Description: p.Description,
			UnitPrice:   p.ListPrice,
		}
		if err := i.hardware.UpsertByCode(ctx, hw); err != nil {
			log.Printf("⚠️ Skipping ERP product %s: %v", p.DefaultCode, err)
			continue
		}
		imported++
	}

	log.Printf("✅ Imported %d hardware catalog rows from ERP", imported)
	return imported, nil
}
