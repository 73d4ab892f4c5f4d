package resolver

import (
	"context"
	"sync"

	"github.com/Ramsey-B/juniper/pkg/salestax"
)

// MemoryDirectory is an in-process Directory for local runs and tests.
type MemoryDirectory struct {
	mu            sync.RWMutex
	customers     map[string]salestax.Customer
	products      map[string]salestax.Product
	err           error
	customerCalls int
	productCalls  int
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		customers: map[string]salestax.Customer{},
		products:  map[string]salestax.Product{},
	}
}

func memoryKey(corporationID, platform, platformID string) string {
	return corporationID + "|" + platform + "|" + platformID
}

func (d *MemoryDirectory) AddCustomer(customer salestax.Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[memoryKey(customer.CorporationID, customer.SourcePlatform, customer.SourcePlatformID)] = customer
}

func (d *MemoryDirectory) AddProduct(product salestax.Product) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.products[memoryKey(product.CorporationID, product.SourcePlatform, product.SourcePlatformID)] = product
}

// SetError makes every lookup fail with err until cleared with nil.
func (d *MemoryDirectory) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Calls returns how many customer and product lookups were served.
func (d *MemoryDirectory) Calls() (customers, products int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.customerCalls, d.productCalls
}

func (d *MemoryDirectory) GetCustomerBySourcePlatformID(_ context.Context, corporationID, platform, platformID string) (*salestax.Customer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.customerCalls++
	if d.err != nil {
		return nil, d.err
	}

	customer, ok := d.customers[memoryKey(corporationID, platform, platformID)]
	if !ok {
		return nil, nil
	}
	return &customer, nil
}

func (d *MemoryDirectory) GetProductsBySourcePlatforms(_ context.Context, corporationID string, platforms, platformIDs []string) ([]salestax.Product, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.productCalls++
	if d.err != nil {
		return nil, d.err
	}

	products := make([]salestax.Product, 0, len(platformIDs))
	for i, id := range platformIDs {
		if i >= len(platforms) {
			break
		}
		if product, ok := d.products[memoryKey(corporationID, platforms[i], id)]; ok {
			products = append(products, product)
		}
	}
	return products, nil
}
