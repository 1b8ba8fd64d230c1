package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMemoryRepositories(t *testing.T) {
	repos := NewMemoryRepositories()

	assert.NotNil(t, NewCatalogRepository(repos))
	assert.NotNil(t, NewEntitlementRepository(repos))
	assert.NotNil(t, NewInvoiceRepository(repos))

	// each call starts from empty stores
	other := NewMemoryRepositories()
	assert.NotSame(t, repos.Invoice, other.Invoice)
}
