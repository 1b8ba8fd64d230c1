package idempotency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKeyIgnoresParamOrder(t *testing.T) {
	g := NewGenerator()

	a := g.GenerateKey(ScopeReconciliationBatch, map[string]interface{}{
		"subscription_id": "subs_1",
		"items":           "k1|k2",
	})
	b := g.GenerateKey(ScopeReconciliationBatch, map[string]interface{}{
		"items":           "k1|k2",
		"subscription_id": "subs_1",
	})
	assert.Equal(t, a, b)
	assert.Contains(t, a, string(ScopeReconciliationBatch)+"-")
}

func TestGenerateKeyDependsOnScope(t *testing.T) {
	g := NewGenerator()
	params := map[string]interface{}{"id": "x"}
	assert.NotEqual(t, g.GenerateKey(ScopePayment, params), g.GenerateKey(ScopeReconciliationBatch, params))
}

func TestBatchKey(t *testing.T) {
	g := NewGenerator()
	june := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	key := g.BatchKey("subs_1", "evt_1", june, []string{"b", "a"})
	assert.Equal(t, key, g.BatchKey("subs_1", "evt_1", june, []string{"a", "b"}))
	assert.NotEqual(t, key, g.BatchKey("subs_1", "evt_2", june, []string{"a", "b"}))
	assert.NotEqual(t, key, g.BatchKey("subs_1", "evt_1", june.AddDate(0, 0, 1), []string{"a", "b"}))
	assert.NotEqual(t, key, g.BatchKey("subs_1", "evt_1", june, []string{"a"}))

	assert.Equal(t, g.PaymentKey("inv_1"), g.PaymentKey("inv_1"))
	assert.NotEqual(t, g.PaymentKey("inv_1"), g.PaymentKey("inv_2"))
}
