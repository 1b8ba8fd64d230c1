package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Scope namespaces keys so equal parameters under different scopes never collide
type Scope string

const (
	// ScopeReconciliationBatch keys the invoice produced by one reconciliation run
	ScopeReconciliationBatch Scope = "reconciliation_batch"
	// ScopePayment keys a collection attempt for one invoice
	ScopePayment Scope = "payment"
)

// Generator derives deterministic keys from the content they protect
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateKey hashes the scope with the params sorted by name
func (g *Generator) GenerateKey(scope Scope, params map[string]interface{}) string {
	names := lo.Keys(params)
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(scope))
	for _, name := range names {
		fmt.Fprintf(h, "\x00%s=%v", name, params[name])
	}
	return string(scope) + "-" + hex.EncodeToString(h.Sum(nil)[:16])
}

// BatchKey identifies a reconciliation batch by its trigger, invoice date and
// the set of item keys it carries. Item order is irrelevant.
func (g *Generator) BatchKey(subscriptionID, triggerEventID string, invoiceDate time.Time, itemKeys []string) string {
	sorted := append([]string(nil), itemKeys...)
	sort.Strings(sorted)

	return g.GenerateKey(ScopeReconciliationBatch, map[string]interface{}{
		"subscription_id":  subscriptionID,
		"trigger_event_id": triggerEventID,
		"invoice_date":     invoiceDate.Format(time.DateOnly),
		"items":            strings.Join(sorted, ","),
	})
}

// PaymentKey lets the gateway recognise a retried collection of the same invoice
func (g *Generator) PaymentKey(invoiceID string) string {
	return g.GenerateKey(ScopePayment, map[string]interface{}{
		"invoice_id": invoiceID,
	})
}
