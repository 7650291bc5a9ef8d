package probe

import (
	"context"
	"fmt"
	"sort"

	"stockbot/internal/catalog"
)

// Status is the verdict of one availability check.
type Status int

const (
	OutOfStock Status = iota
	InStock
	// Failed means the check could not reach a verdict (transport error,
	// non-2xx status, undecodable body). It is reported like OutOfStock.
	Failed
)

func (s Status) String() string {
	switch s {
	case InStock:
		return "in_stock"
	case OutOfStock:
		return "out_of_stock"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of checking one (product, postal code) pair.
// Errors are absorbed here instead of being returned to the caller.
type Result struct {
	Store      catalog.StoreType
	PostalCode string
	Product    catalog.Product
	Status     Status

	// Message is the alert block; set only when Status == InStock.
	Message string
	// Err is set only when Status == Failed.
	Err error
}

func (r Result) Available() bool { return r.Status == InStock }

// Probe checks one retailer's inventory. Implementations make exactly one
// outbound request per call and never retry.
type Probe interface {
	Check(ctx context.Context, p catalog.Product, postalCode string) Result
}

// Registry maps a store type to its probe.
type Registry struct {
	probes map[catalog.StoreType]Probe
}

func NewRegistry() *Registry {
	return &Registry{probes: map[catalog.StoreType]Probe{}}
}

// Register adds or replaces the probe for st.
func (r *Registry) Register(st catalog.StoreType, p Probe) *Registry {
	if p != nil {
		r.probes[st] = p
	}
	return r
}

// Lookup returns the probe for st. Unknown store types report false.
func (r *Registry) Lookup(st catalog.StoreType) (Probe, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.probes[st]
	return p, ok
}

// Stores lists registered store types in sorted order.
func (r *Registry) Stores() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.probes))
	for st := range r.probes {
		out = append(out, string(st))
	}
	sort.Strings(out)
	return out
}

// FormatAlert renders the Markdown alert block for an available product.
func FormatAlert(retailer, postalCode string, p catalog.Product) string {
	return fmt.Sprintf("✅ *In Stock at %s (%s)*\n[%s](%s)", retailer, postalCode, p.Name, p.Link())
}

func inStock(st catalog.StoreType, retailer, postalCode string, p catalog.Product) Result {
	return Result{
		Store:      st,
		PostalCode: postalCode,
		Product:    p,
		Status:     InStock,
		Message:    FormatAlert(retailer, postalCode, p),
	}
}

func outOfStock(st catalog.StoreType, postalCode string, p catalog.Product) Result {
	return Result{Store: st, PostalCode: postalCode, Product: p, Status: OutOfStock}
}

func failed(st catalog.StoreType, postalCode string, p catalog.Product, err error) Result {
	return Result{Store: st, PostalCode: postalCode, Product: p, Status: Failed, Err: err}
}
