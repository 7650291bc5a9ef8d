package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"stockbot/internal/catalog"
	logx "stockbot/pkg/logx"
)

const (
	DefaultCromaURL             = "https://api.croma.com/inventory/oms/v2/tms/details-pwa/"
	DefaultCromaSubscriptionKey = "1131858141634e2abe2efb2b3a2a2a5d"

	cromaOrigin = "https://www.croma.com"
)

type CromaConfig struct {
	URL             string
	SubscriptionKey string
}

// Croma checks home-delivery promise lines on Croma's OMS inventory API.
type Croma struct {
	cfg    CromaConfig
	client *http.Client
	log    logx.Logger
}

func NewCroma(cfg CromaConfig, client *http.Client, log logx.Logger) *Croma {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultCromaURL
	}
	if strings.TrimSpace(cfg.SubscriptionKey) == "" {
		cfg.SubscriptionKey = DefaultCromaSubscriptionKey
	}
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Croma{cfg: cfg, client: client, log: log}
}

type cromaRequest struct {
	Promise cromaPromise `json:"promise"`
}

type cromaPromise struct {
	AllocationRuleID       string            `json:"allocationRuleID"`
	CheckInventory         string            `json:"checkInventory"`
	OrganizationCode       string            `json:"organizationCode"`
	SourcingClassification string            `json:"sourcingClassification"`
	PromiseLines           cromaPromiseLines `json:"promiseLines"`
}

type cromaPromiseLines struct {
	PromiseLine []cromaPromiseLine `json:"promiseLine"`
}

type cromaPromiseLine struct {
	FulfillmentType string `json:"fulfillmentType"`
	ItemID          string `json:"itemID"`
	LineID          string `json:"lineId"`
	RequiredQty     string `json:"requiredQty"`
	ShipToAddress   struct {
		ZipCode string `json:"zipCode"`
	} `json:"shipToAddress"`
	Extn struct {
		WiderStoreFlag string `json:"widerStoreFlag"`
	} `json:"extn"`
}

type cromaResponse struct {
	Promise *struct {
		SuggestedOption *struct {
			Option *struct {
				PromiseLines *struct {
					PromiseLine json.RawMessage `json:"promiseLine"`
				} `json:"promiseLines"`
			} `json:"option"`
		} `json:"suggestedOption"`
	} `json:"promise"`
}

func newCromaRequest(productID, postalCode string) cromaRequest {
	line := cromaPromiseLine{
		FulfillmentType: "HDEL",
		ItemID:          productID,
		LineID:          "1",
		RequiredQty:     "1",
	}
	line.ShipToAddress.ZipCode = postalCode
	line.Extn.WiderStoreFlag = "N"
	return cromaRequest{Promise: cromaPromise{
		AllocationRuleID:       "SYSTEM",
		CheckInventory:         "Y",
		OrganizationCode:       "CROMA",
		SourcingClassification: "EC",
		PromiseLines:           cromaPromiseLines{PromiseLine: []cromaPromiseLine{line}},
	}}
}

func (c *Croma) headers() map[string]string {
	return map[string]string{
		"Accept":                    "application/json",
		"Content-Type":              "application/json",
		"oms-apim-subscription-key": c.cfg.SubscriptionKey,
		"Origin":                    cromaOrigin,
		"Referer":                   cromaOrigin + "/",
	}
}

func (c *Croma) Check(ctx context.Context, p catalog.Product, postalCode string) Result {
	var resp cromaResponse
	err := postJSON(ctx, c.client, "Croma", c.cfg.URL, c.headers(), newCromaRequest(p.ProductID, postalCode), &resp)
	if err != nil {
		c.log.Warn("error checking Croma",
			logx.String("product", p.Name),
			logx.String("postal_code", postalCode),
			logx.String("err", err.Error()),
		)
		return failed(catalog.StoreCroma, postalCode, p, err)
	}

	if !resp.available() {
		c.log.Debug("not in stock", logx.String("product", p.Name), logx.String("postal_code", postalCode))
		return outOfStock(catalog.StoreCroma, postalCode, p)
	}
	c.log.Info("in stock", logx.String("product", p.Name), logx.String("postal_code", postalCode))
	return inStock(catalog.StoreCroma, "Croma", postalCode, p)
}

func (r cromaResponse) available() bool {
	if r.Promise == nil || r.Promise.SuggestedOption == nil || r.Promise.SuggestedOption.Option == nil {
		return false
	}
	lines := r.Promise.SuggestedOption.Option.PromiseLines
	return lines != nil && truthy(lines.PromiseLine)
}
