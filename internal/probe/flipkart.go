package probe

import (
	"context"
	"net/http"
	"strings"

	"stockbot/internal/catalog"
	logx "stockbot/pkg/logx"
)

const (
	DefaultFlipkartURL       = "https://2.rome.api.flipkart.com/api/3/product/serviceability"
	DefaultFlipkartUserAgent = "Mozilla/5.0 (Linux; Android 6.0; Nexus 5 Build/MRA58N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Mobile Safari/537.36"

	flipkartOrigin = "https://www.flipkart.com"
	// Flipkart's msite rejects requests without its client tag appended to the UA.
	flipkartClientTag = " FKUA/msite/0.0.3/msite/Mobile"
)

type FlipkartConfig struct {
	URL       string
	UserAgent string
}

// Flipkart checks the product serviceability endpoint used by Flipkart's mobile site.
type Flipkart struct {
	cfg    FlipkartConfig
	client *http.Client
	log    logx.Logger
}

func NewFlipkart(cfg FlipkartConfig, client *http.Client, log logx.Logger) *Flipkart {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultFlipkartURL
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultFlipkartUserAgent
	}
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Flipkart{cfg: cfg, client: client, log: log}
}

type flipkartRequest struct {
	RequestContext struct {
		Products []flipkartProductRef `json:"products"`
	} `json:"requestContext"`
	LocationContext struct {
		Pincode string `json:"pincode"`
	} `json:"locationContext"`
}

type flipkartProductRef struct {
	ProductID string `json:"productId"`
}

type flipkartResponse struct {
	Response map[string]struct {
		ListingSummary *struct {
			Serviceable *bool `json:"serviceable"`
			Available   *bool `json:"available"`
		} `json:"listingSummary"`
	} `json:"RESPONSE"`
}

func newFlipkartRequest(productID, postalCode string) flipkartRequest {
	var req flipkartRequest
	req.RequestContext.Products = []flipkartProductRef{{ProductID: productID}}
	req.LocationContext.Pincode = postalCode
	return req
}

func (f *Flipkart) headers() map[string]string {
	return map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
		"Origin":       flipkartOrigin,
		"Referer":      flipkartOrigin + "/",
		"User-Agent":   f.cfg.UserAgent,
		"X-User-Agent": f.cfg.UserAgent + flipkartClientTag,
	}
}

func (f *Flipkart) Check(ctx context.Context, p catalog.Product, postalCode string) Result {
	var resp flipkartResponse
	err := postJSON(ctx, f.client, "Flipkart", f.cfg.URL, f.headers(), newFlipkartRequest(p.ProductID, postalCode), &resp)
	if err != nil {
		f.log.Warn("error checking Flipkart",
			logx.String("product", p.Name),
			logx.String("postal_code", postalCode),
			logx.String("err", err.Error()),
		)
		return failed(catalog.StoreFlipkart, postalCode, p, err)
	}

	if !resp.available(p.ProductID) {
		f.log.Debug("not in stock", logx.String("product", p.Name), logx.String("postal_code", postalCode))
		return outOfStock(catalog.StoreFlipkart, postalCode, p)
	}
	f.log.Info("in stock", logx.String("product", p.Name), logx.String("postal_code", postalCode))
	return inStock(catalog.StoreFlipkart, "Flipkart", postalCode, p)
}

func (r flipkartResponse) available(productID string) bool {
	entry, ok := r.Response[productID]
	if !ok || entry.ListingSummary == nil {
		return false
	}
	ls := entry.ListingSummary
	return ls.Serviceable != nil && *ls.Serviceable && ls.Available != nil && *ls.Available
}
