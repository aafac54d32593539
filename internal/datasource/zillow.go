package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/infra"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

// Defaults for ZillowConfig.
const (
	DefaultHost       = "zillow-com1.p.rapidapi.com"
	DefaultRateLimit  = 100
	DefaultRateWindow = time.Hour
	searchPath        = "/propertyExtendedSearch"
	maxPages          = 50
)

// ZillowConfig configures the listing client.
type ZillowConfig struct {
	APIKey            string
	Host              string        // RapidAPI host header
	BaseURL           string        // defaults to https://<Host>
	RateLimit         int           // requests per RateWindow; <= 0 is unlimited
	RateWindow        time.Duration
	RequestsPerSecond int           // pacing between pages; <= 0 disables
	CacheTTL          time.Duration // 0 disables caching
	HTTPClient        *http.Client
}

// Zillow is the RapidAPI Zillow listing client.
type Zillow struct {
	cfg      ZillowConfig
	client   *http.Client
	quota    *infra.Quota
	limiter  *infra.RateLimiter
	cache    *infra.Cache[*SearchPage]
	logger   *slog.Logger
	requests atomic.Int64
}

// NewZillow creates a listing client.
func NewZillow(cfg ZillowConfig, logger *slog.Logger) *Zillow {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + cfg.Host
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = DefaultRateWindow
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	pace := time.Duration(0)
	if cfg.RequestsPerSecond > 0 {
		pace = time.Second / time.Duration(cfg.RequestsPerSecond)
	}

	return &Zillow{
		cfg:     cfg,
		client:  client,
		quota:   infra.NewQuota(cfg.RateLimit, cfg.RateWindow),
		limiter: infra.NewRateLimiter(1, pace),
		cache:   infra.NewCache[*SearchPage](cfg.CacheTTL),
		logger:  logger,
	}
}

// Configured reports whether an API key is set.
func (z *Zillow) Configured() bool { return z.cfg.APIKey != "" }

// Name returns the data source name.
func (z *Zillow) Name() string { return "Zillow (RapidAPI)" }

// --- Search parameters ---

// SearchParams are the /propertyExtendedSearch query parameters.
// Nil bounds are omitted from the request.
type SearchParams struct {
	Location     string // zip codes joined by ";"
	StatusType   string // ForSale, ForRent, RecentlySold
	HomeType     string // comma-separated listing home types
	MinPrice     *float64
	MaxPrice     *float64
	BedsMin      *float64
	BedsMax      *float64
	BathsMin     *float64
	BathsMax     *float64
	SqftMin      *float64
	SqftMax      *float64
	BuildYearMin *float64
	BuildYearMax *float64
	DaysOn       string
	Page         int
}

// ParamsForBuybox translates a buybox into search parameters for page 1.
func ParamsForBuybox(b models.Buybox) SearchParams {
	types := make([]string, len(b.PropertyTypes))
	for i, t := range b.PropertyTypes {
		types[i] = string(t)
	}
	return SearchParams{
		Location:     strings.Join(b.ZipCodes, ";"),
		StatusType:   b.StatusType,
		HomeType:     strings.Join(types, ","),
		MinPrice:     b.PriceRange.Min,
		MaxPrice:     b.PriceRange.Max,
		BedsMin:      b.Bedrooms.Min,
		BedsMax:      b.Bedrooms.Max,
		BathsMin:     b.Bathrooms.Min,
		BathsMax:     b.Bathrooms.Max,
		SqftMin:      b.SquareFeet.Min,
		SqftMax:      b.SquareFeet.Max,
		BuildYearMin: b.YearBuilt.Min,
		BuildYearMax: b.YearBuilt.Max,
		DaysOn:       b.DaysOnMarket,
		Page:         1,
	}
}

// Values encodes the parameters as a query string.
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	v.Set("location", p.Location)
	status := p.StatusType
	if status == "" {
		status = "ForSale"
	}
	v.Set("status_type", status)
	if p.HomeType != "" {
		v.Set("home_type", p.HomeType)
	}
	setNum := func(key string, n *float64) {
		if n != nil {
			v.Set(key, strconv.FormatFloat(*n, 'f', -1, 64))
		}
	}
	setNum("minPrice", p.MinPrice)
	setNum("maxPrice", p.MaxPrice)
	setNum("bedsMin", p.BedsMin)
	setNum("bedsMax", p.BedsMax)
	setNum("bathsMin", p.BathsMin)
	setNum("bathsMax", p.BathsMax)
	setNum("sqftMin", p.SqftMin)
	setNum("sqftMax", p.SqftMax)
	setNum("buildYearMin", p.BuildYearMin)
	setNum("buildYearMax", p.BuildYearMax)
	if p.DaysOn != "" {
		v.Set("daysOn", p.DaysOn)
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	return v
}

// --- Zillow API types ---

// SearchPage is one page of search results.
type SearchPage struct {
	Properties       []models.Property
	TotalPages       int
	TotalResultCount int
	ResultsPerPage   int
}

type zlSearchResponse struct {
	Props            []zlProperty `json:"props"`
	TotalPages       int          `json:"totalPages"`
	TotalResultCount int          `json:"totalResultCount"`
	ResultsPerPage   int          `json:"resultsPerPage"`
}

type zlProperty struct {
	ZPID             flexString `json:"zpid"`
	Address          string     `json:"address"`
	Price            *float64   `json:"price"`
	Bedrooms         *float64   `json:"bedrooms"`
	Bathrooms        *float64   `json:"bathrooms"`
	LivingArea       *float64   `json:"livingArea"`
	LotAreaValue     *float64   `json:"lotAreaValue"`
	LotAreaUnit      string     `json:"lotAreaUnit"`
	PropertyType     string     `json:"propertyType"`
	ListingStatus    string     `json:"listingStatus"`
	Latitude         *float64   `json:"latitude"`
	Longitude        *float64   `json:"longitude"`
	ImgSrc           string     `json:"imgSrc"`
	RentZestimate    *float64   `json:"rentZestimate"`
	Zestimate        *float64   `json:"zestimate"`
	PriceChange      *float64   `json:"priceChange"`
	DatePriceChanged *float64   `json:"datePriceChanged"`
	DaysOnZillow     *float64   `json:"daysOnZillow"`
	DetailURL        string     `json:"detailUrl"`
	Country          string     `json:"country"`
	Currency         string     `json:"currency"`
}

// flexString accepts either a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("zpid: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func (zp zlProperty) toModel() models.Property {
	p := models.Property{
		ZPID:          string(zp.ZPID),
		Address:       zp.Address,
		Price:         deref(zp.Price),
		Bedrooms:      int(deref(zp.Bedrooms)),
		Bathrooms:     deref(zp.Bathrooms),
		LivingArea:    deref(zp.LivingArea),
		LotAreaValue:  deref(zp.LotAreaValue),
		LotAreaUnit:   zp.LotAreaUnit,
		PropertyType:  zp.PropertyType,
		ListingStatus: zp.ListingStatus,
		Latitude:      deref(zp.Latitude),
		Longitude:     deref(zp.Longitude),
		ImgSrc:        zp.ImgSrc,
		RentZestimate: zp.RentZestimate,
		Zestimate:     zp.Zestimate,
		PriceChange:   zp.PriceChange,
		DaysOnZillow:  int(deref(zp.DaysOnZillow)),
		DetailURL:     zp.DetailURL,
		Country:       zp.Country,
		Currency:      zp.Currency,
	}
	if zp.DatePriceChanged != nil {
		ms := int64(*zp.DatePriceChanged)
		p.DatePriceChanged = &ms
	}
	return p
}

// --- Requests ---

// Search fetches one page. Results are cached by query string.
func (z *Zillow) Search(ctx context.Context, params SearchParams) (*SearchPage, error) {
	if !z.Configured() {
		return nil, ErrNotConfigured
	}

	query := params.Values().Encode()
	if page, ok := z.cache.Get(query); ok {
		return page, nil
	}

	if err := z.quota.Acquire(); err != nil {
		return nil, err
	}
	if err := z.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	z.requests.Add(1)
	body, err := doGet(ctx, z.client, z.cfg.BaseURL+searchPath+"?"+query, map[string]string{
		"X-RapidAPI-Key":  z.cfg.APIKey,
		"X-RapidAPI-Host": z.cfg.Host,
	})
	if err != nil {
		z.logger.Error("listing API request failed", "location", params.Location, "page", params.Page, "error", err)
		return nil, classify(err)
	}
	defer body.Close()

	var resp zlSearchResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	page := &SearchPage{
		Properties:       make([]models.Property, 0, len(resp.Props)),
		TotalPages:       resp.TotalPages,
		TotalResultCount: resp.TotalResultCount,
		ResultsPerPage:   resp.ResultsPerPage,
	}
	for _, zp := range resp.Props {
		page.Properties = append(page.Properties, zp.toModel())
	}
	z.cache.Set(query, page)
	return page, nil
}

// SearchBuybox fetches all pages for the buybox. Any page failure aborts
// the search and is returned without retry.
func (z *Zillow) SearchBuybox(ctx context.Context, b models.Buybox) ([]models.Property, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	params := ParamsForBuybox(b)

	all := []models.Property{}
	for page := 1; page <= maxPages; page++ {
		params.Page = page
		z.logger.Info("fetching listing page", "buybox", b.Name, "page", page)

		res, err := z.Search(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("buybox %s page %d: %w", b.Name, page, err)
		}
		all = append(all, res.Properties...)
		if page >= res.TotalPages {
			break
		}
	}

	z.logger.Info("fetched listings", "buybox", b.Name, "count", len(all))
	return all, nil
}

// APIStats reports request usage against the quota.
type APIStats struct {
	RequestCount      int64 `json:"requestCount"`
	RemainingRequests int   `json:"remainingRequests"` // -1 when unlimited
	TimeUntilResetMs  int64 `json:"timeUntilReset"`
	RateLimit         int   `json:"rateLimit"`
	Configured        bool  `json:"configured"`
}

// Stats returns request counters.
func (z *Zillow) Stats() APIStats {
	return APIStats{
		RequestCount:      z.requests.Load(),
		RemainingRequests: z.quota.Remaining(),
		TimeUntilResetMs:  z.quota.TimeUntilReset().Milliseconds(),
		RateLimit:         z.quota.Limit(),
		Configured:        z.Configured(),
	}
}

// RemainingRequests returns the requests left in the current quota window.
func (z *Zillow) RemainingRequests() int { return z.quota.Remaining() }
