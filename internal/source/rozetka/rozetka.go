// Package rozetka fetches products from the Rozetka search API.
package rozetka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"price_tracker/internal/model"
	"price_tracker/internal/source"
)

// Name is the source name Rozetka listings are stored under.
const Name = "rozetka"

// DefaultURL is the public search endpoint.
const DefaultURL = "https://search.rozetka.com.ua/ua/search/api/v6/"

func init() {
	source.Register(Name, func() (source.Adapter, error) {
		return New(DefaultURL), nil
	})
}

// Adapter searches Rozetka with page-number pagination. The page size is
// chosen by the server, which also reports the total page count.
type Adapter struct {
	client *resty.Client
	url    string
}

// New creates an adapter talking to the search endpoint at url.
func New(url string) *Adapter {
	return &Adapter{client: source.NewHTTPClient(), url: url}
}

type searchResponse struct {
	Data struct {
		Goods      []good `json:"goods"`
		Pagination struct {
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"data"`
}

type good struct {
	ID        source.ID    `json:"id"`
	Title     string       `json:"title"`
	Href      string       `json:"href"`
	ImageMain string       `json:"image_main"`
	Brand     string       `json:"brand"`
	Price     source.Price `json:"price"`
	Status    string       `json:"status"`
}

// Fetch implements source.Adapter.
func (a *Adapter) Fetch(ctx context.Context, term string, opts source.FetchOptions) (*model.FetchResult, error) {
	res := &model.FetchResult{FetchedAt: time.Now().UTC()}

	items, err := source.Paginate(ctx, opts, 0, func(ctx context.Context, n int) (source.Page, error) {
		return a.page(ctx, term, n+1)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	res.Observations = items
	return res, nil
}

func (a *Adapter) page(ctx context.Context, term string, page int) (source.Page, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"country": "UA",
			"lang":    "ua",
			"text":    term,
			"page":    strconv.Itoa(page),
		}).
		Get(a.url)
	if err != nil {
		return source.Page{}, fmt.Errorf("get search page: %w", err)
	}

	var body searchResponse
	if err := source.DecodeJSON(resp, &body); err != nil {
		return source.Page{}, err
	}

	out := source.Page{
		Items: make([]model.Observation, 0, len(body.Data.Goods)),
		Last:  page >= body.Data.Pagination.TotalPages,
	}
	for _, g := range body.Data.Goods {
		out.Items = append(out.Items, model.Observation{
			SourceItemID: string(g.ID),
			Name:         g.Title,
			Href:         g.Href,
			ImageHref:    source.OptionalString(g.ImageMain),
			Brand:        source.OptionalString(g.Brand),
			Price:        g.Price.Ptr(),
			InStock:      g.Status == "available",
		})
	}
	return out, nil
}
