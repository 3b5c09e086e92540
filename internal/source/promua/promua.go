// Package promua fetches products from the Prom.ua GraphQL search.
package promua

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"price_tracker/internal/model"
	"price_tracker/internal/source"
)

// Name is the source name Prom.ua listings are stored under.
const Name = "promua"

// DefaultURL is the public GraphQL endpoint.
const DefaultURL = "https://prom.ua/graphql"

const pageSize = 95

const searchQuery = `query SearchListingQuery($search_term: String!, $limit: Int, $offset: Int) {
  searchListing(search_term: $search_term, limit: $limit, offset: $offset) {
    page {
      products {
        product {
          id
          name
          urlForProductViewOnSite
          image
          manufacturer
          price
          presence { isAvailable }
        }
      }
    }
  }
}`

func init() {
	source.Register(Name, func() (source.Adapter, error) {
		return New(DefaultURL), nil
	})
}

// Adapter searches Prom.ua with offset pagination.
type Adapter struct {
	client *resty.Client
	url    string
}

// New creates an adapter talking to the GraphQL endpoint at url.
func New(url string) *Adapter {
	return &Adapter{client: source.NewHTTPClient(), url: url}
}

type product struct {
	ID           source.ID    `json:"id"`
	Name         string       `json:"name"`
	URL          string       `json:"urlForProductViewOnSite"`
	Image        string       `json:"image"`
	Manufacturer string       `json:"manufacturer"`
	Price        source.Price `json:"price"`
	Presence     *struct {
		IsAvailable bool `json:"isAvailable"`
	} `json:"presence"`
}

// Fetch implements source.Adapter.
func (a *Adapter) Fetch(ctx context.Context, term string, opts source.FetchOptions) (*model.FetchResult, error) {
	res := &model.FetchResult{FetchedAt: time.Now().UTC()}

	items, err := source.Paginate(ctx, opts, 0, func(ctx context.Context, n int) (source.Page, error) {
		return a.page(ctx, term, n*pageSize)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	res.Observations = items
	return res, nil
}

func (a *Adapter) page(ctx context.Context, term string, offset int) (source.Page, error) {
	var data source.SearchListingPage[product]
	vars := map[string]any{"search_term": term, "limit": pageSize, "offset": offset}
	if err := source.PostGraphQL(ctx, a.client, a.url, searchQuery, vars, &data); err != nil {
		return source.Page{}, err
	}
	products, err := data.Products()
	if err != nil {
		return source.Page{}, err
	}

	page := source.Page{Items: make([]model.Observation, 0, len(products))}
	for _, p := range products {
		page.Items = append(page.Items, model.Observation{
			SourceItemID: string(p.ID),
			Name:         p.Name,
			Href:         p.URL,
			ImageHref:    source.OptionalString(p.Image),
			Brand:        source.OptionalString(p.Manufacturer),
			Price:        p.Price.Ptr(),
			InStock:      p.Presence != nil && p.Presence.IsAvailable,
		})
	}
	return page, nil
}
