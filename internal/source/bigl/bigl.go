// Package bigl fetches products from the Bigl.ua GraphQL search.
package bigl

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"price_tracker/internal/model"
	"price_tracker/internal/source"
)

// Name is the source name Bigl listings are stored under.
const Name = "bigl"

// DefaultURL is the public GraphQL endpoint.
const DefaultURL = "https://bigl.ua/graphql"

const (
	pageSize = 95
	maxItems = 5000
)

const searchQuery = `query SearchListingQuery($search_term: String!, $limit: Int, $offset: Int) {
  searchListing(search_term: $search_term, limit: $limit, offset: $offset) {
    page {
      products {
        product {
          id
          name
          url
          price
          presence
          main_image { url }
          manufacturerInfo { name }
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

// Adapter searches Bigl with offset pagination, capped at 5000 products.
type Adapter struct {
	client *resty.Client
	url    string
}

// New creates an adapter talking to the GraphQL endpoint at url.
func New(url string) *Adapter {
	return &Adapter{client: source.NewHTTPClient(), url: url}
}

type product struct {
	ID        source.ID    `json:"id"`
	Name      string       `json:"name"`
	URL       string       `json:"url"`
	Price     source.Price `json:"price"`
	Presence  string       `json:"presence"`
	MainImage *struct {
		URL string `json:"url"`
	} `json:"main_image"`
	ManufacturerInfo *struct {
		Name string `json:"name"`
	} `json:"manufacturerInfo"`
}

// Fetch implements source.Adapter.
func (a *Adapter) Fetch(ctx context.Context, term string, opts source.FetchOptions) (*model.FetchResult, error) {
	res := &model.FetchResult{FetchedAt: time.Now().UTC()}

	items, err := source.Paginate(ctx, opts, maxItems, func(ctx context.Context, n int) (source.Page, error) {
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
		o := model.Observation{
			SourceItemID: string(p.ID),
			Name:         p.Name,
			Href:         p.URL,
			Price:        p.Price.Ptr(),
			InStock:      p.Presence == "avail",
		}
		if p.MainImage != nil {
			o.ImageHref = source.OptionalString(p.MainImage.URL)
		}
		if p.ManufacturerInfo != nil {
			o.Brand = source.OptionalString(p.ManufacturerInfo.Name)
		}
		page.Items = append(page.Items, o)
	}
	return page, nil
}
