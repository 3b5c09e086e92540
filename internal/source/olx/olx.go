// Package olx fetches classified offers from the OLX REST API.
package olx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"price_tracker/internal/model"
	"price_tracker/internal/source"
)

// Name is the source name OLX listings are stored under.
const Name = "olx"

// DefaultURL is the public offers endpoint.
const DefaultURL = "https://www.olx.ua/api/v1/offers/"

const pageSize = 50

func init() {
	source.Register(Name, func() (source.Adapter, error) {
		return New(DefaultURL), nil
	})
}

// Adapter searches OLX offers with offset pagination.
//
// OLX does not report availability: every offer it returns is live, so
// observations are always marked in stock.
type Adapter struct {
	client *resty.Client
	url    string
}

// New creates an adapter talking to the offers endpoint at url.
func New(url string) *Adapter {
	return &Adapter{client: source.NewHTTPClient(), url: url}
}

type offersResponse struct {
	Data []offer `json:"data"`
}

type errorResponse struct {
	Error struct {
		Title string `json:"title"`
	} `json:"error"`
}

type offer struct {
	ID     source.ID `json:"id"`
	Title  string    `json:"title"`
	URL    string    `json:"url"`
	Photos []struct {
		Link string `json:"link"`
	} `json:"photos"`
	Params []param `json:"params"`
}

type param struct {
	Key   string          `json:"key"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
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
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"offset":          strconv.Itoa(offset),
			"limit":           strconv.Itoa(pageSize),
			"query":           term,
			"filter_refiners": "spell_checker",
			"suggest_filters": "true",
		}).
		Get(a.url)
	if err != nil {
		return source.Page{}, fmt.Errorf("get offers: %w", err)
	}

	// OLX rejects offsets past the last result instead of returning an empty page.
	if resp.StatusCode() != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(resp.Body(), &e) == nil && e.Error.Title == "Invalid request" {
			return source.Page{}, nil
		}
	}

	var body offersResponse
	if err := source.DecodeJSON(resp, &body); err != nil {
		return source.Page{}, err
	}

	page := source.Page{Items: make([]model.Observation, 0, len(body.Data))}
	for _, o := range body.Data {
		var img *string
		if len(o.Photos) > 0 {
			img = source.OptionalString(o.Photos[0].Link)
		}
		page.Items = append(page.Items, model.Observation{
			SourceItemID: string(o.ID),
			Name:         o.Title,
			Href:         o.URL,
			ImageHref:    img,
			Price:        offerPrice(o.Params),
			InStock:      true,
		})
	}
	return page, nil
}

// offerPrice extracts the price param; a malformed value means no price.
func offerPrice(params []param) *float64 {
	for _, p := range params {
		if p.Key != "price" || p.Type != "price" {
			continue
		}
		var v struct {
			Value source.Price `json:"value"`
		}
		if err := json.Unmarshal(p.Value, &v); err != nil {
			return nil
		}
		return v.Value.Ptr()
	}
	return nil
}
