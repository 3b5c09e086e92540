package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// PostGraphQL sends query with vars to endpoint and decodes the "data"
// member of the response into out. A non-empty "errors" member fails the call.
func PostGraphQL(ctx context.Context, client *resty.Client, endpoint, query string, vars map[string]any, out any) error {
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(graphQLRequest{Query: query, Variables: vars}).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("graphql post: %w", err)
	}

	var envelope graphQLResponse
	if err := DecodeJSON(resp, &envelope); err != nil {
		return err
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return fmt.Errorf("%w: graphql response without data", ErrDecode)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

// SearchListingPage is the response shape shared by the Prom.ua family of
// GraphQL search endpoints; P is the per-product payload.
type SearchListingPage[P any] struct {
	SearchListing *struct {
		Page struct {
			Products []struct {
				Product P `json:"product"`
			} `json:"products"`
		} `json:"page"`
	} `json:"searchListing"`
}

// Products returns the product payloads of the page.
func (p *SearchListingPage[P]) Products() ([]P, error) {
	if p.SearchListing == nil {
		return nil, fmt.Errorf("%w: missing searchListing", ErrDecode)
	}
	out := make([]P, 0, len(p.SearchListing.Page.Products))
	for _, item := range p.SearchListing.Page.Products {
		out = append(out, item.Product)
	}
	return out, nil
}
