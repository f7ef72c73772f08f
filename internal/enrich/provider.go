package enrich

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/pkg/apollo"
)

// apolloProvider adapts the Apollo client to the Provider interface.
type apolloProvider struct {
	client apollo.Client
}

// NewApolloProvider wraps an Apollo client as an enrichment Provider.
func NewApolloProvider(client apollo.Client) Provider {
	return &apolloProvider{client: client}
}

func (p *apolloProvider) Enrich(ctx context.Context, ref EntityRef) (*ProviderResult, error) {
	req := apollo.EnrichRequest{
		SourceID: ref.SourceID,
		Name:     ref.Name,
		Domain:   ref.Domain,
	}

	var (
		res *apollo.EnrichResult
		err error
	)
	switch ref.Kind {
	case KindContact:
		res, err = p.client.EnrichPerson(ctx, req)
	case KindCompany, "":
		res, err = p.client.EnrichCompany(ctx, req)
	default:
		return nil, eris.Errorf("enrich: unknown entity kind %q", ref.Kind)
	}
	if err != nil {
		return nil, err
	}

	return &ProviderResult{SourceID: res.SourceID, Payload: res.Payload}, nil
}
