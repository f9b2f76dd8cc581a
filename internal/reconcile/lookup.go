package reconcile

import (
	"context"

	"github.com/JonMunkholm/servicesync/internal/salesforce"
)

// Querier runs SOQL.
type Querier interface {
	Query(ctx context.Context, soql string) (*salesforce.QueryResult, error)
}

// Session is the CRM surface the reconciler needs. *salesforce.Client satisfies it.
type Session interface {
	Querier
	Create(ctx context.Context, object string, fields salesforce.Fields) (salesforce.MutationResult, error)
	Update(ctx context.Context, object, id string, fields salesforce.Fields) (salesforce.MutationResult, error)
}

// QueryOne runs a query expected to match a single record. An ambiguous
// result is treated the same as no result: the record is returned only when
// the reported total is exactly one. Transport errors are returned.
func QueryOne(ctx context.Context, q Querier, soql string) (salesforce.Record, error) {
	res, err := q.Query(ctx, soql)
	if err != nil {
		return nil, err
	}
	if res == nil || res.TotalSize == nil || *res.TotalSize != 1 || len(res.Records) == 0 {
		return nil, nil
	}
	return res.Records[0], nil
}
