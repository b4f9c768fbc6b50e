package dispatch

import (
	"context"
	"iter"
)

// RelationshipPrefix is prepended to a method name to form the subscription
// relationship, e.g. "notifyemail".
const RelationshipPrefix = "notify"

// Resolver finds the subscribers of a container for one delivery method.
type Resolver struct {
	graph RelationshipQuerier
}

// NewResolver creates a resolver on top of the relationship graph.
func NewResolver(graph RelationshipQuerier) *Resolver {
	return &Resolver{graph: graph}
}

// Query builds the subscriber query for a container and method. Banned
// accounts and the given GUIDs are filtered out by the query itself; zero
// GUIDs are ignored.
func (r *Resolver) Query(container GUID, method string, exclude ...GUID) SubscriberQuery {
	q := SubscriberQuery{
		Relationship:  RelationshipPrefix + method,
		Container:     container,
		Inverse:       true,
		ExcludeBanned: true,
	}
	for _, g := range exclude {
		if g != 0 {
			q.Exclude = append(q.Exclude, g)
		}
	}
	return q
}

// Candidates lazily yields the subscribers of container for method.
func (r *Resolver) Candidates(ctx context.Context, container GUID, method string, exclude ...GUID) iter.Seq2[Candidate, error] {
	q := r.Query(container, method, exclude...)
	return func(yield func(Candidate, error) bool) {
		var last GUID
		started := false
		for guid, err := range r.graph.RelatedAccounts(ctx, q) {
			if err != nil {
				yield(Candidate{}, err)
				return
			}
			// rows arrive in ascending order; drop repeats
			if started && guid <= last {
				continue
			}
			started, last = true, guid
			if !yield(Candidate{GUID: guid, Method: method}, nil) {
				return
			}
		}
	}
}
