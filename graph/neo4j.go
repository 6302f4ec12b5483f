package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore is the production Store over a Bolt connection. One driver per
// process; sessions are cheap and opened per batch.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jStore connects to the graph database at uri with basic auth.
func NewNeo4jStore(uri, username, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: creating neo4j driver for %s: %w", uri, err)
	}
	return &Neo4jStore{driver: driver}, nil
}

func (s *Neo4jStore) Session(ctx context.Context) (Session, error) {
	return &neo4jSession{
		session: s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite}),
	}, nil
}

func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

type neo4jSession struct {
	session neo4j.SessionWithContext
}

func (n *neo4jSession) ExecuteWrite(ctx context.Context, query string, params map[string]any) (int64, error) {
	out, err := n.session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		count, ok := rec.Values[0].(int64)
		if !ok {
			return nil, fmt.Errorf("graph: query returned %T, want int64 count", rec.Values[0])
		}
		return count, nil
	})
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

func (n *neo4jSession) Close(ctx context.Context) error {
	return n.session.Close(ctx)
}
