// Package knowledge mirrors the hypergraph into Neo4j so external tooling
// can explore the belief network with Cypher. The mirror is optional and
// strictly write-behind: the reasoner never reads back from it.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"hypernars/internal/types"
)

// Neo4jConfig holds connection configuration.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

// ConfigFromEnv reads connection settings from the environment.
func ConfigFromEnv() Neo4jConfig {
	cfg := Neo4jConfig{
		URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Username: getEnv("NEO4J_USERNAME", "neo4j"),
		Password: getEnv("NEO4J_PASSWORD", "password"),
		Database: getEnv("NEO4J_DATABASE", "neo4j"),
		Timeout:  5 * time.Second,
	}
	if timeoutStr := os.Getenv("NEO4J_TIMEOUT_MS"); timeoutStr != "" {
		if ms, err := strconv.Atoi(timeoutStr); err == nil && ms > 0 {
			cfg.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Mirror writes hyperedges and their argument links into Neo4j.
type Mirror struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
}

// NewMirror connects to Neo4j and verifies connectivity.
func NewMirror(cfg Neo4jConfig) (*Mirror, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4jconfig.Config) {
			c.MaxConnectionPoolSize = 10
			c.ConnectionAcquisitionTimeout = cfg.Timeout
			c.SocketConnectTimeout = cfg.Timeout
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	return &Mirror{driver: driver, database: cfg.Database, timeout: cfg.Timeout}, nil
}

// Close releases the driver.
func (m *Mirror) Close(ctx context.Context) error {
	if m.driver != nil {
		return m.driver.Close(ctx)
	}
	return nil
}

// UpsertEdge writes the edge node and its argument relationships.
func (m *Mirror) UpsertEdge(ctx context.Context, edge *types.Hyperedge) error {
	strongest := edge.StrongestBelief()
	if strongest == nil {
		return nil
	}
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: m.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			`MERGE (e:Hyperedge {id: $id})
			 SET e.type = $type, e.frequency = $frequency,
			     e.confidence = $confidence, e.expectation = $expectation,
			     e.beliefs = $beliefs`,
			map[string]any{
				"id":          edge.ID,
				"type":        string(edge.Type),
				"frequency":   strongest.Truth.Frequency,
				"confidence":  strongest.Truth.Confidence,
				"expectation": strongest.Truth.Expectation(),
				"beliefs":     len(edge.Beliefs),
			})
		if err != nil {
			return nil, err
		}
		for i, arg := range edge.Args {
			_, err = tx.Run(ctx,
				`MERGE (t:Term {name: $name})
				 WITH t MATCH (e:Hyperedge {id: $id})
				 MERGE (e)-[r:ARG {position: $position}]->(t)`,
				map[string]any{
					"name":     arg.Canonical(),
					"id":       edge.ID,
					"position": i,
				})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to mirror edge %s: %w", edge.ID, err)
	}
	return nil
}

// RemoveEdge deletes the edge node and its relationships.
func (m *Mirror) RemoveEdge(ctx context.Context, edgeID string) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: m.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx,
			`MATCH (e:Hyperedge {id: $id}) DETACH DELETE e`,
			map[string]any{"id": edgeID})
	})
	if err != nil {
		return fmt.Errorf("failed to remove mirrored edge %s: %w", edgeID, err)
	}
	return nil
}
