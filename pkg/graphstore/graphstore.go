// Package graphstore maintains the chunk adjacency graph in Neo4j. Every
// source document becomes a Document node, every chunk a Chunk node with
// a PART_OF edge to its document, NEXT edges chain consecutive chunks of
// one granularity, and CHILD_OF edges connect child chunks to the parent
// chunk containing them.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/cleaveai/cleave/pkg/config"
	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/types"
)

const (
	retryAttempts = 3
	retryDelay    = 500 * time.Millisecond
)

// Neo4jGraph implements the GraphStore interface for Neo4j
type Neo4jGraph struct {
	driver neo4j.DriverWithContext
	config *config.GraphConfig
}

var _ interfaces.GraphStore = (*Neo4jGraph)(nil)

// NewNeo4jGraph creates a Neo4j graph store and verifies connectivity
func NewNeo4jGraph(ctx context.Context, cfg *config.GraphConfig) (*Neo4jGraph, error) {
	if cfg == nil {
		cfg = config.NewGraphConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("invalid graph config: %v", err))
	}

	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	configFunc := func(conf *neo4jconfig.Config) {
		if cfg.Timeout > 0 {
			conf.ConnectionAcquisitionTimeout = cfg.Timeout
			conf.SocketConnectTimeout = cfg.Timeout
		}
		conf.SocketKeepalive = true
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, configFunc)
	if err != nil {
		return nil, errors.NewGraphError("failed to create neo4j driver", err)
	}

	g := &Neo4jGraph{driver: driver, config: cfg}

	verifyCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		driver.Close(ctx)
		return nil, errors.NewGraphError("failed to verify neo4j connectivity", err)
	}

	return g, nil
}

// session opens a new session for one operation
func (g *Neo4jGraph) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: g.config.Database,
	})
}

// SyncChunks replaces a source's chunk nodes and NEXT edges at the chunks'
// granularity. The document node is merged, stale chunk nodes of that
// granularity are detached and deleted, and the new chain is written in
// one transaction. An empty slice clears every chunk node of the source.
func (g *Neo4jGraph) SyncChunks(ctx context.Context, sourceID string, chunks []types.Chunk) error {
	if g.driver == nil {
		return errors.NewGraphError("graph store is closed", nil)
	}
	if sourceID == "" {
		return errors.NewMissingFieldError("sourceID")
	}

	granularity, err := validateChunkSet(sourceID, chunks)
	if err != nil {
		return err
	}

	err = retry.Do(
		func() error {
			session := g.session(ctx, neo4j.AccessModeWrite)
			defer session.Close(ctx)

			tx, err := session.BeginTransaction(ctx)
			if err != nil {
				return err
			}
			defer tx.Close(ctx)

			if _, err := tx.Run(ctx,
				"MERGE (d:Document {source_id: $sourceID})",
				map[string]interface{}{"sourceID": sourceID},
			); err != nil {
				return err
			}

			deleteQuery := "MATCH (c:Chunk {source_id: $sourceID}) WHERE $granularity = '' OR c.granularity = $granularity DETACH DELETE c"
			if _, err := tx.Run(ctx, deleteQuery, map[string]interface{}{
				"sourceID":    sourceID,
				"granularity": granularity,
			}); err != nil {
				return err
			}

			if len(chunks) > 0 {
				createQuery := `
					MATCH (d:Document {source_id: $sourceID})
					UNWIND $chunks AS chunk
					CREATE (c:Chunk {id: chunk.id, source_id: chunk.source_id, granularity: chunk.granularity,
						start_token: chunk.start_token, end_token: chunk.end_token, position: chunk.position})
					CREATE (c)-[:PART_OF]->(d)
				`
				if _, err := tx.Run(ctx, createQuery, map[string]interface{}{
					"sourceID": sourceID,
					"chunks":   chunkPropsList(chunks),
				}); err != nil {
					return err
				}
			}

			if pairs := nextPairs(chunks); len(pairs) > 0 {
				nextQuery := `
					UNWIND $pairs AS pair
					MATCH (a:Chunk {id: pair.from}), (b:Chunk {id: pair.to})
					CREATE (a)-[:NEXT]->(b)
				`
				if _, err := tx.Run(ctx, nextQuery, map[string]interface{}{"pairs": pairs}); err != nil {
					return err
				}
			}

			return tx.Commit(ctx)
		},
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.Context(ctx),
	)

	if err != nil {
		return errors.NewGraphError(fmt.Sprintf("failed to sync chunks for source %s", sourceID), err)
	}
	return nil
}

// LinkHierarchy creates CHILD_OF edges from child chunks to the parent
// chunks containing them. Children whose range no parent fully contains
// get no edge.
func (g *Neo4jGraph) LinkHierarchy(ctx context.Context, parents, children []types.Chunk) error {
	if g.driver == nil {
		return errors.NewGraphError("graph store is closed", nil)
	}

	pairs, err := hierarchyPairs(parents, children)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}

	err = retry.Do(
		func() error {
			session := g.session(ctx, neo4j.AccessModeWrite)
			defer session.Close(ctx)

			query := `
				UNWIND $pairs AS pair
				MATCH (child:Chunk {id: pair.child}), (parent:Chunk {id: pair.parent})
				MERGE (child)-[:CHILD_OF]->(parent)
			`
			_, err := session.Run(ctx, query, map[string]interface{}{"pairs": pairs})
			return err
		},
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.Context(ctx),
	)

	if err != nil {
		return errors.NewGraphError("failed to link chunk hierarchy", err)
	}
	return nil
}

// Neighbors returns the IDs of the chunks before and after the given
// chunk along the NEXT chain; empty strings mark sequence ends
func (g *Neo4jGraph) Neighbors(ctx context.Context, chunkID string) (string, string, error) {
	if g.driver == nil {
		return "", "", errors.NewGraphError("graph store is closed", nil)
	}
	if chunkID == "" {
		return "", "", errors.NewMissingFieldError("chunkID")
	}

	var prev, next string
	found := false

	err := retry.Do(
		func() error {
			session := g.session(ctx, neo4j.AccessModeRead)
			defer session.Close(ctx)

			query := `
				MATCH (c:Chunk {id: $id})
				OPTIONAL MATCH (p:Chunk)-[:NEXT]->(c)
				OPTIONAL MATCH (c)-[:NEXT]->(n:Chunk)
				RETURN p.id AS prev, n.id AS next
			`
			result, err := session.Run(ctx, query, map[string]interface{}{"id": chunkID})
			if err != nil {
				return err
			}

			if result.Next(ctx) {
				found = true
				record := result.Record()
				if value, ok := record.Get("prev"); ok && value != nil {
					prev = value.(string)
				}
				if value, ok := record.Get("next"); ok && value != nil {
					next = value.(string)
				}
			}
			return result.Err()
		},
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.Context(ctx),
	)

	if err != nil {
		return "", "", errors.NewGraphError(fmt.Sprintf("failed to load neighbors of chunk %s", chunkID), err)
	}
	if !found {
		return "", "", errors.NewNotFoundError(fmt.Sprintf("chunk %s", chunkID))
	}
	return prev, next, nil
}

// DeleteSource removes a source's document node and all of its chunk nodes
func (g *Neo4jGraph) DeleteSource(ctx context.Context, sourceID string) error {
	if g.driver == nil {
		return errors.NewGraphError("graph store is closed", nil)
	}
	if sourceID == "" {
		return errors.NewMissingFieldError("sourceID")
	}

	err := retry.Do(
		func() error {
			session := g.session(ctx, neo4j.AccessModeWrite)
			defer session.Close(ctx)

			tx, err := session.BeginTransaction(ctx)
			if err != nil {
				return err
			}
			defer tx.Close(ctx)

			if _, err := tx.Run(ctx,
				"MATCH (c:Chunk {source_id: $sourceID}) DETACH DELETE c",
				map[string]interface{}{"sourceID": sourceID},
			); err != nil {
				return err
			}
			if _, err := tx.Run(ctx,
				"MATCH (d:Document {source_id: $sourceID}) DETACH DELETE d",
				map[string]interface{}{"sourceID": sourceID},
			); err != nil {
				return err
			}

			return tx.Commit(ctx)
		},
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.Context(ctx),
	)

	if err != nil {
		return errors.NewGraphError(fmt.Sprintf("failed to delete source %s", sourceID), err)
	}
	return nil
}

// HealthCheck verifies graph connectivity
func (g *Neo4jGraph) HealthCheck(ctx context.Context) error {
	if g.driver == nil {
		return errors.NewGraphError("graph store is closed", nil)
	}

	checkCtx := ctx
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	if err := g.driver.VerifyConnectivity(checkCtx); err != nil {
		return errors.NewGraphError("neo4j health check failed", err)
	}
	return nil
}

// Close closes the driver
func (g *Neo4jGraph) Close(ctx context.Context) error {
	if g.driver == nil {
		return nil
	}
	err := g.driver.Close(ctx)
	g.driver = nil
	return err
}

// validateChunkSet checks that all chunks belong to the source and share
// one granularity, returning that granularity; empty set means "all"
func validateChunkSet(sourceID string, chunks []types.Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", nil
	}

	granularity := chunks[0].Granularity
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return "", errors.NewInvalidArgumentError(fmt.Sprintf("invalid chunk at position %d: %v", i, err))
		}
		if chunks[i].SourceID != sourceID {
			return "", errors.NewInvalidArgumentError(fmt.Sprintf("chunk at position %d belongs to source %q, not %q", i, chunks[i].SourceID, sourceID))
		}
		if chunks[i].Granularity != granularity {
			return "", errors.NewInvalidArgumentError(fmt.Sprintf("chunk at position %d has granularity %q, expected %q", i, chunks[i].Granularity, granularity))
		}
	}
	return string(granularity), nil
}

// chunkPropsList converts chunks to parameter maps for UNWIND
func chunkPropsList(chunks []types.Chunk) []map[string]interface{} {
	props := make([]map[string]interface{}, len(chunks))
	for i := range chunks {
		props[i] = map[string]interface{}{
			"id":          chunks[i].ID,
			"source_id":   chunks[i].SourceID,
			"granularity": string(chunks[i].Granularity),
			"start_token": chunks[i].StartToken,
			"end_token":   chunks[i].EndToken,
			"position":    i,
		}
	}
	return props
}

// nextPairs builds the (from, to) ID pairs for NEXT edges between
// consecutive chunks
func nextPairs(chunks []types.Chunk) []map[string]interface{} {
	if len(chunks) < 2 {
		return nil
	}
	pairs := make([]map[string]interface{}, 0, len(chunks)-1)
	for i := 1; i < len(chunks); i++ {
		pairs = append(pairs, map[string]interface{}{
			"from": chunks[i-1].ID,
			"to":   chunks[i].ID,
		})
	}
	return pairs
}

// hierarchyPairs maps each child to the parent whose token range contains
// it. Parents must be parent-granularity and children child-granularity.
func hierarchyPairs(parents, children []types.Chunk) ([]map[string]interface{}, error) {
	for i := range parents {
		if parents[i].Granularity != types.GranularityParent {
			return nil, errors.NewInvalidArgumentError(fmt.Sprintf("chunk at position %d of parents has granularity %q", i, parents[i].Granularity))
		}
	}
	for i := range children {
		if children[i].Granularity != types.GranularityChild {
			return nil, errors.NewInvalidArgumentError(fmt.Sprintf("chunk at position %d of children has granularity %q", i, children[i].Granularity))
		}
	}

	var pairs []map[string]interface{}
	for i := range children {
		child := &children[i]
		for j := range parents {
			parent := &parents[j]
			if parent.SourceID == child.SourceID &&
				parent.StartToken <= child.StartToken &&
				child.EndToken <= parent.EndToken {
				pairs = append(pairs, map[string]interface{}{
					"child":  child.ID,
					"parent": parent.ID,
				})
				break
			}
		}
	}
	return pairs, nil
}
