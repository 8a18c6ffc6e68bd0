package search

import (
	"context"

	"github.com/hyperjump/codesight/internal/models"
	"github.com/hyperjump/codesight/internal/storage"
)

const (
	traceFlowMaxDepth = 5
	traceFlowMaxNodes = 1000
	usageMaxDepth     = 1
)

// traceFlowKinds is the edge set TraceFlow walks: call chains and the
// references that stand in for data/control flow between entities.
var traceFlowKinds = map[models.RelationshipKind]bool{
	models.RelCalls:      true,
	models.RelReferences: true,
}

// usageKinds is the edge set the find_usage interpretation walks: it shares
// References with traceFlowKinds and adds Uses. The spec's intent table
// has no row for find_usage; this package treats it as a depth-1 reverse
// walk over References/Uses edges, documented as a decision rather than a
// silent default (see DESIGN.md).
var usageKinds = map[models.RelationshipKind]bool{
	models.RelReferences: true,
	models.RelUses:       true,
}

// TraceFlow performs a breadth-first walk forward from startID over
// Calls/References edges, bounded by depth and total node count so a
// densely connected codebase cannot make a single query unbounded.
func TraceFlow(ctx context.Context, store storage.Storage, startID string, maxDepth int) ([]*models.CodeEntity, error) {
	if maxDepth <= 0 || maxDepth > traceFlowMaxDepth {
		maxDepth = traceFlowMaxDepth
	}
	return walk(ctx, store, startID, maxDepth, traceFlowMaxNodes, traceFlowKinds, false, func(s storage.Storage, ctx context.Context, id string) ([]*models.CodeRelationship, error) {
		return s.RelationshipsFrom(ctx, id)
	})
}

// FindUsage performs a shallow reverse walk over References/Uses edges:
// "who uses this entity", rather than TraceFlow's "what does this entity
// lead to".
func FindUsage(ctx context.Context, store storage.Storage, startID string) ([]*models.CodeEntity, error) {
	return walk(ctx, store, startID, usageMaxDepth, traceFlowMaxNodes, usageKinds, true, func(s storage.Storage, ctx context.Context, id string) ([]*models.CodeRelationship, error) {
		return s.RelationshipsTo(ctx, id)
	})
}

type edgeFetcher func(storage.Storage, context.Context, string) ([]*models.CodeRelationship, error)

func walk(ctx context.Context, store storage.Storage, startID string, maxDepth, maxNodes int, kinds map[models.RelationshipKind]bool, reverse bool, fetch edgeFetcher) ([]*models.CodeEntity, error) {
	visited := map[string]bool{startID: true}
	frontier := []string{startID}
	var results []*models.CodeEntity

	for depth := 0; depth < maxDepth && len(frontier) > 0 && len(results) < maxNodes; depth++ {
		var next []string
		for _, id := range frontier {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			default:
			}

			rels, err := fetch(store, ctx, id)
			if err != nil {
				return results, err
			}
			for _, rel := range rels {
				if !kinds[rel.Kind] {
					continue
				}
				target := rel.TargetEntityID
				if reverse {
					target = rel.SourceEntityID
				}
				if visited[target] {
					continue
				}
				visited[target] = true

				entity, err := store.GetEntity(ctx, target)
				if err != nil || entity == nil {
					continue
				}
				results = append(results, entity)
				next = append(next, target)
				if len(results) >= maxNodes {
					return results, nil
				}
			}
		}
		frontier = next
	}
	return results, nil
}
