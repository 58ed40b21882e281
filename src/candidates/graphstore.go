package candidates

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"devt.de/krotik/eliasdb/graph"
	"devt.de/krotik/eliasdb/graph/data"
	"github.com/will-rowe/lintrack/src/roi"
	"github.com/will-rowe/lintrack/src/trackgraph"
	"go.uber.org/zap"
)

// traversal spec from a node to its candidate predecessors
var parentSpec = roleChild + ":" + kindLink + ":" + roleParent + ":" + kindCell

// traversal spec from a node to its candidate successors
var childSpec = roleParent + ":" + kindLink + ":" + roleChild + ":" + kindCell

// system attributes eliasdb keeps on every node and edge
var systemAttrs = map[string]struct{}{
	data.NodeKey:           {},
	data.NodeKind:          {},
	data.EdgeEnd1Key:       {},
	data.EdgeEnd1Kind:      {},
	data.EdgeEnd1Role:      {},
	data.EdgeEnd1Cascading: {},
	data.EdgeEnd2Key:       {},
	data.EdgeEnd2Kind:      {},
	data.EdgeEnd2Role:      {},
	data.EdgeEnd2Cascading: {},

	data.EdgeEnd1CascadingLast: {},
	data.EdgeEnd2CascadingLast: {},
	data.NodeName:              {},
}

func nodeKey(id uint64) string { return strconv.FormatUint(id, 10) }

func edgeKey(key trackgraph.EdgeKey) string {
	return strconv.FormatUint(key.U, 10) + "_" + strconv.FormatUint(key.V, 10)
}

// normalize converts a value to one of the types eliasdb can encode without registration
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case nil, bool, string, int64, float64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return float64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, err := n.Float64()
		if err != nil {
			return n.String()
		}
		return f
	}
	return fmt.Sprint(v)
}

// attrsOf copies the user attributes of an eliasdb node or edge, names restricts the copy when not nil
func attrsOf(node data.Node, names []string) trackgraph.Attrs {
	attrs := make(trackgraph.Attrs)
	if names != nil {
		for _, name := range names {
			if v := node.Attr(name); v != nil {
				attrs[name] = v
			}
		}
		return attrs
	}
	for k, v := range node.Data() {
		if _, ok := systemAttrs[k]; ok {
			continue
		}
		attrs[k] = v
	}
	return attrs
}

// newCell builds an eliasdb node
func newCell(id uint64, attrs trackgraph.Attrs) data.Node {
	node := data.NewGraphNode()
	for k, v := range attrs {
		node.SetAttr(k, normalize(v))
	}
	node.SetAttr(data.NodeKey, nodeKey(id))
	node.SetAttr(data.NodeKind, kindCell)
	return node
}

// newLink builds an eliasdb edge from u (child) to v (parent)
func newLink(key trackgraph.EdgeKey, attrs trackgraph.Attrs) data.Edge {
	edge := data.NewGraphEdge()
	for k, v := range attrs {
		edge.SetAttr(k, normalize(v))
	}
	edge.SetAttr(data.NodeKey, edgeKey(key))
	edge.SetAttr(data.NodeKind, kindLink)
	edge.SetAttr(data.EdgeEnd1Key, nodeKey(key.U))
	edge.SetAttr(data.EdgeEnd1Kind, kindCell)
	edge.SetAttr(data.EdgeEnd1Role, roleChild)
	edge.SetAttr(data.EdgeEnd1Cascading, false)
	edge.SetAttr(data.EdgeEnd2Key, nodeKey(key.V))
	edge.SetAttr(data.EdgeEnd2Kind, kindCell)
	edge.SetAttr(data.EdgeEnd2Role, roleParent)
	edge.SetAttr(data.EdgeEnd2Cascading, false)
	return edge
}

// WriteNodes stores nodes, replacing existing ones. The frame attribute is stored as an integer
// so the frame index lookups match.
func (db *DB) WriteNodes(ctx context.Context, nodes map[uint64]trackgraph.Attrs) error {
	if db.isClosed() {
		return ErrClosed
	}
	trans := graph.NewGraphTrans(db.gm)
	for _, id := range sortedIDs(nodes) {
		attrs := nodes[id]
		t, ok := attrs.Int(db.frameKey)
		if !ok {
			return fmt.Errorf("node %d has no %q attribute", id, db.frameKey)
		}
		node := newCell(id, attrs)
		node.SetAttr(db.frameKey, t)
		if err := trans.StoreNode(db.partition, node); err != nil {
			return fmt.Errorf("could not store node %d: %w", id, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := trans.Commit(); err != nil {
		return fmt.Errorf("could not commit nodes: %w", err)
	}
	db.logger.Debug("stored nodes", zap.Int("nodes", len(nodes)))
	return nil
}

// WriteEdges stores edges, both end nodes must already be stored
func (db *DB) WriteEdges(ctx context.Context, edges map[trackgraph.EdgeKey]trackgraph.Attrs) error {
	if db.isClosed() {
		return ErrClosed
	}
	trans := graph.NewGraphTrans(db.gm)
	for _, key := range sortedEdgeKeys(edges) {
		if err := trans.StoreEdge(db.partition, newLink(key, edges[key])); err != nil {
			return fmt.Errorf("could not store edge (%d, %d): %w", key.U, key.V, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := trans.Commit(); err != nil {
		return fmt.Errorf("could not commit edges: %w", err)
	}
	db.logger.Debug("stored edges", zap.Int("edges", len(edges)))
	return nil
}

// GetGraph reads the nodes located in r through the frame index, then the edges to their predecessors
func (db *DB) GetGraph(ctx context.Context, r roi.ROI, edgeAttrs []string) (*trackgraph.CandidateGraph, error) {
	if db.isClosed() {
		return nil, ErrClosed
	}
	g := trackgraph.NewCandidateGraph(r)
	if r.Empty() {
		return g, nil
	}
	iq, err := db.gm.NodeIndexQuery(db.partition, kindCell)
	if err != nil {
		return nil, fmt.Errorf("could not query node index: %w", err)
	}
	if iq == nil {
		return g, nil
	}
	for t := r.Begin(); t < r.FrameEnd(); t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys, err := iq.LookupValue(db.frameKey, strconv.FormatInt(t, 10))
		if err != nil {
			return nil, fmt.Errorf("could not look up frame %d: %w", t, err)
		}
		for _, key := range keys {
			node, err := db.gm.FetchNode(db.partition, key, kindCell)
			if err != nil {
				return nil, fmt.Errorf("could not fetch node %s: %w", key, err)
			}
			if node == nil {
				continue
			}
			attrs := attrsOf(node, nil)
			if !r.ContainsNode(t, attrs.Position()) {
				continue
			}
			id, err := strconv.ParseUint(key, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad node key %q: %w", key, err)
			}
			g.AddNode(id, attrs)
		}
	}

	for _, u := range g.SortedNodeIDs() {
		_, links, err := db.gm.Traverse(db.partition, nodeKey(u), kindCell, parentSpec, true)
		if err != nil {
			return nil, fmt.Errorf("could not traverse from node %d: %w", u, err)
		}
		for _, link := range links {
			v, err := strconv.ParseUint(link.OtherEndKey(nodeKey(u)), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad edge key %q: %w", link.Key(), err)
			}
			g.AddEdge(u, v, attrsOf(link, edgeAttrs))
		}
	}
	db.logger.Debug("read graph", zap.Stringer("roi", r), zap.Int("nodes", g.NumNodes()), zap.Int("edges", g.NumEdges()))
	return g, nil
}

// SelectedChildren returns the nodes of ids that have an edge to a successor stored as selected under key
func (db *DB) SelectedChildren(ctx context.Context, ids []uint64, key string) (map[uint64]bool, error) {
	if db.isClosed() {
		return nil, ErrClosed
	}
	taken := make(map[uint64]bool)
	for _, v := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, links, err := db.gm.Traverse(db.partition, nodeKey(v), kindCell, childSpec, true)
		if err != nil {
			return nil, fmt.Errorf("could not traverse from node %d: %w", v, err)
		}
		for _, link := range links {
			if selected, ok := attrsOf(link, []string{key}).Bool(key); ok && selected {
				taken[v] = true
				break
			}
		}
	}
	return taken, nil
}

// UpdateNodeAttrs overwrites the named attributes of existing nodes
func (db *DB) UpdateNodeAttrs(ctx context.Context, nodes map[uint64]trackgraph.Attrs, names []string) error {
	if db.isClosed() {
		return ErrClosed
	}
	trans := graph.NewGraphTrans(db.gm)
	for _, id := range sortedIDs(nodes) {
		update := data.NewGraphNode()
		update.SetAttr(data.NodeKey, nodeKey(id))
		update.SetAttr(data.NodeKind, kindCell)
		for _, name := range names {
			if v, ok := nodes[id][name]; ok {
				update.SetAttr(name, normalize(v))
			}
		}
		if err := trans.UpdateNode(db.partition, update); err != nil {
			return fmt.Errorf("could not update node %d: %w", id, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := trans.Commit(); err != nil {
		return fmt.Errorf("could not commit node updates: %w", err)
	}
	return nil
}

// UpdateEdgeAttrs overwrites the named attributes of existing edges
func (db *DB) UpdateEdgeAttrs(ctx context.Context, edges map[trackgraph.EdgeKey]trackgraph.Attrs, names []string) error {
	if db.isClosed() {
		return ErrClosed
	}
	trans := graph.NewGraphTrans(db.gm)
	for _, key := range sortedEdgeKeys(edges) {
		edge, err := db.gm.FetchEdge(db.partition, edgeKey(key), kindLink)
		if err != nil {
			return fmt.Errorf("could not fetch edge (%d, %d): %w", key.U, key.V, err)
		}
		if edge == nil {
			return fmt.Errorf("edge (%d, %d) is not stored", key.U, key.V)
		}
		for _, name := range names {
			if v, ok := edges[key][name]; ok {
				edge.SetAttr(name, normalize(v))
			}
		}
		if err := trans.StoreEdge(db.partition, edge); err != nil {
			return fmt.Errorf("could not update edge (%d, %d): %w", key.U, key.V, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := trans.Commit(); err != nil {
		return fmt.Errorf("could not commit edge updates: %w", err)
	}
	return nil
}

// clearAttr removes an attribute from every node and edge of the partition, returning the counts
func (db *DB) clearAttr(ctx context.Context, name string) (int, int, error) {
	it, err := db.gm.NodeKeyIterator(db.partition, kindCell)
	if err != nil {
		return 0, 0, fmt.Errorf("could not iterate nodes: %w", err)
	}
	if it == nil {
		return 0, 0, nil
	}
	var keys []string
	for it.HasNext() {
		key := it.Next()
		if it.LastError != nil {
			return 0, 0, fmt.Errorf("could not iterate nodes: %w", it.LastError)
		}
		keys = append(keys, key)
	}

	trans := graph.NewGraphTrans(db.gm)
	nodes, edges := 0, 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		node, err := db.gm.FetchNode(db.partition, key, kindCell)
		if err != nil {
			return 0, 0, fmt.Errorf("could not fetch node %s: %w", key, err)
		}
		if node != nil && node.Attr(name) != nil {
			delete(node.Data(), name)
			if err := trans.StoreNode(db.partition, node); err != nil {
				return 0, 0, err
			}
			nodes++
		}
		_, links, err := db.gm.Traverse(db.partition, key, kindCell, parentSpec, true)
		if err != nil {
			return 0, 0, fmt.Errorf("could not traverse from node %s: %w", key, err)
		}
		for _, link := range links {
			if link.Attr(name) == nil {
				continue
			}
			edge, err := db.gm.FetchEdge(db.partition, link.Key(), kindLink)
			if err != nil {
				return 0, 0, fmt.Errorf("could not fetch edge %s: %w", link.Key(), err)
			}
			if edge == nil {
				continue
			}
			delete(edge.Data(), name)
			if err := trans.StoreEdge(db.partition, edge); err != nil {
				return 0, 0, err
			}
			edges++
		}
	}
	if err := trans.Commit(); err != nil {
		return 0, 0, fmt.Errorf("could not commit attribute removal: %w", err)
	}
	return nodes, edges, nil
}

func sortedIDs(nodes map[uint64]trackgraph.Attrs) []uint64 {
	ids := make(trackgraph.NodeIDs, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Sort(ids)
	return ids
}

func sortedEdgeKeys(edges map[trackgraph.EdgeKey]trackgraph.Attrs) []trackgraph.EdgeKey {
	keys := make(trackgraph.EdgeKeys, 0, len(edges))
	for key := range edges {
		keys = append(keys, key)
	}
	sort.Sort(keys)
	return keys
}
