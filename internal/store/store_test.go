package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Store Factory for Testing Both Implementations
// =============================================================================

type storeFactory func() (Storer, error)

func memStoreFactory() (Storer, error) {
	return NewMemStore(), nil
}

func sqliteStoreFactory() (Storer, error) {
	return NewSQLiteStore()
}

// runTestsForAllStores runs a test function against both store implementations.
func runTestsForAllStores(t *testing.T, testName string, testFn func(t *testing.T, s Storer)) {
	factories := map[string]storeFactory{
		"MemStore":    memStoreFactory,
		"SQLiteStore": sqliteStoreFactory,
	}

	for name, factory := range factories {
		t.Run(name+"/"+testName, func(t *testing.T) {
			s, err := factory()
			require.NoError(t, err, "Failed to create store")
			defer s.Close()
			testFn(t, s)
		})
	}
}

func testNode(id, text string) *ContentNode {
	return &ContentNode{
		ID:        id,
		URI:       "test://fixture/" + id,
		Text:      text,
		CreatedAt: 1700000000000,
	}
}

// =============================================================================
// Nodes
// =============================================================================

func TestNodeRoundTrip(t *testing.T) {
	runTestsForAllStores(t, "NodeRoundTrip", func(t *testing.T, s Storer) {
		node := testNode("n1", "the quick brown fox jumps over the lazy dog")
		require.NoError(t, s.PutNode(node))

		got, err := s.GetNode("n1")
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, node.Text, got.Text)
		assert.Equal(t, HashText(node.Text), got.ContentHash)
		assert.Equal(t, 9, got.WordCount)
		assert.Equal(t, 1, got.Version)
		assert.Equal(t, "n1", got.RootID)
		assert.Equal(t, FormatPlain, got.Format)
	})
}

func TestGetMissingNodeReturnsNil(t *testing.T) {
	runTestsForAllStores(t, "GetMissing", func(t *testing.T, s Storer) {
		got, err := s.GetNode("nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestNodesAreImmutable(t *testing.T) {
	runTestsForAllStores(t, "Immutable", func(t *testing.T, s Storer) {
		require.NoError(t, s.PutNode(testNode("n1", "original")))
		err := s.PutNode(testNode("n1", "overwrite attempt"))
		assert.Error(t, err, "re-inserting an existing id must fail")

		got, err := s.GetNode("n1")
		require.NoError(t, err)
		assert.Equal(t, "original", got.Text)
	})
}

func TestGetNodesOmitsMissing(t *testing.T) {
	runTestsForAllStores(t, "GetNodes", func(t *testing.T, s Storer) {
		require.NoError(t, s.PutNode(testNode("a", "alpha")))
		require.NoError(t, s.PutNode(testNode("b", "beta")))

		nodes, err := s.GetNodes([]string{"b", "ghost", "a"})
		require.NoError(t, err)
		require.Len(t, nodes, 2)
		assert.Equal(t, "b", nodes[0].ID)
		assert.Equal(t, "a", nodes[1].ID)
	})
}

func TestTagsAndMetaRoundTrip(t *testing.T) {
	runTestsForAllStores(t, "TagsMeta", func(t *testing.T, s Storer) {
		node := testNode("n1", "tagged content")
		node.Tags = []string{"journal", "draft"}
		node.Meta = map[string]any{"mood": "wistful"}
		require.NoError(t, s.PutNode(node))

		got, err := s.GetNode("n1")
		require.NoError(t, err)
		assert.Equal(t, []string{"journal", "draft"}, got.Tags)
		assert.True(t, got.HasTag("draft"))
		assert.False(t, got.HasTag("published"))
	})
}

func TestFindByHash(t *testing.T) {
	runTestsForAllStores(t, "FindByHash", func(t *testing.T, s Storer) {
		require.NoError(t, s.PutNode(testNode("a", "same words")))
		require.NoError(t, s.PutNode(testNode("b", "same words")))
		require.NoError(t, s.PutNode(testNode("c", "different words")))

		dupes, err := s.FindByHash(HashText("same words"))
		require.NoError(t, err)
		require.Len(t, dupes, 2)
		assert.Equal(t, "a", dupes[0].ID)
		assert.Equal(t, "b", dupes[1].ID)
	})
}

// =============================================================================
// Versioning
// =============================================================================

func TestPutVersionChain(t *testing.T) {
	runTestsForAllStores(t, "VersionChain", func(t *testing.T, s Storer) {
		require.NoError(t, s.PutNode(testNode("v1", "first draft")))

		v2 := testNode("v2", "second draft")
		v2.PrevVersionID = "v1"
		v2.Operation = "edit"
		require.NoError(t, s.PutVersion(v2))

		got, err := s.GetNode("v2")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, "v1", got.RootID, "root id is constant across a version chain")

		versions, err := s.ListNodeVersions("v1")
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, "v2", versions[0].ID, "newest first")

		// The version-of link makes lineage traversable.
		links, err := s.LinksFrom("v2", LinkVersionOf)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "v1", links[0].TargetID)
	})
}

func TestPutVersionMissingPrev(t *testing.T) {
	runTestsForAllStores(t, "VersionMissingPrev", func(t *testing.T, s Storer) {
		v2 := testNode("v2", "orphan edit")
		v2.PrevVersionID = "ghost"
		err := s.PutVersion(v2)

		var refErr *ReferentialError
		require.True(t, errors.As(err, &refErr))
		assert.Equal(t, "ghost", refErr.MissingID)
	})
}

// =============================================================================
// Links
// =============================================================================

func TestLinkReferentialIntegrity(t *testing.T) {
	runTestsForAllStores(t, "LinkIntegrity", func(t *testing.T, s Storer) {
		require.NoError(t, s.PutNode(testNode("a", "source")))

		err := s.PutLink(&ContentLink{
			ID: "l1", SourceID: "a", TargetID: "ghost", Type: LinkReferences,
		})
		var refErr *ReferentialError
		require.True(t, errors.As(err, &refErr))
		assert.Equal(t, "ghost", refErr.MissingID)

		count, err := s.CountLinks()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestBidirectionalLinkPair(t *testing.T) {
	runTestsForAllStores(t, "BidirectionalPair", func(t *testing.T, s Storer) {
		require.NoError(t, s.PutNode(testNode("frag", "a harvested fragment")))
		require.NoError(t, s.PutNode(testNode("doc", "the curated document")))

		fwd := &ContentLink{ID: "f1", SourceID: "frag", TargetID: "doc", Type: LinkHarvestedInto}
		rev := &ContentLink{ID: "r1", SourceID: "doc", TargetID: "frag", Type: LinkPlacedIn}
		require.NoError(t, s.PutBidirectionalLink(fwd, rev))

		out, err := s.LinksFrom("frag")
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, LinkHarvestedInto, out[0].Type)

		in, err := s.LinksTo("frag")
		require.NoError(t, err)
		require.Len(t, in, 1)
		assert.Equal(t, LinkPlacedIn, in[0].Type)
	})
}

func TestLinkTypeFilter(t *testing.T) {
	runTestsForAllStores(t, "LinkTypeFilter", func(t *testing.T, s Storer) {
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.PutNode(testNode(id, id+" text")))
		}
		require.NoError(t, s.PutLink(&ContentLink{ID: "l1", SourceID: "a", TargetID: "b", Type: LinkChild}))
		require.NoError(t, s.PutLink(&ContentLink{ID: "l2", SourceID: "a", TargetID: "c", Type: LinkReferences}))

		children, err := s.LinksFrom("a", LinkChild)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "b", children[0].TargetID)

		all, err := s.LinksFrom("a")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestLinkAnchorsRoundTrip(t *testing.T) {
	runTestsForAllStores(t, "LinkAnchors", func(t *testing.T, s Storer) {
		require.NoError(t, s.PutNode(testNode("a", "anchored source text")))
		require.NoError(t, s.PutNode(testNode("b", "anchored target text")))

		anchor := [2]int{4, 12}
		require.NoError(t, s.PutLink(&ContentLink{
			ID: "l1", SourceID: "a", TargetID: "b", Type: LinkReferences,
			SourceAnchor: &anchor,
		}))

		links, err := s.LinksFrom("a")
		require.NoError(t, err)
		require.Len(t, links, 1)
		require.NotNil(t, links[0].SourceAnchor)
		assert.Equal(t, anchor, *links[0].SourceAnchor)
		assert.Nil(t, links[0].TargetAnchor)
	})
}

// =============================================================================
// Quality
// =============================================================================

func TestQualityRoundTrip(t *testing.T) {
	runTestsForAllStores(t, "Quality", func(t *testing.T, s Storer) {
		require.NoError(t, s.PutNode(testNode("n1", "scored content")))
		require.NoError(t, s.PutQuality(&ContentQuality{
			NodeID: "n1", Authenticity: 0.9, Necessity: 0.7, Overall: 0.8,
			StubType: "none",
		}))

		q, err := s.GetQuality("n1")
		require.NoError(t, err)
		require.NotNil(t, q)
		assert.InDelta(t, 0.8, q.Overall, 1e-9)

		missing, err := s.GetQuality("ghost")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

// =============================================================================
// Iteration & maintenance
// =============================================================================

func TestForEachNodeOrder(t *testing.T) {
	runTestsForAllStores(t, "ForEachNode", func(t *testing.T, s Storer) {
		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.PutNode(testNode(id, id+" body")))
		}

		var seen []string
		require.NoError(t, s.ForEachNode(func(n *ContentNode) error {
			seen = append(seen, n.ID)
			return nil
		}))
		assert.Equal(t, []string{"a", "b", "c"}, seen)
	})
}

// The graph analyses read links from inside ForEachNode callbacks while
// other queries may be writing. The callback must not run under the
// store's read lock: a nested read queued behind a waiting writer
// would block all three forever.
func TestForEachNodeCallbackReadsDuringWrite(t *testing.T) {
	runTestsForAllStores(t, "ForEachNodeConcurrentWrite", func(t *testing.T, s Storer) {
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.PutNode(testNode(id, id+" body")))
		}
		require.NoError(t, s.PutLink(&ContentLink{
			ID: "l1", SourceID: "a", TargetID: "b", Type: LinkReferences,
		}))

		writerStarted := make(chan struct{})
		writerDone := make(chan error, 1)
		iterDone := make(chan error, 1)

		go func() {
			<-writerStarted
			writerDone <- s.PutNode(testNode("d", "late arrival"))
		}()

		var once sync.Once
		go func() {
			iterDone <- s.ForEachNode(func(n *ContentNode) error {
				// Let the writer queue up before reading links.
				once.Do(func() {
					close(writerStarted)
					time.Sleep(50 * time.Millisecond)
				})
				_, err := s.LinksFrom(n.ID)
				return err
			})
		}()

		select {
		case err := <-iterDone:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("iteration blocked behind a concurrent writer")
		}
		require.NoError(t, <-writerDone)
	})
}

func TestDeleteEmbeddingsWithoutNodesNoTable(t *testing.T) {
	s, err := NewSQLiteStore()
	require.NoError(t, err)
	defer s.Close()

	n, err := s.DeleteEmbeddingsWithoutNodes()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestResolutionParse(t *testing.T) {
	for _, r := range Resolutions() {
		parsed, err := ParseResolution(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	_, err := ParseResolution("paragraph")
	assert.Error(t, err)
}

func TestLinkTypeInverse(t *testing.T) {
	inv, ok := LinkHarvestedInto.Inverse()
	require.True(t, ok)
	assert.Equal(t, LinkPlacedIn, inv)

	inv, ok = LinkRelatedTo.Inverse()
	require.True(t, ok)
	assert.Equal(t, LinkRelatedTo, inv)

	_, ok = LinkRespondsTo.Inverse()
	assert.False(t, ok)
}
