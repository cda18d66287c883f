package loader

import (
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalexlee/vk-gltf/common"
)

func nodesWithChildren(children ...[]int) *gltf.Document {
	doc := &gltf.Document{}
	for _, c := range children {
		doc.Nodes = append(doc.Nodes, &gltf.Node{Children: c})
	}
	return doc
}

func TestIndexMapsParents(t *testing.T) {
	doc := nodesWithChildren([]int{1, 2}, []int{3}, nil, nil, nil)
	m, err := newGLTFIndexMaps(doc)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 4}, m.Roots())
	assert.Equal(t, common.Some(0), m.Parent(2))
	assert.Equal(t, common.Some(1), m.Parent(3))
	assert.False(t, m.Parent(0).IsPresent())

	i, ok := m.Node(doc.Nodes[3])
	assert.True(t, ok)
	assert.Equal(t, 3, i)
	_, ok = m.Node(&gltf.Node{})
	assert.False(t, ok)
}

func TestIndexMapsRejectsBadGraphs(t *testing.T) {
	tests := []struct {
		name string
		doc  *gltf.Document
		msg  string
	}{
		{name: "self child", doc: nodesWithChildren([]int{0}), msg: "its own child"},
		{name: "two parents", doc: nodesWithChildren([]int{2}, []int{2}, nil), msg: "two parents"},
		{name: "cycle", doc: nodesWithChildren([]int{1}, []int{2}, []int{0}), msg: "cyclic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newGLTFIndexMaps(tt.doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
