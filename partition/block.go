package partition

import (
	"fmt"

	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/utils"
)

// Block assigns contiguous ranges of global triangle ids, with a maximum
// imbalance of one triangle. Cut quality depends on the mesh numbering.
type Block struct{}

func (Block) Name() string { return "block" }

func (Block) Assign(m *mesh.Mesh, numProcs int) (owner []int, err error) {
	K := m.NumTriangles()
	if numProcs < 1 || numProcs > K {
		return nil, fmt.Errorf("can not split %d triangles into %d parts", K, numProcs)
	}
	pm := utils.NewPartitionMap(numProcs, K)
	for bn := 0; bn < numProcs; bn++ {
		if pm.GetBucketDimension(bn) == 0 {
			return nil, fmt.Errorf("block %d of %d triangles is empty", bn, K)
		}
	}
	owner = make([]int, K)
	for k := 0; k < K; k++ {
		bn, _, _ := pm.GetBucket(k)
		if bn < 0 {
			return nil, fmt.Errorf("triangle %d outside of block partition map", k)
		}
		owner[k] = bn
	}
	return
}
