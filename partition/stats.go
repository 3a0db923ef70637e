package partition

import (
	"sort"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gohalo/mesh"
)

// ProcStats holds statistics for a single partition
type ProcStats struct {
	Rank           int
	Owned, Halo    int
	SendCount      int
	RecvCount      int
	BoundaryEdges  int
	InterfaceEdges map[int]int // neighbor partition -> shared edges
}

// Stats holds partition quality metrics
type Stats struct {
	NumProcs     int
	NumTriangles int
	Components   int
	CutEdges     int
	CommVolume   int     // Halo values moved per quantity per exchange
	Imbalance    float64 // Max owned count over average owned count
	MinLoad      float64
	MaxLoad      float64
	AvgLoad      float64
	Procs        []ProcStats
}

func newStats(m *mesh.Mesh, pt *Partition) (st *Stats) {
	st = &Stats{
		NumProcs:     pt.NumProcs,
		NumTriangles: pt.NumTriangles,
		Components:   pt.Components,
		Procs:        make([]ProcStats, pt.NumProcs),
	}
	loads := make([]float64, pt.NumProcs)
	for p := range st.Procs {
		ps := &st.Procs[p]
		ps.Rank = p
		ps.Owned = len(pt.Owned[p])
		ps.Halo = len(pt.Halo[p])
		ps.SendCount = pt.Schedules[p].SendCount()
		ps.RecvCount = pt.Schedules[p].RecvCount()
		ps.InterfaceEdges = make(map[int]int)
		loads[p] = float64(ps.Owned)
		st.CommVolume += ps.RecvCount
	}
	for k, nbrs := range m.Neighbors {
		kp := pt.Owner[k]
		for _, nbr := range nbrs {
			if nbr < 0 {
				st.Procs[kp].BoundaryEdges++
				continue
			}
			if nbr > k { // Count each edge once
				np := pt.Owner[nbr]
				if kp != np {
					st.CutEdges++
					st.Procs[kp].InterfaceEdges[np]++
					st.Procs[np].InterfaceEdges[kp]++
				}
			}
		}
	}
	st.MinLoad, st.MaxLoad = floats.Min(loads), floats.Max(loads)
	st.AvgLoad = floats.Sum(loads) / float64(len(loads))
	st.Imbalance = st.MaxLoad / st.AvgLoad
	return
}

// Log reports the partition analysis
func (st *Stats) Log() {
	log.Infof("Partition Analysis:")
	log.Infof("  Triangles: %d, processes: %d, mesh components: %d", st.NumTriangles, st.NumProcs, st.Components)
	log.Infof("  Cut edges: %d", st.CutEdges)
	log.Infof("  Communication volume: %d", st.CommVolume)
	log.Infof("  Load imbalance: %.2f%%", (st.Imbalance-1)*100)
	log.Infof("  Load range: [%.0f, %.0f], avg: %.1f", st.MinLoad, st.MaxLoad, st.AvgLoad)
	log.Infof("Per-partition statistics:")
	for _, ps := range st.Procs {
		log.Infof("  Partition %d: owned %d, halo %d, send %d, receive %d, boundary edges %d, neighbors %d",
			ps.Rank, ps.Owned, ps.Halo, ps.SendCount, ps.RecvCount, ps.BoundaryEdges, len(ps.InterfaceEdges))
	}
	log.Infof("Interface statistics:")
	for _, ps := range st.Procs {
		peers := make([]int, 0, len(ps.InterfaceEdges))
		for q := range ps.InterfaceEdges {
			if q > ps.Rank {
				peers = append(peers, q)
			}
		}
		sort.Ints(peers)
		for _, q := range peers {
			log.Infof("  Partition %d <-> %d: %d edges", ps.Rank, q, ps.InterfaceEdges[q])
		}
	}
}
