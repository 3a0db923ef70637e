package partition

import (
	"fmt"
	"slices"
	"sort"
)

// Link lists the global triangle ids exchanged with one peer process. Both
// lists are in ascending global id order, so the Send list of P towards Q is
// identical to the Recv list of Q from P and values travel by position.
type Link struct {
	Peer int
	Send []int // Owned here, in the peer's halo
	Recv []int // In this halo, owned by the peer
}

// Schedule is the static communication schedule of one process
type Schedule struct {
	Rank  int
	Links []Link // Ascending by peer
}

func buildSchedules(pt *Partition) (scheds []*Schedule) {
	var (
		send = make([]map[int][]int, pt.NumProcs)
		recv = make([]map[int][]int, pt.NumProcs)
	)
	for p := 0; p < pt.NumProcs; p++ {
		send[p] = make(map[int][]int)
		recv[p] = make(map[int][]int)
	}
	for p, halo := range pt.Halo {
		for _, k := range halo { // Ascending global id
			q := pt.Owner[k]
			recv[p][q] = append(recv[p][q], k)
			send[q][p] = append(send[q][p], k)
		}
	}
	scheds = make([]*Schedule, pt.NumProcs)
	for p := 0; p < pt.NumProcs; p++ {
		peers := make(map[int]struct{})
		for q := range send[p] {
			peers[q] = struct{}{}
		}
		for q := range recv[p] {
			peers[q] = struct{}{}
		}
		sched := &Schedule{Rank: p}
		for _, q := range sortedKeys(peers) {
			sched.Links = append(sched.Links, Link{Peer: q, Send: send[p][q], Recv: recv[p][q]})
		}
		scheds[p] = sched
	}
	return
}

func (s *Schedule) Link(peer int) (l Link, ok bool) {
	i := sort.Search(len(s.Links), func(i int) bool { return s.Links[i].Peer >= peer })
	if i < len(s.Links) && s.Links[i].Peer == peer {
		return s.Links[i], true
	}
	return
}

func (s *Schedule) Peers() (peers []int) {
	for _, l := range s.Links {
		peers = append(peers, l.Peer)
	}
	return
}

func (s *Schedule) SendCount() (n int) {
	for _, l := range s.Links {
		n += len(l.Send)
	}
	return
}

func (s *Schedule) RecvCount() (n int) {
	for _, l := range s.Links {
		n += len(l.Recv)
	}
	return
}

// CheckSymmetry verifies that every send list has a matching receive list
func CheckSymmetry(scheds []*Schedule) error {
	for _, sp := range scheds {
		for _, l := range sp.Links {
			if l.Peer < 0 || l.Peer >= len(scheds) || l.Peer == sp.Rank {
				return fmt.Errorf("process %d has a link to invalid peer %d", sp.Rank, l.Peer)
			}
			back, ok := scheds[l.Peer].Link(sp.Rank)
			if !ok {
				if len(l.Send) != 0 || len(l.Recv) != 0 {
					return fmt.Errorf("process %d links to %d, which has no link back", sp.Rank, l.Peer)
				}
				continue
			}
			if !slices.Equal(l.Send, back.Recv) {
				return fmt.Errorf("send list %d->%d does not match receive list", sp.Rank, l.Peer)
			}
		}
	}
	return nil
}
