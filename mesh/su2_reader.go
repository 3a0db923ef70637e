package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/notargets/gohalo/types"
)

// From here: https://su2code.github.io/docs_v7/Mesh-File/
type SU2ElementType uint8

const (
	ELType_LINE          SU2ElementType = 3
	ELType_Triangle                     = 5
	ELType_Quadrilateral                = 9
)

// ReadSU2File reads a 2D triangular SU2 mesh, tagging boundary edges with
// their MARKER_TAG labels.
func ReadSU2File(filename string) (m *Mesh, err error) {
	var (
		file *os.File
	)
	log.Infof("Reading SU2 file named: %s", filename)
	if file, err = os.Open(filename); err != nil {
		err = fmt.Errorf("unable to open file %s: %w", filename, err)
		return
	}
	defer file.Close()
	return ReadSU2(file)
}

func ReadSU2(r io.Reader) (m *Mesh, err error) {
	defer func() {
		if p := recover(); p != nil {
			m = nil
			if perr, ok := p.(error); ok {
				err = fmt.Errorf("reading SU2 mesh: %w", perr)
				return
			}
			err = fmt.Errorf("reading SU2 mesh: %v", p)
		}
	}()
	reader := bufio.NewReader(r)
	dimensionality := readNumber(reader)
	if dimensionality != 2 {
		panic(fmt.Errorf("unable to deal with %d dimensional data", dimensionality))
	}
	tris := readElements(reader)
	VX, VY := readVertices(reader)
	BCEdges := readBCs(reader)
	log.Debugf("Read SU2 mesh with %d triangles, %d vertices and %d markers",
		len(tris), len(VX), len(BCEdges))

	if m, err = NewMesh(VX, VY, tris, nil); err != nil {
		return
	}
	em := m.EdgeMap()
	for label, edges := range BCEdges {
		for _, ek := range edges {
			te, ok := em[ek]
			if !ok {
				verts := ek.GetVertices(false)
				return nil, fmt.Errorf("marker %s edge %v is not an edge of the mesh", label, verts)
			}
			if m.Neighbors[te.Tri][te.Edge] != types.NeighborBoundary {
				verts := ek.GetVertices(false)
				return nil, fmt.Errorf("marker %s edge %v is an interior edge", label, verts)
			}
			m.Boundary[te] = label
		}
	}
	return
}

func readBCs(reader *bufio.Reader) (BCEdges map[string][]types.EdgeKey) {
	var (
		nType  int
		v1, v2 int
		err    error
	)
	NBCs := readNumber(reader)
	BCEdges = make(map[string][]types.EdgeKey, NBCs)
	for n := 0; n < NBCs; n++ {
		label := readLabel(reader)
		nEdges := readNumber(reader)
		// Repeated labels append to a common slice
		for i := 0; i < nEdges; i++ {
			line := getLineNoComments(reader)
			if _, err = fmt.Sscanf(line, "%d %d %d", &nType, &v1, &v2); err != nil {
				panic(err)
			}
			if SU2ElementType(nType) != ELType_LINE {
				panic("BCs should only contain line elements in 2D")
			}
			BCEdges[label] = append(BCEdges[label], types.NewEdgeKey([2]int{v1, v2}))
		}
	}
	return
}

func readVertices(reader *bufio.Reader) (VX, VY []float64) {
	var (
		n    int
		x, y float64
		err  error
	)
	Nv := readNumber(reader)
	VX, VY = make([]float64, Nv), make([]float64, Nv)
	for i := 0; i < Nv; i++ {
		line := getLineNoComments(reader)
		if n, err = fmt.Sscanf(line, "%f %f", &x, &y); err != nil {
			panic(err)
		}
		if n != 2 {
			panic("unable to read coordinates")
		}
		VX[i], VY[i] = x, y
	}
	return
}

func readElements(reader *bufio.Reader) (tris [][3]int) {
	var (
		n          int
		nType      int
		v1, v2, v3 int
		err        error
	)
	K := readNumber(reader)
	tris = make([][3]int, K)
	for k := 0; k < K; k++ {
		line := getLineNoComments(reader)
		if n, err = fmt.Sscanf(line, "%d %d %d %d", &nType, &v1, &v2, &v3); err != nil {
			panic(err)
		}
		if n != 4 {
			panic("unable to read vertices")
		}
		if SU2ElementType(nType) != ELType_Triangle {
			panic("unable to deal with non-triangular elements")
		}
		tris[k] = [3]int{v1, v2, v3}
	}
	return
}

func getToken(reader *bufio.Reader) (token string) {
	line := getLineNoComments(reader)
	ind := strings.Index(line, "=")
	if ind < 0 {
		panic(fmt.Errorf("badly formed input line [%s], should have an =", line))
	}
	token = line[ind+1:]
	return
}

func readLabel(reader *bufio.Reader) (label string) {
	token := getToken(reader)
	if _, err := fmt.Sscanf(token, "%s", &label); err != nil {
		panic(fmt.Errorf("unable to read label from token: [%s]", token))
	}
	label = strings.Trim(label, " ")
	return
}

func readNumber(reader *bufio.Reader) (num int) {
	token := getToken(reader)
	if _, err := fmt.Sscanf(token, "%d", &num); err != nil {
		panic(fmt.Errorf("unable to read number from token: [%s]", token))
	}
	return
}

func getLine(reader *bufio.Reader) (line string) {
	var (
		err error
	)
	line, err = reader.ReadString('\n')
	if err != nil {
		if err != io.EOF || len(line) == 0 {
			panic(fmt.Errorf("early end of file"))
		}
	}
	line = strings.TrimRight(line, "\r\n")
	return
}

func getLineNoComments(reader *bufio.Reader) (line string) {
	for {
		line = strings.TrimSpace(getLine(reader))
		if len(line) != 0 && !strings.HasPrefix(line, "%") {
			return
		}
	}
}
