// Package sww reads and writes the NetCDF result files of a run. Every
// process writes a partial file holding its owned and halo triangles; the
// merge turns them into one file in global triangle order.
package sww

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/ctessum/cdf"

	"github.com/notargets/gohalo/domain"
)

const (
	dimVolumes   = "number_of_volumes"
	dimVertices  = "number_of_vertices"
	dimTimesteps = "number_of_timesteps"

	varGlobalID = "global_id"
	varFullFlag = "tri_full_flag"
	varX        = "x"
	varY        = "y"
	varTime     = "time"

	// Ids and counts are stored as 32 bit integers
	MaxTriangles = math.MaxInt32
)

var reserved = map[string]bool{
	varGlobalID: true, varFullFlag: true, varX: true, varY: true, varTime: true,
}

// File is the content of a result file. Values are indexed
// [time*NumVolumes()+volume].
type File struct {
	Title              string
	Processor          int // -1 for a merged file
	NumProcs           int
	NumGlobalTriangles int

	GlobalID []int32
	FullFlag []int32   // 1 for owned triangles, 0 for halo triangles
	X, Y     []float64 // Three vertices per volume

	Times      []float64
	Quantities []string // Ascending
	Values     map[string][]float64
}

func (f *File) NumVolumes() int { return len(f.GlobalID) }

func (f *File) NumTimes() int { return len(f.Times) }

// Value of quantity q at time index n on volume v
func (f *File) Value(q string, n, v int) float64 {
	return f.Values[q][n*f.NumVolumes()+v]
}

func (f *File) Check() error {
	nv, nt := f.NumVolumes(), f.NumTimes()
	switch {
	case nv == 0:
		return fmt.Errorf("no volumes")
	case nt == 0:
		return fmt.Errorf("no time records")
	case len(f.FullFlag) != nv:
		return fmt.Errorf("%d full flags for %d volumes", len(f.FullFlag), nv)
	case len(f.X) != 3*nv || len(f.Y) != 3*nv:
		return fmt.Errorf("%d x and %d y coordinates for %d volumes", len(f.X), len(f.Y), nv)
	case !sort.StringsAreSorted(f.Quantities):
		return fmt.Errorf("quantity names are not sorted")
	case f.NumGlobalTriangles < 1 || f.NumGlobalTriangles > MaxTriangles:
		return fmt.Errorf("%d global triangles, at most %d can be stored", f.NumGlobalTriangles, MaxTriangles)
	case f.NumProcs < 1 || f.NumProcs > MaxTriangles || f.Processor >= f.NumProcs:
		return fmt.Errorf("processor %d of %d", f.Processor, f.NumProcs)
	}
	for v, g := range f.GlobalID {
		if g < 0 || int(g) >= f.NumGlobalTriangles {
			return fmt.Errorf("volume %d has global id %d of %d", v, g, f.NumGlobalTriangles)
		}
	}
	for _, q := range f.Quantities {
		if reserved[q] {
			return fmt.Errorf("quantity name %s is reserved", q)
		}
		if len(f.Values[q]) != nv*nt {
			return fmt.Errorf("quantity %s has %d values, expected %d", q, len(f.Values[q]), nv*nt)
		}
	}
	return nil
}

// Write stores f in w. Attributes and variables are always written in the
// same order, so equal content gives equal bytes.
func (f *File) Write(w cdf.ReaderWriterAt) (err error) {
	if err = f.Check(); err != nil {
		return
	}
	h := cdf.NewHeader(
		[]string{dimVolumes, dimVertices, dimTimesteps},
		[]int{f.NumVolumes(), 3, f.NumTimes()})
	if f.Title != "" {
		h.AddAttribute("", "title", f.Title)
	}
	if f.Processor >= 0 {
		h.AddAttribute("", "processor", []int32{int32(f.Processor)})
	}
	h.AddAttribute("", "numprocs", []int32{int32(f.NumProcs)})
	h.AddAttribute("", "number_of_global_triangles", []int32{int32(f.NumGlobalTriangles)})
	h.AddVariable(varGlobalID, []string{dimVolumes}, []int32{0})
	h.AddVariable(varFullFlag, []string{dimVolumes}, []int32{0})
	h.AddVariable(varX, []string{dimVolumes, dimVertices}, []float64{0})
	h.AddVariable(varY, []string{dimVolumes, dimVertices}, []float64{0})
	h.AddVariable(varTime, []string{dimTimesteps}, []float64{0})
	for _, q := range f.Quantities {
		h.AddVariable(q, []string{dimTimesteps, dimVolumes}, []float64{0})
	}
	h.Define()
	var cf *cdf.File
	if cf, err = cdf.Create(w, h); err != nil {
		return
	}
	if err = writeVar(cf, varGlobalID, f.GlobalID); err != nil {
		return
	}
	if err = writeVar(cf, varFullFlag, f.FullFlag); err != nil {
		return
	}
	if err = writeVar(cf, varX, f.X); err != nil {
		return
	}
	if err = writeVar(cf, varY, f.Y); err != nil {
		return
	}
	if err = writeVar(cf, varTime, f.Times); err != nil {
		return
	}
	for _, q := range f.Quantities {
		if err = writeVar(cf, q, f.Values[q]); err != nil {
			return
		}
	}
	return
}

func writeVar(cf *cdf.File, name string, data interface{}) (err error) {
	end := cf.Header.Lengths(name)
	start := make([]int, len(end))
	if _, err = cf.Writer(name, start, end).Write(data); err != nil {
		return fmt.Errorf("writing variable %s: %v", name, err)
	}
	return
}

// Read loads a result file
func Read(r cdf.ReaderWriterAt) (f *File, err error) {
	var cf *cdf.File
	if cf, err = cdf.Open(r); err != nil {
		return
	}
	hd := cf.Header
	f = &File{
		Processor: -1,
		Values:    make(map[string][]float64),
	}
	if title, ok := hd.GetAttribute("", "title").(string); ok {
		f.Title = title
	}
	if f.NumProcs, err = intAttribute(hd, "numprocs"); err != nil {
		return nil, err
	}
	if f.NumGlobalTriangles, err = intAttribute(hd, "number_of_global_triangles"); err != nil {
		return nil, err
	}
	if hd.GetAttribute("", "processor") != nil {
		if f.Processor, err = intAttribute(hd, "processor"); err != nil {
			return nil, err
		}
	}
	var data interface{}
	if data, err = readVar(cf, varGlobalID); err != nil {
		return nil, err
	}
	f.GlobalID = data.([]int32)
	if data, err = readVar(cf, varFullFlag); err != nil {
		return nil, err
	}
	f.FullFlag = data.([]int32)
	if data, err = readVar(cf, varX); err != nil {
		return nil, err
	}
	f.X = data.([]float64)
	if data, err = readVar(cf, varY); err != nil {
		return nil, err
	}
	f.Y = data.([]float64)
	if data, err = readVar(cf, varTime); err != nil {
		return nil, err
	}
	f.Times = data.([]float64)
	for _, v := range hd.Variables() {
		if reserved[v] {
			continue
		}
		if data, err = readVar(cf, v); err != nil {
			return nil, err
		}
		vals, ok := data.([]float64)
		if !ok {
			return nil, fmt.Errorf("quantity %s is not double precision", v)
		}
		f.Quantities = append(f.Quantities, v)
		f.Values[v] = vals
	}
	sort.Strings(f.Quantities)
	if err = f.Check(); err != nil {
		return nil, err
	}
	return
}

func intAttribute(hd *cdf.Header, name string) (int, error) {
	vals, ok := hd.GetAttribute("", name).([]int32)
	if !ok || len(vals) != 1 {
		return 0, fmt.Errorf("missing or malformed attribute %s", name)
	}
	return int(vals[0]), nil
}

func readVar(cf *cdf.File, name string) (data interface{}, err error) {
	lengths := cf.Header.Lengths(name)
	if len(lengths) == 0 {
		return nil, fmt.Errorf("variable %s not in file", name)
	}
	n := 1
	for _, l := range lengths {
		n *= l
	}
	r := cf.Reader(name, nil, nil)
	data = r.Zero(n)
	if _, err = r.Read(data); err != nil {
		return nil, fmt.Errorf("reading variable %s: %v", name, err)
	}
	return
}

// WriteFile writes f to path. A failed write leaves no file behind.
func WriteFile(path string, f *File) (err error) {
	var fd *os.File
	if fd, err = os.Create(path); err != nil {
		return
	}
	if err = f.Write(fd); err != nil {
		fd.Close()
		os.Remove(path)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = fd.Close(); err != nil {
		os.Remove(path)
	}
	return
}

func ReadFile(path string) (f *File, err error) {
	var fd *os.File
	if fd, err = os.Open(path); err != nil {
		return
	}
	defer fd.Close()
	if f, err = Read(fd); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return
}

// PartialName is the file written by process rank of size
func PartialName(dir, name string, rank, size int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_P%d_%d.sww", name, rank, size))
}

func MergedName(dir, name string) string {
	return filepath.Join(dir, name+".sww")
}

// Recorder collects the yields of one domain and writes its partial file on
// Close
type Recorder struct {
	Path string
	file *File
}

func NewRecorder(path, title string, d *domain.Domain) (r *Recorder, err error) {
	if d.NumGlobalTriangles > MaxTriangles {
		return nil, fmt.Errorf("%d global triangles, at most %d can be stored", d.NumGlobalTriangles, MaxTriangles)
	}
	nLocal := d.NumLocal()
	f := &File{
		Title:              title,
		Processor:          d.Rank,
		NumProcs:           d.NumProcs,
		NumGlobalTriangles: d.NumGlobalTriangles,
		GlobalID:           make([]int32, nLocal),
		FullFlag:           d.FullFlags(),
		X:                  make([]float64, 3*nLocal),
		Y:                  make([]float64, 3*nLocal),
		Quantities:         append([]string(nil), d.QuantityNames...),
		Values:             make(map[string][]float64, len(d.QuantityNames)),
	}
	for i := 0; i < nLocal; i++ {
		f.GlobalID[i] = int32(d.Index.GlobalID(i))
		for j, v := range d.Triangles[i] {
			f.X[3*i+j], f.Y[3*i+j] = d.VX[v], d.VY[v]
		}
	}
	return &Recorder{Path: path, file: f}, nil
}

func (r *Recorder) Record(t float64, d *domain.Domain) error {
	if d.NumLocal() != r.file.NumVolumes() {
		return fmt.Errorf("recording %d triangles into a file of %d", d.NumLocal(), r.file.NumVolumes())
	}
	r.file.Times = append(r.file.Times, t)
	for _, q := range r.file.Quantities {
		vals, ok := d.Quantities[q]
		if !ok {
			return fmt.Errorf("domain has no quantity %s", q)
		}
		r.file.Values[q] = append(r.file.Values[q], vals...)
	}
	return nil
}

func (r *Recorder) File() *File { return r.file }

func (r *Recorder) Close() error {
	return WriteFile(r.Path, r.file)
}
