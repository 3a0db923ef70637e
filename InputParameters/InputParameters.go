package InputParameters

import (
	"fmt"
	"sort"
	"time"

	"github.com/ghodss/yaml"

	"github.com/notargets/gohalo/types"
)

// BCParameters selects the condition applied on one boundary tag
type BCParameters struct {
	Type      string  `json:"Type"` // Transmissive, Reflective, Dirichlet or Oscillating
	Value     float64 `json:"Value"`
	Amplitude float64 `json:"Amplitude"` // Oscillating only
	Period    float64 `json:"Period"`    // Oscillating only
}

// Parameters obtained from the YAML input file, flags and environment
type RunParameters struct {
	Title              string                  `json:"Title"`
	NumProcs           int                     `json:"NumProcs"`
	Transport          string                  `json:"Transport"` // local, group or tcp
	Addresses          []string                `json:"Addresses"` // tcp only, one per rank
	Rank               int                     `json:"Rank"`      // tcp only
	MeshType           string                  `json:"MeshType"`  // rectangular_cross, rectangular or su2
	MeshFile           string                  `json:"MeshFile"`
	ParallelMesh       bool                    `json:"ParallelMesh"` // Every process builds the mesh, no distribution
	Nx                 int                     `json:"Nx"`
	Ny                 int                     `json:"Ny"`
	Length             float64                 `json:"Length"`
	Width              float64                 `json:"Width"`
	OriginX            float64                 `json:"OriginX"`
	OriginY            float64                 `json:"OriginY"`
	HaloWidth          int                     `json:"HaloWidth"`
	Strategy           string                  `json:"Strategy"` // rcb, block or metis
	ImbalanceTolerance float64                 `json:"ImbalanceTolerance"`
	YieldStep          float64                 `json:"YieldStep"`
	FinalTime          float64                 `json:"FinalTime"`
	MaxSteps           int                     `json:"MaxSteps"`
	VerifyHalo         bool                    `json:"VerifyHalo"`
	CFL                float64                 `json:"CFL"`
	Velocity           [2]float64              `json:"Velocity"`
	InitType           string                  `json:"InitType"` // Gaussian, Constant or Step
	InitialStage       float64                 `json:"InitialStage"`
	BCs                map[string]BCParameters `json:"BCs"` // Keyed by boundary tag
	OutputDir          string                  `json:"OutputDir"`
	Name               string                  `json:"Name"`
	DeletePartials     bool                    `json:"DeletePartials"`
	DistributeTimeout  float64                 `json:"DistributeTimeout"` // Seconds
	ConnectTimeout     float64                 `json:"ConnectTimeout"`    // Seconds
	LogLevel           string                  `json:"LogLevel"`
	Profile            string                  `json:"Profile"`
}

func NewRunParameters() *RunParameters {
	return &RunParameters{
		Title:              "gohalo",
		NumProcs:           1,
		Transport:          "local",
		MeshType:           "rectangular_cross",
		Nx:                 10,
		Ny:                 10,
		Length:             1,
		Width:              1,
		HaloWidth:          1,
		Strategy:           "rcb",
		ImbalanceTolerance: 1.05,
		FinalTime:          1,
		CFL:                0.9,
		Velocity:           [2]float64{1, 0},
		InitType:           "Gaussian",
		InitialStage:       1,
		Name:               "domain",
		DistributeTimeout:  60,
		ConnectTimeout:     30,
		LogLevel:           "info",
	}
}

func (rp *RunParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, rp)
}

func (rp *RunParameters) Validate() error {
	switch {
	case rp.NumProcs < 1:
		return types.ConfigErrorf("NumProcs must be at least 1, have %d", rp.NumProcs)
	case rp.HaloWidth < 1:
		return types.ConfigErrorf("unsupported HaloWidth %d, must be at least 1", rp.HaloWidth)
	case rp.ImbalanceTolerance < 1:
		return types.ConfigErrorf("ImbalanceTolerance %g must be at least 1", rp.ImbalanceTolerance)
	case !(rp.FinalTime > 0):
		return types.ConfigErrorf("FinalTime must be positive, have %g", rp.FinalTime)
	case rp.YieldStep < 0 || rp.MaxSteps < 0:
		return types.ConfigErrorf("YieldStep and MaxSteps must not be negative")
	case !(rp.CFL > 0):
		return types.ConfigErrorf("CFL must be positive, have %g", rp.CFL)
	case rp.Name == "":
		return types.ConfigErrorf("an output Name is required")
	}
	switch rp.Transport {
	case "local":
		if rp.NumProcs != 1 {
			return types.ConfigErrorf("local transport runs 1 process, NumProcs is %d", rp.NumProcs)
		}
	case "group":
	case "tcp":
		if len(rp.Addresses) != rp.NumProcs {
			return types.ConfigErrorf("%d addresses for %d processes", len(rp.Addresses), rp.NumProcs)
		}
		if rp.Rank < 0 || rp.Rank >= rp.NumProcs {
			return types.ConfigErrorf("rank %d out of range for %d processes", rp.Rank, rp.NumProcs)
		}
	default:
		return types.ConfigErrorf("unknown Transport %q, use local, group or tcp", rp.Transport)
	}
	switch rp.MeshType {
	case "rectangular_cross", "rectangular":
		if rp.Nx < 1 || rp.Ny < 1 || !(rp.Length > 0) || !(rp.Width > 0) {
			return types.ConfigErrorf("mesh %dx%d of size %gx%g is empty", rp.Nx, rp.Ny, rp.Length, rp.Width)
		}
	case "su2":
		if rp.MeshFile == "" {
			return types.ConfigErrorf("MeshType su2 needs a MeshFile")
		}
	default:
		return types.ConfigErrorf("unknown MeshType %q", rp.MeshType)
	}
	switch rp.Strategy {
	case "rcb", "block", "metis":
	default:
		return types.ConfigErrorf("unknown Strategy %q, use rcb, block or metis", rp.Strategy)
	}
	switch rp.InitType {
	case "Gaussian", "Constant", "Step":
	default:
		return types.ConfigErrorf("unknown InitType %q", rp.InitType)
	}
	for tag, bc := range rp.BCs {
		switch bc.Type {
		case "Transmissive", "Reflective", "Dirichlet":
		case "Oscillating":
			if !(bc.Period > 0) {
				return types.ConfigErrorf("boundary %s needs a positive Period, have %g", tag, bc.Period)
			}
		default:
			return types.ConfigErrorf("boundary %s has unknown type %q", tag, bc.Type)
		}
	}
	return nil
}

func (rp *RunParameters) DistributeWait() time.Duration {
	return time.Duration(rp.DistributeTimeout * float64(time.Second))
}

func (rp *RunParameters) ConnectWait() time.Duration {
	return time.Duration(rp.ConnectTimeout * float64(time.Second))
}

func (rp *RunParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", rp.Title)
	fmt.Printf("[%d]\t\t\t\t= Processes\n", rp.NumProcs)
	fmt.Printf("[%s]\t\t\t= Transport\n", rp.Transport)
	if rp.MeshType == "su2" {
		fmt.Printf("[%s]\t\t\t= Mesh File\n", rp.MeshFile)
	} else {
		fmt.Printf("[%s %dx%d]\t= Mesh\n", rp.MeshType, rp.Nx, rp.Ny)
	}
	fmt.Printf("[%v]\t\t\t= Parallel Mesh\n", rp.ParallelMesh)
	fmt.Printf("[%d]\t\t\t\t= Halo Width\n", rp.HaloWidth)
	fmt.Printf("[%s]\t\t\t= Partition Strategy\n", rp.Strategy)
	fmt.Printf("%8.5f\t\t= CFL\n", rp.CFL)
	fmt.Printf("%8.5f\t\t= YieldStep\n", rp.YieldStep)
	fmt.Printf("%8.5f\t\t= FinalTime\n", rp.FinalTime)
	fmt.Printf("[%s]\t\t= InitType\n", rp.InitType)
	keys := make([]string, len(rp.BCs))
	i := 0
	for k := range rp.BCs {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("BCs[%s] = %v\n", key, rp.BCs[key])
	}
}
