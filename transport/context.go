package transport

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// ProcessContext is the identity of one process of a run. It is passed to
// every component constructor in place of global rank state.
type ProcessContext struct {
	Rank      int
	Size      int
	Root      int
	Name      string // Host the process runs on
	Transport Transport
	Log       *log.Entry
}

// NewProcessContext takes rank and size from t. Root is rank 0.
func NewProcessContext(t Transport, logger *log.Logger) *ProcessContext {
	if logger == nil {
		logger = log.StandardLogger()
	}
	name, err := os.Hostname()
	if err != nil {
		name = "unknown"
	}
	return &ProcessContext{
		Rank:      t.Rank(),
		Size:      t.Size(),
		Root:      0,
		Name:      name,
		Transport: t,
		Log:       logger.WithFields(log.Fields{"rank": t.Rank(), "size": t.Size()}),
	}
}

func (pc *ProcessContext) IsRoot() bool { return pc.Rank == pc.Root }
