package supervisor

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/process"
)

// Usage is a resource snapshot of the supervised child.
type Usage struct {
	PID        int
	CPUPercent float64
	RSS        uint64
}

func (u Usage) String() string {
	return fmt.Sprintf("pid %d, cpu %.2f%%, memory %s", u.PID, u.CPUPercent, humanize.IBytes(u.RSS))
}

// Usage samples CPU and resident memory of the running child.
func (p *Process) Usage() (Usage, error) {
	select {
	case <-p.exited:
		return Usage{}, fmt.Errorf("standalone server is not running")
	default:
	}

	ps, err := process.NewProcess(int32(p.Pid()))
	if err != nil {
		return Usage{}, err
	}
	u := Usage{PID: p.Pid()}
	if cpu, err := ps.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	mem, err := ps.MemoryInfo()
	if err != nil {
		return u, err
	}
	u.RSS = mem.RSS
	return u, nil
}
