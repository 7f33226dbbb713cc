package probe

import (
	"fmt"
	"log"

	"github.com/jmhodges/clock"
)

// probeCheck holds what every target check needs to log about itself.
type probeCheck struct {
	addr   string
	label  string
	clk    clock.Clock
	stdout *log.Logger
	stderr *log.Logger
}

func (pc probeCheck) logErrorf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	pc.logError(line)
}

func (pc probeCheck) logError(msg string) {
	pc.stderr.Print("[ERROR]", " ", pc.label, " ", pc.addr, " : ", msg)
}

func (pc probeCheck) logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	pc.log(line)
}

func (pc probeCheck) log(msg string) {
	pc.stdout.Print(pc.label, " ", pc.addr, " : ", msg)
}
