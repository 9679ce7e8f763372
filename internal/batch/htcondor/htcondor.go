// Package htcondor is the reference batch plugin, polling an HTCondor pool
// via the condor_q and condor_status command-line tools.
package htcondor

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cernops/elastiq/internal/batch"
	"github.com/cernops/elastiq/internal/resolver"
	"github.com/cernops/elastiq/internal/runner"
)

func init() {
	batch.Register("htcondor", New)
}

// Plugin implements batch.Plugin against condor_q / condor_status.
type Plugin struct {
	runner      *runner.Runner
	log         *logrus.Logger
	now         func() time.Time
	maxAttempts int
}

// New returns a fresh, uninitialized Plugin. Registered as the htcondor
// batch.Factory.
func New() batch.Plugin {
	return &Plugin{now: time.Now, maxAttempts: 5}
}

// Init wires the plugin's logger and command runner. The section is unused:
// the reference plugin has no configuration of its own.
func (p *Plugin) Init(section map[string]string) error {
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	p.runner = runner.New(p.log)
	return nil
}

// PollQueue runs `condor_q -attributes JobStatus -long` and counts entries
// whose JobStatus is 1 (Idle, i.e. waiting).
func (p *Plugin) PollQueue(ctx context.Context) (int, error) {
	res, err := p.runner.Run(ctx, []string{"condor_q", "-attributes", "JobStatus", "-long"}, p.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", batch.ErrTransient, err)
	}
	if res == nil || res.ExitCode != 0 {
		return 0, fmt.Errorf("%w: condor_q failed", batch.ErrTransient)
	}
	return bytes.Count(res.Output, []byte("JobStatus = 1")), nil
}

// condorXML mirrors the subset of `condor_status -xml` output elastiq cares
// about: a <classads> root wrapping a flat list of <c> records, each
// carrying named <a> attributes.
type condorXML struct {
	XMLName xml.Name `xml:"classads"`
	Records []struct {
		Attrs []struct {
			Name string `xml:"n,attr"`
			Text string `xml:"s"`
		} `xml:"a"`
	} `xml:"c"`
}

// PollStatus runs `condor_status -xml -attributes Activity,Machine` and
// aggregates per-machine job counts, exactly as the original HTCondor plugin
// does: MyType must equal "Machine" and all three fields (MyType, Machine,
// Activity) must be present for a record to contribute.
func (p *Plugin) PollStatus(ctx context.Context, previous map[string]batch.WorkerStatus, validIPs map[string]struct{}) (map[string]batch.WorkerStatus, error) {
	res, err := p.runner.Run(ctx, []string{"condor_status", "-xml", "-attributes", "Activity,Machine"}, 2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", batch.ErrTransient, err)
	}
	if res == nil || res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: condor_status failed", batch.ErrTransient)
	}

	return aggregate(res.Output, previous, validIPs, p.now(), p.log)
}

// aggregate parses condor_status -xml output and folds it into a worker
// status map, applying the same resolution/idle rules as the original
// HTCondor plugin. Split out from PollStatus so tests can exercise the
// parsing logic without shelling out to condor_status.
func aggregate(output []byte, previous map[string]batch.WorkerStatus, validIPs map[string]struct{}, now time.Time, log *logrus.Logger) (map[string]batch.WorkerStatus, error) {
	var doc condorXML
	if err := xml.Unmarshal(output, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid XML: %v", batch.ErrParse, err)
	}

	jobs := map[string]int{}

	for _, rec := range doc.Records {
		var myType, machine, activity string
		for _, a := range rec.Attrs {
			switch a.Name {
			case "MyType":
				myType = a.Text
			case "Machine":
				machine = a.Text
			case "Activity":
				activity = a.Text
			}
		}
		if myType == "" || machine == "" || activity == "" {
			continue
		}
		if myType != "Machine" {
			continue
		}

		if validIPs != nil {
			ip, err := resolver.Resolve(machine)
			if err != nil {
				log.Debugf("poll status: %s ignored: %v", machine, err)
				continue
			}
			if _, ok := validIPs[ip]; !ok {
				log.Debugf("poll status: %s ignored (no matching VM)", machine)
				continue
			}
		}

		idle := activity == "Idle"
		if _, seen := jobs[machine]; seen {
			if !idle {
				jobs[machine]++
			}
		} else if idle {
			jobs[machine] = 0
		} else {
			jobs[machine] = 1
		}
	}

	result := make(map[string]batch.WorkerStatus, len(jobs))
	for host, count := range jobs {
		unchangedSince := now
		if prev, ok := previous[host]; ok && prev.Jobs == count {
			unchangedSince = prev.UnchangedSince
		}
		result[host] = batch.WorkerStatus{Jobs: count, UnchangedSince: unchangedSince}
	}
	return result, nil
}
