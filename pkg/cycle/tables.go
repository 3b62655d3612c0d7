package cycle

import (
	"fmt"
	"sort"
	"time"

	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/recovery"
	"github.com/citysim/cyclekernel/pkg/replay"
	"github.com/citysim/cyclekernel/pkg/stores"
)

// Ledger tables written by a cycle, besides the recovery state and the seed ledger.
const (
	LogTable       = "Cycle_Log"
	EventsTable    = "World_Events"
	DashboardTable = "Dashboard"
	DynamicsTable  = "Neighborhood_Dynamics"
)

var (
	logHeader = []string{
		"cycle_id", "timestamp", "mode",
		"civic_load", "civic_flag", "cycle_weight", "weight_flag",
		"pattern", "pattern_flag", "migration", "migration_flag",
		"recovery_level", "overload_score", "events", "checksum",
	}
	eventsHeader    = []string{"cycle_id", "domain", "severity", "neighborhood", "description"}
	dashboardHeader = []string{"metric", "value"}
	dynamicsHeader  = []string{"neighborhood", "net_rate", "cycle_id"}
)

// Schema returns the table registry of a cycle kernel ledger.
func Schema() *stores.Schema {
	return stores.NewSchema(
		stores.TableSpec{Name: recovery.StateTable, Header: headerNames(recovery.StateHeader)},
		stores.TableSpec{Name: replay.SeedTable, Header: headerNames(replay.SeedHeader)},
		stores.TableSpec{Name: LogTable, Header: logHeader},
		stores.TableSpec{Name: EventsTable, Header: eventsHeader},
		stores.TableSpec{Name: DashboardTable, Header: dashboardHeader},
		stores.TableSpec{Name: DynamicsTable, Header: dynamicsHeader},
	)
}

func headerNames(header []engine.Value) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = engine.AsString(h)
	}
	return out
}

// queueRecords stages the cycle's own ledger output: the log line, the
// generated events, the dashboard block and the neighborhood dynamics.
func queueRecords(cc *engine.CycleContext) error {
	s := cc.Summary
	level, overload := string(engine.RecoveryNone), 0
	if s.Recovery != nil {
		level, overload = string(s.Recovery.Level), s.Recovery.OverloadScore
	}

	logRow := []engine.Value{
		cc.CycleID, cc.Timestamp.UTC().Format(time.RFC3339), cc.Mode.String(),
		s.CivicLoad.Value, string(s.CivicLoad.Flag),
		s.CycleWeight.Value, string(s.CycleWeight.Flag),
		s.Pattern.Value, string(s.Pattern.Flag),
		s.Migration.Value, string(s.Migration.Flag),
		level, overload, len(cc.Events), s.Checksum,
	}
	if _, err := cc.Intents.QueueAppend(LogTable, logRow,
		fmt.Sprintf("cycle %d summary", cc.CycleID), "cycle"); err != nil {
		return err
	}

	if len(s.GeneratedEvents) > 0 {
		rows := make([][]engine.Value, len(s.GeneratedEvents))
		for i, ev := range s.GeneratedEvents {
			rows[i] = []engine.Value{ev.Cycle, string(ev.Domain), string(ev.Severity), ev.Neighborhood, ev.Description}
		}
		if _, err := cc.Intents.QueueBatchAppend(EventsTable, rows,
			fmt.Sprintf("%d generated events", len(rows)), "events"); err != nil {
			return err
		}
	}

	suppression := cc.PriorSuppression()
	if s.Recovery != nil {
		suppression = s.Recovery.Multipliers
	}
	dashboard := [][]engine.Value{
		{"cycle_id", cc.CycleID},
		{"civic_load", s.CivicLoad.Value},
		{"civic_flag", string(s.CivicLoad.Flag)},
		{"cycle_weight", s.CycleWeight.Value},
		{"pattern", string(s.Pattern.Flag)},
		{"migration", string(s.Migration.Flag)},
		{"recovery_level", level},
		{"event_suppression", suppression.Event},
	}
	if _, err := cc.Intents.QueueRange(DashboardTable, 1, 0, dashboard,
		"dashboard refresh", "dashboard"); err != nil {
		return err
	}

	if len(s.Migration.Dynamics) > 0 {
		hoods := make([]string, 0, len(s.Migration.Dynamics))
		for hood := range s.Migration.Dynamics {
			hoods = append(hoods, hood)
		}
		sort.Strings(hoods)
		rows := make([][]engine.Value, len(hoods))
		for i, hood := range hoods {
			rows[i] = []engine.Value{hood, s.Migration.Dynamics[hood], cc.CycleID}
		}
		if _, err := cc.Intents.QueueBatchAppend(DynamicsTable, rows,
			"neighborhood dynamics", "migration"); err != nil {
			return err
		}
	}
	return nil
}
