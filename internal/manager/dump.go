package manager

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/position"
)

type marginDump struct {
	Free           string `yaml:"free"`
	Usable         string `yaml:"usable"`
	Remaining      string `yaml:"remaining"`
	AllowedNewLots string `yaml:"allowed_new_lots"`
	TotalVolume    string `yaml:"total_volume"`
}

type unboundDump struct {
	Predecessor int64  `yaml:"predecessor"`
	Volume      string `yaml:"volume"`
}

type dump struct {
	RunID      string              `yaml:"run_id"`
	Tick       int64               `yaml:"tick"`
	Locked     bool                `yaml:"locked"`
	Margin     marginDump          `yaml:"margin"`
	Active     map[string][]int64  `yaml:"active"`
	Unresolved []position.Snapshot `yaml:"unresolved,omitempty"`
	Unbound    []unboundDump       `yaml:"unbound,omitempty"`
	Positions  []position.Snapshot `yaml:"positions"`
}

// Dump renders the whole collection as YAML. Successors are nested under
// their predecessors.
func (m *Manager) Dump() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mg := m.cfg.Risk.GetStats()
	d := dump{
		RunID:  m.cfg.RunID,
		Tick:   m.tick,
		Locked: m.locked,
		Margin: marginDump{
			Free:           mg.Free.StringFixed(2),
			Usable:         mg.Usable.StringFixed(2),
			Remaining:      mg.Remaining.StringFixed(2),
			AllowedNewLots: mg.AllowedNewLots.String(),
			TotalVolume:    mg.TotalVolume.String(),
		},
		Active: make(map[string][]int64, len(domain.Tactics)),
	}
	for _, t := range domain.Tactics {
		tickets := []int64{}
		for _, p := range sortedByTicket(m.views[t]) {
			tickets = append(tickets, p.Ticket())
		}
		d.Active[t.String()] = tickets
	}
	for _, p := range m.unresolvedSorted() {
		d.Unresolved = append(d.Unresolved, p.Snapshot())
	}
	preds := make([]int64, 0, len(m.unboundPredecessors))
	for t := range m.unboundPredecessors {
		preds = append(preds, t)
	}
	sort.Slice(preds, func(i, j int) bool { return preds[i] < preds[j] })
	for _, t := range preds {
		d.Unbound = append(d.Unbound, unboundDump{Predecessor: t, Volume: m.unboundPredecessors[t].String()})
	}
	for _, p := range sortedByTicket(m.positions) {
		if _, ok := m.positions[p.Predecessor()]; ok && p.Predecessor() != 0 {
			continue
		}
		d.Positions = append(d.Positions, m.lineage(p))
	}

	out, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("Dump failed: %w", err)
	}
	return string(out), nil
}

func (m *Manager) lineage(p *position.Position) position.Snapshot {
	s := p.Snapshot()
	if next, ok := m.positions[p.Successor()]; ok && p.Successor() != 0 {
		succ := m.lineage(next)
		s.Successor = &succ
	}
	return s
}
