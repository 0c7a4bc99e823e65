package city

import (
	"fmt"
	"log"
	"sort"
)

// ProjectSpec fixes the build cost and crew shape per asset type.
type ProjectSpec struct {
	GoalDays     float64
	MinBuilders  int  // builders required per full-progress day
	RequiredRole Role // non-builder role that must also contribute, if any
	TileType     string
}

var projectSpecs = map[string]ProjectSpec{
	"market":     {GoalDays: 3, MinBuilders: 1, TileType: "market_stall"},
	"watchtower": {GoalDays: 4, MinBuilders: 2, TileType: "watchtower"},
	"hospital":   {GoalDays: 5, MinBuilders: 1, RequiredRole: RoleHealer, TileType: "hospital"},
	"school":     {GoalDays: 4, MinBuilders: 2, TileType: "school"},
	"road":       {GoalDays: 2, MinBuilders: 1, TileType: "road"},
	"archive":    {GoalDays: 3, MinBuilders: 1, RequiredRole: RoleMessenger, TileType: "archive"},
}

func ProjectSpecFor(projectType string) (ProjectSpec, bool) {
	s, ok := projectSpecs[projectType]
	return s, ok
}

// ProjectTypes lists the known asset types in a stable order.
func ProjectTypes() []string {
	out := make([]string, 0, len(projectSpecs))
	for t := range projectSpecs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ProjectSystem owns multi-day collaborative builds: contribution
// accumulation, abandonment timeouts, and completion into standing assets.
type ProjectSystem struct {
	projects map[uint64]*Project
	nextID   uint64
	log      *log.Logger
}

func NewProjectSystem(logger *log.Logger) *ProjectSystem {
	return &ProjectSystem{projects: map[uint64]*Project{}, log: logger}
}

// Start opens a new project. At most one active project per type exists
// at a time; standing assets of the type are not checked here.
func (ps *ProjectSystem) Start(day int, proposer, projectType string, tile [2]int, hasTile bool) (*Project, error) {
	spec, ok := projectSpecs[projectType]
	if !ok {
		return nil, fmt.Errorf("unknown project type %q", projectType)
	}
	for _, p := range ps.projects {
		if p.Type == projectType && p.Status == ProjectActive {
			return nil, fmt.Errorf("project type %q already active", projectType)
		}
	}
	ps.nextID++
	p := &Project{
		ID:              ps.nextID,
		Name:            fmt.Sprintf("%s-%d", projectType, ps.nextID),
		Type:            projectType,
		Proposer:        proposer,
		GoalBuilderDays: spec.GoalDays,
		Contributors:    map[string]float64{},
		Status:          ProjectActive,
		DayStarted:      day,
		LastProgressDay: day,
		TargetTile:      tile,
		HasTile:         hasTile,
		TileType:        spec.TileType,
	}
	ps.projects[p.ID] = p
	ps.log.Printf("projects: %s started %s (goal %.1f builder-days)", proposer, p.Name, spec.GoalDays)
	return p, nil
}

// ActiveForAgent returns the active project this agent contributes to, or
// the lowest-id active project as the default work target.
func (ps *ProjectSystem) ActiveForAgent(agentID string) *Project {
	var fallback *Project
	for _, p := range ps.sorted() {
		if p.Status != ProjectActive {
			continue
		}
		if _, ok := p.Contributors[agentID]; ok || p.Proposer == agentID {
			return p
		}
		if fallback == nil {
			fallback = p
		}
	}
	return fallback
}

func (ps *ProjectSystem) Get(id uint64) *Project { return ps.projects[id] }

// ActiveOfType returns the active project of the given type, if any.
func (ps *ProjectSystem) ActiveOfType(projectType string) *Project {
	for _, p := range ps.sorted() {
		if p.Status == ProjectActive && p.Type == projectType {
			return p
		}
	}
	return nil
}

// HighestPriorityActive returns the active project closest to completion
// (public-goods funding target); ties break by id.
func (ps *ProjectSystem) HighestPriorityActive() *Project {
	var best *Project
	for _, p := range ps.sorted() {
		if p.Status != ProjectActive {
			continue
		}
		if best == nil || p.GoalBuilderDays-p.Progress < best.GoalBuilderDays-best.Progress {
			best = p
		}
	}
	return best
}

// StepDay advances every active project one day given who acted on it
// today (agent id -> role). Full crew => +1.0, partial => +0.5, idle past
// the abandonment window => abandoned. Completed projects are returned so
// the caller can raise assets and emit build events.
func (ps *ProjectSystem) StepDay(day int, abandonDays int, workers map[uint64]map[string]Role) (completed []*Project, abandoned []*Project) {
	for _, p := range ps.sorted() {
		if p.Status != ProjectActive {
			continue
		}
		crew := workers[p.ID]
		gain := ps.progressGain(p, crew)
		if gain > 0 {
			for id := range crew {
				p.Contributors[id] += gain
			}
			p.Progress += gain
			p.LastProgressDay = day
		} else if day-p.LastProgressDay >= abandonDays {
			p.Status = ProjectAbandoned
			abandoned = append(abandoned, p)
			ps.log.Printf("projects: %s abandoned after %d idle days", p.Name, day-p.LastProgressDay)
			continue
		}
		if p.Progress >= p.GoalBuilderDays {
			p.Status = ProjectCompleted
			p.DayCompleted = day
			completed = append(completed, p)
		}
	}
	return completed, abandoned
}

// progressGain: 1.0 when all required roles contributed this day, 0.5 when
// only part of the crew showed up, 0 when nobody did.
func (ps *ProjectSystem) progressGain(p *Project, crew map[string]Role) float64 {
	if len(crew) == 0 {
		return 0
	}
	spec := projectSpecs[p.Type]
	builders := 0
	roleMet := spec.RequiredRole == ""
	for _, r := range crew {
		if r == RoleBuilder {
			builders++
		}
		if spec.RequiredRole != "" && r == spec.RequiredRole {
			roleMet = true
		}
	}
	if builders >= spec.MinBuilders && roleMet {
		return 1.0
	}
	return 0.5
}

// BuilderList returns contributors with at least one full day, sorted.
func (p *Project) BuilderList() []string {
	var out []string
	for id, days := range p.Contributors {
		if days >= 1 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (ps *ProjectSystem) sorted() []*Project {
	out := make([]*Project, 0, len(ps.projects))
	for _, p := range ps.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (ps *ProjectSystem) All() []*Project { return ps.sorted() }

func (ps *ProjectSystem) Restore(projects []*Project, nextID uint64) {
	ps.projects = map[uint64]*Project{}
	for _, p := range projects {
		ps.projects[p.ID] = p
	}
	ps.nextID = nextID
}

func (ps *ProjectSystem) NextID() uint64 { return ps.nextID }
