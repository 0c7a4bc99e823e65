package city

import (
	"log"
	"sort"
)

// Role-scoped daily benefits applied by standing assets before any agent
// acts.
const (
	BenefitWatchtowerPolice = 30
	BenefitHospitalHealer   = 40
	BenefitMarketSplit      = 50 // split across merchants
	BenefitSchoolTeacher    = 30
	BenefitRoadExplorer     = 25
)

// AssetSystem tracks standing assets and applies their effects.
type AssetSystem struct {
	assets map[uint64]*Asset
	nextID uint64
	log    *log.Logger
}

func NewAssetSystem(logger *log.Logger) *AssetSystem {
	return &AssetSystem{assets: map[uint64]*Asset{}, log: logger}
}

// Raise creates the standing asset for a completed project.
func (as *AssetSystem) Raise(day int, p *Project) *Asset {
	as.nextID++
	a := &Asset{
		ID:       as.nextID,
		Name:     p.Name,
		Type:     p.Type,
		Builders: p.BuilderList(),
		DayBuilt: day,
		Status:   AssetStanding,
		Tile:     p.TargetTile,
		HasTile:  p.HasTile,
	}
	as.assets[a.ID] = a
	as.log.Printf("assets: %s raised (builders: %v)", a.Name, a.Builders)
	return a
}

func (as *AssetSystem) Get(id uint64) *Asset { return as.assets[id] }

// Standing reports whether a standing asset of the given type exists.
func (as *AssetSystem) Standing(assetType string) *Asset {
	for _, a := range as.sorted() {
		if a.Type == assetType && a.Status == AssetStanding {
			return a
		}
	}
	return nil
}

// Flags returns which asset types currently stand, e.g. for decision
// context and the archive's narrator-precision flag.
func (as *AssetSystem) Flags() map[string]bool {
	out := map[string]bool{}
	for _, a := range as.assets {
		if a.Status == AssetStanding {
			out[a.Type] = true
		}
	}
	return out
}

// Destroy marks an asset destroyed; its benefits stop immediately.
func (as *AssetSystem) Destroy(day int, a *Asset) {
	a.Status = AssetDestroyed
	a.DayDestroyed = day
	as.log.Printf("assets: %s destroyed on day %d", a.Name, day)
}

func (as *AssetSystem) Damage(a *Asset) {
	if a.Status == AssetStanding {
		a.Status = AssetDamaged
	}
}

func (as *AssetSystem) sorted() []*Asset {
	out := make([]*Asset, 0, len(as.assets))
	for _, a := range as.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (as *AssetSystem) All() []*Asset { return as.sorted() }

func (as *AssetSystem) Restore(assets []*Asset, nextID uint64) {
	as.assets = map[uint64]*Asset{}
	for _, a := range assets {
		as.assets[a.ID] = a
	}
	as.nextID = nextID
}

func (as *AssetSystem) NextID() uint64 { return as.nextID }
