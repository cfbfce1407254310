package seed

import (
	"math/rand/v2"
	"time"

	"github.com/okian/tally/internal/domain/model"
)

// Player is one planned player with the scores it will receive.
type Player struct {
	TeamID   int64 `json:"team_id"`
	PlayerID int64 `json:"player_id"`
	Scores   []int `json:"scores"`
}

// Plan is the full set of work for a run.
type Plan struct {
	Seed    uint64   `json:"seed"`
	Players []Player `json:"players"`
}

// Expected returns the rating the service should converge to for p.
func (p Player) Expected(withDefault bool, defaultScore int) (avg float64, total int64) {
	sum := 0
	for _, s := range p.Scores {
		sum += s
	}
	n := len(p.Scores)
	if withDefault {
		sum += defaultScore
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return float64(sum) / float64(n), int64(n)
}

// ScoreCount returns how many scores the plan submits.
func (p Plan) ScoreCount() int {
	n := 0
	for _, pl := range p.Players {
		n += len(pl.Scores)
	}
	return n
}

// Teams returns the distinct team ids in plan order.
func (p Plan) Teams() []int64 {
	seen := make(map[int64]struct{})
	out := make([]int64, 0)
	for _, pl := range p.Players {
		if _, ok := seen[pl.TeamID]; ok {
			continue
		}
		seen[pl.TeamID] = struct{}{}
		out = append(out, pl.TeamID)
	}
	return out
}

// Generate builds a plan from cfg. The same seed always yields the same plan.
func Generate(cfg *Config) Plan {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	plan := Plan{Seed: seed, Players: make([]Player, 0, cfg.Teams*cfg.PlayersPerTeam)}
	for t := 1; t <= cfg.Teams; t++ {
		for p := 1; p <= cfg.PlayersPerTeam; p++ {
			pl := Player{TeamID: int64(t), PlayerID: int64(p), Scores: make([]int, cfg.ScoresPerPlayer)}
			// Each player gets a skill level and scores scatter around it.
			level := rng.IntN(model.MaxScore + 1)
			for i := range pl.Scores {
				pl.Scores[i] = clamp(level + rng.IntN(5) - 2)
			}
			plan.Players = append(plan.Players, pl)
		}
	}
	return plan
}

func clamp(s int) int {
	switch {
	case s < model.MinScore:
		return model.MinScore
	case s > model.MaxScore:
		return model.MaxScore
	}
	return s
}
