package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type DemoTeam struct {
	Name             string
	ControllerUserID string
	Budget           int64
}

type DemoAsset struct {
	Name     string
	Position string
	Price    int64
}

type DemoLeague struct {
	Name   string
	Teams  []DemoTeam
	Assets []DemoAsset
}

// DefaultDemoLeague builds a league with one team per controller and a
// free-agent pool large enough for a few full rotations.
func DefaultDemoLeague(controllers ...string) DemoLeague {
	if len(controllers) == 0 {
		controllers = []string{"demo-user-1", "demo-user-2"}
	}
	l := DemoLeague{Name: "Demo League"}
	for i, c := range controllers {
		l.Teams = append(l.Teams, DemoTeam{
			Name:             fmt.Sprintf("Team %d", i+1),
			ControllerUserID: c,
			Budget:           50_000_000,
		})
	}
	positions := []string{"GK", "DF", "DF", "MF", "MF", "FW"}
	for i := 0; i < 36; i++ {
		l.Assets = append(l.Assets, DemoAsset{
			Name:     fmt.Sprintf("Player %02d", i+1),
			Position: positions[i%len(positions)],
			Price:    int64(500_000 + (i%12)*250_000),
		})
	}
	return l
}

// SeedDemoLeague inserts the league unless one with the same name exists,
// in which case the existing league is returned untouched.
func (s *Service) SeedDemoLeague(ctx context.Context, demo DemoLeague) (League, error) {
	if strings.TrimSpace(demo.Name) == "" {
		return League{}, Errorf(KindInvalidInput, "league name is required")
	}
	var (
		league League
		seeded bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		seeded = false
		existing, err := tx.ListLeagues(ctx)
		if err != nil {
			return err
		}
		for _, l := range existing {
			if l.Name == demo.Name {
				league = l
				return nil
			}
		}

		league = League{ID: uuid.NewString(), Name: demo.Name, CreatedAt: s.now()}
		if err := tx.InsertLeague(ctx, league); err != nil {
			return err
		}
		for _, t := range demo.Teams {
			team := Team{
				ID:               uuid.NewString(),
				LeagueID:         league.ID,
				Name:             t.Name,
				ControllerUserID: t.ControllerUserID,
				Active:           true,
			}
			if err := tx.InsertTeam(ctx, team, Budget{TeamID: team.ID, Total: t.Budget}); err != nil {
				return err
			}
		}
		for _, a := range demo.Assets {
			asset := Asset{
				ID:       uuid.NewString(),
				LeagueID: league.ID,
				Name:     a.Name,
				Position: a.Position,
				Price:    a.Price,
			}
			if err := tx.InsertAsset(ctx, asset); err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return League{}, err
	}
	if seeded {
		s.log.InfoContext(ctx, "seeded demo league", "league_id", league.ID, "teams", len(demo.Teams), "assets", len(demo.Assets))
	}
	return league, nil
}
