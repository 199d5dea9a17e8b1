package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playperu/breachhunt/internal/hunt"
	"github.com/playperu/breachhunt/internal/store"
)

// DemoNodes is the six-node breach sequence.
var DemoNodes = []hunt.Node{
	{ID: 1, Name: "Uplink", LocationHint: "Main gate notice board",
		Answers: []string{"50"}, SuccessMessage: ">> UPLINK ESTABLISHED. Coordinate secured."},
	{ID: 2, Name: "Chromatic Relay", LocationHint: "Library, second floor",
		Answers: []string{"BLUE", "PINK", "GOLD", "GRAY", "CYAN"}, SuccessMessage: ">> SIGNAL LOCKED. Chromatic spectrum matched. Access granted."},
	{ID: 3, Name: "Grid Sync", LocationHint: "Courtyard chess tiles",
		Answers: []string{"2"}, SuccessMessage: ">> GRID SYNCED. Digit acquired. Combining data fragments..."},
	{ID: 4, Name: "Logic Gate", LocationHint: "Computer lab 3",
		Answers: []string{"HACKD"}, SuccessMessage: ">> PASSWORD ACCEPTED. Directory 'Logic Gate' unzipped."},
	{ID: 5, Name: "Firewall", LocationHint: "Auditorium back row",
		Answers: []string{"WALLBREACHED"}, SuccessMessage: ">> FIREWALL DESTROYED. Data Stream Decrypted: [ PASSWORD: GOLDENWALLBREACHED ]. Final Level Unlocked."},
	{ID: 6, Name: "The Vault", LocationHint: "Room 505",
		Answers: []string{"GOLDENWALLBREACHED"}, SuccessMessage: ">> MASTER KEY ACCEPTED. THE VAULT IS OPEN. Report to Room 505."},
}

var demoTeams = []hunt.Team{
	{Name: "Null Pointers", AccessCode: "NP-2026"},
	{Name: "Packet Sniffers", AccessCode: "PS-2026"},
	{Name: "Root Access", AccessCode: "RA-2026"},
}

// SeedDemo writes the node catalog when it is empty and, with teams set,
// a few demo teams when none exist. Idempotent.
func SeedDemo(ctx context.Context, logger *slog.Logger, st store.Store, teams bool) error {
	nodes, err := st.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("listing nodes: %w", err)
	}
	if len(nodes) == 0 {
		for _, n := range DemoNodes {
			if err := st.PutNode(ctx, n); err != nil {
				return fmt.Errorf("seeding node %d: %w", n.ID, err)
			}
		}
		logger.Info("node catalog seeded", "nodes", len(DemoNodes))
	}

	if !teams {
		return nil
	}
	existing, err := st.ListTeams(ctx)
	if err != nil {
		return fmt.Errorf("listing teams: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	for _, t := range demoTeams {
		if _, err := st.CreateTeam(ctx, t); err != nil {
			return fmt.Errorf("seeding team %s: %w", t.Name, err)
		}
	}
	logger.Info("demo teams created", "teams", len(demoTeams))
	return nil
}
