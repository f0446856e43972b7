package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PopulatedUser is a user with its favorites resolved to full shortcuts.
type PopulatedUser struct {
	*User
	// Shortcuts holds the resolved favorites in the user's order.
	// Duplicate references are kept.
	Shortcuts []*Shortcut
	// Dangling counts references to shortcuts that no longer exist.
	Dangling int
}

// PopulateFavorites resolves the favorites of users with one lookup.
// References to missing shortcuts are dropped and counted.
func PopulateFavorites(ctx context.Context, s Shortcuts, users []*User) ([]PopulatedUser, error) {
	seen := make(map[primitive.ObjectID]bool)
	var ids []primitive.ObjectID
	for _, u := range users {
		for _, id := range u.Favorites {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	byID := make(map[primitive.ObjectID]*Shortcut, len(ids))
	if len(ids) > 0 {
		found, err := s.FindShortcutsByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, sc := range found {
			byID[sc.ID] = sc
		}
	}

	out := make([]PopulatedUser, 0, len(users))
	for _, u := range users {
		pu := PopulatedUser{User: u}
		for _, id := range u.Favorites {
			if sc, ok := byID[id]; ok {
				pu.Shortcuts = append(pu.Shortcuts, sc)
			} else {
				pu.Dangling++
			}
		}
		out = append(out, pu)
	}
	return out, nil
}
