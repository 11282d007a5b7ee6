package ledger

import (
	"context"
	"errors"
	"slices"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const opReconcile = "ledger.reconcile"

// ReconcileReport counts the documents a reconciliation pass repaired.
type ReconcileReport struct {
	ProfilesRepaired int `json:"profiles_repaired"`
	NeedsRepaired    int `json:"needs_repaired"`
}

type ownerCount struct {
	OwnerID string
	Total   int64
}

// Reconcile recomputes profile counters from the collections and restores every committed
// restaurant into its need's responders.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	if err := s.ready(opReconcile); err != nil {
		return ReconcileReport{}, err
	}

	var report ReconcileReport
	var repairedNeeds []Need
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		announcementCounts, err := countByOwner(tx, &Announcement{})
		if err != nil {
			return s.fail(opReconcile, reasonQueryFailed, err, zap.String("collection", CollectionAnnouncements))
		}
		needCounts, err := countByOwner(tx, &Need{})
		if err != nil {
			return s.fail(opReconcile, reasonQueryFailed, err, zap.String("collection", CollectionNeeds))
		}

		var profiles []ActorProfile
		if err := tx.Order("id ASC").Find(&profiles).Error; err != nil {
			return s.fail(opReconcile, reasonQueryFailed, err, zap.String("collection", CollectionActorProfiles))
		}
		for _, profile := range profiles {
			announcements := announcementCounts[profile.ID]
			needs := needCounts[profile.ID]
			if profile.AnnouncementCount == announcements && profile.NeedCount == needs {
				continue
			}
			err := tx.Model(&ActorProfile{}).Where("id = ?", profile.ID).UpdateColumns(map[string]any{
				columnAnnouncementCount: announcements,
				columnNeedCount:         needs,
			}).Error
			if err != nil {
				return s.fail(opReconcile, reasonCounterFailed, err, zap.String(fieldActorID, profile.ID))
			}
			report.ProfilesRepaired++
		}

		var commitments []HelpCommitment
		if err := tx.Order("created_at ASC").Order("id ASC").Find(&commitments).Error; err != nil {
			return s.fail(opReconcile, reasonQueryFailed, err, zap.String("collection", CollectionHelpCommitments))
		}
		responders := make(map[string][]string)
		for _, commitment := range commitments {
			if !slices.Contains(responders[commitment.NeedID], commitment.RestaurantID) {
				responders[commitment.NeedID] = append(responders[commitment.NeedID], commitment.RestaurantID)
			}
		}

		now := s.now()
		for needID, restaurantIDs := range responders {
			need, err := load[Need](tx, CollectionNeeds, needID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return s.fail(opReconcile, reasonLookupFailed, err, zap.String(fieldDocumentID, needID))
			}
			previous := need.Version
			missing := false
			for _, restaurantID := range restaurantIDs {
				if !need.AnsweredBy(restaurantID) {
					need.RespondingActorIDs = append(need.RespondingActorIDs, restaurantID)
					missing = true
				}
			}
			if !missing {
				continue
			}
			need.Version = previous + 1
			need.UpdatedAt = now
			if err := casUpdate(tx, &need, previous, "responding_actor_ids"); err != nil {
				return s.updateFailure(opReconcile, needID, err)
			}
			repairedNeeds = append(repairedNeeds, need)
			report.NeedsRepaired++
		}
		return nil
	})
	if err != nil {
		return ReconcileReport{}, s.settle(opReconcile, err)
	}

	for _, need := range repairedNeeds {
		s.publish(CollectionNeeds, need.ID, feed.EventUpdated, need.OwnerID)
	}
	s.loggerOrDefault().Info("ledger reconciled",
		zap.Int("profiles_repaired", report.ProfilesRepaired),
		zap.Int("needs_repaired", report.NeedsRepaired))
	return report, nil
}

func countByOwner(tx *gorm.DB, model any) (map[string]int64, error) {
	var rows []ownerCount
	err := tx.Model(model).
		Select("owner_id, count(*) AS total").
		Group("owner_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.OwnerID] = row.Total
	}
	return counts, nil
}
