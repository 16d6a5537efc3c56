package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "love-album-backend/internal/errors"
	"love-album-backend/internal/models"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Planner time windows
const (
	WhenAll      = "all"
	WhenToday    = "today"
	WhenTomorrow = "tomorrow"
	WhenWeek     = "week"
	WhenUpcoming = "upcoming"
)

// ActivityInput is the editable part of a planner activity
type ActivityInput struct {
	Owner       models.Person   `json:"owner"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	Category    models.Category `json:"category"`
}

// ActivityFilter selects planner activities
type ActivityFilter struct {
	Owner    models.Person
	Category models.Category
	When     string
	// WeekOf (YYYY-MM-DD) selects the Sunday to Saturday week containing that day
	WeekOf string
}

// PlannerStats summarizes the planner
type PlannerStats struct {
	Total      int                   `json:"total"`
	PerOwner   map[models.Person]int `json:"per_owner"`
	SharedDays int                   `json:"shared_days"`
}

// PlannerService handles planner business rules on top of the coordinator
type PlannerService struct {
	coord *Coordinator
	now   func() time.Time
}

// NewPlannerService creates a new planner service
func NewPlannerService(coord *Coordinator, now func() time.Time) *PlannerService {
	if now == nil {
		now = time.Now
	}
	return &PlannerService{coord: coord, now: now}
}

// Add validates and stores a new activity
func (s *PlannerService) Add(ctx context.Context, in ActivityInput) (models.PlannerActivity, models.SyncState, error) {
	if err := normalizeActivity(&in); err != nil {
		return models.PlannerActivity{}, "", err
	}

	now := s.now().UTC()
	activity := models.PlannerActivity{
		ID:          uuid.New().String(),
		Owner:       in.Owner,
		Title:       in.Title,
		Description: in.Description,
		Date:        in.Date,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Category:    in.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return activity, s.coord.SaveActivity(ctx, activity), nil
}

// Update replaces an existing activity in place
func (s *PlannerService) Update(ctx context.Context, id string, in ActivityInput) (models.PlannerActivity, models.SyncState, error) {
	existing, ok := findByID(s.coord.Activities(), id)
	if !ok {
		return models.PlannerActivity{}, "", apperrors.New(apperrors.ErrNotFound, "activity not found")
	}
	if err := normalizeActivity(&in); err != nil {
		return models.PlannerActivity{}, "", err
	}

	existing.Owner = in.Owner
	existing.Title = in.Title
	existing.Description = in.Description
	existing.Date = in.Date
	existing.StartTime = in.StartTime
	existing.EndTime = in.EndTime
	existing.Category = in.Category
	existing.UpdatedAt = s.now().UTC()

	return existing, s.coord.SaveActivity(ctx, existing), nil
}

// Delete removes an activity
func (s *PlannerService) Delete(ctx context.Context, id string) (models.SyncState, error) {
	if _, ok := findByID(s.coord.Activities(), id); !ok {
		return "", apperrors.New(apperrors.ErrNotFound, "activity not found")
	}
	return s.coord.DeleteActivity(ctx, id), nil
}

// List returns the activities matching filter ordered by date and start time
func (s *PlannerService) List(filter ActivityFilter) ([]models.PlannerActivity, error) {
	from, to, err := s.window(filter.When, filter.WeekOf)
	if err != nil {
		return nil, err
	}

	result := []models.PlannerActivity{}
	for _, a := range s.coord.Activities() {
		if filter.Owner != "" && a.Owner != filter.Owner {
			continue
		}
		if filter.Category != "" && a.Category != filter.Category {
			continue
		}
		if from != "" && a.Date < from {
			continue
		}
		if to != "" && a.Date > to {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

// window returns the inclusive date range of a time window; empty bounds are open.
// weekOf anchors the week window on another day and implies it when when is empty.
func (s *PlannerService) window(when, weekOf string) (string, string, error) {
	today := s.now()
	day := func(t time.Time) string { return t.Format(dateLayout) }

	if weekOf != "" {
		if when != "" && when != WhenWeek {
			return "", "", apperrors.New(apperrors.ErrValidation, "week_of only applies to the week window")
		}
		anchor, err := time.Parse(dateLayout, weekOf)
		if err != nil {
			return "", "", apperrors.New(apperrors.ErrValidation, "week_of must be YYYY-MM-DD")
		}
		today, when = anchor, WhenWeek
	}

	switch when {
	case "", WhenAll:
		return "", "", nil
	case WhenToday:
		return day(today), day(today), nil
	case WhenTomorrow:
		tomorrow := today.AddDate(0, 0, 1)
		return day(tomorrow), day(tomorrow), nil
	case WhenWeek:
		sunday := today.AddDate(0, 0, -int(today.Weekday()))
		return day(sunday), day(sunday.AddDate(0, 0, 6)), nil
	case WhenUpcoming:
		return day(today), "", nil
	}
	return "", "", apperrors.New(apperrors.ErrValidation, "unknown time window "+when)
}

// Stats counts activities overall, per owner and the days both owners have plans
func (s *PlannerService) Stats() PlannerStats {
	stats := PlannerStats{PerOwner: map[models.Person]int{models.PersonA: 0, models.PersonB: 0}}
	owners := make(map[string]map[models.Person]bool)

	for _, a := range s.coord.Activities() {
		stats.Total++
		stats.PerOwner[a.Owner]++
		if owners[a.Date] == nil {
			owners[a.Date] = make(map[models.Person]bool)
		}
		owners[a.Date][a.Owner] = true
	}

	for _, byOwner := range owners {
		if byOwner[models.PersonA] && byOwner[models.PersonB] {
			stats.SharedDays++
		}
	}
	return stats
}

// normalizeActivity validates in and fills the defaults
func normalizeActivity(in *ActivityInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if !in.Owner.Valid() {
		return apperrors.New(apperrors.ErrValidation, "owner must be person_a or person_b")
	}
	if in.Title == "" {
		return apperrors.New(apperrors.ErrValidation, "title is required")
	}
	if _, err := time.Parse(dateLayout, in.Date); err != nil {
		return apperrors.New(apperrors.ErrValidation, "date must be YYYY-MM-DD")
	}

	start, err := time.Parse(timeLayout, in.StartTime)
	if err != nil {
		return apperrors.New(apperrors.ErrValidation, "start time must be HH:MM")
	}
	if in.EndTime == "" {
		in.EndTime = in.StartTime
	} else {
		end, err := time.Parse(timeLayout, in.EndTime)
		if err != nil {
			return apperrors.New(apperrors.ErrValidation, "end time must be HH:MM")
		}
		if !end.After(start) {
			return apperrors.New(apperrors.ErrValidation, "end time must be after start time")
		}
	}

	if in.Category == "" {
		in.Category = models.CategoryOther
	}
	if !in.Category.Valid() {
		return apperrors.New(apperrors.ErrValidation, "unknown category")
	}
	return nil
}
