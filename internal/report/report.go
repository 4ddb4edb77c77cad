package report

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Hocaabinn/sampah-keren-sub001/internal/model"
)

const minDescriptionLen = 10

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// Draft is the mutable submission record gathered by the report form.
// Validation failures are keyed by field name so the caller can render a
// per-field error map.
type Draft struct {
	Location    *model.Location
	Category    string
	Description string
	Urgency     string
	Contact     model.Contact
	Photos      []PhotoUpload
}

func Validate(draft Draft) map[string]string {
	fields := map[string]string{}
	if draft.Location == nil {
		fields["location"] = "location_required"
	}
	if strings.TrimSpace(draft.Category) == "" {
		fields["category"] = "category_required"
	} else if _, ok := model.ValidWasteCategory(draft.Category); !ok {
		fields["category"] = "invalid_category"
	}
	description := strings.TrimSpace(draft.Description)
	if description == "" {
		fields["description"] = "description_required"
	} else if len(description) < minDescriptionLen {
		fields["description"] = "description_too_short"
	}
	if strings.TrimSpace(draft.Contact.Name) == "" {
		fields["contactName"] = "contact_name_required"
	}
	email := strings.TrimSpace(draft.Contact.Email)
	if email == "" {
		fields["contactEmail"] = "contact_email_required"
	} else if !emailPattern.MatchString(email) {
		fields["contactEmail"] = "invalid_email"
	}
	if draft.Urgency != "" {
		if _, ok := model.ValidUrgency(draft.Urgency); !ok {
			fields["urgency"] = "invalid_urgency"
		}
	}
	return fields
}

// Build validates the draft and, when it passes, mints the submitted
// record: generated GRSK id, UTC submission timestamp, pending status.
func Build(draft Draft, userID string, now time.Time) (model.WasteReport, map[string]string) {
	fields := Validate(draft)
	if len(fields) > 0 {
		return model.WasteReport{}, fields
	}

	urgency := model.Urgency(draft.Urgency)
	if draft.Urgency == "" {
		urgency = model.UrgencyMedium
	}

	record := model.WasteReport{
		ID:          NewReportID(now),
		UserID:      userID,
		Location:    draft.Location,
		Category:    model.WasteCategory(draft.Category),
		Description: strings.TrimSpace(draft.Description),
		Photos:      NormalizePhotos(draft.Photos),
		Urgency:     urgency,
		Contact: model.Contact{
			Name:  strings.TrimSpace(draft.Contact.Name),
			Email: strings.TrimSpace(draft.Contact.Email),
			Phone: strings.TrimSpace(draft.Contact.Phone),
		},
		Status:      model.ReportPending,
		SubmittedAt: now.UTC(),
	}
	return record, nil
}

func NewReportID(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:4])
	return fmt.Sprintf("GRSK-%d-%s", now.UnixMilli(), suffix)
}

type SortKey string

const (
	SortDateDesc SortKey = "date_desc"
	SortDateAsc  SortKey = "date_asc"
	SortByType   SortKey = "type"
)

func ValidSortKey(value string) (SortKey, bool) {
	switch SortKey(value) {
	case SortDateDesc, SortDateAsc, SortByType:
		return SortKey(value), true
	case "":
		return SortDateDesc, true
	default:
		return "", false
	}
}

func FilterByCategory(reports []model.WasteReport, category model.WasteCategory) []model.WasteReport {
	if category == "" {
		return reports
	}
	filtered := make([]model.WasteReport, 0, len(reports))
	for _, record := range reports {
		if record.Category == category {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

func Sort(reports []model.WasteReport, key SortKey) []model.WasteReport {
	sorted := make([]model.WasteReport, len(reports))
	copy(sorted, reports)
	switch key {
	case SortDateAsc:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
		})
	case SortByType:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Category < sorted[j].Category
		})
	default:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].SubmittedAt.After(sorted[j].SubmittedAt)
		})
	}
	return sorted
}
