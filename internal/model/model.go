package model

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Phone        string
	Address      string
	Role         string
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent *string
	IPAddress *string
}

// WasteCategory is one of the ten fixed waste tags a report or pickup
// request can carry.
type WasteCategory string

const (
	WasteHousehold    WasteCategory = "household"
	WasteOrganic      WasteCategory = "organic"
	WasteRecyclable   WasteCategory = "recyclable"
	WastePlastic      WasteCategory = "plastic"
	WastePaper        WasteCategory = "paper"
	WasteMetal        WasteCategory = "metal"
	WasteGlass        WasteCategory = "glass"
	WasteElectronic   WasteCategory = "electronic"
	WasteConstruction WasteCategory = "construction"
	WasteHazardous    WasteCategory = "hazardous-materials"
)

type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportInProgress ReportStatus = "in-progress"
	ReportResolved   ReportStatus = "resolved"
	ReportRejected   ReportStatus = "rejected"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Photo is one stored report attachment. Data and Thumbnail hold the
// original and resized bytes; both live outside the archive row itself.
type Photo struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
	Thumbnail   []byte `json:"-"`
}

type StatusUpdate struct {
	Status    ReportStatus `json:"status"`
	Note      string       `json:"note,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type WasteReport struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Location    *Location      `json:"location"`
	Category    WasteCategory  `json:"category"`
	Description string         `json:"description"`
	Photos      []Photo        `json:"photos"`
	Urgency     Urgency        `json:"urgency"`
	Contact     Contact        `json:"contact"`
	Status      ReportStatus   `json:"status"`
	SubmittedAt time.Time      `json:"submittedAt"`
	StatusLog   []StatusUpdate `json:"statusLog,omitempty"`
}

type PickupTime string

const (
	PickupMorning   PickupTime = "morning"
	PickupAfternoon PickupTime = "afternoon"
	PickupEvening   PickupTime = "evening"
)

type PickupQuantity string

const (
	QuantitySmall  PickupQuantity = "small"
	QuantityMedium PickupQuantity = "medium"
	QuantityLarge  PickupQuantity = "large"
	QuantityBulk   PickupQuantity = "bulk"
)

type PickupStatus string

const (
	PickupScheduled  PickupStatus = "scheduled"
	PickupInProgress PickupStatus = "in-progress"
	PickupCompleted  PickupStatus = "completed"
	PickupCancelled  PickupStatus = "cancelled"
)

type PickupRequest struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Address    string         `json:"address"`
	PickupDate time.Time      `json:"pickupDate"`
	PickupTime PickupTime     `json:"pickupTime"`
	WasteType  WasteCategory  `json:"wasteType"`
	Quantity   PickupQuantity `json:"wasteQuantity"`
	Intruksi   string         `json:"intruksi,omitempty"`
	Status     PickupStatus   `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type EducationalContent struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Category    string `yaml:"category" json:"category"`
	Difficulty  string `yaml:"difficulty" json:"difficulty"`
	ReadTimeMin int    `yaml:"readTimeMin" json:"readTimeMin"`
	Author      string `yaml:"author" json:"author"`
	Date        string `yaml:"date" json:"date"`
	Thumbnail   string `yaml:"thumbnail" json:"thumbnail,omitempty"`
	Summary     string `yaml:"summary" json:"summary,omitempty"`
	Body        string `yaml:"body" json:"body,omitempty"`
}

func ValidWasteCategory(value string) (WasteCategory, bool) {
	switch WasteCategory(value) {
	case WasteHousehold, WasteOrganic, WasteRecyclable, WastePlastic, WastePaper,
		WasteMetal, WasteGlass, WasteElectronic, WasteConstruction, WasteHazardous:
		return WasteCategory(value), true
	default:
		return "", false
	}
}

func ValidUrgency(value string) (Urgency, bool) {
	switch Urgency(value) {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency:
		return Urgency(value), true
	default:
		return "", false
	}
}

func ValidReportStatus(value string) (ReportStatus, bool) {
	switch ReportStatus(value) {
	case ReportPending, ReportInProgress, ReportResolved, ReportRejected:
		return ReportStatus(value), true
	default:
		return "", false
	}
}

func ValidPickupTime(value string) (PickupTime, bool) {
	switch PickupTime(value) {
	case PickupMorning, PickupAfternoon, PickupEvening:
		return PickupTime(value), true
	default:
		return "", false
	}
}

func ValidPickupQuantity(value string) (PickupQuantity, bool) {
	switch PickupQuantity(value) {
	case QuantitySmall, QuantityMedium, QuantityLarge, QuantityBulk:
		return PickupQuantity(value), true
	default:
		return "", false
	}
}

func ValidPickupStatus(value string) (PickupStatus, bool) {
	switch PickupStatus(value) {
	case PickupScheduled, PickupInProgress, PickupCompleted, PickupCancelled:
		return PickupStatus(value), true
	default:
		return "", false
	}
}
